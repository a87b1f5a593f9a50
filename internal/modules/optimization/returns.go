package optimization

import (
	"math"

	"github.com/rs/zerolog"
)

const (
	ExpectedReturnMin          = -0.10 // -10% min
	ExpectedReturnMax          = 0.30  // 30% max
	ExpectedReturnsCAGRWeight  = 0.70  // 70% weight on CAGR
	ExpectedReturnsScoreWeight = 0.30  // 30% weight on score
	OptimizerTargetReturn      = 0.11  // 11% default target
)

// SecurityMetrics is the per-security scoring data expected-return
// calculation needs: the normalised CAGR score, dividend yield, total score,
// and the quality components used by the flexible penalty override.
type SecurityMetrics struct {
	CAGRScore      *float64 // Normalised 0-1; nil when no history
	DividendYield  float64  // Decimal yield
	TotalScore     *float64 // 0-1; nil defaults to neutral 0.5
	LongTermScore  *float64 // 0-1; nil when unavailable
	StabilityScore *float64 // 0-1; nil when unavailable
}

// MetricsSource supplies SecurityMetrics by ISIN. Implementations are
// fed from the planning request's scores payload or any analytics store.
type MetricsSource interface {
	MetricsForISIN(isin string) (SecurityMetrics, bool)
}

// MetricsMap is the map-backed MetricsSource.
type MetricsMap map[string]SecurityMetrics

// MetricsForISIN returns the metrics for the ISIN.
func (m MetricsMap) MetricsForISIN(isin string) (SecurityMetrics, bool) {
	metrics, ok := m[isin]
	return metrics, ok
}

// ReturnsCalculator calculates expected returns for portfolio optimization.
type ReturnsCalculator struct {
	metrics MetricsSource
	log     zerolog.Logger
}

// NewReturnsCalculator creates a new returns calculator over the given
// metrics source.
func NewReturnsCalculator(metrics MetricsSource, log zerolog.Logger) *ReturnsCalculator {
	return &ReturnsCalculator{
		metrics: metrics,
		log:     log.With().Str("component", "returns").Logger(),
	}
}

// SetMetrics replaces the metrics source (used when metrics arrive with the
// request rather than at construction time).
func (rc *ReturnsCalculator) SetMetrics(metrics MetricsSource) {
	rc.metrics = metrics
}

// CalculateExpectedReturns calculates expected returns for all securities.
// Securities with no usable metrics are excluded from the result, which is
// how "missing data -> symbol excluded" propagates into the optimiser.
func (rc *ReturnsCalculator) CalculateExpectedReturns(
	securities []Security,
	regimeScore float64,
	dividendBonuses map[string]float64,
	targetReturn float64,
	targetReturnThresholdPct float64,
) (map[string]float64, error) {
	expectedReturns := make(map[string]float64)

	if targetReturnThresholdPct <= 0 {
		targetReturnThresholdPct = 0.80
	}
	if targetReturn <= 0 {
		targetReturn = OptimizerTargetReturn
	}

	for _, security := range securities {
		expReturn := rc.calculateSingle(
			security,
			targetReturn,
			targetReturnThresholdPct,
			dividendBonuses[security.Symbol],
			regimeScore,
		)
		if expReturn != nil {
			expectedReturns[security.ISIN] = *expReturn
		}
	}

	rc.log.Info().
		Int("num_securities", len(expectedReturns)).
		Float64("regime_score", regimeScore).
		Msg("Calculated expected returns")

	return expectedReturns, nil
}

// calculateSingle calculates the expected return for one security, or nil
// when it should be excluded (no data, or below the hard minimum).
func (rc *ReturnsCalculator) calculateSingle(
	security Security,
	targetReturn float64,
	targetReturnThresholdPct float64,
	dividendBonus float64,
	regimeScore float64,
) *float64 {
	symbol := security.Symbol

	var metrics SecurityMetrics
	if rc.metrics != nil {
		metrics, _ = rc.metrics.MetricsForISIN(security.ISIN)
	}

	if metrics.CAGRScore == nil {
		rc.log.Debug().Str("symbol", symbol).Msg("No CAGR data available")
		return nil
	}

	cagr := convertCAGRScoreToCAGR(*metrics.CAGRScore)
	totalReturnCAGR := cagr + metrics.DividendYield

	score := 0.5
	if metrics.TotalScore != nil {
		score = *metrics.TotalScore
	}

	// Score factor: 0.5 is neutral, 1.0 doubles the target contribution,
	// 0.0 removes it.
	scoreFactor := 0.0
	if score > 0 {
		scoreFactor = score / 0.5
	}

	baseReturn := rc.calculateStaticExpectedReturn(totalReturnCAGR, targetReturn, scoreFactor, regimeScore)

	// Regime reduction for bear markets: 1.00 -> 0.75 as score goes 0 -> -1.
	regime := clamp(regimeScore, -1.0, 1.0)
	if regime < 0 {
		baseReturn *= 1.0 - 0.25*math.Abs(regime)
	}

	// User preference multiplier.
	multiplier := security.PriorityMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	finalReturn := baseReturn*multiplier + dividendBonus

	clamped := clamp(finalReturn, ExpectedReturnMin, ExpectedReturnMax)

	// Hard filter: never admit returns below 6% or half the target,
	// whichever is higher, regardless of quality.
	absoluteMinReturn := math.Max(0.06, targetReturn*0.50)
	if clamped < absoluteMinReturn {
		rc.log.Debug().
			Str("symbol", symbol).
			Float64("expected_return", clamped).
			Float64("absolute_min", absoluteMinReturn).
			Msg("Filtered out: below absolute minimum return")
		return nil
	}

	// Flexible penalty below the soft threshold (target * threshold_pct),
	// reducible by exceptional quality.
	minThreshold := targetReturn * targetReturnThresholdPct
	if clamped < minThreshold {
		shortfallRatio := (minThreshold - clamped) / minThreshold
		penalty := math.Min(0.3, shortfallRatio*0.5)

		qualityScore := 0.0
		switch {
		case metrics.LongTermScore != nil && metrics.StabilityScore != nil:
			qualityScore = (*metrics.LongTermScore + *metrics.StabilityScore) / 2.0
		case metrics.LongTermScore != nil:
			qualityScore = *metrics.LongTermScore
		case metrics.StabilityScore != nil:
			qualityScore = *metrics.StabilityScore
		}

		if qualityScore > 0.80 {
			penalty *= 0.65
		} else if qualityScore > 0.75 {
			penalty *= 0.80
		}

		clamped *= 1.0 - penalty

		rc.log.Debug().
			Str("symbol", symbol).
			Float64("expected_return_after_penalty", clamped).
			Float64("min_threshold", minThreshold).
			Float64("penalty", penalty).
			Float64("quality_score", qualityScore).
			Msg("Applied flexible penalty")
	}

	rc.log.Debug().
		Str("symbol", symbol).
		Float64("cagr", cagr).
		Float64("dividend_yield", metrics.DividendYield).
		Float64("score", score).
		Float64("multiplier", multiplier).
		Float64("regime_score", regimeScore).
		Float64("expected_return", clamped).
		Msg("Calculated expected return")

	return &clamped
}

// convertCAGRScoreToCAGR converts a normalised cagr_score (0-1) back to an
// approximate CAGR, by linear interpolation between the scoring anchors:
// 1.0 -> ~20%, 0.8 -> ~11% (target), 0.15 -> 0% (floor).
func convertCAGRScoreToCAGR(cagrScore float64) float64 {
	switch {
	case cagrScore >= 0.8:
		return 0.11 + (cagrScore-0.8)*(0.20-0.11)/(1.0-0.8)
	case cagrScore >= 0.15:
		return (cagrScore - 0.15) * (0.11 - 0.0) / (0.8 - 0.15)
	default:
		return 0.0
	}
}

// calculateStaticExpectedReturn blends historical CAGR with the
// score-weighted target. The regime tilts the blend toward CAGR in bull
// markets (0.70/0.30 baseline up to 0.80/0.20 at regime +1).
func (rc *ReturnsCalculator) calculateStaticExpectedReturn(
	totalReturnCAGR float64,
	targetReturn float64,
	scoreFactor float64,
	regimeScore float64,
) float64 {
	regime := clamp(regimeScore, -1.0, 1.0)

	cagrWeight := ExpectedReturnsCAGRWeight
	scoreWeight := ExpectedReturnsScoreWeight
	if regime >= 0 {
		cagrWeight = ExpectedReturnsCAGRWeight + (0.80-ExpectedReturnsCAGRWeight)*regime
		scoreWeight = 1.0 - cagrWeight
	}

	return (totalReturnCAGR * cagrWeight) + (targetReturn * scoreFactor * scoreWeight)
}

// clamp restricts a value to a given range.
func clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}
