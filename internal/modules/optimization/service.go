package optimization

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors for optimisation failures.
var (
	// ErrInsufficientData means expected returns or covariance inputs were
	// missing for too many securities to optimise at all.
	ErrInsufficientData = errors.New("insufficient data for optimization")

	// ErrInfeasible means both branches failed: the MV solver at the
	// target-return and max-Sharpe formulations, and HRP.
	ErrInfeasible = errors.New("mean-variance optimization infeasible")
)

// AdaptiveBlendProvider supplies a regime-dependent MV/HRP blend.
type AdaptiveBlendProvider interface {
	CalculateAdaptiveBlend(regimeScore float64) float64
}

// OptimizerService orchestrates the complete optimisation: expected returns,
// covariance, constraints, the MV and HRP branches, blending, cutoff, and
// renormalisation against the cash reserve.
type OptimizerService struct {
	mvOptimizer     *MVOptimizer
	hrpOptimizer    *HRPOptimizer
	constraintsMgr  *ConstraintsManager
	returnsCalc     *ReturnsCalculator
	riskBuilder     *RiskModelBuilder
	adaptiveService AdaptiveBlendProvider // Optional
	log             zerolog.Logger
}

// NewOptimizerService creates the optimiser over its component parts.
func NewOptimizerService(
	mvOptimizer *MVOptimizer,
	hrpOptimizer *HRPOptimizer,
	constraintsMgr *ConstraintsManager,
	returnsCalc *ReturnsCalculator,
	riskBuilder *RiskModelBuilder,
	log zerolog.Logger,
) *OptimizerService {
	return &OptimizerService{
		mvOptimizer:    mvOptimizer,
		hrpOptimizer:   hrpOptimizer,
		constraintsMgr: constraintsMgr,
		returnsCalc:    returnsCalc,
		riskBuilder:    riskBuilder,
		log:            log.With().Str("component", "optimizer_service").Logger(),
	}
}

// SetAdaptiveService sets the adaptive market service for dynamic blend.
func (svc *OptimizerService) SetAdaptiveService(service AdaptiveBlendProvider) {
	svc.adaptiveService = service
}

// Optimize runs the complete portfolio optimisation:
//  1. expected returns per ISIN (missing data excludes the security)
//  2. annualised covariance from daily returns
//  3. per-security bounds and group constraints
//  4. MV branch: efficient_return at the target, max_sharpe on infeasible
//  5. HRP branch
//  6. blend w = blend*HRP + (1-blend)*MV; a failed branch yields the other
//  7. cutoff below WeightCutoff, renormalise to 1 - cash_reserve_fraction
func (svc *OptimizerService) Optimize(state PortfolioState, settings Settings) (*Result, error) {
	timestamp := time.Now()

	svc.log.Info().
		Int("num_securities", len(state.Securities)).
		Int("num_positions", len(state.Positions)).
		Float64("portfolio_value", state.PortfolioValue).
		Float64("blend", settings.Blend).
		Msg("Starting portfolio optimization")

	if len(state.Securities) == 0 {
		return svc.errorResult(timestamp, settings.Blend, "no active securities"), ErrInsufficientData
	}

	// 1. Expected returns. Securities without data drop out here.
	expectedReturns, err := svc.returnsCalc.CalculateExpectedReturns(
		state.Securities,
		state.RegimeScore,
		state.DividendBonuses,
		settings.TargetReturn,
		settings.TargetReturnThresholdPct,
	)
	if err != nil {
		return svc.errorResult(timestamp, settings.Blend, err.Error()), fmt.Errorf("expected returns: %w", err)
	}

	isins := make([]string, 0, len(expectedReturns))
	securitiesByISIN := make(map[string]Security, len(state.Securities))
	for _, sec := range state.Securities {
		securitiesByISIN[sec.ISIN] = sec
		if _, ok := expectedReturns[sec.ISIN]; ok {
			isins = append(isins, sec.ISIN)
		}
	}
	sort.Strings(isins)

	if len(isins) < 2 {
		svc.log.Warn().Int("usable", len(isins)).Msg("Fewer than two securities with usable data")
		return svc.errorResult(timestamp, settings.Blend, "fewer than two securities with usable data"), ErrInsufficientData
	}

	// 2. Covariance matrix from daily returns.
	lookback := settings.LookbackDays
	if lookback <= 0 {
		lookback = 365
	}
	covMatrix, _, _, err := svc.riskBuilder.BuildCovarianceMatrix(isins, lookback)
	if err != nil {
		return svc.errorResult(timestamp, settings.Blend, err.Error()), fmt.Errorf("covariance: %w", err)
	}
	// Annualise the daily-return covariance (252 trading days).
	for i := range covMatrix {
		for j := range covMatrix[i] {
			covMatrix[i][j] *= 252
		}
	}

	// 3. Constraints.
	usableSecurities := make([]Security, 0, len(isins))
	for _, isin := range isins {
		usableSecurities = append(usableSecurities, securitiesByISIN[isin])
	}
	constraints, err := svc.constraintsMgr.BuildConstraints(
		usableSecurities,
		state.Positions,
		state.GeographyTargets,
		state.IndustryTargets,
		state.PortfolioValue,
		state.CurrentPrices,
		expectedReturns,
		covMatrix,
		isins,
		state.RegimeScore,
	)
	if err != nil {
		return svc.errorResult(timestamp, settings.Blend, err.Error()), fmt.Errorf("constraints: %w", err)
	}
	if err := svc.constraintsMgr.ValidateConstraints(constraints); err != nil {
		return svc.errorResult(timestamp, settings.Blend, err.Error()), fmt.Errorf("constraints: %w", err)
	}

	// 4. Mean-variance branch with fallback chain.
	mvWeights, mvErr := svc.runMeanVariance(expectedReturns, covMatrix, isins, constraints, settings.TargetReturn)
	if mvErr != nil {
		svc.log.Warn().Err(mvErr).Msg("Mean-variance branch failed, relying on HRP")
	}

	// 5. HRP branch.
	hrpWeights, hrpErr := svc.runHRP(covMatrix, isins)
	if hrpErr != nil {
		svc.log.Warn().Err(hrpErr).Msg("HRP branch failed, relying on MV")
	}

	if mvErr != nil && hrpErr != nil {
		return svc.errorResult(timestamp, settings.Blend, "both optimization branches failed"),
			fmt.Errorf("both branches failed (mv: %v, hrp: %v): %w", mvErr, hrpErr, ErrInfeasible)
	}

	// 6. Blend.
	blend := settings.Blend
	if svc.adaptiveService != nil {
		blend = svc.adaptiveService.CalculateAdaptiveBlend(state.RegimeScore)
		svc.log.Debug().Float64("adaptive_blend", blend).Msg("Using adaptive blend")
	}
	blended := svc.blendWeights(mvWeights, hrpWeights, blend)

	// 7. Cutoff and renormalise against the cash reserve.
	cutoff := settings.WeightCutoff
	if cutoff <= 0 {
		cutoff = DefaultWeightCutoff
	}
	reserveFraction := svc.effectiveReserveFraction(state, settings)
	targetWeights := svc.applyCutoffAndNormalize(blended, cutoff, 1.0-reserveFraction)

	svc.log.Info().
		Int("num_weights", len(targetWeights)).
		Float64("blend", blend).
		Float64("reserve_fraction", reserveFraction).
		Bool("mv_succeeded", mvErr == nil).
		Bool("hrp_succeeded", hrpErr == nil).
		Msg("Portfolio optimization complete")

	return &Result{
		Timestamp:     timestamp,
		TargetWeights: targetWeights,
		MVWeights:     mvWeights,
		HRPWeights:    hrpWeights,
		Blend:         blend,
		MVSucceeded:   mvErr == nil,
		HRPSucceeded:  hrpErr == nil,
		Feasible:      true,
	}, nil
}

// runMeanVariance solves efficient_return at the target, falling back to
// max_sharpe when the target is unreachable.
func (svc *OptimizerService) runMeanVariance(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	isins []string,
	constraints Constraints,
	targetReturn float64,
) (map[string]float64, error) {
	target := targetReturn
	weights, _, err := svc.mvOptimizer.Optimize(
		expectedReturns, covMatrix, isins,
		constraints.MinWeights, constraints.MaxWeights, constraints.SectorConstraints,
		"efficient_return", &target, nil,
	)
	if err == nil {
		return weights, nil
	}

	svc.log.Warn().Err(err).Float64("target_return", targetReturn).
		Msg("efficient_return infeasible, falling back to max_sharpe")

	weights, _, err = svc.mvOptimizer.Optimize(
		expectedReturns, covMatrix, isins,
		constraints.MinWeights, constraints.MaxWeights, constraints.SectorConstraints,
		"max_sharpe", nil, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("max_sharpe fallback failed: %w", err)
	}
	return weights, nil
}

// runHRP runs the hierarchical risk parity branch.
func (svc *OptimizerService) runHRP(covMatrix [][]float64, isins []string) (map[string]float64, error) {
	if len(isins) < 2 {
		return nil, fmt.Errorf("HRP needs at least two securities")
	}
	return svc.hrpOptimizer.Optimize(covMatrix, isins)
}

// blendWeights computes w = blend*HRP + (1-blend)*MV. When one branch
// failed its weights are nil and the other is returned unchanged.
func (svc *OptimizerService) blendWeights(mvWeights, hrpWeights map[string]float64, blend float64) map[string]float64 {
	switch {
	case mvWeights == nil:
		return hrpWeights
	case hrpWeights == nil:
		return mvWeights
	}

	blend = math.Max(0.0, math.Min(1.0, blend))
	out := make(map[string]float64)
	for isin, w := range mvWeights {
		out[isin] = (1.0 - blend) * w
	}
	for isin, w := range hrpWeights {
		out[isin] += blend * w
	}
	return out
}

// effectiveReserveFraction resolves the cash reserve as the larger of the
// configured fraction and the EUR floor expressed as a fraction.
func (svc *OptimizerService) effectiveReserveFraction(state PortfolioState, settings Settings) float64 {
	fraction := math.Max(0.0, settings.CashReserveFraction)
	if settings.MinCashReserve > 0 && state.PortfolioValue > 0 {
		floorFraction := settings.MinCashReserve / state.PortfolioValue
		fraction = math.Max(fraction, floorFraction)
	}
	return math.Min(fraction, 0.95)
}

// applyCutoffAndNormalize drops weights below cutoff and rescales the
// remainder to targetSum.
func (svc *OptimizerService) applyCutoffAndNormalize(weights map[string]float64, cutoff, targetSum float64) map[string]float64 {
	kept := make(map[string]float64)
	total := 0.0
	for isin, w := range weights {
		if w >= cutoff {
			kept[isin] = w
			total += w
		}
	}

	if total <= 0 {
		return kept
	}

	for isin, w := range kept {
		kept[isin] = w / total * targetSum
	}
	return kept
}

// errorResult builds the canonical failed Result.
func (svc *OptimizerService) errorResult(timestamp time.Time, blend float64, message string) *Result {
	return &Result{
		Timestamp:     timestamp,
		TargetWeights: map[string]float64{},
		Blend:         blend,
		Feasible:      false,
		Error:         message,
	}
}
