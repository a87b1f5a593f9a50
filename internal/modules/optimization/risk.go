package optimization

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rs/zerolog"
)

// Constants for risk model configuration
const (
	DefaultLookbackDays      = 252  // 1 year of trading days
	HighCorrelationThreshold = 0.80 // 80% correlation is considered "high"

	ttlCovarianceCache      = 24 * time.Hour
	ttlRegimeCovarianceCache = 6 * time.Hour
)

// CorrelationPair represents a pair of ISINs with a correlation above some threshold.
type CorrelationPair struct {
	ISIN1       string  `json:"isin1"`
	ISIN2       string  `json:"isin2"`
	Correlation float64 `json:"correlation"`
}

// cachedCovResult holds covariance matrix results for cache serialization
type cachedCovResult struct {
	Cov          [][]float64          `json:"cov"`
	Returns      map[string][]float64 `json:"returns"`
	Correlations []CorrelationPair    `json:"correlations"`
}

// hashISINs creates a deterministic hash from a list of ISINs for cache keys.
// ISINs are sorted to ensure consistent hashing regardless of input order.
func hashISINs(isins []string) string {
	sorted := make([]string, len(isins))
	copy(sorted, isins)
	sort.Strings(sorted)
	combined := strings.Join(sorted, ",")
	h := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(h[:16]) // Use first 16 bytes (32 hex chars) for efficiency
}

// hashRegimeAwareCovKey creates a deterministic hash for regime-aware covariance caching.
func hashRegimeAwareCovKey(isins []string, lookbackDays int, regimeScore float64) string {
	roundedRegime := math.Round(regimeScore*10) / 10

	sorted := make([]string, len(isins))
	copy(sorted, isins)
	sort.Strings(sorted)

	keyData := fmt.Sprintf("%s|%d|%.1f", strings.Join(sorted, ","), lookbackDays, roundedRegime)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// PricePoint is a single closing price observation.
type PricePoint struct {
	Date  string
	Close float64
}

// PriceHistoryProvider supplies historical daily closing prices for a security,
// most-recent-window-first semantics are not assumed: callers return whatever
// is available within the window and RiskModelBuilder sorts it.
type PriceHistoryProvider interface {
	GetPriceHistory(isin string, days int) ([]PricePoint, error)
}

// RiskCache is a minimal namespaced byte cache, satisfied by internal/resilience.Cache.
// Using an interface here keeps the optimization package independent of any
// particular cache implementation or persistence mechanism.
type RiskCache interface {
	Get(namespace, key string) ([]byte, bool)
	Set(namespace, key string, value []byte, ttl time.Duration)
}

// RiskModelBuilder builds covariance matrices and risk models for optimization.
type RiskModelBuilder struct {
	priceProvider PriceHistoryProvider
	cache         RiskCache // optional
	log           zerolog.Logger
}

type RegimeAwareRiskOptions struct {
	RegimeWindowDays int
	HalfLifeDays     float64
	Bandwidth        float64
}

// NewRiskModelBuilder creates a new risk model builder.
func NewRiskModelBuilder(priceProvider PriceHistoryProvider, log zerolog.Logger) *RiskModelBuilder {
	return &RiskModelBuilder{
		priceProvider: priceProvider,
		log:           log.With().Str("component", "risk_model").Logger(),
	}
}

// SetCache sets the cache used to memoize covariance matrices and other results.
// This is optional - if not set, calculations are performed fresh each time.
func (rb *RiskModelBuilder) SetCache(cache RiskCache) {
	rb.cache = cache
}

// BuildCovarianceMatrix builds a covariance matrix from historical prices.
// All parameters and returns use ISIN keys (not Symbol keys).
// Results are cached for 24 hours when a cache is configured via SetCache.
func (rb *RiskModelBuilder) BuildCovarianceMatrix(
	isins []string, // ISIN array ✅ (renamed from symbols)
	lookbackDays int,
) ([][]float64, map[string][]float64, []CorrelationPair, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	isinHash := hashISINs(isins)

	if rb.cache != nil {
		if data, ok := rb.cache.Get("covariance", isinHash); ok {
			var result cachedCovResult
			if err := json.Unmarshal(data, &result); err == nil {
				rb.log.Debug().
					Int("num_isins", len(isins)).
					Str("hash", isinHash[:8]).
					Msg("Using cached covariance matrix")
				return result.Cov, result.Returns, result.Correlations, nil
			}
			rb.log.Warn().Msg("Failed to unmarshal cached covariance matrix, recalculating")
		}
	}

	rb.log.Info().
		Int("num_isins", len(isins)).
		Int("lookback_days", lookbackDays).
		Msg("Building covariance matrix")

	// 1. Fetch price history
	priceData, err := rb.fetchPriceHistory(isins, lookbackDays) // Use ISINs ✅
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch price history: %w", err)
	}

	if len(priceData.Dates) < 30 {
		return nil, nil, nil, fmt.Errorf("insufficient price history: only %d days available (need at least 30)", len(priceData.Dates))
	}

	rb.log.Debug().
		Int("num_dates", len(priceData.Dates)).
		Int("num_isins", len(priceData.Data)).
		Msg("Fetched price history")

	// 2. Handle missing data (forward-fill and back-fill)
	filledData := rb.handleMissingData(priceData)

	// 3. Calculate daily returns
	returns := rb.calculateReturns(filledData)

	// 4. Calculate covariance matrix with Ledoit-Wolf shrinkage
	covMatrix, err := calculateCovarianceLedoitWolf(returns, isins) // Use ISINs ✅
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to calculate covariance: %w", err)
	}

	rb.log.Info().
		Int("matrix_size", len(covMatrix)).
		Msg("Calculated covariance matrix with Ledoit-Wolf shrinkage")

	// 5. Extract high correlations from covariance matrix
	correlations := rb.getCorrelations(covMatrix, isins, HighCorrelationThreshold) // Use ISINs ✅

	rb.log.Info().
		Int("high_correlations", len(correlations)).
		Msg("Identified high correlation pairs")

	if rb.cache != nil {
		result := cachedCovResult{
			Cov:          covMatrix,
			Returns:      returns,
			Correlations: correlations,
		}
		if data, err := json.Marshal(result); err == nil {
			rb.cache.Set("covariance", isinHash, data, ttlCovarianceCache)
			rb.log.Debug().Str("hash", isinHash[:8]).Msg("Cached covariance matrix")
		}
	}

	return covMatrix, returns, correlations, nil
}

// BuildRegimeAwareCovarianceMatrix builds a covariance matrix from historical prices using
// regime-weighted observations (kernel on regime score + time decay).
//
// regimeScoreSeries is the per-observation regime score (oldest->newest) aligned to the
// asset return series; it is the caller's responsibility to compute it (e.g. from
// internal/market_regime's pure scoring functions over whatever market data it has).
// All parameters and returns use ISIN keys (not Symbol keys).
func (rb *RiskModelBuilder) BuildRegimeAwareCovarianceMatrix(
	isins []string, // ISIN array ✅ (renamed from symbols)
	lookbackDays int,
	regimeScoreSeries []float64,
	currentRegimeScore float64,
	opts RegimeAwareRiskOptions,
) ([][]float64, map[string][]float64, []CorrelationPair, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	halfLifeDays := opts.HalfLifeDays
	if halfLifeDays <= 0 {
		halfLifeDays = 63
	}
	bandwidth := opts.Bandwidth
	if bandwidth <= 0 {
		bandwidth = 0.25
	}

	cacheKey := hashRegimeAwareCovKey(isins, lookbackDays, currentRegimeScore)

	if rb.cache != nil {
		if data, ok := rb.cache.Get("regime_covariance", cacheKey); ok {
			var result cachedCovResult
			if err := json.Unmarshal(data, &result); err == nil {
				rb.log.Debug().
					Int("num_isins", len(isins)).
					Str("hash", cacheKey[:8]).
					Float64("regime_score", currentRegimeScore).
					Msg("Using cached regime-aware covariance matrix")
				return result.Cov, result.Returns, result.Correlations, nil
			}
			rb.log.Warn().Msg("Failed to unmarshal cached regime-aware covariance matrix, recalculating")
		}
	}

	rb.log.Info().
		Int("num_isins", len(isins)).
		Int("lookback_days", lookbackDays).
		Float64("current_regime_score", currentRegimeScore).
		Float64("half_life_days", halfLifeDays).
		Float64("bandwidth", bandwidth).
		Msg("Building regime-aware covariance matrix")

	// 1. Fetch price history for assets.
	assetPriceData, err := rb.fetchPriceHistory(isins, lookbackDays) // Use ISINs ✅
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch price history: %w", err)
	}
	if len(assetPriceData.Dates) < 30 {
		return nil, nil, nil, fmt.Errorf("insufficient price history: only %d days available (need at least 30)", len(assetPriceData.Dates))
	}

	assetFilled := rb.handleMissingData(assetPriceData)
	assetReturns := rb.calculateReturns(assetFilled)

	numObs := len(assetFilled.Dates) - 1
	regimeScores := regimeScoreSeries
	if len(regimeScores) != numObs {
		rb.log.Warn().
			Int("expected", numObs).
			Int("got", len(regimeScores)).
			Msg("Regime score series length mismatch, using neutral regime weights")
		regimeScores = make([]float64, numObs)
	}

	// 2. Compute observation weights and build weighted covariance.
	obsWeights, err := regimeTimeDecayWeights(regimeScores, currentRegimeScore, halfLifeDays, bandwidth)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build observation weights: %w", err)
	}

	weightedCov, err := weightedCovariance(assetReturns, isins, obsWeights) // Use ISINs ✅
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to calculate weighted covariance: %w", err)
	}

	// 3. Apply shrinkage for conditioning.
	covMatrix, err := applyLedoitWolfShrinkage(weightedCov)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to apply shrinkage: %w", err)
	}

	// 4. Correlation diagnostics.
	correlations := rb.getCorrelations(covMatrix, isins, HighCorrelationThreshold) // Use ISINs ✅

	rb.log.Info().
		Float64("effective_sample_size", effectiveSampleSize(obsWeights)).
		Int("high_correlations", len(correlations)).
		Msg("Built regime-aware covariance matrix")

	if rb.cache != nil {
		result := cachedCovResult{
			Cov:          covMatrix,
			Returns:      assetReturns,
			Correlations: correlations,
		}
		if data, err := json.Marshal(result); err == nil {
			rb.cache.Set("regime_covariance", cacheKey, data, ttlRegimeCovarianceCache)
			rb.log.Debug().Str("hash", cacheKey[:8]).Dur("ttl", ttlRegimeCovarianceCache).Msg("Cached regime-aware covariance matrix")
		}
	}

	return covMatrix, assetReturns, correlations, nil
}

// TimeSeriesData holds aligned price observations keyed by ISIN.
type TimeSeriesData struct {
	Dates []string
	Data  map[string][]float64
}

// fetchPriceHistory fetches historical prices via the configured PriceHistoryProvider.
func (rb *RiskModelBuilder) fetchPriceHistory(isins []string, days int) (TimeSeriesData, error) {
	startTime := time.Now().AddDate(0, 0, -days)
	startDate := time.Date(startTime.Year(), startTime.Month(), startTime.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02")

	rb.log.Debug().
		Str("start_date", startDate).
		Int("num_isins", len(isins)).
		Msg("Fetching price history")

	if len(isins) == 0 {
		return TimeSeriesData{}, fmt.Errorf("no ISINs provided")
	}
	if rb.priceProvider == nil {
		return TimeSeriesData{}, fmt.Errorf("no price history provider configured")
	}

	pricesByISIN := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)

	for _, isin := range isins {
		points, err := rb.priceProvider.GetPriceHistory(isin, days)
		if err != nil {
			rb.log.Warn().Err(err).Str("isin", isin).Msg("Failed to get prices for ISIN")
			continue
		}

		pricesByISIN[isin] = make(map[string]float64)
		for _, p := range points {
			if p.Date >= startDate {
				pricesByISIN[isin][p.Date] = p.Close
				dateSet[p.Date] = true
			}
		}
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64)
	for _, isin := range isins {
		prices := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := pricesByISIN[isin][date]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		data[isin] = prices
	}

	rb.log.Debug().
		Int("num_dates", len(dates)).
		Int("isins_with_data", len(data)).
		Msg("Built price time series")

	return TimeSeriesData{
		Dates: dates,
		Data:  data,
	}, nil
}

// handleMissingData fills missing data using forward-fill and back-fill.
func (rb *RiskModelBuilder) handleMissingData(data TimeSeriesData) TimeSeriesData {
	filledData := TimeSeriesData{
		Dates: data.Dates,
		Data:  make(map[string][]float64),
	}

	missingCount := 0
	filledCount := 0

	for symbol, prices := range data.Data {
		filled := make([]float64, len(prices))
		copy(filled, prices)

		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(filled); i++ {
			if math.IsNaN(filled[i]) {
				missingCount++
				if hasLastValid {
					filled[i] = lastValid
					filledCount++
				}
			} else {
				lastValid = filled[i]
				hasLastValid = true
			}
		}

		var nextValid float64
		hasNextValid := false
		for i := len(filled) - 1; i >= 0; i-- {
			if math.IsNaN(filled[i]) {
				if hasNextValid {
					filled[i] = nextValid
					filledCount++
				}
			} else {
				nextValid = filled[i]
				hasNextValid = true
			}
		}

		filledData.Data[symbol] = filled
	}

	if missingCount > 0 {
		rb.log.Warn().
			Int("missing_data_points", missingCount).
			Int("filled_data_points", filledCount).
			Int("still_missing", missingCount-filledCount).
			Msg("Filled missing price data")
	}

	return filledData
}

// calculateReturns calculates daily returns from prices.
func (rb *RiskModelBuilder) calculateReturns(data TimeSeriesData) map[string][]float64 {
	returns := make(map[string][]float64)

	for symbol, prices := range data.Data {
		if len(prices) < 2 {
			returns[symbol] = []float64{}
			continue
		}

		dailyReturns := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
				dailyReturns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			} else {
				dailyReturns[i-1] = 0.0
			}
		}
		returns[symbol] = dailyReturns
	}

	return returns
}

// getCorrelations extracts high correlation pairs from covariance matrix.
// All parameters use ISIN keys (not Symbol keys).
func (rb *RiskModelBuilder) getCorrelations(
	covMatrix [][]float64,
	isins []string, // ISIN array ✅ (renamed from symbols)
	threshold float64,
) []CorrelationPair {
	if len(covMatrix) == 0 || len(isins) == 0 {
		return []CorrelationPair{}
	}

	variances := make([]float64, len(covMatrix))
	for i := 0; i < len(covMatrix); i++ {
		variances[i] = covMatrix[i][i]
	}

	correlations := make([]CorrelationPair, 0)
	for i := 0; i < len(covMatrix); i++ {
		for j := i + 1; j < len(covMatrix); j++ {
			if variances[i] > 0 && variances[j] > 0 {
				correlation := covMatrix[i][j] / math.Sqrt(variances[i]*variances[j])
				if math.Abs(correlation) >= threshold {
					correlations = append(correlations, CorrelationPair{
						ISIN1:       isins[i],
						ISIN2:       isins[j],
						Correlation: correlation,
					})

					rb.log.Debug().
						Str("isin1", isins[i]).
						Str("isin2", isins[j]).
						Float64("correlation", correlation).
						Msg("High correlation detected")
				}
			}
		}
	}

	return correlations
}

// BuildCorrelationMap converts a slice of CorrelationPair to a map for efficient lookups.
// The map uses keys in "ISIN1:ISIN2" format and stores both orderings for symmetric access.
func BuildCorrelationMap(pairs []CorrelationPair) map[string]float64 {
	correlationMap := make(map[string]float64, len(pairs)*2)

	for _, pair := range pairs {
		key1 := pair.ISIN1 + ":" + pair.ISIN2
		key2 := pair.ISIN2 + ":" + pair.ISIN1

		correlationMap[key1] = pair.Correlation
		correlationMap[key2] = pair.Correlation
	}

	return correlationMap
}

// calculateSampleCovariance calculates the sample covariance matrix from returns.
// Returns a symmetric matrix where element (i,j) is the covariance between isins[i] and isins[j].
// All parameters use ISIN keys (not Symbol keys).
func calculateSampleCovariance(returns map[string][]float64, isins []string) ([][]float64, error) {
	if len(isins) == 0 {
		return nil, fmt.Errorf("no ISINs provided")
	}

	var returnLength int
	for _, isin := range isins {
		ret, ok := returns[isin]
		if !ok {
			return nil, fmt.Errorf("missing returns for ISIN %s", isin)
		}
		if returnLength == 0 {
			returnLength = len(ret)
		}
		if len(ret) != returnLength {
			return nil, fmt.Errorf("inconsistent return lengths: expected %d, got %d for ISIN %s", returnLength, len(ret), isin)
		}
	}

	if returnLength < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 observations, got %d", returnLength)
	}

	n := len(isins)
	covMatrix := make([][]float64, n)
	for i := range covMatrix {
		covMatrix[i] = make([]float64, n)
	}

	data := make([][]float64, returnLength)
	for i := 0; i < returnLength; i++ {
		data[i] = make([]float64, n)
		for j, isin := range isins {
			data[i][j] = returns[isin][i]
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			colI := make([]float64, returnLength)
			colJ := make([]float64, returnLength)
			for k := 0; k < returnLength; k++ {
				colI[k] = data[k][i]
				colJ[k] = data[k][j]
			}

			cov := stat.Covariance(colI, colJ, nil)
			covMatrix[i][j] = cov
			if i != j {
				covMatrix[j][i] = cov
			}
		}
	}

	return covMatrix, nil
}

// applyLedoitWolfShrinkage applies Ledoit-Wolf shrinkage to a sample covariance matrix.
// The shrinkage estimator shrinks the sample covariance matrix towards a structured estimator
// (constant correlation model) to improve estimation quality, especially with limited data.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for large-dimensional covariance matrices"
func applyLedoitWolfShrinkage(sampleCov [][]float64) ([][]float64, error) {
	n := len(sampleCov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}

	covMat := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			covMat.Set(i, j, sampleCov[i][j])
		}
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))

	target := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				target.Set(i, j, avgVar)
			} else if avgVar > 0 {
				target.Set(i, j, avgCov)
			} else {
				target.Set(i, j, 0)
			}
		}
	}

	shrinkage := 0.2 // Default shrinkage (20% towards target)

	if n > 2 && avgVar > 0 {
		var sumSqDiff float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sampleCov[i][j] - target.At(i, j)
				sumSqDiff += diff * diff
			}
		}
		meanSqDiff := sumSqDiff / float64(n*n)

		var sumSqSample float64
		var meanSample float64
		count := 0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				val := sampleCov[i][j]
				meanSample += val
				sumSqSample += val * val
				count++
			}
		}
		meanSample /= float64(count)
		varSample := (sumSqSample/float64(count) - meanSample*meanSample)

		if varSample > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
		}
	}

	result := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			shrunkVal := (1-shrinkage)*sampleCov[i][j] + shrinkage*target.At(i, j)
			result.Set(i, j, shrunkVal)
		}
	}

	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = result.At(i, j)
		}
	}

	return shrunk, nil
}

// calculateCovarianceLedoitWolf calculates the covariance matrix with Ledoit-Wolf shrinkage.
// First calculates sample covariance, then applies shrinkage.
// All parameters use ISIN keys (not Symbol keys).
func calculateCovarianceLedoitWolf(returns map[string][]float64, isins []string) ([][]float64, error) {
	sampleCov, err := calculateSampleCovariance(returns, isins)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sample covariance: %w", err)
	}

	shrunkCov, err := applyLedoitWolfShrinkage(sampleCov)
	if err != nil {
		return nil, fmt.Errorf("failed to apply Ledoit-Wolf shrinkage: %w", err)
	}

	return shrunkCov, nil
}

func effectiveSampleSize(weights []float64) float64 {
	sumSq := 0.0
	for _, w := range weights {
		sumSq += w * w
	}
	if sumSq <= 0 {
		return 0.0
	}
	return 1.0 / sumSq
}

// regimeTimeDecayWeights returns normalized observation weights (oldest -> newest) using
// an RBF kernel on regime score around currentRegime and an exponential time decay.
func regimeTimeDecayWeights(
	regimeScores []float64,
	currentRegime float64,
	halfLifeDays float64,
	bandwidth float64,
) ([]float64, error) {
	n := len(regimeScores)
	if n == 0 {
		return nil, fmt.Errorf("empty regimeScores")
	}
	if halfLifeDays <= 0 {
		return nil, fmt.Errorf("invalid halfLifeDays: %v", halfLifeDays)
	}
	if bandwidth <= 0 {
		return nil, fmt.Errorf("invalid bandwidth: %v", bandwidth)
	}

	lambda := math.Ln2 / halfLifeDays
	denomKernel := 2.0 * bandwidth * bandwidth

	weights := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		age := float64((n - 1) - i) // 0 for newest
		wTime := math.Exp(-lambda * age)

		d := regimeScores[i] - currentRegime
		wReg := math.Exp(-(d * d) / denomKernel)

		w := wTime * wReg
		weights[i] = w
		sum += w
	}

	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("invalid weight sum: %v", sum)
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

// weightedCovariance computes a weighted covariance matrix (ISINs order, oldest->newest observations).
// Uses the effective-sample correction: denom = 1 - sum(w^2).
// All parameters use ISIN keys (not Symbol keys).
func weightedCovariance(
	returns map[string][]float64,
	isins []string, // ISIN array ✅ (renamed from symbols)
	weights []float64,
) ([][]float64, error) {
	n := len(isins)
	if n == 0 {
		return nil, fmt.Errorf("no ISINs provided")
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("no weights provided")
	}

	t := len(weights)
	mu := make([]float64, n)
	for i, isin := range isins {
		ri, ok := returns[isin]
		if !ok {
			return nil, fmt.Errorf("missing returns for ISIN %s", isin)
		}
		if len(ri) != t {
			return nil, fmt.Errorf("inconsistent return lengths")
		}
		sum := 0.0
		for k := 0; k < t; k++ {
			sum += weights[k] * ri[k]
		}
		mu[i] = sum
	}

	sumW2 := 0.0
	for _, w := range weights {
		sumW2 += w * w
	}
	denom := 1.0 - sumW2
	if denom <= 0 {
		return nil, fmt.Errorf("invalid effective-sample denominator: %v", denom)
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		ri := returns[isins[i]]
		for j := i; j < n; j++ {
			rj := returns[isins[j]]
			s := 0.0
			for k := 0; k < t; k++ {
				s += weights[k] * (ri[k] - mu[i]) * (rj[k] - mu[j])
			}
			val := s / denom
			cov[i][j] = val
			if i != j {
				cov[j][i] = val
			}
		}
	}

	return cov, nil
}
