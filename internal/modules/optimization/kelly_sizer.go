package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// KellyPositionSizer calculates optimal position sizes using the Kelly Criterion
// with constraints and adaptive fractional Kelly based on regime and confidence.
// All symbol-keyed maps accepted here use ISIN keys.
type KellyPositionSizer struct {
	riskFreeRate    float64
	fixedFractional float64
	minPositionSize float64
	maxPositionSize float64
	fractionalMode  string // "fixed" or "adaptive"
	log             zerolog.Logger
}

// KellySizeResult contains the result of Kelly sizing calculation.
type KellySizeResult struct {
	KellyFraction        float64
	ConstrainedFraction  float64
	FractionalMultiplier float64
	RegimeAdjustment     float64
	FinalSize            float64
}

// NewKellyPositionSizer creates a new Kelly position sizer.
func NewKellyPositionSizer(
	riskFreeRate float64,
	fixedFractional float64,
	minPositionSize float64,
	maxPositionSize float64,
	log zerolog.Logger,
) *KellyPositionSizer {
	return &KellyPositionSizer{
		riskFreeRate:    riskFreeRate,
		fixedFractional: fixedFractional,
		minPositionSize: minPositionSize,
		maxPositionSize: maxPositionSize,
		fractionalMode:  "adaptive",
		log:             log.With().Str("component", "kelly_sizer").Logger(),
	}
}

// SetFractionalMode sets the fractional Kelly mode.
func (ks *KellyPositionSizer) SetFractionalMode(mode string) {
	if mode == "fixed" || mode == "adaptive" {
		ks.fractionalMode = mode
	}
}

// CalculateOptimalSize calculates the optimal position size using the Kelly Criterion
// with constraints and adaptive adjustments.
//
// Args:
//   - expectedReturn: Expected return for the security (annualized)
//   - variance: Variance of returns (annualized)
//   - confidence: Confidence level in the expected return (0.0 to 1.0)
//   - regimeScore: Current market regime score (-1.0 to +1.0)
//
// Returns:
//   - Optimal position size as fraction of portfolio (0.0 to 1.0)
func (ks *KellyPositionSizer) CalculateOptimalSize(
	expectedReturn float64,
	variance float64,
	confidence float64,
	regimeScore float64,
) float64 {
	kellyFraction := ks.calculateKellyFraction(expectedReturn, ks.riskFreeRate, variance)
	fractionalMultiplier := ks.getFractionalMultiplier(regimeScore, confidence)
	fractionalKelly := kellyFraction * fractionalMultiplier
	regimeAdjusted := ks.applyRegimeAdjustment(fractionalKelly, regimeScore)
	return ks.applyConstraints(regimeAdjusted)
}

// CalculateOptimalSizeForISIN calculates optimal size for a security by ISIN.
// This is a convenience method that looks up expected return and variance.
func (ks *KellyPositionSizer) CalculateOptimalSizeForISIN(
	isin string,
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	isins []string,
	confidence float64,
	regimeScore float64,
) (float64, error) {
	expectedReturn, hasReturn := expectedReturns[isin]
	if !hasReturn {
		return ks.minPositionSize, fmt.Errorf("no expected return for isin %s", isin)
	}

	variance, err := ks.getVarianceFromCovMatrix(isin, covMatrix, isins)
	if err != nil {
		return ks.minPositionSize, fmt.Errorf("failed to get variance for %s: %w", isin, err)
	}

	return ks.CalculateOptimalSize(expectedReturn, variance, confidence, regimeScore), nil
}

// calculateKellyFraction calculates the raw Kelly fraction.
// Formula: (expectedReturn - riskFreeRate) / variance
func (ks *KellyPositionSizer) calculateKellyFraction(expectedReturn, riskFreeRate, variance float64) float64 {
	edge := expectedReturn - riskFreeRate
	if edge <= 0 {
		return 0.0
	}
	if variance <= 1e-10 {
		return 0.0
	}

	kellyFraction := edge / variance
	if kellyFraction < 0 {
		return 0.0
	}

	return kellyFraction
}

// applyConstraints applies min/max constraints to the Kelly fraction.
func (ks *KellyPositionSizer) applyConstraints(kellyFraction float64) float64 {
	if kellyFraction < ks.minPositionSize {
		return ks.minPositionSize
	}
	if kellyFraction > ks.maxPositionSize {
		return ks.maxPositionSize
	}
	return kellyFraction
}

// getFractionalMultiplier returns the fractional Kelly multiplier based on mode.
func (ks *KellyPositionSizer) getFractionalMultiplier(regimeScore float64, confidence float64) float64 {
	if ks.fractionalMode == "fixed" {
		return ks.fixedFractional
	}

	// Adaptive mode: multiplier based on regime and confidence.
	// Range: 0.25 (very conservative) to 0.75 (moderate), base 0.5 (half-Kelly).
	baseMultiplier := 0.5
	confidenceAdjustment := (confidence - 0.5) * 0.3

	regimeAdjustment := 0.0
	if regimeScore > 0.5 {
		regimeAdjustment = 0.10
	} else if regimeScore < -0.5 {
		regimeAdjustment = -0.10
	}

	multiplier := baseMultiplier + confidenceAdjustment + regimeAdjustment
	if multiplier < 0.25 {
		multiplier = 0.25
	}
	if multiplier > 0.75 {
		multiplier = 0.75
	}

	return multiplier
}

// applyRegimeAdjustment applies regime-based adjustment to the Kelly fraction.
// More conservative in bear markets.
func (ks *KellyPositionSizer) applyRegimeAdjustment(kellyFraction float64, regimeScore float64) float64 {
	if regimeScore >= 0 {
		return kellyFraction
	}

	reductionFactor := 1.0 - 0.25*math.Abs(regimeScore)
	if reductionFactor < 0.75 {
		reductionFactor = 0.75
	}

	return kellyFraction * reductionFactor
}

// getVarianceFromCovMatrix extracts variance for an ISIN from the covariance matrix.
func (ks *KellyPositionSizer) getVarianceFromCovMatrix(isin string, covMatrix [][]float64, isins []string) (float64, error) {
	index := -1
	for i, s := range isins {
		if s == isin {
			index = i
			break
		}
	}
	if index < 0 {
		return 0.0, fmt.Errorf("isin %s not found in isins list", isin)
	}
	if index >= len(covMatrix) || index >= len(covMatrix[index]) {
		return 0.0, fmt.Errorf("covariance matrix has insufficient dimensions for isin %s", isin)
	}

	variance := covMatrix[index][index]
	if variance < 0 {
		return 0.0, fmt.Errorf("negative variance for isin %s: %f", isin, variance)
	}

	return variance, nil
}

// CalculateOptimalSizesForAll calculates optimal sizes for all securities.
func (ks *KellyPositionSizer) CalculateOptimalSizesForAll(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	isins []string,
	confidences map[string]float64,
	regimeScore float64,
) (map[string]float64, error) {
	result := make(map[string]float64, len(isins))

	for _, isin := range isins {
		confidence := 0.5
		if conf, hasConf := confidences[isin]; hasConf {
			confidence = conf
		}

		optimalSize, err := ks.CalculateOptimalSizeForISIN(isin, expectedReturns, covMatrix, isins, confidence, regimeScore)
		if err != nil {
			ks.log.Warn().Str("isin", isin).Err(err).Msg("Failed to calculate Kelly size, using min size")
			optimalSize = ks.minPositionSize
		}

		result[isin] = optimalSize
	}

	return result, nil
}
