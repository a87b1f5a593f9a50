package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/trading-planner/pkg/formulas"
	"github.com/rs/zerolog"
)

// CVaRCalculator calculates Conditional Value at Risk for portfolios and securities.
// All symbol-keyed maps accepted here use ISIN keys, consistent with the rest
// of the optimization package.
type CVaRCalculator struct {
	log zerolog.Logger
}

// NewCVaRCalculator creates a new CVaR calculator.
func NewCVaRCalculator(log zerolog.Logger) *CVaRCalculator {
	if log.GetLevel() == zerolog.Disabled {
		log = zerolog.Nop()
	}
	return &CVaRCalculator{
		log: log.With().Str("component", "cvar_calculator").Logger(),
	}
}

// CalculatePortfolioCVaR calculates portfolio-level CVaR from historical returns.
func (c *CVaRCalculator) CalculatePortfolioCVaR(
	weights map[string]float64,
	returns map[string][]float64,
	confidence float64,
) float64 {
	return formulas.CalculatePortfolioCVaR(weights, returns, confidence)
}

// CalculateSecurityCVaR calculates CVaR for a single security.
func (c *CVaRCalculator) CalculateSecurityCVaR(returns []float64, confidence float64) float64 {
	return formulas.CalculateCVaR(returns, confidence)
}

// CalculateFromCovariance calculates CVaR using Monte Carlo simulation from a covariance matrix.
func (c *CVaRCalculator) CalculateFromCovariance(
	covMatrix [][]float64,
	expectedReturns map[string]float64,
	weights map[string]float64,
	isins []string,
	numSimulations int,
	confidence float64,
) float64 {
	return formulas.MonteCarloCVaRWithWeights(
		covMatrix,
		expectedReturns,
		weights,
		isins,
		numSimulations,
		confidence,
	)
}

// ApplyRegimeAdjustment applies regime-based adjustment to CVaR.
// In bear markets, CVaR limits are tightened (more conservative).
func (c *CVaRCalculator) ApplyRegimeAdjustment(cvar float64, regimeScore float64) float64 {
	if regimeScore >= 0 {
		return cvar
	}

	adjustmentFactor := 1.0 + 0.3*math.Abs(regimeScore)
	if adjustmentFactor > 1.3 {
		adjustmentFactor = 1.3
	}

	return cvar * adjustmentFactor
}

// CalculatePortfolioCVaRWithRegime calculates portfolio CVaR with regime adjustment.
func (c *CVaRCalculator) CalculatePortfolioCVaRWithRegime(
	weights map[string]float64,
	returns map[string][]float64,
	confidence float64,
	regimeScore float64,
) float64 {
	baseCVaR := c.CalculatePortfolioCVaR(weights, returns, confidence)
	return c.ApplyRegimeAdjustment(baseCVaR, regimeScore)
}

// GetSecurityCVaRContributions calculates individual security contributions to portfolio CVaR.
func (c *CVaRCalculator) GetSecurityCVaRContributions(
	weights map[string]float64,
	returns map[string][]float64,
	confidence float64,
) (map[string]float64, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("weights cannot be empty")
	}

	contributions := make(map[string]float64, len(weights))
	for isin, weight := range weights {
		securityReturns, hasReturns := returns[isin]
		if !hasReturns || len(securityReturns) == 0 {
			continue
		}
		contributions[isin] = weight * c.CalculateSecurityCVaR(securityReturns, confidence)
	}

	return contributions, nil
}
