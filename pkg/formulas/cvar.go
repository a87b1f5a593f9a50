package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// CalculateCVaR is the historical Conditional Value at Risk: the mean of
// the worst (1-confidence) fraction of the return series. With fewer tail
// observations than one, the single worst return stands in.
func CalculateCVaR(returns []float64, confidence float64) float64 {
	switch len(returns) {
	case 0:
		return 0.0
	case 1:
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := int(math.Ceil(float64(len(sorted)) * (1 - confidence)))
	if tailCount < 1 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}
	return sum / float64(tailCount)
}

// CalculatePortfolioCVaR approximates portfolio CVaR as the weight-blended
// per-security CVaR. It ignores cross-security diversification in the tail,
// so it is conservative; use the Monte Carlo variants for a covariance-aware
// estimate.
func CalculatePortfolioCVaR(weights map[string]float64, returns map[string][]float64, confidence float64) float64 {
	total := 0.0
	for symbol, weight := range weights {
		if rets, ok := returns[symbol]; ok {
			total += weight * CalculateCVaR(rets, confidence)
		}
	}
	return total
}

// MonteCarloCVaR estimates CVaR by sampling equal-weight portfolio returns
// from each asset's marginal normal distribution (mean from
// expectedReturns, variance from the covariance diagonal).
func MonteCarloCVaR(covMatrix [][]float64, expectedReturns map[string]float64, symbols []string, numSimulations int, confidence float64) float64 {
	n := len(symbols)
	if n == 0 || len(covMatrix) != n {
		return 0.0
	}

	marginals := make([]distuv.Normal, n)
	for i, symbol := range symbols {
		marginals[i] = distuv.Normal{
			Mu:    expectedReturns[symbol],
			Sigma: math.Sqrt(math.Max(covMatrix[i][i], 1e-10)),
		}
	}

	weight := 1.0 / float64(n)
	simulated := make([]float64, numSimulations)
	for i := range simulated {
		r := 0.0
		for j := range marginals {
			r += weight * marginals[j].Rand()
		}
		simulated[i] = r
	}

	return CalculateCVaR(simulated, confidence)
}

// MonteCarloCVaRWithWeights estimates CVaR for a specific allocation by
// collapsing it to the portfolio-level normal N(w'mu, w'Sigma w) and
// sampling from that.
func MonteCarloCVaRWithWeights(
	covMatrix [][]float64,
	expectedReturns map[string]float64,
	weights map[string]float64,
	symbols []string,
	numSimulations int,
	confidence float64,
) float64 {
	n := len(symbols)
	if n == 0 || len(covMatrix) != n {
		return 0.0
	}

	mu := make([]float64, n)
	w := make([]float64, n)
	for i, symbol := range symbols {
		mu[i] = expectedReturns[symbol]
		w[i] = weights[symbol]
	}

	portfolioMu := 0.0
	portfolioVariance := 0.0
	for i := 0; i < n; i++ {
		portfolioMu += w[i] * mu[i]
		for j := 0; j < n; j++ {
			portfolioVariance += w[i] * w[j] * covMatrix[i][j]
		}
	}

	dist := distuv.Normal{
		Mu:    portfolioMu,
		Sigma: math.Sqrt(math.Max(portfolioVariance, 1e-10)),
	}

	simulated := make([]float64, numSimulations)
	for i := range simulated {
		simulated[i] = dist.Rand()
	}

	return CalculateCVaR(simulated, confidence)
}
