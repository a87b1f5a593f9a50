package formulas

import (
	"fmt"
	"math"
)

// CorrelationMatrixFromCovariance derives the correlation matrix
// corr(i,j) = cov(i,j) / sqrt(var(i)*var(j)). The covariance matrix must be
// square with strictly positive, finite diagonal entries; off-diagonal
// results are clamped into [-1, 1] against floating-point drift.
func CorrelationMatrixFromCovariance(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}

	stddev := make([]float64, n)
	for i, row := range cov {
		if len(row) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
		v := row[i]
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid variance on diagonal at %d: %v", i, v)
		}
		stddev[i] = math.Sqrt(v)
	}

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := cov[i][j] / (stddev[i] * stddev[j])
			rho = math.Max(-1, math.Min(1, rho))
			corr[i][j], corr[j][i] = rho, rho
		}
	}

	return corr, nil
}

// CorrelationToDistance maps correlations onto the metric hierarchical
// clustering needs: d(i,j) = sqrt(2*(1 - rho)). Perfectly correlated assets
// sit at distance 0, perfectly anti-correlated at 2.
func CorrelationToDistance(corrMatrix [][]float64) [][]float64 {
	n := len(corrMatrix)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j, rho := range corrMatrix[i] {
			rho = math.Max(-1, math.Min(1, rho))
			dist[i][j] = math.Sqrt(2 * (1 - rho))
		}
	}
	return dist
}

// InverseVarianceWeights allocates risk parity within a cluster:
// w_i = (1/v_i) / sum(1/v_j). Low-variance assets carry more weight. All
// non-positive variances fall back to an equal split.
func InverseVarianceWeights(variances []float64) []float64 {
	n := len(variances)
	weights := make([]float64, n)

	total := 0.0
	for _, v := range variances {
		if v > 0 {
			total += 1 / v
		}
	}

	if total == 0 {
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
		return weights
	}

	for i, v := range variances {
		if v > 0 {
			weights[i] = (1 / v) / total
		}
	}
	return weights
}
