package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/trading-planner/pkg/formulas"
)

// HRPOptimizer allocates by hierarchical risk parity: cluster the assets on
// return-correlation distance, order them quasi-diagonally along the
// dendrogram, then split risk budget top-down between the two halves of
// each cluster in inverse proportion to their variance. No matrix inversion
// anywhere, which is the method's whole appeal on noisy covariance.
type HRPOptimizer struct{}

// NewHRPOptimizer creates a new HRP optimizer.
func NewHRPOptimizer() *HRPOptimizer {
	return &HRPOptimizer{}
}

// hrpCluster is one dendrogram node. minLeaf gives deterministic ordering
// and tie-breaking so identical inputs always cluster identically.
type hrpCluster struct {
	left, right *hrpCluster
	leaves      []int
	minLeaf     int
}

// Optimize runs the full HRP chain over an ISIN-keyed covariance matrix and
// returns ISIN-keyed weights summing to 1.
func (hrp *HRPOptimizer) Optimize(covMatrix [][]float64, isins []string) (map[string]float64, error) {
	n := len(isins)
	switch {
	case n == 0:
		return nil, fmt.Errorf("no ISINs provided")
	case n == 1:
		return map[string]float64{isins[0]: 1.0}, nil
	case len(covMatrix) != n:
		return nil, fmt.Errorf("covariance matrix size %d does not match ISINs %d", len(covMatrix), n)
	}
	for _, row := range covMatrix {
		if len(row) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
	}

	corr, err := formulas.CorrelationMatrixFromCovariance(covMatrix)
	if err != nil {
		return nil, fmt.Errorf("correlation from covariance: %w", err)
	}
	dist := formulas.CorrelationToDistance(corr)

	order := leafOrder(cluster(dist))
	if len(order) != n {
		return nil, fmt.Errorf("invalid HRP leaf order length %d", len(order))
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0
	}
	bisect(weights, covMatrix, order)

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("invalid HRP weight sum: %v", sum)
	}

	out := make(map[string]float64, n)
	for i, isin := range isins {
		out[isin] = weights[i] / sum
	}
	return out, nil
}

// cluster runs single-linkage agglomerative clustering over the distance
// matrix. Ties break on the smallest leaf indices of the candidate pair, so
// enumeration order never depends on map iteration or input permutation.
func cluster(dist [][]float64) *hrpCluster {
	clusters := make([]*hrpCluster, len(dist))
	for i := range clusters {
		clusters[i] = &hrpCluster{leaves: []int{i}, minLeaf: i}
	}

	for len(clusters) > 1 {
		bestI, bestJ := 0, 1
		bestD := linkDistance(dist, clusters[0], clusters[1])

		for i := range clusters {
			for j := i + 1; j < len(clusters); j++ {
				d := linkDistance(dist, clusters[i], clusters[j])
				if d < bestD || (d == bestD && pairBefore(clusters[i], clusters[j], clusters[bestI], clusters[bestJ])) {
					bestD, bestI, bestJ = d, i, j
				}
			}
		}

		clusters = merge(clusters, bestI, bestJ)
	}

	return clusters[0]
}

// linkDistance is the single-linkage distance: the closest leaf pair across
// the two clusters.
func linkDistance(dist [][]float64, a, b *hrpCluster) float64 {
	best := math.Inf(1)
	for _, i := range a.leaves {
		for _, j := range b.leaves {
			if dist[i][j] < best {
				best = dist[i][j]
			}
		}
	}
	return best
}

// pairBefore orders candidate pairs by their sorted (minLeaf, minLeaf) for
// tie-breaking.
func pairBefore(a1, b1, a2, b2 *hrpCluster) bool {
	x1, y1 := ordered(a1.minLeaf, b1.minLeaf)
	x2, y2 := ordered(a2.minLeaf, b2.minLeaf)
	if x1 != x2 {
		return x1 < x2
	}
	return y1 < y2
}

func ordered(a, b int) (int, int) {
	if b < a {
		return b, a
	}
	return a, b
}

// merge replaces clusters i and j with their union, the smaller-minLeaf
// side on the left.
func merge(clusters []*hrpCluster, i, j int) []*hrpCluster {
	left, right := clusters[i], clusters[j]
	if right.minLeaf < left.minLeaf {
		left, right = right, left
	}

	joined := &hrpCluster{
		left:    left,
		right:   right,
		leaves:  append(append([]int{}, left.leaves...), right.leaves...),
		minLeaf: left.minLeaf,
	}

	next := make([]*hrpCluster, 0, len(clusters)-1)
	for k, c := range clusters {
		if k != i && k != j {
			next = append(next, c)
		}
	}
	return append(next, joined)
}

// leafOrder reads the quasi-diagonal asset order off the dendrogram.
func leafOrder(node *hrpCluster) []int {
	if node == nil {
		return nil
	}
	if node.left == nil && node.right == nil {
		return []int{node.leaves[0]}
	}
	return append(leafOrder(node.left), leafOrder(node.right)...)
}

// bisect recursively splits the ordered assets in half and scales each
// half's weights by the other half's share of combined cluster variance.
func bisect(weights []float64, cov [][]float64, order []int) {
	if len(order) <= 1 {
		return
	}

	left, right := order[:len(order)/2], order[len(order)/2:]
	vLeft := clusterVariance(cov, left)
	vRight := clusterVariance(cov, right)

	alpha := 0.5
	if vLeft+vRight > 0 {
		alpha = 1 - vLeft/(vLeft+vRight)
	}
	alpha = math.Max(0, math.Min(1, alpha))

	for _, idx := range left {
		weights[idx] *= alpha
	}
	for _, idx := range right {
		weights[idx] *= 1 - alpha
	}

	bisect(weights, cov, left)
	bisect(weights, cov, right)
}

// clusterVariance is w'Sigma w for the cluster under its inverse-variance
// allocation, via formulas.InverseVarianceWeights.
func clusterVariance(cov [][]float64, idxs []int) float64 {
	if len(idxs) == 0 {
		return 0
	}
	if len(idxs) == 1 {
		return math.Max(cov[idxs[0]][idxs[0]], 0)
	}

	variances := make([]float64, len(idxs))
	for k, i := range idxs {
		variances[k] = math.Max(cov[i][i], 1e-12)
	}
	w := formulas.InverseVarianceWeights(variances)

	variance := 0.0
	for a, i := range idxs {
		for b, j := range idxs {
			variance += w[a] * cov[i][j] * w[b]
		}
	}
	return math.Max(variance, 0)
}
