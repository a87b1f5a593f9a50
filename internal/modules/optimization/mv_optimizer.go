package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MVOptimizer solves the mean-variance problem by penalised minimisation:
// every strategy shares one solver core; only the objective term and its
// equality penalties differ. Bounds are enforced by projection, the
// full-investment constraint and any strategy equality (target return,
// target volatility) by quadratic penalties, sector bounds by one-sided
// quadratic penalties.
type MVOptimizer struct {
	cvarCalculator *CVaRCalculator
	maxCVaR95      float64
}

// NewMVOptimizer creates a mean-variance optimizer. maxCVaR95 is the worst
// tolerated 95%-confidence CVaR (e.g. -0.15 caps tail loss at 15%); 0
// disables the guard.
func NewMVOptimizer(cvarCalculator *CVaRCalculator, maxCVaR95 float64) *MVOptimizer {
	return &MVOptimizer{
		cvarCalculator: cvarCalculator,
		maxCVaR95:      maxCVaR95,
	}
}

// penaltyWeight scales every constraint penalty; large enough that
// constraint violation always dominates the raw objective.
const penaltyWeight = 1000.0

// mvProblem carries the shared problem data into the strategy closures.
type mvProblem struct {
	mu     []float64
	sigma  *mat.Dense
	isins  []string
	lower  map[string]float64
	upper  map[string]float64
	sector []SectorConstraint
}

// portfolioReturn is mu'w.
func (p *mvProblem) portfolioReturn(w []float64) float64 {
	total := 0.0
	for i, wi := range w {
		total += p.mu[i] * wi
	}
	return total
}

// portfolioVariance is w'Sigma w.
func (p *mvProblem) portfolioVariance(w []float64) float64 {
	n := len(w)
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			total += w[i] * w[j] * p.sigma.At(i, j)
		}
	}
	return total
}

// sigmaRow is (Sigma w)_i.
func (p *mvProblem) sigmaRow(i int, w []float64) float64 {
	total := 0.0
	for j := range w {
		total += p.sigma.At(i, j) * w[j]
	}
	return total
}

// project clamps each weight into its [lower, upper] interval.
func (p *mvProblem) project(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, isin := range p.isins {
		lo, hi := 0.0, 1.0
		if v, ok := p.lower[isin]; ok {
			lo = v
		}
		if v, ok := p.upper[isin]; ok {
			hi = v
		}
		out[i] = math.Max(lo, math.Min(hi, x[i]))
	}
	return out
}

// objective is one strategy's core term plus its equality penalties, with
// matching analytic gradients. The shared solver adds the full-investment
// and sector penalties on top.
type objective struct {
	value func(w []float64) float64
	grad  func(grad, w []float64)
}

// Optimize solves the selected strategy. All maps and the result are
// ISIN-keyed; the second return is the achieved portfolio return where the
// strategy defines one.
func (mvo *MVOptimizer) Optimize(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	isins []string,
	minWeights map[string]float64,
	maxWeights map[string]float64,
	sectorConstraints []SectorConstraint,
	strategy string,
	targetReturn *float64,
	targetVolatility *float64,
) (map[string]float64, *float64, error) {
	n := len(isins)
	if n == 0 {
		return nil, nil, fmt.Errorf("no ISINs provided")
	}
	if len(covMatrix) != n {
		return nil, nil, fmt.Errorf("covariance matrix size %d doesn't match ISINs count %d", len(covMatrix), n)
	}
	for i, row := range covMatrix {
		if len(row) != n {
			return nil, nil, fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(row), n)
		}
	}

	mu := make([]float64, n)
	for i, isin := range isins {
		ret, ok := expectedReturns[isin]
		if !ok {
			return nil, nil, fmt.Errorf("missing expected return for ISIN %s", isin)
		}
		mu[i] = ret
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	problem := &mvProblem{mu: mu, sigma: sigma, isins: isins, lower: minWeights, upper: maxWeights, sector: sectorConstraints}

	obj, err := mvo.strategyObjective(problem, strategy, targetReturn, targetVolatility)
	if err != nil {
		return nil, nil, err
	}

	return mvo.solve(problem, obj)
}

// strategyObjective builds the core objective for one strategy name.
func (mvo *MVOptimizer) strategyObjective(p *mvProblem, strategy string, targetReturn, targetVolatility *float64) (objective, error) {
	switch strategy {
	case "efficient_return":
		if targetReturn == nil {
			return objective{}, fmt.Errorf("target_return required for efficient_return strategy")
		}
		return efficientReturnObjective(p, *targetReturn), nil
	case "min_volatility":
		return minVolatilityObjective(p), nil
	case "max_sharpe":
		return maxSharpeObjective(p), nil
	case "efficient_risk":
		if targetVolatility == nil {
			return objective{}, fmt.Errorf("target_volatility required for efficient_risk strategy")
		}
		return efficientRiskObjective(p, *targetVolatility), nil
	default:
		return objective{}, fmt.Errorf("unknown strategy: %s", strategy)
	}
}

// efficientReturnObjective maximises mu'w - lambda*w'Sigma w while pinning
// mu'w to the target through a quadratic penalty.
func efficientReturnObjective(p *mvProblem, target float64) objective {
	const lambda = 1.0
	return objective{
		value: func(w []float64) float64 {
			ret := p.portfolioReturn(w)
			return -(ret - lambda*p.portfolioVariance(w)) +
				penaltyWeight*(ret-target)*(ret-target)
		},
		grad: func(grad, w []float64) {
			ret := p.portfolioReturn(w)
			for i := range w {
				grad[i] += -p.mu[i] + 2*lambda*p.sigmaRow(i, w) +
					2*penaltyWeight*(ret-target)*p.mu[i]
			}
		},
	}
}

// minVolatilityObjective minimises w'Sigma w.
func minVolatilityObjective(p *mvProblem) objective {
	return objective{
		value: func(w []float64) float64 { return p.portfolioVariance(w) },
		grad: func(grad, w []float64) {
			for i := range w {
				grad[i] += 2 * p.sigmaRow(i, w)
			}
		},
	}
}

// maxSharpeObjective maximises mu'w / sqrt(w'Sigma w) (risk-free rate 0).
func maxSharpeObjective(p *mvProblem) objective {
	const eps = 1e-10
	return objective{
		value: func(w []float64) float64 {
			vol := math.Sqrt(p.portfolioVariance(w) + eps)
			return -p.portfolioReturn(w) / vol
		},
		grad: func(grad, w []float64) {
			ret := p.portfolioReturn(w)
			variance := p.portfolioVariance(w) + eps
			vol := math.Sqrt(variance)
			for i := range w {
				// d/dw_i of -(mu'w / vol): quotient rule with
				// d(vol)/dw_i = (Sigma w)_i / vol.
				grad[i] += -(p.mu[i]*vol - ret*p.sigmaRow(i, w)/vol) / variance
			}
		},
	}
}

// efficientRiskObjective maximises mu'w while pinning portfolio volatility
// to the target through a quadratic penalty.
func efficientRiskObjective(p *mvProblem, targetVol float64) objective {
	const eps = 1e-10
	return objective{
		value: func(w []float64) float64 {
			vol := math.Sqrt(p.portfolioVariance(w) + eps)
			return -p.portfolioReturn(w) + penaltyWeight*(vol-targetVol)*(vol-targetVol)
		},
		grad: func(grad, w []float64) {
			vol := math.Sqrt(p.portfolioVariance(w) + eps)
			for i := range w {
				grad[i] += -p.mu[i] + 2*penaltyWeight*(vol-targetVol)*p.sigmaRow(i, w)/vol
			}
		},
	}
}

// solve runs the penalised minimisation: the strategy objective plus the
// full-investment and sector penalties, Nelder-Mead first with a BFGS
// retry, then projection, normalisation, and the CVaR guard.
func (mvo *MVOptimizer) solve(p *mvProblem, obj objective) (map[string]float64, *float64, error) {
	n := len(p.isins)

	full := optimize.Problem{
		Func: func(x []float64) float64 {
			w := p.project(x)
			total := obj.value(w)

			sum := 0.0
			for _, wi := range w {
				sum += wi
			}
			total += penaltyWeight * (sum - 1) * (sum - 1)
			total += sectorPenalty(p, w)
			return total
		},
		Grad: func(grad, x []float64) {
			w := p.project(x)
			for i := range grad {
				grad[i] = 0
			}
			obj.grad(grad, w)

			sum := 0.0
			for _, wi := range w {
				sum += wi
			}
			for i := range grad {
				grad[i] += 2 * penaltyWeight * (sum - 1)
			}
			addSectorPenaltyGradient(p, grad, w)
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := minimizeWithFallback(full, initial)
	if err != nil {
		return nil, nil, err
	}

	// Project, clip, and normalise the final point into a weight map.
	final := p.project(result.X)
	sum := 0.0
	for _, w := range final {
		sum += math.Max(0, w)
	}
	if sum <= 0 {
		return nil, nil, fmt.Errorf("optimization produced a zero-weight portfolio")
	}

	weights := make(map[string]float64, n)
	achieved := 0.0
	for i, isin := range p.isins {
		w := math.Max(0, final[i]) / sum
		weights[isin] = w
		achieved += p.mu[i] * w
	}

	if err := mvo.validateCVaR(weights, p); err != nil {
		return nil, nil, err
	}

	return weights, &achieved, nil
}

// minimizeWithFallback tries Nelder-Mead, retrying with BFGS when it fails
// to converge.
func minimizeWithFallback(problem optimize.Problem, initial []float64) (*optimize.Result, error) {
	converged := func(status optimize.Status) bool {
		switch status {
		case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
			return true
		}
		return false
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	if err == nil && converged(result.Status) {
		return result, nil
	}

	result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}
	if !converged(result.Status) {
		return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
	}
	return result, nil
}

// sectorPenalty adds one-sided quadratic penalties for group weights
// outside their [lower, upper] bands.
func sectorPenalty(p *mvProblem, w []float64) float64 {
	total := 0.0
	for _, constraint := range p.sector {
		for group, weight := range groupWeights(p, constraint, w) {
			if lower, ok := constraint.SectorLower[group]; ok && weight < lower {
				total += penaltyWeight * (lower - weight) * (lower - weight)
			}
			if upper, ok := constraint.SectorUpper[group]; ok && weight > upper {
				total += penaltyWeight * (weight - upper) * (weight - upper)
			}
		}
	}
	return total
}

// addSectorPenaltyGradient accumulates the sector penalty gradients: every
// member of a violating group shares the same derivative.
func addSectorPenaltyGradient(p *mvProblem, grad, w []float64) {
	for _, constraint := range p.sector {
		weights := groupWeights(p, constraint, w)
		for group, weight := range weights {
			var coefficient float64
			if lower, ok := constraint.SectorLower[group]; ok && weight < lower {
				coefficient = -2 * penaltyWeight * (lower - weight)
			}
			if upper, ok := constraint.SectorUpper[group]; ok && weight > upper {
				coefficient = 2 * penaltyWeight * (weight - upper)
			}
			if coefficient == 0 {
				continue
			}
			for i, isin := range p.isins {
				if constraint.SectorMapper[isin] == group {
					grad[i] += coefficient
				}
			}
		}
	}
}

// groupWeights sums the current weights per group named by the constraint.
func groupWeights(p *mvProblem, constraint SectorConstraint, w []float64) map[string]float64 {
	sums := make(map[string]float64)
	for i, isin := range p.isins {
		if group, ok := constraint.SectorMapper[isin]; ok {
			sums[group] += w[i]
		}
	}
	return sums
}

// validateCVaR rejects allocations whose Monte Carlo CVaR at 95% breaches
// the configured tail-loss cap.
func (mvo *MVOptimizer) validateCVaR(weights map[string]float64, p *mvProblem) error {
	if mvo.cvarCalculator == nil || mvo.maxCVaR95 == 0 {
		return nil
	}

	n := len(p.isins)
	cov := make([][]float64, n)
	expectedReturns := make(map[string]float64, n)
	for i, isin := range p.isins {
		cov[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			cov[i][j] = p.sigma.At(i, j)
		}
		expectedReturns[isin] = p.mu[i]
	}

	cvar := mvo.cvarCalculator.CalculateFromCovariance(cov, expectedReturns, weights, p.isins, 2000, 0.95)
	if cvar < mvo.maxCVaR95 {
		return fmt.Errorf("allocation breaches CVaR guard: %.4f < %.4f", cvar, mvo.maxCVaR95)
	}
	return nil
}
