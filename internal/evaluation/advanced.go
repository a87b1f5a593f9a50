package evaluation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/trading-planner/internal/evaluation/models"
)

// EvaluateMonteCarlo scores a sequence across N sampled price paths and
// summarises the distribution of outcomes. Each path independently shocks
// every traded symbol's price with a lognormal multiplier derived from its
// annualised volatility, then scores the resulting end state. The final
// score favours the downside: 0.4*worst + 0.3*p10 + 0.3*mean, so a sequence
// that merely gets lucky on average does not outrank one that is robust
// across paths.
func EvaluateMonteCarlo(req models.MonteCarloRequest) models.MonteCarloResult {
	if req.Paths <= 0 {
		req.Paths = 100
	}

	symbols := sequenceSymbols(req.Sequence)

	rng := rand.New(rand.NewSource(req.Seed))
	if req.Seed == 0 {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	type pathResult struct {
		pathIdx int
		score   float64
	}
	results := make(chan pathResult, req.Paths)

	var wg sync.WaitGroup
	var rngMu sync.Mutex

	for i := 0; i < req.Paths; i++ {
		wg.Add(1)
		go func(pathIdx int) {
			defer wg.Done()

			rngMu.Lock()
			priceAdj := generateRandomPrices(rng, symbols, req.SymbolVolatilities)
			rngMu.Unlock()

			endContext, _ := SimulateSequence(
				req.Sequence,
				req.EvaluationContext.PortfolioContext,
				req.EvaluationContext.AvailableCashEUR,
				req.EvaluationContext.Securities,
				priceAdj,
			)

			endScore := EvaluateEndState(
				req.EvaluationContext.PortfolioContext,
				endContext,
				req.Sequence,
				req.EvaluationContext.TransactionCostFixed,
				req.EvaluationContext.TransactionCostPercent,
				0.0,
				req.EvaluationContext.ScoringConfig,
			)

			results <- pathResult{pathIdx: pathIdx, score: endScore}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pathScores := make([]float64, req.Paths)
	for res := range results {
		pathScores[res.pathIdx] = res.score
	}

	sort.Float64s(pathScores)

	avgScore := stat.Mean(pathScores, nil)
	worstScore := floats.Min(pathScores)
	bestScore := floats.Max(pathScores)
	p10Score := stat.Quantile(0.10, stat.Empirical, pathScores, nil)
	p90Score := stat.Quantile(0.90, stat.Empirical, pathScores, nil)

	finalScore := worstScore*0.4 + p10Score*0.3 + avgScore*0.3

	return models.MonteCarloResult{
		PathsEvaluated: req.Paths,
		AvgScore:       avgScore,
		WorstScore:     worstScore,
		BestScore:      bestScore,
		P10Score:       p10Score,
		P90Score:       p90Score,
		FinalScore:     finalScore,
	}
}

// generateRandomPrices draws one lognormal price multiplier per symbol
// following geometric Brownian motion over a single trading day:
// S(t+dt) = S(t) * exp(sigma * sqrt(dt) * Z). Multipliers are clamped to
// [0.5, 2.0] so a single extreme draw cannot dominate a path's score.
func generateRandomPrices(rng *rand.Rand, symbols []string, volatilities map[string]float64) map[string]float64 {
	adjustments := make(map[string]float64, len(symbols))

	for _, symbol := range symbols {
		vol := 0.2
		if v, ok := volatilities[symbol]; ok && v > 0 {
			vol = v
		}

		dailyVol := vol / math.Sqrt(252)
		randomNormal := rng.NormFloat64()
		multiplier := math.Exp(dailyVol * randomNormal)

		adjustments[symbol] = math.Max(0.5, math.Min(2.0, multiplier))
	}

	return adjustments
}

// EvaluateStochastic scores a sequence under a small set of fixed,
// global price shifts (e.g. -10%, -5%, base, +5%, +10%) rather than
// sampled paths. Per-shift scores are returned in ScenarioScores;
// WeightedScore blends them with req.Weights (default: 0.40 on the base
// case, 0.15 on each of the four shifts). The 0.6*worst + 0.4*mean
// reduction is applied by the caller over ScenarioScores.
func EvaluateStochastic(req models.StochasticRequest) models.StochasticResult {
	if len(req.Shifts) == 0 {
		req.Shifts = []float64{-0.10, -0.05, 0.0, 0.05, 0.10}
	}

	if len(req.Weights) == 0 {
		req.Weights = map[string]float64{
			"0":     0.40,
			"-0.1":  0.15,
			"-0.05": 0.15,
			"0.05":  0.15,
			"0.1":   0.15,
		}
	}

	symbols := sequenceSymbols(req.Sequence)

	type scenarioResult struct {
		shift float64
		score float64
	}
	results := make(chan scenarioResult, len(req.Shifts))

	var wg sync.WaitGroup
	for _, shift := range req.Shifts {
		wg.Add(1)
		go func(s float64) {
			defer wg.Done()

			priceAdj := make(map[string]float64, len(symbols))
			for _, symbol := range symbols {
				priceAdj[symbol] = 1.0 + s
			}

			endContext, _ := SimulateSequence(
				req.Sequence,
				req.EvaluationContext.PortfolioContext,
				req.EvaluationContext.AvailableCashEUR,
				req.EvaluationContext.Securities,
				priceAdj,
			)

			endScore := EvaluateEndState(
				req.EvaluationContext.PortfolioContext,
				endContext,
				req.Sequence,
				req.EvaluationContext.TransactionCostFixed,
				req.EvaluationContext.TransactionCostPercent,
				0.0,
				req.EvaluationContext.ScoringConfig,
			)

			results <- scenarioResult{shift: s, score: endScore}
		}(shift)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	scenarioScores := make(map[string]float64, len(req.Shifts))
	var baseScore, worstCase, bestCase float64

	for res := range results {
		shiftKey := formatShift(res.shift)
		scenarioScores[shiftKey] = res.score

		switch res.shift {
		case 0.0:
			baseScore = res.score
		case -0.10:
			worstCase = res.score
		case 0.10:
			bestCase = res.score
		}
	}

	weightedScore := 0.0
	for shiftKey, score := range scenarioScores {
		weightedScore += score * req.Weights[shiftKey]
	}

	return models.StochasticResult{
		ScenariosEvaluated: len(req.Shifts),
		BaseScore:          baseScore,
		WorstCase:          worstCase,
		BestCase:           bestCase,
		WeightedScore:      weightedScore,
		ScenarioScores:     scenarioScores,
	}
}

func sequenceSymbols(sequence []models.ActionCandidate) []string {
	seen := make(map[string]bool, len(sequence))
	symbols := make([]string, 0, len(sequence))
	for _, action := range sequence {
		if !seen[action.Symbol] {
			seen[action.Symbol] = true
			symbols = append(symbols, action.Symbol)
		}
	}
	return symbols
}

// formatShift renders a fixed shift as the string key used by the Weights
// and ScenarioScores maps (mirrors the fixed scenario set above; falls back
// to two-decimal formatting for custom shifts).
func formatShift(shift float64) string {
	switch shift {
	case 0.0:
		return "0"
	case -0.10:
		return "-0.1"
	case -0.05:
		return "-0.05"
	case 0.05:
		return "0.05"
	case 0.10:
		return "0.1"
	default:
		return fmt.Sprintf("%.2f", shift)
	}
}
