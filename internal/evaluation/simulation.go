package evaluation

import (
	"github.com/aristath/trading-planner/internal/evaluation/models"
)

// CashFlow summarises the cash generated and required by a sequence without
// simulating portfolio state, used by pattern generators that only need to
// reason about cash, not the resulting allocation.
type CashFlow struct {
	CashGenerated float64
	CashRequired  float64
	NetCashFlow   float64
}

// CalculateSequenceCashFlow sums sell proceeds and buy costs across a
// sequence. It does not apply transaction costs or feasibility checks.
func CalculateSequenceCashFlow(sequence []models.ActionCandidate) CashFlow {
	var flow CashFlow
	for _, action := range sequence {
		switch action.Side {
		case models.TradeSideSell:
			flow.CashGenerated += action.ValueEUR
		case models.TradeSideBuy:
			flow.CashRequired += action.ValueEUR
		}
	}
	flow.NetCashFlow = flow.CashGenerated - flow.CashRequired
	return flow
}

// CheckSequenceFeasibility walks a sequence in order and verifies the
// running cash balance never goes negative. It does not account for transaction costs; callers that
// need cost-aware feasibility should debit costs into availableCash first
// or use SimulateSequenceWithContext, which tracks cash exactly.
func CheckSequenceFeasibility(sequence []models.ActionCandidate, availableCash float64, _ models.PortfolioContext) bool {
	cash := availableCash
	for _, action := range sequence {
		switch action.Side {
		case models.TradeSideSell:
			cash += action.ValueEUR
		case models.TradeSideBuy:
			cash -= action.ValueEUR
			if cash < 0 {
				return false
			}
		}
	}
	return true
}

// SimulateSequence applies a sequence to a copy of the portfolio state and
// returns the resulting PortfolioContext and cash balance. Buys that cannot
// be afforded at the time they would execute are skipped rather than
// aborting the whole sequence, since an evaluator scores the best
// achievable end state, not an all-or-nothing transaction. priceAdjustments
// (symbol -> multiplicative factor) models the stochastic/Monte Carlo
// scenario price shifts; pass nil for the deterministic case.
func SimulateSequence(
	sequence []models.ActionCandidate,
	portfolio models.PortfolioContext,
	availableCash float64,
	securities []models.Security,
	priceAdjustments map[string]float64,
) (models.PortfolioContext, float64) {
	end := copyPortfolioContext(portfolio)
	cash := availableCash

	for _, action := range sequence {
		value := action.ValueEUR
		if priceAdjustments != nil {
			if factor, ok := priceAdjustments[action.Symbol]; ok {
				value *= factor
			}
		}

		switch action.Side {
		case models.TradeSideBuy:
			if value > cash {
				continue // unaffordable at this point in the sequence, skip
			}
			cash -= value
			end.Positions[action.Symbol] += value
		case models.TradeSideSell:
			cash += value
			remaining := end.Positions[action.Symbol] - value
			if remaining <= 0 {
				delete(end.Positions, action.Symbol)
			} else {
				end.Positions[action.Symbol] = remaining
			}
		}
	}

	for _, sec := range securities {
		if sec.Country != nil {
			end.SecurityCountries[sec.Symbol] = *sec.Country
		}
		if sec.Industry != nil {
			end.SecurityIndustries[sec.Symbol] = *sec.Industry
		}
	}

	return end, cash
}

// SimulateSequenceWithContext is the EvaluationContext-shaped entry point
// used by the scoring core and the worker pool.
func SimulateSequenceWithContext(sequence []models.ActionCandidate, ctx models.EvaluationContext) (models.PortfolioContext, float64) {
	return SimulateSequence(sequence, ctx.PortfolioContext, ctx.AvailableCashEUR, ctx.Securities, ctx.PriceAdjustments)
}

// copyPortfolioContext deep-copies the maps that simulation mutates so
// evaluators never alias caller state.
func copyPortfolioContext(src models.PortfolioContext) models.PortfolioContext {
	dst := src

	dst.Positions = cloneFloatMap(src.Positions)
	dst.CountryWeights = cloneFloatMap(src.CountryWeights)
	dst.IndustryWeights = cloneFloatMap(src.IndustryWeights)
	dst.GeographyWeights = cloneFloatMap(src.GeographyWeights)
	dst.SecurityScores = cloneFloatMap(src.SecurityScores)
	dst.SecurityDividends = cloneFloatMap(src.SecurityDividends)
	dst.PositionAvgPrices = cloneFloatMap(src.PositionAvgPrices)
	dst.CurrentPrices = cloneFloatMap(src.CurrentPrices)
	dst.SecurityCAGRs = cloneFloatMap(src.SecurityCAGRs)
	dst.SecurityVolatility = cloneFloatMap(src.SecurityVolatility)
	dst.SecuritySharpe = cloneFloatMap(src.SecuritySharpe)
	dst.SecuritySortino = cloneFloatMap(src.SecuritySortino)
	dst.SecurityMaxDrawdown = cloneFloatMap(src.SecurityMaxDrawdown)
	dst.OptimizerTargetWeights = cloneFloatMap(src.OptimizerTargetWeights)

	dst.SecurityCountries = cloneStringMap(src.SecurityCountries)
	dst.SecurityIndustries = cloneStringMap(src.SecurityIndustries)
	dst.SecurityGeographies = cloneStringMap(src.SecurityGeographies)
	dst.CountryToGroup = cloneStringMap(src.CountryToGroup)
	dst.IndustryToGroup = cloneStringMap(src.IndustryToGroup)

	return dst
}

func cloneFloatMap(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
