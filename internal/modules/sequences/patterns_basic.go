package sequences

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
)

// feasible reports whether the actions pass the cash-path and concentration
// pre-checks against the context.
func feasible(actions []domain.ActionCandidate, ctx *domain.OpportunityContext) bool {
	if ctx == nil {
		return true
	}
	if !CashPathFeasible(actions, ctx.AvailableCashEUR, ctx.TransactionCostFixed, ctx.TransactionCostPercent) {
		return false
	}
	return ConcentrationFeasible(actions, ctx, 0)
}

// appendIfFeasible appends a sequence built from actions when it passes the
// pre-checks.
func appendIfFeasible(sequences []domain.ActionSequence, actions []domain.ActionCandidate, ctx *domain.OpportunityContext, pattern string) []domain.ActionSequence {
	if len(actions) == 0 || !feasible(actions, ctx) {
		return sequences
	}
	return append(sequences, NewSequence(actions, pattern))
}

// DirectBuyPattern proposes each affordable buy candidate as its own
// single-action sequence: the simplest use of available cash.
type DirectBuyPattern struct{}

func (p *DirectBuyPattern) Name() string { return "direct_buy" }

func (p *DirectBuyPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_candidates": 10}
}

func (p *DirectBuyPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxCandidates := intParam(params, "max_candidates", 10)

	var buys []domain.ActionCandidate
	buys = append(buys, opportunities[domain.OpportunityCategoryOpportunityBuys]...)
	buys = append(buys, opportunities[domain.OpportunityCategoryRebalanceBuys]...)
	buys = topByPriority(buys, maxCandidates)

	var sequences []domain.ActionSequence
	for _, buy := range buys {
		sequences = appendIfFeasible(sequences, []domain.ActionCandidate{buy}, ctx, p.Name())
	}
	return sequences
}

// ProfitTakingPattern sells windfall positions, alone and paired with the
// best buy each sale can fund.
type ProfitTakingPattern struct{}

func (p *ProfitTakingPattern) Name() string { return "profit_taking" }

func (p *ProfitTakingPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_sells": 5, "max_buys_per_sell": 3}
}

func (p *ProfitTakingPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxSells := intParam(params, "max_sells", 5)
	maxBuysPerSell := intParam(params, "max_buys_per_sell", 3)

	sells := topByPriority(opportunities[domain.OpportunityCategoryProfitTaking], maxSells)

	var buys []domain.ActionCandidate
	buys = append(buys, opportunities[domain.OpportunityCategoryOpportunityBuys]...)
	buys = append(buys, opportunities[domain.OpportunityCategoryAveragingDown]...)
	buys = append(buys, opportunities[domain.OpportunityCategoryRebalanceBuys]...)

	var sequences []domain.ActionSequence
	for _, sell := range sells {
		sequences = appendIfFeasible(sequences, []domain.ActionCandidate{sell}, ctx, p.Name())

		for _, buy := range topByPriority(buys, maxBuysPerSell) {
			if buy.Symbol == sell.Symbol {
				continue
			}
			sequences = appendIfFeasible(sequences, []domain.ActionCandidate{sell, buy}, ctx, p.Name())
		}
	}
	return sequences
}

// RebalancePattern pairs rebalance sells with rebalance buys: trim the
// overweight, fund the underweight.
type RebalancePattern struct{}

func (p *RebalancePattern) Name() string { return "rebalance" }

func (p *RebalancePattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_pairs": 10}
}

func (p *RebalancePattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxPairs := intParam(params, "max_pairs", 10)

	sells := topByPriority(opportunities[domain.OpportunityCategoryRebalanceSells], 0)
	buys := topByPriority(opportunities[domain.OpportunityCategoryRebalanceBuys], 0)

	var sequences []domain.ActionSequence
	for _, sell := range sells {
		sequences = appendIfFeasible(sequences, []domain.ActionCandidate{sell}, ctx, p.Name())
	}
	for _, buy := range buys {
		sequences = appendIfFeasible(sequences, []domain.ActionCandidate{buy}, ctx, p.Name())
	}

	pairs := 0
	for _, sell := range sells {
		for _, buy := range buys {
			if pairs >= maxPairs {
				return sequences
			}
			if buy.Symbol == sell.Symbol {
				continue
			}
			before := len(sequences)
			sequences = appendIfFeasible(sequences, []domain.ActionCandidate{sell, buy}, ctx, p.Name())
			if len(sequences) > before {
				pairs++
			}
		}
	}
	return sequences
}

// AveragingDownPattern buys quality dips already held, optionally funded by
// a profit-taking sale.
type AveragingDownPattern struct{}

func (p *AveragingDownPattern) Name() string { return "averaging_down" }

func (p *AveragingDownPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_candidates": 5}
}

func (p *AveragingDownPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxCandidates := intParam(params, "max_candidates", 5)

	dips := topByPriority(opportunities[domain.OpportunityCategoryAveragingDown], maxCandidates)
	sells := topByPriority(opportunities[domain.OpportunityCategoryProfitTaking], 3)

	var sequences []domain.ActionSequence
	for _, dip := range dips {
		sequences = appendIfFeasible(sequences, []domain.ActionCandidate{dip}, ctx, p.Name())

		for _, sell := range sells {
			if sell.Symbol == dip.Symbol {
				continue
			}
			sequences = appendIfFeasible(sequences, []domain.ActionCandidate{sell, dip}, ctx, p.Name())
		}
	}
	return sequences
}

// SingleBestPattern proposes only the single highest-priority candidate
// across all categories, the minimal do-one-thing plan.
type SingleBestPattern struct{}

func (p *SingleBestPattern) Name() string { return "single_best" }

func (p *SingleBestPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{}
}

func (p *SingleBestPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, _ map[string]interface{}) []domain.ActionSequence {
	var all []domain.ActionCandidate
	for _, candidates := range opportunities {
		all = append(all, candidates...)
	}
	best := topByPriority(all, 1)
	if len(best) == 0 {
		return nil
	}
	return appendIfFeasible(nil, []domain.ActionCandidate{best[0]}, ctx, p.Name())
}

// MultiSellPattern combines sell candidates into multi-action sequences,
// for when the portfolio needs trimming in several places at once.
type MultiSellPattern struct{}

func (p *MultiSellPattern) Name() string { return "multi_sell" }

func (p *MultiSellPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_sells": 4}
}

func (p *MultiSellPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxSells := intParam(params, "max_sells", 4)

	var sells []domain.ActionCandidate
	sells = append(sells, opportunities[domain.OpportunityCategoryProfitTaking]...)
	sells = append(sells, opportunities[domain.OpportunityCategoryRebalanceSells]...)
	sells = topByPriority(sells, maxSells)

	var sequences []domain.ActionSequence
	// Pairwise and cumulative prefixes of the top sells.
	for size := 2; size <= len(sells); size++ {
		combo := make([]domain.ActionCandidate, size)
		copy(combo, sells[:size])
		sequences = appendIfFeasible(sequences, combo, ctx, p.Name())
	}
	return sequences
}

// MixedStrategyPattern crosses the best sell with the best buys across
// category boundaries (e.g. rebalance sell funding an opportunity buy).
type MixedStrategyPattern struct{}

func (p *MixedStrategyPattern) Name() string { return "mixed_strategy" }

func (p *MixedStrategyPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_per_category": 3}
}

func (p *MixedStrategyPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxPerCategory := intParam(params, "max_per_category", 3)

	sellCategories := []domain.OpportunityCategory{
		domain.OpportunityCategoryProfitTaking,
		domain.OpportunityCategoryRebalanceSells,
	}
	buyCategories := []domain.OpportunityCategory{
		domain.OpportunityCategoryOpportunityBuys,
		domain.OpportunityCategoryAveragingDown,
		domain.OpportunityCategoryRebalanceBuys,
	}

	var sequences []domain.ActionSequence
	for _, sellCat := range sellCategories {
		for _, buyCat := range buyCategories {
			for _, sell := range topByPriority(opportunities[sellCat], maxPerCategory) {
				for _, buy := range topByPriority(opportunities[buyCat], maxPerCategory) {
					if buy.Symbol == sell.Symbol {
						continue
					}
					sequences = appendIfFeasible(sequences, []domain.ActionCandidate{sell, buy}, ctx, p.Name())
				}
			}
		}
	}
	return sequences
}

func intParam(params map[string]interface{}, key string, defaultValue int) int {
	if params == nil {
		return defaultValue
	}
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return defaultValue
}

func floatParam(params map[string]interface{}, key string, defaultValue float64) float64 {
	if params == nil {
		return defaultValue
	}
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return defaultValue
}
