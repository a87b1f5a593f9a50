package sequences

import (
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
)

// OpportunityFirstPattern leads every sequence with the strongest
// opportunity buy, then layers rebalance actions behind it.
type OpportunityFirstPattern struct{}

func (p *OpportunityFirstPattern) Name() string { return "opportunity_first" }

func (p *OpportunityFirstPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_opportunities": 3, "max_followups": 2}
}

func (p *OpportunityFirstPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxOpportunities := intParam(params, "max_opportunities", 3)
	maxFollowups := intParam(params, "max_followups", 2)

	leads := topByPriority(opportunities[domain.OpportunityCategoryOpportunityBuys], maxOpportunities)

	var followups []domain.ActionCandidate
	followups = append(followups, opportunities[domain.OpportunityCategoryRebalanceSells]...)
	followups = append(followups, opportunities[domain.OpportunityCategoryRebalanceBuys]...)
	followups = topByPriority(followups, maxFollowups)

	var sequences []domain.ActionSequence
	for _, lead := range leads {
		sequences = appendIfFeasible(sequences, []domain.ActionCandidate{lead}, ctx, p.Name())

		actions := []domain.ActionCandidate{lead}
		for _, f := range followups {
			if f.Symbol == lead.Symbol {
				continue
			}
			actions = append(actions, f)
			combo := make([]domain.ActionCandidate, len(actions))
			copy(combo, actions)
			sequences = appendIfFeasible(sequences, combo, ctx, p.Name())
		}
	}
	return sequences
}

// DeepRebalancePattern builds progressively longer rebalance-only
// sequences, trimming every overweight group and funding every underweight
// one in a single plan.
type DeepRebalancePattern struct{}

func (p *DeepRebalancePattern) Name() string { return "deep_rebalance" }

func (p *DeepRebalancePattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_depth": 6}
}

func (p *DeepRebalancePattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	maxDepth := intParam(params, "max_depth", 6)

	sells := topByPriority(opportunities[domain.OpportunityCategoryRebalanceSells], 0)
	buys := topByPriority(opportunities[domain.OpportunityCategoryRebalanceBuys], 0)

	// Interleave sells then buys, deepest plans first capped at maxDepth.
	var pool []domain.ActionCandidate
	pool = append(pool, sells...)
	pool = append(pool, buys...)
	if len(pool) > maxDepth {
		pool = pool[:maxDepth]
	}

	var sequences []domain.ActionSequence
	for depth := 2; depth <= len(pool); depth++ {
		combo := make([]domain.ActionCandidate, depth)
		copy(combo, pool[:depth])
		sequences = appendIfFeasible(sequences, combo, ctx, p.Name())
	}
	return sequences
}

// CashGenerationPattern sells until a cash target is reached, for requests
// where freeing cash matters more than redeploying it.
type CashGenerationPattern struct{}

func (p *CashGenerationPattern) Name() string { return "cash_generation" }

func (p *CashGenerationPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"cash_target_fraction": 0.10}
}

func (p *CashGenerationPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	targetFraction := floatParam(params, "cash_target_fraction", 0.10)

	var sells []domain.ActionCandidate
	sells = append(sells, opportunities[domain.OpportunityCategoryProfitTaking]...)
	sells = append(sells, opportunities[domain.OpportunityCategoryRebalanceSells]...)
	sells = topByPriority(sells, 0)

	if len(sells) == 0 {
		return nil
	}

	cashTarget := 0.0
	if ctx != nil {
		cashTarget = ctx.TotalPortfolioValueEUR * targetFraction
	}

	var sequences []domain.ActionSequence
	var actions []domain.ActionCandidate
	raised := 0.0
	for _, sell := range sells {
		actions = append(actions, sell)
		raised += sell.ValueEUR

		combo := make([]domain.ActionCandidate, len(actions))
		copy(combo, actions)
		sequences = appendIfFeasible(sequences, combo, ctx, p.Name())

		if cashTarget > 0 && raised >= cashTarget {
			break
		}
	}
	return sequences
}

// CostOptimizedPattern prefers fewer, larger trades: it drops candidates
// whose value-to-cost ratio is poor, then proposes the survivors.
type CostOptimizedPattern struct{}

func (p *CostOptimizedPattern) Name() string { return "cost_optimized" }

func (p *CostOptimizedPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"min_value_cost_ratio": 50.0, "max_actions": 3}
}

func (p *CostOptimizedPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	minRatio := floatParam(params, "min_value_cost_ratio", 50.0)
	maxActions := intParam(params, "max_actions", 3)

	costFixed, costPct := 2.0, 0.002
	if ctx != nil {
		costFixed = ctx.TransactionCostFixed
		costPct = ctx.TransactionCostPercent
	}

	var efficient []domain.ActionCandidate
	for _, candidates := range opportunities {
		for _, c := range candidates {
			cost := costFixed + c.ValueEUR*costPct
			if cost > 0 && c.ValueEUR/cost >= minRatio {
				efficient = append(efficient, c)
			}
		}
	}

	// Largest value first: the whole point is concentrating the fixed fee
	// over more traded value.
	sort.Slice(efficient, func(i, j int) bool {
		return efficient[i].ValueEUR > efficient[j].ValueEUR
	})
	if len(efficient) > maxActions {
		efficient = efficient[:maxActions]
	}

	var sequences []domain.ActionSequence
	for size := 1; size <= len(efficient); size++ {
		combo := make([]domain.ActionCandidate, size)
		copy(combo, efficient[:size])
		sequences = appendIfFeasible(sequences, combo, ctx, p.Name())
	}
	return sequences
}

// AdaptivePattern inspects the candidate pools and delegates to the
// strategy that fits the situation: cash-rich portfolios buy, windfall-heavy
// ones take profit, otherwise rebalance.
type AdaptivePattern struct{}

func (p *AdaptivePattern) Name() string { return "adaptive" }

func (p *AdaptivePattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"cash_rich_fraction": 0.15}
}

func (p *AdaptivePattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	cashRichFraction := floatParam(params, "cash_rich_fraction", 0.15)

	cashFraction := 0.0
	if ctx != nil && ctx.TotalPortfolioValueEUR > 0 {
		cashFraction = ctx.AvailableCashEUR / ctx.TotalPortfolioValueEUR
	}

	var delegate Pattern
	switch {
	case cashFraction >= cashRichFraction:
		delegate = &DirectBuyPattern{}
	case len(opportunities[domain.OpportunityCategoryProfitTaking]) > 0:
		delegate = &ProfitTakingPattern{}
	default:
		delegate = &RebalancePattern{}
	}

	sequences := delegate.Generate(opportunities, ctx, delegate.DefaultParams())
	for i := range sequences {
		sequences[i].PatternType = p.Name()
	}
	return sequences
}

// MarketRegimePattern tilts the sell/buy mix by the current regime score:
// risk-off regimes favour selling and trimming, risk-on regimes favour
// deploying cash.
type MarketRegimePattern struct{}

func (p *MarketRegimePattern) Name() string { return "market_regime" }

func (p *MarketRegimePattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"bear_threshold": -0.3, "bull_threshold": 0.3}
}

func (p *MarketRegimePattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	bearThreshold := floatParam(params, "bear_threshold", -0.3)
	bullThreshold := floatParam(params, "bull_threshold", 0.3)

	regime := 0.0
	if ctx != nil {
		regime = ctx.RegimeScore
	}

	var delegate Pattern
	switch {
	case regime <= bearThreshold:
		// Risk-off: raise cash, trim winners.
		delegate = &CashGenerationPattern{}
	case regime >= bullThreshold:
		// Risk-on: deploy cash into the strongest buys.
		delegate = &OpportunityFirstPattern{}
	default:
		// Sideways: keep the allocation on target.
		delegate = &RebalancePattern{}
	}

	sequences := delegate.Generate(opportunities, ctx, delegate.DefaultParams())
	for i := range sequences {
		sequences[i].PatternType = p.Name()
	}
	return sequences
}

// CombinatorialPattern wraps the exhaustive generator as one pattern among
// the rest, enumerating mixed sell-then-buy combinations up to max_depth.
type CombinatorialPattern struct {
	generator *ExhaustiveGenerator
}

func (p *CombinatorialPattern) Name() string { return "combinatorial" }

func (p *CombinatorialPattern) DefaultParams() map[string]interface{} {
	return map[string]interface{}{"max_depth": 4, "max_combinations": 1000}
}

func (p *CombinatorialPattern) Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence {
	if p.generator == nil {
		return nil
	}

	config := DefaultGenerationConfig()
	config.MaxDepth = intParam(params, "max_depth", 4)
	config.MaxSequences = intParam(params, "max_combinations", 1000)
	if ctx != nil {
		config.AvailableCash = ctx.AvailableCashEUR
		config.PruneInfeasible = true
	}

	return p.generator.Generate(opportunities, ctx, config)
}
