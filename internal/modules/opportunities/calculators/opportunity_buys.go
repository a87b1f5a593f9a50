package calculators

import (
	"fmt"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// OpportunityBuysCalculator proposes high-conviction buys that the
// rebalancing calculators don't cover: strongly scored securities, dividend
// payers, and new additions, held or not.
type OpportunityBuysCalculator struct {
	*BaseCalculator
	tagFilter    TagFilter
	securityRepo SecurityRepository
}

// NewOpportunityBuysCalculator creates a new opportunity buys calculator.
func NewOpportunityBuysCalculator(tagFilter TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *OpportunityBuysCalculator {
	return &OpportunityBuysCalculator{
		BaseCalculator: NewBaseCalculator(log, "opportunity_buys"),
		tagFilter:      tagFilter,
		securityRepo:   securityRepo,
	}
}

// Name returns the calculator name.
func (c *OpportunityBuysCalculator) Name() string { return "opportunity_buys" }

// Category returns the opportunity category.
func (c *OpportunityBuysCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryOpportunityBuys
}

// Calculate identifies opportunity buy candidates.
func (c *OpportunityBuysCalculator) Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error) {
	minScore := GetFloatParam(params, "min_score", 0.65)
	maxPositionsParam := GetIntParam(params, "max_positions", 3)
	maxValuePerPosition := GetFloatParam(params, "max_value_per_position", 2000.0)
	config := configFrom(params)

	exclusions := NewExclusionCollector(c.Name(), ctx.DismissedFilters)

	if !ctx.AllowBuy || ctx.AvailableCashEUR <= 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	var tagCandidates map[string]bool
	if config.EnableTagFiltering && c.tagFilter != nil {
		tagCandidates = candidateSet(c.tagFilter.GetOpportunityCandidates(ctx, config))
	}

	var candidates []domain.ActionCandidate

	for _, sec := range ctx.Securities {
		isin := sec.ISIN
		if isin == "" {
			continue
		}
		if tagCandidates != nil && !tagCandidates[sec.Symbol] {
			continue
		}
		if ctx.RecentlyBoughtISINs[isin] || ctx.RecentlyBought[sec.Symbol] {
			exclusions.Add(isin, sec.Symbol, sec.Name, "recently bought (cooling off period)")
			continue
		}
		if !sec.AllowBuy {
			exclusions.Add(isin, sec.Symbol, sec.Name, "allow_buy=false")
			continue
		}

		score, hasScore := lookupScore(ctx.SecurityScores, isin)
		if !hasScore || score < minScore {
			exclusions.Add(isin, sec.Symbol, sec.Name, fmt.Sprintf("score %.2f below minimum %.2f", score, minScore))
			continue
		}

		// Expected-return filter: when the optimiser's calculator excluded
		// the security, this calculator respects that.
		if ctx.ExpectedReturns != nil {
			if _, ok := ctx.ExpectedReturns[isin]; !ok && len(ctx.ExpectedReturns) > 0 {
				exclusions.Add(isin, sec.Symbol, sec.Name, "below expected-return minimum")
				continue
			}
		}

		securityTags := tagsFor(c.securityRepo, sec.Symbol, config)
		if len(securityTags) > 0 {
			if contains(securityTags, "value-trap") || contains(securityTags, "ensemble-value-trap") {
				exclusions.Add(isin, sec.Symbol, sec.Name, "value trap detected (tag-based)")
				continue
			}
			if contains(securityTags, "bubble-risk") {
				exclusions.Add(isin, sec.Symbol, sec.Name, "bubble risk detected (tag-based)")
				continue
			}
		} else {
			check := CheckQualityGates(ctx, isin, true, config)
			if !check.PassesQualityGate {
				exclusions.Add(isin, sec.Symbol, sec.Name, "quality gate failed")
				continue
			}
			if check.IsEnsembleValueTrap || check.IsBubbleRisk {
				exclusions.Add(isin, sec.Symbol, sec.Name, "value trap or bubble risk detected")
				continue
			}
		}

		price, ok := ctx.GetPriceByISINOrSymbol(isin, sec.Symbol)
		if !ok {
			exclusions.Add(isin, sec.Symbol, sec.Name, "no current price available")
			continue
		}

		quantity, valueEUR := buySize(ctx, price, sec.MinLot, maxValuePerPosition)
		if quantity <= 0 {
			exclusions.Add(isin, sec.Symbol, sec.Name, "quantity below minimum lot size")
			continue
		}
		if !ctx.IsWorthwhile(valueEUR) {
			exclusions.Add(isin, sec.Symbol, sec.Name,
				fmt.Sprintf("trade value %.2f below worthwhileness threshold %.2f", valueEUR, ctx.MinWorthwhileTradeValue()))
			continue
		}

		if passes, why := CheckConcentrationGuardrail(isin, sec.Geography, valueEUR, ctx); !passes {
			exclusions.Add(isin, sec.Symbol, sec.Name, why)
			continue
		}

		// Priority: the score itself, lifted by a dividend bonus when the
		// portfolio context knows one, scaled by the universe multiplier.
		priority := score * multiplierOr1(sec.PriorityMultiplier)
		dividend := 0.0
		if ctx.PortfolioContext != nil && ctx.PortfolioContext.SecurityDividends != nil {
			dividend = ctx.PortfolioContext.SecurityDividends[isin]
		}
		if dividend > 0 {
			priority *= 1 + dividend
		}
		priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())
		priority = ApplyQuantumWarningPenalty(priority, securityTags, c.Name())

		reason := fmt.Sprintf("High-conviction buy: score %.2f", score)
		if dividend > 0 {
			reason += fmt.Sprintf(", dividend yield %.1f%%", dividend*100)
		}

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "BUY",
			ISIN:     isin,
			Symbol:   sec.Symbol,
			Name:     sec.Name,
			Quantity: quantity,
			Price:    price,
			ValueEUR: valueEUR,
			Currency: sec.Currency,
			Priority: priority,
			Reason:   reason,
			Tags:     []string{"opportunity", "buy"},
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	if maxPositionsParam > 0 && len(candidates) > maxPositionsParam {
		candidates = candidates[:maxPositionsParam]
	}

	c.log.Info().Int("candidates", len(candidates)).Msg("Opportunity buy candidates identified")

	return domain.CalculatorResult{Candidates: candidates, PreFiltered: exclusions.Result()}, nil
}
