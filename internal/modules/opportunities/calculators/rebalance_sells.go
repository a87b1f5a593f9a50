package calculators

import (
	"fmt"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/utils"
	"github.com/rs/zerolog"
)

// RebalanceSellsCalculator proposes trimming positions in geography groups
// sitting above their target allocation. Within an overweight group the
// lowest-quality positions go first; demonstrably high-quality holdings are
// protected.
type RebalanceSellsCalculator struct {
	*BaseCalculator
	tagFilter    TagFilter
	securityRepo SecurityRepository
}

// NewRebalanceSellsCalculator creates a new rebalance sells calculator.
func NewRebalanceSellsCalculator(tagFilter TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *RebalanceSellsCalculator {
	return &RebalanceSellsCalculator{
		BaseCalculator: NewBaseCalculator(log, "rebalance_sells"),
		tagFilter:      tagFilter,
		securityRepo:   securityRepo,
	}
}

// Name returns the calculator name.
func (c *RebalanceSellsCalculator) Name() string { return "rebalance_sells" }

// Category returns the opportunity category.
func (c *RebalanceSellsCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryRebalanceSells
}

// Calculate identifies rebalancing sell opportunities.
func (c *RebalanceSellsCalculator) Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error) {
	minOverweight := GetFloatParam(params, "min_overweight_threshold", 0.005)
	maxSellFractionCap := GetFloatParam(params, "max_sell_percentage", 0.20)
	maxPositions := GetIntParam(params, "max_positions", 0)
	config := configFrom(params)

	exclusions := NewExclusionCollector(c.Name(), ctx.DismissedFilters)

	if !ctx.AllowSell || ctx.TotalPortfolioValueEUR <= 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}
	if ctx.GeographyAllocations == nil || ctx.GeographyWeights == nil {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	// Overweight per geography group: current minus target, above the
	// threshold only.
	overweight := make(map[string]float64)
	for geo, current := range ctx.GeographyAllocations {
		if over := current - ctx.GeographyWeights[geo]; over > minOverweight {
			overweight[geo] = over
		}
	}
	if len(overweight) == 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	var candidates []domain.ActionCandidate

	for _, pos := range ctx.EnrichedPositions {
		if ctx.IneligibleISINs[pos.ISIN] {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "sell blocked by safety gate")
			continue
		}
		if ctx.RecentlySoldISINs[pos.ISIN] {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "recently sold (cooling off period)")
			continue
		}
		if !pos.AllowSell {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "allow_sell=false")
			continue
		}

		// The position contributes to an overweight group through any of
		// its geographies; the largest overweight drives the priority.
		geo, over := worstOverweight(pos.Geography, overweight)
		if geo == "" {
			continue
		}

		price := pos.CurrentPrice
		if price <= 0 {
			continue
		}

		securityTags := tagsFor(c.securityRepo, pos.Symbol, config)
		assessment := assessSellQuality(ctx, pos.ISIN, securityTags)
		if assessment.Protected {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, assessment.ProtectionReason)
			continue
		}

		quantity := sellQuantity(pos.Quantity, maxSellFractionCap, pos.MinLot)
		if quantity <= 0 {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "quantity below minimum lot size")
			continue
		}

		valueEUR := float64(quantity) * price
		if !ctx.IsWorthwhile(valueEUR) {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName,
				fmt.Sprintf("trade value %.2f below worthwhileness threshold %.2f", valueEUR, ctx.MinWorthwhileTradeValue()))
			continue
		}

		priority := over * assessment.PriorityFactor
		priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())

		reason := fmt.Sprintf("Rebalance: %s overweight by %.1f%%", geo, over*100)
		tags := []string{"rebalance", "sell", "overweight", "overweight_" + normaliseGroupTag(geo)}
		if assessment.HasNegativeTags {
			reason += " [Low Quality]"
			tags = append(tags, "low_quality")
		}

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "SELL",
			ISIN:     pos.ISIN,
			Symbol:   pos.Symbol,
			Name:     pos.SecurityName,
			Quantity: quantity,
			Price:    price,
			ValueEUR: valueEUR,
			Currency: pos.Currency,
			Priority: priority,
			Reason:   reason,
			Tags:     tags,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	if maxPositions > 0 && len(candidates) > maxPositions {
		candidates = candidates[:maxPositions]
	}

	c.log.Info().
		Int("candidates", len(candidates)).
		Int("overweight_groups", len(overweight)).
		Msg("Rebalance sell opportunities identified")

	return domain.CalculatorResult{Candidates: candidates, PreFiltered: exclusions.Result()}, nil
}

// worstOverweight resolves which of a security's (possibly several)
// geographies is most overweight. Empty geography never matches.
func worstOverweight(geography string, overweight map[string]float64) (string, float64) {
	bestGeo, bestOver := "", 0.0
	for _, geo := range utils.ParseCSV(geography) {
		if over, ok := overweight[geo]; ok && over > bestOver {
			bestGeo, bestOver = geo, over
		}
	}
	return bestGeo, bestOver
}
