package calculators

import (
	"fmt"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// ProfitTakingCalculator proposes selling part of positions whose gain has
// run well past the entry price — a windfall when it clears the windfall
// threshold, plain profit taking above the minimum gain.
type ProfitTakingCalculator struct {
	*BaseCalculator
	tagFilter    TagFilter
	securityRepo SecurityRepository
}

// NewProfitTakingCalculator creates a new profit taking calculator.
func NewProfitTakingCalculator(tagFilter TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *ProfitTakingCalculator {
	return &ProfitTakingCalculator{
		BaseCalculator: NewBaseCalculator(log, "profit_taking"),
		tagFilter:      tagFilter,
		securityRepo:   securityRepo,
	}
}

// Name returns the calculator name.
func (c *ProfitTakingCalculator) Name() string { return "profit_taking" }

// Category returns the opportunity category.
func (c *ProfitTakingCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryProfitTaking
}

// Calculate identifies profit-taking opportunities.
func (c *ProfitTakingCalculator) Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error) {
	minGain := GetFloatParam(params, "min_gain_threshold", 0.15)
	windfall := GetFloatParam(params, "windfall_threshold", 0.20)
	sellFraction := GetFloatParam(params, "sell_percentage", 0.20)
	maxSellFractionCap := GetFloatParam(params, "max_sell_percentage", 0.50)
	maxPositions := GetIntParam(params, "max_positions", 0)
	config := configFrom(params)

	exclusions := NewExclusionCollector(c.Name(), ctx.DismissedFilters)

	if !ctx.AllowSell || len(ctx.EnrichedPositions) == 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	// Tag-based pre-filtering narrows the candidate set when enabled.
	var tagCandidates map[string]bool
	if config.EnableTagFiltering && c.tagFilter != nil {
		tagCandidates = candidateSet(c.tagFilter.GetSellCandidates(ctx, config))
	}

	var candidates []domain.ActionCandidate

	for _, pos := range ctx.EnrichedPositions {
		if tagCandidates != nil && !tagCandidates[pos.Symbol] {
			continue
		}
		if ctx.IneligibleISINs[pos.ISIN] {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "sell blocked by safety gate")
			continue
		}
		if ctx.RecentlySoldISINs[pos.ISIN] || ctx.RecentlySold[pos.Symbol] {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "recently sold (cooling off period)")
			continue
		}
		if !pos.AllowSell {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "allow_sell=false")
			continue
		}

		price := pos.CurrentPrice
		if price <= 0 {
			continue
		}
		if pos.AverageCost <= 0 {
			continue
		}

		gain := (price - pos.AverageCost) / pos.AverageCost
		if gain < minGain {
			continue
		}
		isWindfall := gain >= windfall

		securityTags := tagsFor(c.securityRepo, pos.Symbol, config)
		assessment := assessSellQuality(ctx, pos.ISIN, securityTags)
		if assessment.Protected && !isWindfall {
			// Even protected quality takes profit on a true windfall.
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, assessment.ProtectionReason)
			continue
		}

		quantity := sellQuantity(pos.Quantity, min(sellFraction, maxSellFractionCap), pos.MinLot)
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

		// Priority grows with the gain and doubles on a windfall; quality
		// dampens it, negative tags push it.
		priority := gain * assessment.PriorityFactor
		if isWindfall {
			priority *= 2.0
		}
		priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())

		reason := fmt.Sprintf("%.1f%% gain (cost basis: %.2f, current: %.2f)", gain*100, pos.AverageCost, price)
		tags := []string{"profit_taking"}
		if isWindfall {
			reason = "Windfall: " + reason
			tags = append(tags, "windfall")
		}
		if contains(securityTags, "bubble-risk") {
			reason += " [Bubble Risk]"
			tags = append(tags, "bubble_risk")
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

	c.log.Info().Int("candidates", len(candidates)).Msg("Profit-taking opportunities identified")

	return domain.CalculatorResult{Candidates: candidates, PreFiltered: exclusions.Result()}, nil
}
