package calculators

import (
	"fmt"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// AveragingDownCalculator proposes adding to quality positions trading in a
// controlled loss band below their cost basis. The quality and value-trap
// gates do the heavy lifting: a dip is only worth buying when the business
// behind it still scores well.
type AveragingDownCalculator struct {
	*BaseCalculator
	tagFilter    TagFilter
	securityRepo SecurityRepository
}

// NewAveragingDownCalculator creates a new averaging down calculator.
func NewAveragingDownCalculator(tagFilter TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *AveragingDownCalculator {
	return &AveragingDownCalculator{
		BaseCalculator: NewBaseCalculator(log, "averaging_down"),
		tagFilter:      tagFilter,
		securityRepo:   securityRepo,
	}
}

// Name returns the calculator name.
func (c *AveragingDownCalculator) Name() string { return "averaging_down" }

// Category returns the opportunity category.
func (c *AveragingDownCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryAveragingDown
}

// Calculate identifies averaging-down opportunities.
func (c *AveragingDownCalculator) Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error) {
	minLoss := GetFloatParam(params, "min_loss_percent", -0.05)  // Entry of the loss band
	maxLoss := GetFloatParam(params, "max_loss_percent", -0.30)  // Floor of the loss band
	addFraction := GetFloatParam(params, "averaging_down_percent", 0.10)
	maxValuePerPosition := GetFloatParam(params, "max_value_per_position", 2000.0)
	minQuality := GetFloatParam(params, "min_quality_score", 0.60)
	config := configFrom(params)

	exclusions := NewExclusionCollector(c.Name(), ctx.DismissedFilters)

	if !ctx.AllowBuy || len(ctx.EnrichedPositions) == 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	var tagCandidates map[string]bool
	if config.EnableTagFiltering && c.tagFilter != nil {
		tagCandidates = candidateSet(c.tagFilter.GetOpportunityCandidates(ctx, config))
	}

	var candidates []domain.ActionCandidate

	for _, pos := range ctx.EnrichedPositions {
		if tagCandidates != nil && !tagCandidates[pos.Symbol] {
			continue
		}
		if pos.ISIN == "" {
			continue
		}
		if ctx.RecentlyBoughtISINs[pos.ISIN] || ctx.RecentlyBought[pos.Symbol] {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "recently bought (cooling off period)")
			continue
		}
		if !pos.AllowBuy {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "allow_buy=false")
			continue
		}

		price := pos.CurrentPrice
		if price <= 0 || pos.AverageCost <= 0 {
			continue
		}

		// The loss band: below minLoss (the dip is real) but above maxLoss
		// (beyond which the safety gate's deep-loss rules own the decision).
		loss := (price - pos.AverageCost) / pos.AverageCost
		if loss >= 0 || loss > minLoss || loss < maxLoss {
			continue
		}

		// Quality gates, tag-based when the security carries tags.
		securityTags := tagsFor(c.securityRepo, pos.Symbol, config)
		if len(securityTags) > 0 {
			if contains(securityTags, "value-trap") || contains(securityTags, "ensemble-value-trap") {
				exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "value trap detected (tag-based)")
				continue
			}
			if contains(securityTags, "quality-gate-fail") {
				exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "quality gate failed")
				continue
			}
		} else {
			check := CheckQualityGates(ctx, pos.ISIN, false, config)
			if check.IsEnsembleValueTrap {
				exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "value trap detected")
				continue
			}
			if check.BelowMinimumReturn {
				exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "below absolute minimum return")
				continue
			}
		}

		quality := scoreAt(ctx.SecurityScores, pos.ISIN)
		if quality > 0 && quality < minQuality {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName,
				fmt.Sprintf("quality score %.2f below minimum %.2f", quality, minQuality))
			continue
		}

		quantity := c.addQuantity(ctx, pos, addFraction, price)
		if quantity <= 0 {
			continue
		}
		quantity = RoundToLotSize(quantity, pos.MinLot)
		if quantity <= 0 {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "quantity below minimum lot size")
			continue
		}

		valueEUR := float64(quantity) * price
		if valueEUR > maxValuePerPosition {
			quantity = RoundToLotSize(int(maxValuePerPosition/price), pos.MinLot)
			if quantity <= 0 {
				continue
			}
			valueEUR = float64(quantity) * price
		}
		if valueEUR > ctx.AvailableCashEUR {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName, "insufficient cash")
			continue
		}
		if !ctx.IsWorthwhile(valueEUR) {
			exclusions.Add(pos.ISIN, pos.Symbol, pos.SecurityName,
				fmt.Sprintf("trade value %.2f below worthwhileness threshold %.2f", valueEUR, ctx.MinWorthwhileTradeValue()))
			continue
		}

		// Priority: deeper (surviving) dips on better businesses first.
		depth := abs(loss) / abs(maxLoss)
		priority := depth * (0.5 + quality)
		priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())
		priority = ApplyQuantumWarningPenalty(priority, securityTags, c.Name())

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "BUY",
			ISIN:     pos.ISIN,
			Symbol:   pos.Symbol,
			Name:     pos.SecurityName,
			Quantity: quantity,
			Price:    price,
			ValueEUR: valueEUR,
			Currency: pos.Currency,
			Priority: priority,
			Reason:   fmt.Sprintf("Averaging down: %.1f%% below cost basis %.2f", abs(loss)*100, pos.AverageCost),
			Tags:     []string{"averaging_down"},
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	c.log.Info().Int("candidates", len(candidates)).Msg("Averaging-down opportunities identified")

	return domain.CalculatorResult{Candidates: candidates, PreFiltered: exclusions.Result()}, nil
}

// addQuantity sizes the add: toward the Kelly-optimal position when the
// optimiser supplied one, otherwise a fixed fraction of the held quantity.
func (c *AveragingDownCalculator) addQuantity(ctx *domain.OpportunityContext, pos domain.EnrichedPosition, addFraction, price float64) int {
	if kellySize, ok := ctx.KellySizes[pos.ISIN]; ok && kellySize > 0 && ctx.TotalPortfolioValueEUR > 0 {
		targetShares := kellySize * ctx.TotalPortfolioValueEUR / price
		additional := targetShares - pos.Quantity
		if additional <= 0 {
			return 0 // already at or above the Kelly-optimal size
		}
		return int(additional)
	}

	quantity := int(pos.Quantity * addFraction)
	if quantity < 1 {
		quantity = 1
	}
	return quantity
}
