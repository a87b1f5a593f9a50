package calculators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/utils"
	"github.com/rs/zerolog"
)

// RebalanceBuysCalculator proposes buys into geography groups sitting below
// their target allocation, picking the best-scored securities in each
// underweight group.
type RebalanceBuysCalculator struct {
	*BaseCalculator
	tagFilter    TagFilter
	securityRepo SecurityRepository
}

// NewRebalanceBuysCalculator creates a new rebalance buys calculator.
func NewRebalanceBuysCalculator(tagFilter TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *RebalanceBuysCalculator {
	return &RebalanceBuysCalculator{
		BaseCalculator: NewBaseCalculator(log, "rebalance_buys"),
		tagFilter:      tagFilter,
		securityRepo:   securityRepo,
	}
}

// Name returns the calculator name.
func (c *RebalanceBuysCalculator) Name() string { return "rebalance_buys" }

// Category returns the opportunity category.
func (c *RebalanceBuysCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryRebalanceBuys
}

// Calculate identifies rebalancing buy opportunities.
func (c *RebalanceBuysCalculator) Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error) {
	minUnderweight := GetFloatParam(params, "min_underweight_threshold", 0.005)
	maxValuePerPosition := GetFloatParam(params, "max_value_per_position", 2000.0)
	minScore := GetFloatParam(params, "min_score", 0.65)
	config := configFrom(params)

	exclusions := NewExclusionCollector(c.Name(), ctx.DismissedFilters)

	if !ctx.AllowBuy || ctx.TotalPortfolioValueEUR <= 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}
	if ctx.CountryAllocations == nil || ctx.CountryWeights == nil {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	// Underweight per group: target minus current, above the threshold.
	underweight := make(map[string]float64)
	for group, target := range ctx.CountryWeights {
		if under := target - ctx.CountryAllocations[group]; under > minUnderweight {
			underweight[group] = under
		}
	}
	if len(underweight) == 0 {
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
			exclusions.Add(isin, sec.Symbol, sec.Name, "no matching opportunity tags")
			continue
		}
		if ctx.RecentlyBoughtISINs[isin] {
			exclusions.Add(isin, sec.Symbol, sec.Name, "recently bought (cooling off period)")
			continue
		}
		if !sec.AllowBuy {
			exclusions.Add(isin, sec.Symbol, sec.Name, "allow_buy=false")
			continue
		}
		if sec.Geography == "" {
			exclusions.Add(isin, sec.Symbol, sec.Name, "no geography assigned")
			continue
		}

		group, under := bestUnderweight(sec.Geography, ctx.CountryToGroup, underweight)
		if group == "" {
			exclusions.Add(isin, sec.Symbol, sec.Name, "no underweight group match")
			continue
		}

		score := 0.5
		if s, ok := lookupScore(ctx.SecurityScores, isin); ok {
			score = s
		}
		if score < minScore {
			exclusions.Add(isin, sec.Symbol, sec.Name, fmt.Sprintf("score %.2f below minimum %.2f", score, minScore))
			continue
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
			if check.IsEnsembleValueTrap || check.IsBubbleRisk {
				exclusions.Add(isin, sec.Symbol, sec.Name, "value trap or bubble risk detected")
				continue
			}
			if check.BelowMinimumReturn {
				exclusions.Add(isin, sec.Symbol, sec.Name, "below absolute minimum return")
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

		// Concentration guardrail over the proposed buy.
		if passes, why := CheckConcentrationGuardrail(isin, sec.Geography, valueEUR, ctx); !passes {
			exclusions.Add(isin, sec.Symbol, sec.Name, why)
			continue
		}

		// Priority: the group's gap scaled by the security's score and the
		// universe-configured multiplier.
		priority := under * score * multiplierOr1(sec.PriorityMultiplier)
		priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())
		priority = ApplyQuantumWarningPenalty(priority, securityTags, c.Name())

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
			Reason:   fmt.Sprintf("Rebalance: %s underweight by %.1f%%", group, under*100),
			Tags:     []string{"rebalance", "buy", "underweight_" + normaliseGroupTag(group)},
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	c.log.Info().
		Int("candidates", len(candidates)).
		Int("underweight_groups", len(underweight)).
		Msg("Rebalance buy opportunities identified")

	return domain.CalculatorResult{Candidates: candidates, PreFiltered: exclusions.Result()}, nil
}

// bestUnderweight maps a security's geographies through the grouping table
// (unknown values bucket to OTHER) and returns the most underweight match.
func bestUnderweight(geography string, toGroup map[string]string, underweight map[string]float64) (string, float64) {
	bestGroup, bestUnder := "", 0.0
	for _, geo := range utils.ParseCSV(geography) {
		group := geo
		if toGroup != nil {
			if mapped, ok := toGroup[geo]; ok {
				group = mapped
			} else {
				group = "OTHER"
			}
		}
		if under, ok := underweight[group]; ok && under > bestUnder {
			bestGroup, bestUnder = group, under
		}
	}
	return bestGroup, bestUnder
}

// buySize sizes a buy within cash and the per-position cap, rounded to lots.
func buySize(ctx *domain.OpportunityContext, price float64, minLot int, maxValue float64) (int, float64) {
	if price <= 0 {
		return 0, 0
	}

	budget := maxValue
	if ctx.AvailableCashEUR < budget {
		budget = ctx.AvailableCashEUR
	}

	quantity := RoundToLotSize(int(budget/price), minLot)
	if quantity <= 0 {
		return 0, 0
	}
	value := float64(quantity) * price
	if value > ctx.AvailableCashEUR {
		return 0, 0
	}
	return quantity, value
}

// multiplierOr1 treats an unset priority multiplier as neutral.
func multiplierOr1(m float64) float64 {
	if m <= 0 {
		return 1.0
	}
	return m
}

// normaliseGroupTag lowers a group name into tag form: "North America"
// becomes "north_america".
func normaliseGroupTag(group string) string {
	return strings.ReplaceAll(strings.ToLower(group), " ", "_")
}
