package calculators

import (
	"fmt"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
)

// WeightBasedCalculator turns optimiser target weights into trades: buy
// where the portfolio sits below a symbol's target weight, sell where it
// sits above, ignoring drifts inside the tolerance band. It is the direct
// consumer of the optimiser's output; the rebalance calculators work at the
// group level, this one at the symbol level.
type WeightBasedCalculator struct {
	*BaseCalculator
	securityRepo SecurityRepository
}

// NewWeightBasedCalculator creates a new weight-based calculator.
func NewWeightBasedCalculator(securityRepo SecurityRepository, log zerolog.Logger) *WeightBasedCalculator {
	return &WeightBasedCalculator{
		BaseCalculator: NewBaseCalculator(log, "weight_based"),
		securityRepo:   securityRepo,
	}
}

// Name returns the calculator name.
func (c *WeightBasedCalculator) Name() string { return "weight_based" }

// Category returns the opportunity category.
func (c *WeightBasedCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryWeightBased
}

// Calculate turns target-weight gaps into buy and sell candidates.
func (c *WeightBasedCalculator) Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error) {
	tolerance := GetFloatParam(params, "weight_tolerance", 0.005)
	maxValuePerTrade := GetFloatParam(params, "max_value_per_trade", 2000.0)
	config := configFrom(params)

	exclusions := NewExclusionCollector(c.Name(), ctx.DismissedFilters)

	targets := ctx.OptimizerTargetWeights
	if len(targets) == 0 {
		targets = ctx.TargetWeights
	}
	if len(targets) == 0 || ctx.TotalPortfolioValueEUR <= 0 {
		return domain.CalculatorResult{PreFiltered: exclusions.Result()}, nil
	}

	// Current weight per ISIN from the enriched positions.
	currentWeight := make(map[string]float64, len(ctx.EnrichedPositions))
	positionByISIN := make(map[string]domain.EnrichedPosition, len(ctx.EnrichedPositions))
	for _, pos := range ctx.EnrichedPositions {
		currentWeight[pos.ISIN] = pos.MarketValueEUR / ctx.TotalPortfolioValueEUR
		positionByISIN[pos.ISIN] = pos
	}

	var candidates []domain.ActionCandidate

	for isin, target := range targets {
		sec, ok := ctx.StocksByISIN[isin]
		if !ok {
			continue
		}

		gap := target - currentWeight[isin]
		if abs(gap) <= tolerance {
			continue
		}

		securityTags := tagsFor(c.securityRepo, sec.Symbol, config)

		if gap > 0 {
			if cand, reason := c.buyToward(ctx, sec, isin, gap, maxValuePerTrade, securityTags, config); cand != nil {
				candidates = append(candidates, *cand)
			} else if reason != "" {
				exclusions.Add(isin, sec.Symbol, sec.Name, reason)
			}
			continue
		}

		if cand, reason := c.sellToward(ctx, positionByISIN[isin], -gap, maxValuePerTrade, securityTags); cand != nil {
			candidates = append(candidates, *cand)
		} else if reason != "" {
			exclusions.Add(isin, sec.Symbol, sec.Name, reason)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	c.log.Info().Int("candidates", len(candidates)).Msg("Weight-based opportunities identified")

	return domain.CalculatorResult{Candidates: candidates, PreFiltered: exclusions.Result()}, nil
}

// buyToward closes an underweight gap, bounded by cash, the per-trade cap,
// and the concentration guardrail. Returns a nil candidate plus the
// exclusion reason when the buy cannot happen.
func (c *WeightBasedCalculator) buyToward(
	ctx *domain.OpportunityContext,
	sec universe.Security,
	isin string,
	gap, maxValue float64,
	securityTags []string,
	config *domain.PlannerConfiguration,
) (*domain.ActionCandidate, string) {
	if !ctx.AllowBuy || !sec.AllowBuy {
		return nil, "allow_buy=false"
	}
	if ctx.RecentlyBoughtISINs[isin] {
		return nil, "recently bought (cooling off period)"
	}

	check := CheckQualityGates(ctx, isin, currentQuantity(ctx, isin) == 0, config)
	if check.IsEnsembleValueTrap || check.IsBubbleRisk {
		return nil, "value trap or bubble risk detected"
	}

	price, ok := ctx.GetPriceByISINOrSymbol(isin, sec.Symbol)
	if !ok {
		return nil, "no current price available"
	}

	gapValue := gap * ctx.TotalPortfolioValueEUR
	budget := min(gapValue, maxValue)
	if ctx.AvailableCashEUR < budget {
		budget = ctx.AvailableCashEUR
	}

	quantity := RoundToLotSize(int(budget/price), sec.MinLot)
	if quantity <= 0 {
		return nil, "quantity below minimum lot size"
	}
	valueEUR := float64(quantity) * price
	if valueEUR > ctx.AvailableCashEUR {
		return nil, "insufficient cash"
	}
	if !ctx.IsWorthwhile(valueEUR) {
		return nil, fmt.Sprintf("trade value %.2f below worthwhileness threshold %.2f", valueEUR, ctx.MinWorthwhileTradeValue())
	}
	if passes, why := CheckConcentrationGuardrail(isin, sec.Geography, valueEUR, ctx); !passes {
		return nil, why
	}

	priority := gap * 10 * multiplierOr1(sec.PriorityMultiplier)
	priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())
	priority = ApplyQuantumWarningPenalty(priority, securityTags, c.Name())

	return &domain.ActionCandidate{
		Side:     "BUY",
		ISIN:     isin,
		Symbol:   sec.Symbol,
		Name:     sec.Name,
		Quantity: quantity,
		Price:    price,
		ValueEUR: valueEUR,
		Currency: sec.Currency,
		Priority: priority,
		Reason:   fmt.Sprintf("Target weight %.1f%% above current", gap*100),
		Tags:     []string{"rebalance", "buy", "target_weight"},
	}, ""
}

// sellToward trims an overweight position toward its target weight.
func (c *WeightBasedCalculator) sellToward(
	ctx *domain.OpportunityContext,
	pos domain.EnrichedPosition,
	gap, maxValue float64,
	securityTags []string,
) (*domain.ActionCandidate, string) {
	if pos.ISIN == "" {
		return nil, "" // target for an unheld security; nothing to sell
	}
	if !ctx.AllowSell || !pos.AllowSell {
		return nil, "allow_sell=false"
	}
	if ctx.IneligibleISINs[pos.ISIN] {
		return nil, "sell blocked by safety gate"
	}
	if ctx.RecentlySoldISINs[pos.ISIN] {
		return nil, "recently sold (cooling off period)"
	}

	price := pos.CurrentPrice
	if price <= 0 {
		return nil, "no current price available"
	}

	assessment := assessSellQuality(ctx, pos.ISIN, securityTags)
	if assessment.Protected {
		return nil, assessment.ProtectionReason
	}

	gapValue := min(gap*ctx.TotalPortfolioValueEUR, maxValue)
	fraction := gapValue / (pos.Quantity * price)
	quantity := sellQuantity(pos.Quantity, fraction, pos.MinLot)
	if quantity <= 0 {
		return nil, "quantity below minimum lot size"
	}

	valueEUR := float64(quantity) * price
	if !ctx.IsWorthwhile(valueEUR) {
		return nil, fmt.Sprintf("trade value %.2f below worthwhileness threshold %.2f", valueEUR, ctx.MinWorthwhileTradeValue())
	}

	priority := gap * 10 * assessment.PriorityFactor
	priority = ApplyTagBasedPriorityBoosts(priority, securityTags, c.Name())

	return &domain.ActionCandidate{
		Side:     "SELL",
		ISIN:     pos.ISIN,
		Symbol:   pos.Symbol,
		Name:     pos.SecurityName,
		Quantity: quantity,
		Price:    price,
		ValueEUR: valueEUR,
		Currency: pos.Currency,
		Priority: priority,
		Reason:   fmt.Sprintf("Target weight %.1f%% below current", gap*100),
		Tags:     []string{"rebalance", "sell", "target_weight"},
	}, ""
}

// currentQuantity reports the held quantity for an ISIN, 0 when unheld.
func currentQuantity(ctx *domain.OpportunityContext, isin string) float64 {
	for _, pos := range ctx.EnrichedPositions {
		if pos.ISIN == isin {
			return pos.Quantity
		}
	}
	return 0
}
