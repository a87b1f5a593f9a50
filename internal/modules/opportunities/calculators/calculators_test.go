package calculators

import (
	"testing"

	maindomain "github.com/aristath/trading-planner/internal/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	scoringdomain "github.com/aristath/trading-planner/internal/modules/scoring/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calcContext builds an OpportunityContext around the given securities and
// enriched positions, with small transaction costs (2 EUR + 0.2%) so the
// worthwhileness filter only drops trades worth a few euros.
func calcContext(securities []universe.Security, positions []domain.EnrichedPosition, cash float64) *domain.OpportunityContext {
	plain := make([]maindomain.Position, 0, len(positions))
	for _, p := range positions {
		plain = append(plain, maindomain.Position{ISIN: p.ISIN, Symbol: p.Symbol, Quantity: p.Quantity})
	}

	total := cash
	prices := make(map[string]float64)
	for _, p := range positions {
		total += p.MarketValueEUR
		prices[p.ISIN] = p.CurrentPrice
	}
	for _, s := range securities {
		if _, ok := prices[s.ISIN]; !ok {
			prices[s.ISIN] = 100.0
		}
	}

	ctx := domain.NewOpportunityContext(nil, plain, securities, cash, total, prices)
	ctx.EnrichedPositions = positions
	ctx.TransactionCostFixed = 2.0
	ctx.TransactionCostPercent = 0.002
	return ctx
}

func noTagConfig() *domain.PlannerConfiguration {
	config := domain.NewDefaultConfiguration()
	config.EnableTagFiltering = false
	return config
}

func params(config *domain.PlannerConfiguration, extra map[string]interface{}) map[string]interface{} {
	p := map[string]interface{}{"config": config}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func heldPosition(isin, symbol string, qty, avgCost, price float64) domain.EnrichedPosition {
	return domain.EnrichedPosition{
		ISIN: isin, Symbol: symbol, SecurityName: symbol,
		Quantity: qty, AverageCost: avgCost, CurrentPrice: price,
		MarketValueEUR: qty * price, Currency: "EUR",
		Geography: "US", AllowBuy: true, AllowSell: true,
	}
}

// ---------------------------------------------------------------- profit taking

func TestProfitTaking_GainAboveThresholdSells(t *testing.T) {
	calc := NewProfitTakingCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{
		heldPosition("US1", "WIN", 100, 100, 130),  // +30%: windfall
		heldPosition("US2", "MEH", 100, 100, 105),  // +5%: below min gain
		heldPosition("US3", "LOSS", 100, 100, 80),  // negative: never
	}
	ctx := calcContext(nil, positions, 1000)

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	cand := result.Candidates[0]
	assert.Equal(t, "SELL", cand.Side)
	assert.Equal(t, "WIN", cand.Symbol)
	assert.Contains(t, cand.Tags, "windfall")
	assert.Contains(t, cand.Reason, "Windfall")
	assert.Greater(t, cand.Quantity, 0)
	assert.LessOrEqual(t, float64(cand.Quantity), 100*maxSellFraction)
}

func TestProfitTaking_RespectsSafetyAndCooldowns(t *testing.T) {
	calc := NewProfitTakingCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{
		heldPosition("US1", "GATED", 100, 100, 150),
		heldPosition("US2", "COOLED", 100, 100, 150),
	}
	ctx := calcContext(nil, positions, 1000)
	ctx.IneligibleISINs["US1"] = true
	ctx.RecentlySoldISINs["US2"] = true

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Len(t, result.PreFiltered, 2, "both exclusions are reported")
}

func TestProfitTaking_ProtectedQualityStillSellsWindfall(t *testing.T) {
	calc := NewProfitTakingCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{
		heldPosition("US1", "QUAL", 100, 100, 117), // +17%: gain but not windfall
	}
	ctx := calcContext(nil, positions, 1000)
	ctx.SecurityScores = map[string]float64{"US1": 0.9} // protected quality

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates, "protected quality holds through an ordinary gain")

	// The same position at windfall levels sells regardless.
	positions[0].CurrentPrice = 150
	ctx = calcContext(nil, positions, 1000)
	ctx.SecurityScores = map[string]float64{"US1": 0.9}
	result, err = calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)
}

// ---------------------------------------------------------------- averaging down

func TestAveragingDown_BuysQualityDipInLossBand(t *testing.T) {
	calc := NewAveragingDownCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{
		heldPosition("US1", "DIP", 100, 100, 85),   // -15%: inside the band
		heldPosition("US2", "FLAT", 100, 100, 99),  // -1%: above entry
		heldPosition("US3", "CRASH", 100, 100, 60), // -40%: below the floor
	}
	ctx := calcContext(nil, positions, 5000)
	ctx.SecurityScores = map[string]float64{"US1": 0.8, "US2": 0.8, "US3": 0.8}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "BUY", result.Candidates[0].Side)
	assert.Equal(t, "DIP", result.Candidates[0].Symbol)
	assert.Contains(t, result.Candidates[0].Tags, "averaging_down")
}

func TestAveragingDown_QualityGateBlocks(t *testing.T) {
	calc := NewAveragingDownCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{heldPosition("US1", "JUNK", 100, 100, 85)}
	ctx := calcContext(nil, positions, 5000)
	ctx.SecurityScores = map[string]float64{"US1": 0.3} // below min quality

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.NotEmpty(t, result.PreFiltered)
	assert.Equal(t, "averaging_down", result.PreFiltered[0].Calculator)
}

func TestAveragingDown_KellySizingCapsAtOptimal(t *testing.T) {
	calc := NewAveragingDownCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{heldPosition("US1", "DIP", 100, 100, 85)}
	ctx := calcContext(nil, positions, 50000)
	ctx.SecurityScores = map[string]float64{"US1": 0.8}
	// Kelly target below the current holding: no add at all.
	ctx.KellySizes = map[string]float64{"US1": 0.01}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates, "already above Kelly-optimal size")
}

// ---------------------------------------------------------------- rebalance sells

func TestRebalanceSells_TrimsOverweightGroup(t *testing.T) {
	calc := NewRebalanceSellsCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{
		heldPosition("US1", "BIG", 100, 100, 100), // US position
	}
	positions[0].Geography = "US"
	ctx := calcContext(nil, positions, 1000)
	ctx.GeographyAllocations = map[string]float64{"US": 0.70}
	ctx.GeographyWeights = map[string]float64{"US": 0.50}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	cand := result.Candidates[0]
	assert.Equal(t, "SELL", cand.Side)
	assert.Contains(t, cand.Tags, "overweight_us")
	assert.Contains(t, cand.Reason, "overweight by 20.0%")
}

func TestRebalanceSells_InsideToleranceDoesNothing(t *testing.T) {
	calc := NewRebalanceSellsCalculator(nil, nil, zerolog.Nop())

	positions := []domain.EnrichedPosition{heldPosition("US1", "OK", 100, 100, 100)}
	ctx := calcContext(nil, positions, 1000)
	ctx.GeographyAllocations = map[string]float64{"US": 0.503}
	ctx.GeographyWeights = map[string]float64{"US": 0.50}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates, "0.3% drift is inside the 0.5% threshold")
}

func TestRebalanceSells_WorthwhilenessDropsTinyTrades(t *testing.T) {
	calc := NewRebalanceSellsCalculator(nil, nil, zerolog.Nop())

	// A tiny position whose 20% trim is worth less than twice its cost.
	positions := []domain.EnrichedPosition{heldPosition("US1", "TINY", 5, 1.0, 1.0)}
	ctx := calcContext(nil, positions, 1000)
	ctx.GeographyAllocations = map[string]float64{"US": 0.70}
	ctx.GeographyWeights = map[string]float64{"US": 0.50}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.NotEmpty(t, result.PreFiltered)
	found := false
	for _, r := range result.PreFiltered[0].Reasons {
		if len(r.Reason) > 0 {
			found = true
		}
	}
	assert.True(t, found)
}

// ---------------------------------------------------------------- rebalance buys

func TestRebalanceBuys_FundsUnderweightGroup(t *testing.T) {
	calc := NewRebalanceBuysCalculator(nil, nil, zerolog.Nop())

	securities := []universe.Security{
		{ISIN: "DE1", Symbol: "SAP", Name: "SAP", Geography: "EU", Currency: "EUR", AllowBuy: true, PriorityMultiplier: 1},
		{ISIN: "US9", Symbol: "FULL", Name: "Full", Geography: "US", Currency: "EUR", AllowBuy: true, PriorityMultiplier: 1},
	}
	ctx := calcContext(securities, nil, 20000)
	ctx.CountryAllocations = map[string]float64{"EU": 0.10, "US": 0.60}
	ctx.CountryWeights = map[string]float64{"EU": 0.40, "US": 0.60}
	ctx.SecurityScores = map[string]float64{"DE1": 0.8, "US9": 0.8}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "BUY", result.Candidates[0].Side)
	assert.Equal(t, "SAP", result.Candidates[0].Symbol)
	assert.Contains(t, result.Candidates[0].Tags, "underweight_eu")
}

func TestRebalanceBuys_ScoreFloorExcludes(t *testing.T) {
	calc := NewRebalanceBuysCalculator(nil, nil, zerolog.Nop())

	securities := []universe.Security{
		{ISIN: "DE1", Symbol: "WEAK", Name: "Weak", Geography: "EU", Currency: "EUR", AllowBuy: true},
	}
	ctx := calcContext(securities, nil, 20000)
	ctx.CountryAllocations = map[string]float64{"EU": 0.10}
	ctx.CountryWeights = map[string]float64{"EU": 0.40}
	ctx.SecurityScores = map[string]float64{"DE1": 0.40}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.NotEmpty(t, result.PreFiltered)
	assert.Contains(t, result.PreFiltered[0].Reasons[0].Reason, "score")
}

// ---------------------------------------------------------------- opportunity buys

func TestOpportunityBuys_TopScoredWithinCash(t *testing.T) {
	calc := NewOpportunityBuysCalculator(nil, nil, zerolog.Nop())

	securities := []universe.Security{
		{ISIN: "US1", Symbol: "GOOD", Name: "Good", Geography: "US", Currency: "EUR", AllowBuy: true},
		{ISIN: "US2", Symbol: "BAD", Name: "Bad", Geography: "US", Currency: "EUR", AllowBuy: true},
		{ISIN: "US3", Symbol: "NOBUY", Name: "NoBuy", Geography: "US", Currency: "EUR", AllowBuy: false},
	}
	ctx := calcContext(securities, nil, 20000)
	ctx.SecurityScores = map[string]float64{"US1": 0.85, "US2": 0.40, "US3": 0.90}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "GOOD", result.Candidates[0].Symbol)
	assert.Contains(t, result.Candidates[0].Tags, "opportunity")
}

func TestOpportunityBuys_DividendLiftsPriority(t *testing.T) {
	calc := NewOpportunityBuysCalculator(nil, nil, zerolog.Nop())

	securities := []universe.Security{
		{ISIN: "US1", Symbol: "DIV", Name: "Div", Currency: "EUR", AllowBuy: true},
		{ISIN: "US2", Symbol: "NODIV", Name: "NoDiv", Currency: "EUR", AllowBuy: true},
	}
	buildCtx := func() *domain.OpportunityContext {
		ctx := calcContext(securities, nil, 20000)
		ctx.SecurityScores = map[string]float64{"US1": 0.80, "US2": 0.80}
		return ctx
	}

	ctx := buildCtx()
	plain, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)

	ctx = buildCtx()
	ctx.PortfolioContext = &scoringdomain.PortfolioContext{
		SecurityDividends: map[string]float64{"US1": 0.05},
	}
	withDiv, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)

	byName := func(result domain.CalculatorResult, symbol string) float64 {
		for _, c := range result.Candidates {
			if c.Symbol == symbol {
				return c.Priority
			}
		}
		return 0
	}
	assert.Greater(t, byName(withDiv, "DIV"), byName(plain, "DIV"), "dividend bonus lifts priority")
}

// ---------------------------------------------------------------- weight based

func TestWeightBased_BuysAndSellsTowardTargets(t *testing.T) {
	calc := NewWeightBasedCalculator(nil, zerolog.Nop())

	securities := []universe.Security{
		{ISIN: "US1", Symbol: "UNDER", Name: "Under", Geography: "US", Currency: "EUR", AllowBuy: true, AllowSell: true},
		{ISIN: "US2", Symbol: "OVER", Name: "Over", Geography: "US", Currency: "EUR", AllowBuy: true, AllowSell: true},
	}
	positions := []domain.EnrichedPosition{
		heldPosition("US2", "OVER", 50, 100, 100), // 5000 of 10000 = 50%
	}
	ctx := calcContext(securities, positions, 5000)
	ctx.OptimizerTargetWeights = map[string]float64{
		"US1": 0.10, // unheld: buy
		"US2": 0.30, // held at 50%: sell down
	}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	sides := map[string]string{}
	for _, c := range result.Candidates {
		sides[c.Symbol] = c.Side
	}
	assert.Equal(t, "BUY", sides["UNDER"])
	assert.Equal(t, "SELL", sides["OVER"])
}

func TestWeightBased_ToleranceSuppressesSmallDrift(t *testing.T) {
	calc := NewWeightBasedCalculator(nil, zerolog.Nop())

	securities := []universe.Security{
		{ISIN: "US1", Symbol: "NEAR", Name: "Near", Currency: "EUR", AllowBuy: true, AllowSell: true},
	}
	positions := []domain.EnrichedPosition{heldPosition("US1", "NEAR", 30, 100, 100)} // 3000/13000
	ctx := calcContext(securities, positions, 10000)
	weight := 3000.0 / 13000.0
	ctx.OptimizerTargetWeights = map[string]float64{"US1": weight + 0.004}

	result, err := calc.Calculate(ctx, params(noTagConfig(), nil))
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

// ---------------------------------------------------------------- shared helpers

func TestRoundToLotSize(t *testing.T) {
	assert.Equal(t, 10, RoundToLotSize(12, 5), "rounds down when a lot remains")
	assert.Equal(t, 5, RoundToLotSize(3, 5), "rounds up when rounding down would zero out")
	assert.Equal(t, 7, RoundToLotSize(7, 0), "no lot size passes through")
	assert.Equal(t, 7, RoundToLotSize(7, 1))
}

func TestSellQuantity_Bounds(t *testing.T) {
	// Requested fraction clamps into [min, max].
	assert.Equal(t, 80, sellQuantity(100, 1.0, 0), "never above the max fraction")
	assert.Equal(t, 10, sellQuantity(100, 0.01, 0), "never below the min fraction")
	assert.Equal(t, 0, sellQuantity(0, 0.5, 0))
	// Lot rounding applies after clamping.
	assert.Equal(t, 20, sellQuantity(100, 0.22, 10))
}

func TestAssessSellQuality(t *testing.T) {
	ctx := calcContext(nil, nil, 0)
	ctx.SecurityScores = map[string]float64{"HQ": 0.9, "LQ": 0.3}

	protected := assessSellQuality(ctx, "HQ", nil)
	assert.True(t, protected.Protected)

	junk := assessSellQuality(ctx, "LQ", nil)
	assert.False(t, junk.Protected)
	assert.Greater(t, junk.PriorityFactor, 1.0, "low quality sells first")

	// Negative tags override the protection.
	flagged := assessSellQuality(ctx, "HQ", []string{"unsustainable-gains"})
	assert.False(t, flagged.Protected)
}

func TestWorstOverweight_MultiGeography(t *testing.T) {
	overweight := map[string]float64{"US": 0.10, "EU": 0.25}

	geo, over := worstOverweight("EU, US", overweight)
	assert.Equal(t, "EU", geo)
	assert.Equal(t, 0.25, over)

	geo, _ = worstOverweight("ASIA", overweight)
	assert.Equal(t, "", geo)
}

func TestBestUnderweight_GroupMappingWithOtherBucket(t *testing.T) {
	toGroup := map[string]string{"Germany": "EU"}
	underweight := map[string]float64{"EU": 0.2, "OTHER": 0.1}

	group, under := bestUnderweight("Germany", toGroup, underweight)
	assert.Equal(t, "EU", group)
	assert.Equal(t, 0.2, under)

	// Unknown geographies bucket to OTHER.
	group, under = bestUnderweight("Atlantis", toGroup, underweight)
	assert.Equal(t, "OTHER", group)
	assert.Equal(t, 0.1, under)
}

func TestApplyTagBoostsAndPenalties(t *testing.T) {
	base := 1.0

	boosted := ApplyTagBasedPriorityBoosts(base, []string{"low-risk", "strong-fundamentals"}, "opportunity_buys")
	assert.Greater(t, boosted, base)

	dampened := ApplyTagBasedPriorityBoosts(base, []string{"high-risk"}, "opportunity_buys")
	assert.Less(t, dampened, base)

	sellBoost := ApplyTagBasedPriorityBoosts(base, []string{"unsustainable-gains"}, "profit_taking")
	assert.Greater(t, sellBoost, base)

	assert.Equal(t, base, ApplyQuantumWarningPenalty(base, []string{"quantum-bubble-warning"}, "profit_taking"))
	assert.Less(t, ApplyQuantumWarningPenalty(base, []string{"quantum-bubble-warning"}, "opportunity_buys"), base)
	assert.Equal(t, base*0.9, ApplyQuantumWarningPenalty(base, []string{"quantum-bubble-warning"}, "averaging_down"))
}
