package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/trading-planner/internal/domain"
	planningdomain "github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/portfolio"
	scoringdomain "github.com/aristath/trading-planner/internal/modules/scoring/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/aristath/trading-planner/internal/utils"
	"github.com/rs/zerolog"
)

// OpportunityContextBuilder assembles the immutable per-request
// OpportunityContext: positions enriched with security metadata and
// prices, the geography/industry target and allocation views, the score
// and risk-metric maps, expected returns, and the cooloff sets. It is the
// single place context assembly happens; every consumer gets the same
// shape.
type OpportunityContextBuilder struct {
	positionRepo           PositionRepository
	securityRepo           SecurityRepository
	allocRepo              AllocationRepository
	tradeRepo              TradeRepository
	scoresRepo             ScoresRepository
	settingsRepo           SettingsRepository
	regimeRepo             RegimeRepository
	cashManager            CashManager
	priceClient            PriceClient
	priceConversionService PriceConversionServiceInterface
	brokerClient           BrokerClient
	returnsCalc            ExpectedReturnsCalculator
	log                    zerolog.Logger
}

// NewOpportunityContextBuilder wires the builder. Every dependency except
// the position and security repositories may be nil; missing data degrades
// to empty maps, never to failure.
func NewOpportunityContextBuilder(
	positionRepo PositionRepository,
	securityRepo SecurityRepository,
	allocRepo AllocationRepository,
	tradeRepo TradeRepository,
	scoresRepo ScoresRepository,
	settingsRepo SettingsRepository,
	regimeRepo RegimeRepository,
	cashManager CashManager,
	priceClient PriceClient,
	priceConversionService PriceConversionServiceInterface,
	brokerClient BrokerClient,
	returnsCalc ExpectedReturnsCalculator,
	log zerolog.Logger,
) *OpportunityContextBuilder {
	return &OpportunityContextBuilder{
		positionRepo:           positionRepo,
		securityRepo:           securityRepo,
		allocRepo:              allocRepo,
		tradeRepo:              tradeRepo,
		scoresRepo:             scoresRepo,
		settingsRepo:           settingsRepo,
		regimeRepo:             regimeRepo,
		cashManager:            cashManager,
		priceClient:            priceClient,
		priceConversionService: priceConversionService,
		brokerClient:           brokerClient,
		returnsCalc:            returnsCalc,
		log:                    log.With().Str("service", "opportunity_context_builder").Logger(),
	}
}

// Build assembles the full context. optimizerWeights (ISIN-keyed) override
// the stored allocation targets as the context's target weights when
// provided.
func (b *OpportunityContextBuilder) Build(optimizerWeights map[string]float64) (*planningdomain.OpportunityContext, error) {
	positions, err := b.positionRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	securities, err := b.securityRepo.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to get securities: %w", err)
	}

	allocations := map[string]float64{}
	if b.allocRepo != nil {
		if all, err := b.allocRepo.GetAll(); err == nil {
			allocations = all
		} else {
			b.log.Warn().Err(err).Msg("Failed to get allocations, using empty")
		}
	}

	cash := b.cashBalances()

	return b.buildContext(positions, securities, allocations, cash, optimizerWeights)
}

// cashBalances reads cash from the cash manager, plus any configured
// virtual test cash (research mode).
func (b *OpportunityContextBuilder) cashBalances() map[string]float64 {
	cash := map[string]float64{}
	if b.cashManager != nil {
		if balances, err := b.cashManager.GetAllCashBalances(); err == nil {
			cash = balances
		} else {
			b.log.Warn().Err(err).Msg("Failed to get cash balances, using empty")
		}
	}
	if b.settingsRepo != nil {
		if virtual, err := b.settingsRepo.GetVirtualTestCash(); err == nil && virtual > 0 {
			cash["EUR"] += virtual
		}
	}
	return cash
}

// buildContext does the assembly proper once the raw inputs are gathered.
func (b *OpportunityContextBuilder) buildContext(
	positions []portfolio.Position,
	securities []universe.Security,
	allocations map[string]float64,
	cashBalances map[string]float64,
	optimizerWeights map[string]float64,
) (*planningdomain.OpportunityContext, error) {
	prices := b.fetchCurrentPrices(securities)
	enriched, totalValue := b.enrichPositions(positions, securities, prices, cashBalances)

	geographyWeights := b.populateGeographyWeights(securities)
	industryWeights := b.populateIndustryWeights(securities)
	geographyAllocations := groupAllocations(enriched, totalValue, geographyWeights, func(p planningdomain.EnrichedPosition) string { return p.Geography })
	industryAllocations := groupAllocations(enriched, totalValue, industryWeights, func(p planningdomain.EnrichedPosition) string { return p.Industry })

	isins := make([]string, 0, len(securities))
	for _, sec := range securities {
		if sec.ISIN != "" {
			isins = append(isins, sec.ISIN)
		}
	}

	scores := b.loadScores(isins)
	targetReturn, thresholdPct := b.targetReturnSettings()
	regimeScore := b.regimeScore()
	expectedReturns := b.expectedReturns(securities, regimeScore, targetReturn, thresholdPct)
	recentlySold, recentlyBought := b.cooloffSets(securities)

	targetWeights := optimizerWeights
	if len(targetWeights) == 0 {
		targetWeights = allocations
	}

	ctx := planningdomain.NewOpportunityContext(
		b.scoringContext(enriched, geographyWeights, industryWeights, prices, totalValue),
		toPlainPositions(positions),
		securities,
		cashBalances["EUR"],
		totalValue,
		prices,
	)

	ctx.EnrichedPositions = enriched
	ctx.SecurityScores = scores.total
	ctx.TargetWeights = targetWeights
	ctx.GeographyAllocations = geographyAllocations
	ctx.GeographyWeights = geographyWeights
	ctx.IndustryAllocations = industryAllocations
	ctx.IndustryWeights = industryWeights
	// Country-keyed views alias the geography data for calculators that
	// think in country terms.
	ctx.CountryAllocations = geographyAllocations
	ctx.CountryWeights = geographyWeights
	ctx.CAGRs = scores.cagrs
	ctx.ExpectedReturns = expectedReturns
	ctx.LongTermScores = scores.longTerm
	ctx.StabilityScores = scores.stability
	ctx.TargetReturn = targetReturn
	ctx.TargetReturnThresholdPct = thresholdPct
	ctx.OpportunityScores = scores.opportunity
	ctx.MomentumScores = scores.momentum
	ctx.Volatility = scores.volatility
	ctx.RegimeScore = regimeScore
	ctx.Sharpe = scores.sharpe
	ctx.MaxDrawdown = scores.maxDrawdown
	ctx.RecentlySoldISINs = recentlySold
	ctx.RecentlyBoughtISINs = recentlyBought

	return ctx, nil
}

// fetchCurrentPrices batch-quotes every security, converts to EUR, and
// keys the result by ISIN. Missing quotes simply stay absent.
func (b *OpportunityContextBuilder) fetchCurrentPrices(securities []universe.Security) map[string]float64 {
	prices := make(map[string]float64)
	if b.priceClient == nil {
		return prices
	}

	symbolMap := make(map[string]*string, len(securities))
	for _, sec := range securities {
		symbolMap[sec.Symbol] = nil
	}
	quotes, err := b.priceClient.GetBatchQuotes(symbolMap)
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to fetch prices")
		return prices
	}

	bySymbol := make(map[string]float64, len(quotes))
	for symbol, price := range quotes {
		if price != nil && *price > 0 {
			bySymbol[symbol] = *price
		}
	}
	if b.priceConversionService != nil {
		bySymbol = b.priceConversionService.ConvertPricesToEUR(bySymbol, securities)
	}

	for _, sec := range securities {
		if sec.ISIN == "" {
			continue
		}
		if price, ok := bySymbol[sec.Symbol]; ok {
			prices[sec.ISIN] = price
		}
	}
	return prices
}

// enrichPositions joins positions with security metadata and prices, and
// totals the portfolio value (cash included). Positions without a security
// or a usable price drop out; a planner cannot act on them.
func (b *OpportunityContextBuilder) enrichPositions(
	positions []portfolio.Position,
	securities []universe.Security,
	prices map[string]float64,
	cashBalances map[string]float64,
) ([]planningdomain.EnrichedPosition, float64) {
	byISIN := make(map[string]universe.Security, len(securities))
	for _, sec := range securities {
		if sec.ISIN != "" {
			byISIN[sec.ISIN] = sec
		}
	}

	totalValue := cashBalances["EUR"]
	enriched := make([]planningdomain.EnrichedPosition, 0, len(positions))

	for _, pos := range positions {
		sec, known := byISIN[pos.ISIN]
		if pos.ISIN == "" || !known {
			continue
		}

		price := prices[pos.ISIN]
		if price <= 0 {
			price = pos.CurrentPrice
		}
		if price <= 0 {
			continue
		}

		marketValue := price * pos.Quantity
		totalValue += marketValue

		costBasis := pos.CostBasisEUR
		if costBasis == 0 {
			costBasis = pos.AvgPrice * pos.Quantity
		}
		pnl := marketValue - costBasis
		pnlPct := 0.0
		if costBasis > 0 {
			pnlPct = pnl / costBasis
		}

		enriched = append(enriched, planningdomain.EnrichedPosition{
			ISIN:             pos.ISIN,
			Symbol:           pos.Symbol,
			Quantity:         pos.Quantity,
			AverageCost:      pos.AvgPrice,
			Currency:         pos.Currency,
			CurrencyRate:     pos.CurrencyRate,
			MarketValueEUR:   marketValue,
			CostBasisEUR:     costBasis,
			UnrealizedPnL:    pnl,
			UnrealizedPnLPct: pnlPct,
			FirstBoughtAt:    unixTimePtr(pos.FirstBoughtAt),
			LastSoldAt:       unixTimePtr(pos.LastSoldAt),
			CurrentPrice:     price,
			SecurityName:     sec.Name,
			Geography:        sec.Geography,
			Industry:         sec.Industry,
			AllowBuy:         sec.AllowBuy,
			AllowSell:        sec.AllowSell,
			MinLot:           sec.MinLot,
		})
	}

	if totalValue > 0 {
		for i := range enriched {
			enriched[i].WeightInPortfolio = enriched[i].MarketValueEUR / totalValue
		}
	}

	return enriched, totalValue
}

// populateGeographyWeights loads the geography targets, drops targets for
// geographies absent from the active universe, and normalises the rest to
// sum to 1.
func (b *OpportunityContextBuilder) populateGeographyWeights(securities []universe.Security) map[string]float64 {
	return b.activeTargets(securities, func(s universe.Security) string { return s.Geography }, func() (map[string]float64, error) {
		return b.allocRepo.GetGeographyTargets()
	})
}

// populateIndustryWeights is populateGeographyWeights for industries.
func (b *OpportunityContextBuilder) populateIndustryWeights(securities []universe.Security) map[string]float64 {
	return b.activeTargets(securities, func(s universe.Security) string { return s.Industry }, func() (map[string]float64, error) {
		return b.allocRepo.GetIndustryTargets()
	})
}

// activeTargets is the shared filter-and-normalise: keep targets whose
// value appears on some active non-index security, then rescale to 1.
// extractUniqueValues collects the set of comma-separated attribute values
// (e.g. geography or industry) present across non-index securities.
func extractUniqueValues(securities []universe.Security, attribute func(universe.Security) string) map[string]bool {
	active := make(map[string]bool)
	for _, sec := range securities {
		if strings.HasSuffix(sec.Symbol, ".IDX") {
			continue
		}
		for _, value := range utils.ParseCSV(attribute(sec)) {
			active[value] = true
		}
	}
	return active
}

// extractUniqueGeographies collects the set of unique geographies present
// across non-index securities, splitting comma-separated values.
func extractUniqueGeographies(securities []universe.Security) map[string]bool {
	return extractUniqueValues(securities, func(s universe.Security) string { return s.Geography })
}

// extractUniqueIndustries collects the set of unique industries present
// across non-index securities, splitting comma-separated values.
func extractUniqueIndustries(securities []universe.Security) map[string]bool {
	return extractUniqueValues(securities, func(s universe.Security) string { return s.Industry })
}

func (b *OpportunityContextBuilder) activeTargets(
	securities []universe.Security,
	attribute func(universe.Security) string,
	load func() (map[string]float64, error),
) map[string]float64 {
	if b.allocRepo == nil {
		return map[string]float64{}
	}
	targets, err := load()
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to load allocation targets")
		return map[string]float64{}
	}

	active := extractUniqueValues(securities, attribute)

	filtered := make(map[string]float64)
	for name, weight := range targets {
		if active[name] {
			filtered[name] = weight
		}
	}
	if len(filtered) == 0 {
		return map[string]float64{}
	}
	return normalizeWeights(filtered)
}

// groupAllocations sums enriched position values into current allocation
// fractions per group. A position's value splits evenly across its
// (comma-separated) groups; positions with no group split across every
// known target group.
func groupAllocations(
	positions []planningdomain.EnrichedPosition,
	totalValue float64,
	knownGroups map[string]float64,
	attribute func(planningdomain.EnrichedPosition) string,
) map[string]float64 {
	allocations := make(map[string]float64)
	if totalValue <= 0 {
		return allocations
	}

	values := make(map[string]float64)
	for _, pos := range positions {
		groups := utils.ParseCSV(attribute(pos))
		if len(groups) == 0 {
			if len(knownGroups) == 0 {
				continue
			}
			share := pos.MarketValueEUR / float64(len(knownGroups))
			for group := range knownGroups {
				values[group] += share
			}
			continue
		}

		share := pos.MarketValueEUR / float64(len(groups))
		for _, group := range groups {
			values[group] += share
		}
	}

	for group, value := range values {
		allocations[group] = value / totalValue
	}
	return allocations
}

// scoreMaps bundles every per-ISIN score map the repositories provide.
type scoreMaps struct {
	total, cagrs, longTerm, stability          map[string]float64
	opportunity, momentum, volatility          map[string]float64
	sharpe, maxDrawdown                        map[string]float64
}

// loadScores pulls every score family; failures leave that family empty.
func (b *OpportunityContextBuilder) loadScores(isins []string) scoreMaps {
	empty := func() map[string]float64 { return map[string]float64{} }
	scores := scoreMaps{
		total: empty(), cagrs: empty(), longTerm: empty(), stability: empty(),
		opportunity: empty(), momentum: empty(), volatility: empty(),
		sharpe: empty(), maxDrawdown: empty(),
	}
	if b.scoresRepo == nil || len(isins) == 0 {
		return scores
	}

	if total, err := b.scoresRepo.GetTotalScores(isins); err == nil {
		scores.total = total
	}
	if cagrs, err := b.scoresRepo.GetCAGRs(isins); err == nil {
		scores.cagrs = cagrs
	}
	if longTerm, stability, err := b.scoresRepo.GetQualityScores(isins); err == nil {
		scores.longTerm, scores.stability = longTerm, stability
	}
	if opportunity, momentum, volatility, err := b.scoresRepo.GetValueTrapData(isins); err == nil {
		scores.opportunity, scores.momentum, scores.volatility = opportunity, momentum, volatility
	}
	if sharpe, maxDrawdown, err := b.scoresRepo.GetRiskMetrics(isins); err == nil {
		scores.sharpe, scores.maxDrawdown = sharpe, maxDrawdown
	}
	return scores
}

// targetReturnSettings resolves the target annual return and its soft
// threshold, defaulting to 11% at 80%.
func (b *OpportunityContextBuilder) targetReturnSettings() (float64, float64) {
	if b.settingsRepo == nil {
		return 0.11, 0.80
	}
	targetReturn, thresholdPct, err := b.settingsRepo.GetTargetReturnSettings()
	if err != nil {
		return 0.11, 0.80
	}
	return targetReturn, thresholdPct
}

// regimeScore reads the current market regime; unavailable means neutral.
func (b *OpportunityContextBuilder) regimeScore() float64 {
	if b.regimeRepo == nil {
		return 0
	}
	score, err := b.regimeRepo.GetCurrentRegimeScore()
	if err != nil {
		return 0
	}
	return score
}

// expectedReturns runs the optimiser's expected-return calculator over the
// universe; a missing calculator or failure yields the empty map.
func (b *OpportunityContextBuilder) expectedReturns(
	securities []universe.Security,
	regimeScore, targetReturn, thresholdPct float64,
) map[string]float64 {
	if b.returnsCalc == nil {
		return map[string]float64{}
	}
	returns, err := b.returnsCalc.CalculateExpectedReturnsForUniverse(securities, regimeScore, targetReturn, thresholdPct)
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to calculate expected returns, using empty map")
		return map[string]float64{}
	}
	return returns
}

// cooloffSets builds the recently-sold/bought ISIN sets from trade history
// plus the broker's pending orders (a pending trade is treated as done: the
// plan must stay valid once it executes).
func (b *OpportunityContextBuilder) cooloffSets(securities []universe.Security) (map[string]bool, map[string]bool) {
	sold := make(map[string]bool)
	bought := make(map[string]bool)

	if b.settingsRepo != nil {
		if disabled, err := b.settingsRepo.IsCooloffDisabled(); err == nil && disabled {
			return sold, bought
		}
	}

	if b.tradeRepo != nil {
		days := 180
		if b.settingsRepo != nil {
			if configured, err := b.settingsRepo.GetCooloffDays(); err == nil && configured > 0 {
				days = configured
			}
		}
		if recent, err := b.tradeRepo.GetRecentlySoldISINs(days); err == nil {
			for isin := range recent {
				sold[isin] = true
			}
		}
		if recent, err := b.tradeRepo.GetRecentlyBoughtISINs(days); err == nil {
			for isin := range recent {
				bought[isin] = true
			}
		}
	}

	if b.brokerClient != nil && b.brokerClient.IsConnected() {
		symbolToISIN := make(map[string]string, len(securities))
		for _, sec := range securities {
			if sec.Symbol != "" && sec.ISIN != "" {
				symbolToISIN[sec.Symbol] = sec.ISIN
			}
		}
		if pending, err := b.brokerClient.GetPendingOrders(); err == nil {
			for _, order := range pending {
				isin, ok := symbolToISIN[order.Symbol]
				if !ok {
					continue
				}
				switch order.Side {
				case "BUY":
					bought[isin] = true
				case "SELL":
					sold[isin] = true
				}
			}
		}
	}

	return sold, bought
}

// scoringContext projects the enriched positions into the scoring-domain
// portfolio context (ISIN-keyed maps).
func (b *OpportunityContextBuilder) scoringContext(
	positions []planningdomain.EnrichedPosition,
	geographyWeights map[string]float64,
	industryWeights map[string]float64,
	prices map[string]float64,
	totalValue float64,
) *scoringdomain.PortfolioContext {
	values := make(map[string]float64, len(positions))
	avgPrices := make(map[string]float64, len(positions))
	geographies := make(map[string]string, len(positions))
	industries := make(map[string]string, len(positions))

	for _, pos := range positions {
		values[pos.ISIN] = pos.MarketValueEUR
		avgPrices[pos.ISIN] = pos.AverageCost
		geographies[pos.ISIN] = pos.Geography
		industries[pos.ISIN] = pos.Industry
	}

	return &scoringdomain.PortfolioContext{
		GeographyWeights:    geographyWeights,
		IndustryWeights:     industryWeights,
		Positions:           values,
		SecurityGeographies: geographies,
		SecurityIndustries:  industries,
		PositionAvgPrices:   avgPrices,
		CurrentPrices:       prices,
		TotalValue:          totalValue,
	}
}

// toPlainPositions projects repository positions into the planning-domain
// shape the calculators iterate.
func toPlainPositions(positions []portfolio.Position) []domain.Position {
	out := make([]domain.Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, domain.Position{
			ISIN:         pos.ISIN,
			Symbol:       pos.Symbol,
			Quantity:     pos.Quantity,
			AverageCost:  pos.AvgPrice,
			CurrentPrice: pos.CurrentPrice,
			MarketValue:  pos.MarketValueEUR,
			Currency:     pos.Currency,
		})
	}
	return out
}

// unixTimePtr converts an optional Unix timestamp to a *time.Time.
func unixTimePtr(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}

// normalizeWeights rescales a weight map to sum to 1.0.
func normalizeWeights(weights map[string]float64) map[string]float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return weights
	}
	normalized := make(map[string]float64, len(weights))
	for k, v := range weights {
		normalized[k] = v / total
	}
	return normalized
}
