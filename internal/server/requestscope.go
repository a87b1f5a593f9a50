package server

import (
	"strings"
	"time"

	"github.com/aristath/trading-planner/internal/di"
	"github.com/aristath/trading-planner/internal/modules/allocation"
	"github.com/aristath/trading-planner/internal/modules/opportunities"
	plandomain "github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/optimization"
	"github.com/aristath/trading-planner/internal/modules/portfolio"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/aristath/trading-planner/internal/planning/safety"
	"github.com/aristath/trading-planner/internal/services"
	"github.com/rs/zerolog"
)

// requestScope assembles the per-request object graph: repositories seeded
// from the payload and the opportunity context built over them. Nothing in
// here outlives the request.
type requestScope struct {
	securityRepo *universe.SecurityRepository
	positionRepo *portfolio.PositionRepository
	allocRepo    *allocation.Repository
	context      *plandomain.OpportunityContext
}

// newRequestScope seeds repositories from the payload and builds the
// opportunity context through the shared builder.
func newRequestScope(
	container *di.Container,
	positions []PositionRequest,
	securities []SecurityRequest,
	availableCash float64,
	targetAllocation map[string]float64,
	targetWeights map[string]float64,
	currentPrices map[string]float64,
	recentlySold []string,
	ineligible []string,
	log zerolog.Logger,
) (*requestScope, error) {
	securityRepo := universe.NewSecurityRepository()
	universeSecurities := make([]universe.Security, 0, len(securities))
	for _, sec := range securities {
		allowBuy, allowSell := true, false
		if sec.AllowBuy != nil {
			allowBuy = *sec.AllowBuy
		}
		if sec.AllowSell != nil {
			allowSell = *sec.AllowSell
		}
		industry := sec.Industry
		if industry == "" {
			industry = sec.Sector
		}
		isin := sec.ISIN
		if isin == "" {
			// Boundary payloads may omit the ISIN; fall back to the symbol
			// so lookups stay consistent within the request.
			isin = sec.Symbol
		}
		universeSecurities = append(universeSecurities, universe.Security{
			ISIN:               isin,
			Symbol:             sec.Symbol,
			Name:               sec.Name,
			Currency:           sec.Currency,
			Geography:          sec.Geography,
			Industry:           industry,
			MinLot:             sec.MinLot,
			AllowBuy:           allowBuy,
			AllowSell:          allowSell,
			MinPortfolioTarget: sec.MinPortfolioTarget,
			MaxPortfolioTarget: sec.MaxPortfolioTarget,
			PriorityMultiplier: 1.0,
			Tags:               sec.Tags,
		})
	}
	if err := securityRepo.Seed(universeSecurities); err != nil {
		return nil, err
	}

	positionRepo := portfolio.NewPositionRepository(nil)
	portfolioPositions := make([]portfolio.Position, 0, len(positions))
	for _, pos := range positions {
		isin := pos.ISIN
		if isin == "" {
			if sec, _ := securityRepo.GetBySymbol(pos.Symbol); sec != nil {
				isin = sec.ISIN
			} else {
				isin = pos.Symbol
			}
		}
		portfolioPositions = append(portfolioPositions, portfolio.Position{
			ISIN:             isin,
			Symbol:           pos.Symbol,
			Quantity:         pos.Quantity,
			AvgPrice:         pos.AvgCost,
			Currency:         pos.Currency,
			CurrentPrice:     pos.CurrentPrice,
			MarketValueEUR:   pos.ValueEUR,
			CostBasisEUR:     pos.AvgCost * pos.Quantity,
			UnrealizedPnL:    pos.UnrealizedGainLoss,
			UnrealizedPnLPct: pos.UnrealizedGainLossPc,
			FirstBoughtAt:    pos.FirstBoughtAt,
			LastSoldAt:       pos.LastSoldAt,
		})
	}
	positionRepo.Seed(portfolioPositions)

	allocRepo := allocation.NewRepository(nil, log)
	geoTargets := make(map[string]float64)
	indTargets := make(map[string]float64)
	for key, pct := range targetAllocation {
		switch {
		case strings.HasPrefix(key, "geography:"):
			geoTargets[strings.TrimPrefix(key, "geography:")] = pct
		case strings.HasPrefix(key, "industry:"):
			indTargets[strings.TrimPrefix(key, "industry:")] = pct
		default:
			geoTargets[key] = pct
		}
	}
	_ = allocRepo.SetGeographyTargets(geoTargets)
	_ = allocRepo.SetIndustryTargets(indTargets)

	// Scores and metrics come from the optional per-security fields.
	scores := &requestScores{
		quality:   make(map[string]float64),
		dividends: make(map[string]float64),
	}
	metrics := optimization.MetricsMap{}
	for i := range universeSecurities {
		isin := universeSecurities[i].ISIN
		src := securities[i]
		if src.QualityScore != nil {
			scores.quality[isin] = *src.QualityScore
		}
		dividend := 0.0
		if src.DividendYield != nil {
			dividend = *src.DividendYield
			scores.dividends[isin] = dividend
		}
		if src.QualityScore != nil {
			q := *src.QualityScore
			metrics[isin] = optimization.SecurityMetrics{
				TotalScore:    &q,
				DividendYield: dividend,
			}
		}
	}

	prices := &requestPrices{
		securityRepo: securityRepo,
		overrides:    currentPrices,
		securities:   securities,
	}

	returnsCalc := optimization.NewReturnsCalculator(metrics, log)

	builder := services.NewOpportunityContextBuilder(
		positionRepo,
		securityRepo,
		allocRepo,
		&requestTradeLog{recentlySold: toSet(recentlySold)},
		scores,
		&requestSettings{container: container},
		staticRegime{},
		staticCash{eur: availableCash},
		prices,
		services.NewPriceConversionService(container.CurrencyExchange, log),
		nil, // no broker attached; pending orders arrive via the cooloff lists
		&returnsAdapter{calc: returnsCalc},
		log,
	)

	opCtx, err := builder.Build(targetWeights)
	if err != nil {
		return nil, err
	}

	// Sell-side eligibility comes from the safety gate: minimum hold and
	// maximum-loss rules over the enriched positions, plus whatever the
	// caller explicitly marked ineligible.
	gate := safety.NewGate(container.SafetyGateConfig, nil, log)
	for isin := range gate.IneligibleISINs(opCtx.EnrichedPositions) {
		opCtx.IneligibleISINs[isin] = true
	}
	for _, isin := range ineligible {
		opCtx.IneligibleISINs[isin] = true
	}

	return &requestScope{
		securityRepo: securityRepo,
		positionRepo: positionRepo,
		allocRepo:    allocRepo,
		context:      opCtx,
	}, nil
}

// opportunitiesService builds the request-scoped opportunities service over
// the seeded security repository.
func (rs *requestScope) opportunitiesService(log zerolog.Logger) *opportunities.Service {
	return opportunities.NewService(opportunities.NewTagBasedFilter(rs.securityRepo, log), rs.securityRepo, log)
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

// requestScores serves score lookups from the request payload; anything the
// payload doesn't carry is simply absent, which the calculators treat as
// neutral.
type requestScores struct {
	quality   map[string]float64
	dividends map[string]float64
}

func (s *requestScores) GetTotalScores(isinList []string) (map[string]float64, error) {
	return filterKeys(s.quality, isinList), nil
}

func (s *requestScores) GetCAGRs(isinList []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (s *requestScores) GetQualityScores(isinList []string) (map[string]float64, map[string]float64, error) {
	return filterKeys(s.quality, isinList), map[string]float64{}, nil
}

func (s *requestScores) GetValueTrapData(isinList []string) (map[string]float64, map[string]float64, map[string]float64, error) {
	return map[string]float64{}, map[string]float64{}, map[string]float64{}, nil
}

func (s *requestScores) GetRiskMetrics(isinList []string) (map[string]float64, map[string]float64, error) {
	return map[string]float64{}, map[string]float64{}, nil
}

func filterKeys(src map[string]float64, keys []string) map[string]float64 {
	out := make(map[string]float64)
	for _, k := range keys {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}
	return out
}

// requestTradeLog serves cooloff data from the request payload's
// recently-sold list.
type requestTradeLog struct {
	recentlySold map[string]bool
}

func (t *requestTradeLog) GetRecentlySoldISINs(days int) (map[string]bool, error) {
	return t.recentlySold, nil
}

func (t *requestTradeLog) GetRecentlyBoughtISINs(days int) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// requestSettings adapts the container's configuration to the builder's
// settings interface.
type requestSettings struct {
	container *di.Container
}

func (s *requestSettings) GetTargetReturnSettings() (float64, float64, error) {
	return s.container.Config.OptimizerTargetReturn, 0.80, nil
}

func (s *requestSettings) GetCooloffDays() (int, error) {
	return s.container.Config.SellCooldownDays, nil
}

func (s *requestSettings) GetVirtualTestCash() (float64, error) {
	return 0, nil
}

func (s *requestSettings) IsCooloffDisabled() (bool, error) {
	return false, nil
}

// staticRegime reports a neutral market regime; callers that know better
// pass the regime with the request.
type staticRegime struct{}

func (staticRegime) GetCurrentRegimeScore() (float64, error) { return 0, nil }

// staticCash serves the request's cash balance.
type staticCash struct{ eur float64 }

func (c staticCash) GetAllCashBalances() (map[string]float64, error) {
	return map[string]float64{"EUR": c.eur}, nil
}

// requestPrices serves quotes from the request payload: the explicit
// current_prices override first, then each security's own price field.
type requestPrices struct {
	securityRepo *universe.SecurityRepository
	overrides    map[string]float64
	securities   []SecurityRequest
}

func (p *requestPrices) GetBatchQuotes(symbolMap map[string]*string) (map[string]*float64, error) {
	out := make(map[string]*float64, len(symbolMap))

	bySymbol := make(map[string]float64, len(p.securities))
	for _, sec := range p.securities {
		if sec.Price > 0 {
			bySymbol[sec.Symbol] = sec.Price
		}
	}

	for symbol := range symbolMap {
		price, ok := bySymbol[symbol]
		if p.overrides != nil {
			// Overrides are keyed by symbol or ISIN.
			if v, found := p.overrides[symbol]; found {
				price, ok = v, true
			} else if sec, _ := p.securityRepo.GetBySymbol(symbol); sec != nil {
				if v, found := p.overrides[sec.ISIN]; found {
					price, ok = v, true
				}
			}
		}
		if ok && price > 0 {
			v := price
			out[symbol] = &v
		} else {
			out[symbol] = nil
		}
	}
	return out, nil
}

// returnsAdapter bridges the optimisation returns calculator to the
// builder's interface.
type returnsAdapter struct {
	calc *optimization.ReturnsCalculator
}

func (a *returnsAdapter) CalculateExpectedReturnsForUniverse(
	securities []universe.Security,
	regimeScore float64,
	targetReturn float64,
	targetReturnThresholdPct float64,
) (map[string]float64, error) {
	converted := make([]optimization.Security, 0, len(securities))
	for _, sec := range securities {
		converted = append(converted, optimization.Security{
			ISIN:               sec.ISIN,
			Symbol:             sec.Symbol,
			Name:               sec.Name,
			ProductType:        sec.ProductType,
			Geography:          sec.Geography,
			Industry:           sec.Industry,
			Currency:           sec.Currency,
			MinLot:             float64(sec.MinLot),
			MinPortfolioTarget: sec.MinPortfolioTarget,
			MaxPortfolioTarget: sec.MaxPortfolioTarget,
			AllowBuy:           sec.AllowBuy,
			AllowSell:          sec.AllowSell,
			PriorityMultiplier: sec.PriorityMultiplier,
		})
	}
	return a.calc.CalculateExpectedReturns(converted, regimeScore, nil, targetReturn, targetReturnThresholdPct)
}

// lastTradeTime converts an optional Unix timestamp to a *time.Time.
func lastTradeTime(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0)
	return &t
}
