package evaluation

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/aristath/trading-planner/internal/evaluation/models"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	scoringdomain "github.com/aristath/trading-planner/internal/modules/scoring/domain"
)

// HashSequence generates a deterministic MD5 hash over the
// (symbol, side, quantity) tuples of a sequence, order-dependent.
func HashSequence(actions []domain.ActionCandidate) string {
	type tuple struct {
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Quantity int    `json:"quantity"`
	}

	tuples := make([]tuple, len(actions))
	for i, action := range actions {
		tuples[i] = tuple{Symbol: action.Symbol, Side: action.Side, Quantity: action.Quantity}
	}

	jsonBytes, err := json.Marshal(tuples)
	if err != nil {
		return ""
	}

	sum := md5.Sum(jsonBytes)
	return hex.EncodeToString(sum[:])
}

// ToEvaluationActions converts planning-domain actions into the evaluator's
// model shape.
func ToEvaluationActions(actions []domain.ActionCandidate) []models.ActionCandidate {
	out := make([]models.ActionCandidate, len(actions))
	for i, action := range actions {
		out[i] = models.ActionCandidate{
			Side:     models.TradeSide(action.Side),
			ISIN:     action.ISIN,
			Symbol:   action.Symbol,
			Name:     action.Name,
			Quantity: action.Quantity,
			Price:    action.Price,
			ValueEUR: action.ValueEUR,
			Currency: action.Currency,
			Priority: action.Priority,
			Reason:   action.Reason,
			Tags:     action.Tags,
		}
	}
	return out
}

// BuildEvaluationContext assembles the immutable evaluator snapshot from the
// opportunity context and planner configuration. All maps are keyed by ISIN.
func BuildEvaluationContext(config *domain.PlannerConfiguration, opportunityCtx *domain.OpportunityContext) models.EvaluationContext {
	transactionCostFixed := 2.0
	transactionCostPercent := 0.002
	costPenaltyFactor := 0.1
	multiTimeframe := false
	if config != nil {
		transactionCostFixed = config.TransactionCostFixed
		transactionCostPercent = config.TransactionCostPercent
		costPenaltyFactor = config.CostPenaltyFactor
		multiTimeframe = config.EnableMultiTimeframe
	}

	evalContext := models.EvaluationContext{
		TransactionCostFixed:   transactionCostFixed,
		TransactionCostPercent: transactionCostPercent,
		CostPenaltyFactor:      costPenaltyFactor,
		MultiTimeframe:         multiTimeframe,
	}

	if opportunityCtx == nil {
		return evalContext
	}

	evalContext.PortfolioContext = convertPortfolioContext(opportunityCtx.PortfolioContext, opportunityCtx)
	evalContext.CurrentPrices = evalContext.PortfolioContext.CurrentPrices
	evalContext.AvailableCashEUR = opportunityCtx.AvailableCashEUR
	evalContext.TotalPortfolioValueEUR = opportunityCtx.TotalPortfolioValueEUR

	evalContext.Securities = make([]models.Security, 0, len(opportunityCtx.Securities))
	evalContext.StocksBySymbol = make(map[string]models.Security, len(opportunityCtx.Securities))
	for _, sec := range opportunityCtx.Securities {
		var geographyPtr, industryPtr *string
		if sec.Geography != "" {
			g := sec.Geography
			geographyPtr = &g
		}
		if sec.Industry != "" {
			ind := sec.Industry
			industryPtr = &ind
		}
		evalSec := models.Security{
			ISIN:     sec.ISIN,
			Symbol:   sec.Symbol,
			Name:     sec.Name,
			Country:  geographyPtr,
			Industry: industryPtr,
			Currency: sec.Currency,
		}
		evalContext.Securities = append(evalContext.Securities, evalSec)
		if sec.Symbol != "" {
			evalContext.StocksBySymbol[sec.Symbol] = evalSec
		}
	}

	evalContext.Positions = make([]models.Position, 0, len(opportunityCtx.EnrichedPositions))
	for _, pos := range opportunityCtx.EnrichedPositions {
		currentPrice := pos.CurrentPrice
		if currentPrice <= 0 && opportunityCtx.CurrentPrices != nil {
			if price, ok := opportunityCtx.CurrentPrices[pos.ISIN]; ok {
				currentPrice = price
			}
		}

		evalContext.Positions = append(evalContext.Positions, models.Position{
			Symbol:         pos.Symbol,
			Quantity:       pos.Quantity,
			AvgPrice:       pos.AverageCost,
			Currency:       pos.Currency,
			CurrencyRate:   pos.CurrencyRate,
			CurrentPrice:   currentPrice,
			MarketValueEUR: pos.MarketValueEUR,
		})
	}

	return evalContext
}

// convertPortfolioContext maps the scoring-domain portfolio context plus the
// opportunity context's per-request metric maps into the evaluator's shape.
func convertPortfolioContext(
	scoringCtx *scoringdomain.PortfolioContext,
	opportunityCtx *domain.OpportunityContext,
) models.PortfolioContext {
	var out models.PortfolioContext

	if scoringCtx != nil {
		out = models.PortfolioContext{
			Positions:           scoringCtx.Positions,
			TotalValue:          scoringCtx.TotalValue,
			GeographyWeights:    scoringCtx.GeographyWeights,
			IndustryWeights:     scoringCtx.IndustryWeights,
			SecurityGeographies: scoringCtx.SecurityGeographies,
			SecurityIndustries:  scoringCtx.SecurityIndustries,
			SecurityScores:      scoringCtx.SecurityScores,
			SecurityDividends:   scoringCtx.SecurityDividends,
			CountryToGroup:      scoringCtx.GeographyToGroup,
			IndustryToGroup:     scoringCtx.IndustryToGroup,
			PositionAvgPrices:   scoringCtx.PositionAvgPrices,
			CurrentPrices:       scoringCtx.CurrentPrices,
			SecurityCAGRs:       scoringCtx.SecurityCAGRs,
			SecurityVolatility:  scoringCtx.SecurityVolatility,
			SecuritySharpe:      scoringCtx.SecuritySharpe,
			SecuritySortino:     scoringCtx.SecuritySortino,
			SecurityMaxDrawdown: scoringCtx.SecurityMaxDrawdown,
			MarketRegimeScore:   scoringCtx.MarketRegimeScore,
		}
	}

	if opportunityCtx == nil {
		return out
	}

	if len(opportunityCtx.OptimizerTargetWeights) > 0 {
		out.OptimizerTargetWeights = opportunityCtx.OptimizerTargetWeights
	} else if len(opportunityCtx.TargetWeights) > 0 {
		out.OptimizerTargetWeights = opportunityCtx.TargetWeights
	}

	if len(opportunityCtx.CAGRs) > 0 {
		out.SecurityCAGRs = opportunityCtx.CAGRs
	}
	if len(opportunityCtx.Volatility) > 0 {
		out.SecurityVolatility = opportunityCtx.Volatility
	}
	if len(opportunityCtx.Sharpe) > 0 {
		out.SecuritySharpe = opportunityCtx.Sharpe
	} else if len(opportunityCtx.MomentumScores) > 0 {
		// Momentum as a Sharpe proxy when the real ratio is unavailable:
		// momentum 0.5 maps to Sharpe 0, momentum 1.0 to Sharpe 2.
		approx := make(map[string]float64, len(opportunityCtx.MomentumScores))
		for isin, v := range opportunityCtx.MomentumScores {
			approx[isin] = (v - 0.5) * 4.0
		}
		out.SecuritySharpe = approx
	}
	if len(opportunityCtx.MaxDrawdown) > 0 {
		out.SecurityMaxDrawdown = opportunityCtx.MaxDrawdown
	}
	if opportunityCtx.RegimeScore != 0 {
		out.MarketRegimeScore = opportunityCtx.RegimeScore
	}

	return out
}
