package evaluation

import (
	"math"

	"github.com/aristath/trading-planner/internal/evaluation/models"
	"github.com/aristath/trading-planner/internal/utils"
)

// Pure end-state scoring: the score of a sequence is the quality of the
// portfolio it leaves behind, never a property of the actions themselves.
// Four components, each in [0, 1]:
//   - Portfolio Quality: what the end portfolio should compound at
//   - Diversification & Alignment: geographic, industry, optimizer fit
//   - Risk-Adjusted Metrics: Sharpe, volatility, drawdown
//   - End-State Improvement: did the sequence move things forward at all
const (
	WeightPortfolioQuality         = 0.35
	WeightDiversificationAlignment = 0.30
	WeightRiskAdjustedMetrics      = 0.25
	WeightEndStateImprovement      = 0.10

	// Portfolio Quality sub-weights
	QualityWeightTotalReturn     = 0.40
	QualityWeightLongTermPromise = 0.35
	QualityWeightStability       = 0.25

	// Diversification sub-weights
	DiversificationWeightGeographic = 0.35
	DiversificationWeightIndustry   = 0.30
	DiversificationWeightOptimizer  = 0.35

	// Risk sub-weights
	RiskWeightSharpe     = 0.40
	RiskWeightVolatility = 0.35
	RiskWeightDrawdown   = 0.25

	// DeviationScale is the average allocation deviation that scores zero.
	DeviationScale = 0.3
)

// =============================================================================
// REGIME-ADAPTIVE WEIGHTS
// =============================================================================

// GetRegimeAdaptiveWeights returns the component weights adjusted for the
// market regime, using the default base weights.
func GetRegimeAdaptiveWeights(regimeScore float64) map[string]float64 {
	return getWeightsWithConfig(regimeScore, nil)
}

// getWeightsWithConfig derives the component weights from the (optionally
// temperament-adjusted) base weights, then tilts them by regime: bull
// markets trade a little risk weight for quality, bear markets shift
// weight into risk management.
func getWeightsWithConfig(regimeScore float64, config *models.ScoringConfig) map[string]float64 {
	score := clamp01Signed(regimeScore)

	quality, diversification, risk := WeightPortfolioQuality, WeightDiversificationAlignment, WeightRiskAdjustedMetrics
	improvement := WeightEndStateImprovement
	bullThreshold, bearThreshold := 0.3, -0.3
	if config != nil {
		quality = config.WeightPortfolioQuality
		diversification = config.WeightDiversificationAlignment
		risk = config.WeightRiskAdjustedMetrics
		bullThreshold = config.RegimeBullThreshold
		bearThreshold = config.RegimeBearThreshold
	}

	weights := map[string]float64{
		"quality":         quality,
		"diversification": diversification,
		"risk":            risk,
		"improvement":     improvement,
	}

	switch {
	case score > bullThreshold:
		factor := (score - bullThreshold) / (1.0 - bullThreshold)
		weights["quality"] += 0.03 * factor
		weights["risk"] -= 0.03 * factor
	case score < bearThreshold:
		factor := (bearThreshold - score) / (bearThreshold + 1.0)
		weights["risk"] += 0.08 * factor
		weights["diversification"] += 0.02 * factor
		weights["quality"] -= 0.05 * factor
		weights["improvement"] -= 0.05 * factor
	}

	return weights
}

// =============================================================================
// MAIN EVALUATION
// =============================================================================

// EvaluateEndState scores the end portfolio after a sequence: the weighted
// component blend minus the transaction-cost penalty, clamped to [0, 1].
// The sequence itself enters only through its costs.
func EvaluateEndState(
	startContext models.PortfolioContext,
	endContext models.PortfolioContext,
	sequence []models.ActionCandidate,
	transactionCostFixed float64,
	transactionCostPercent float64,
	costPenaltyFactor float64,
	scoringConfig *models.ScoringConfig,
) float64 {
	weights := getWeightsWithConfig(endContext.MarketRegimeScore, scoringConfig)

	endScore := calculatePortfolioQualityScore(endContext)*weights["quality"] +
		calculateDiversificationAlignmentScore(endContext)*weights["diversification"] +
		calculateRiskAdjustedScore(endContext)*weights["risk"] +
		calculateEndStateImprovementScore(startContext, endContext)*weights["improvement"]

	if costPenaltyFactor > 0 && endContext.TotalValue > 0 {
		totalCost := CalculateTransactionCost(sequence, transactionCostFixed, transactionCostPercent)
		endScore -= (totalCost / endContext.TotalValue) * costPenaltyFactor
	}

	return clamp01(endScore)
}

// EvaluateSequence simulates a sequence and scores its end state. An
// infeasible sequence (cash path goes negative) scores zero with the
// costs it would have incurred.
func EvaluateSequence(
	sequence []models.ActionCandidate,
	context models.EvaluationContext,
) models.SequenceEvaluationResult {
	txCosts := CalculateTransactionCost(sequence, context.TransactionCostFixed, context.TransactionCostPercent)

	if !CheckSequenceFeasibility(sequence, context.AvailableCashEUR, context.PortfolioContext) {
		return models.SequenceEvaluationResult{
			Sequence:         sequence,
			EndCashEUR:       context.AvailableCashEUR,
			EndPortfolio:     context.PortfolioContext,
			TransactionCosts: txCosts,
			Feasible:         false,
		}
	}

	endPortfolio, endCash := SimulateSequenceWithContext(sequence, context)

	scoreFn := EvaluateEndState
	if context.MultiTimeframe {
		scoreFn = EvaluateEndStateMultiTimeframe
	}
	score := scoreFn(
		context.PortfolioContext,
		endPortfolio,
		sequence,
		context.TransactionCostFixed,
		context.TransactionCostPercent,
		context.CostPenaltyFactor,
		context.ScoringConfig,
	)

	return models.SequenceEvaluationResult{
		Sequence:             sequence,
		Score:                score,
		DiversificationScore: CalculateDiversificationScore(endPortfolio),
		RiskScore:            calculateRiskAdjustedScore(endPortfolio),
		EndCashEUR:           endCash,
		EndPortfolio:         endPortfolio,
		TransactionCosts:     txCosts,
		Feasible:             true,
	}
}

// =============================================================================
// COMPONENT SCORERS
// =============================================================================

// calculateEndStateImprovementScore compares the other three components
// between start and end: 0.5 is no change, above is improvement.
func calculateEndStateImprovementScore(start, end models.PortfolioContext) float64 {
	if start.TotalValue <= 0 || end.TotalValue <= 0 {
		return 0.5
	}

	improvement := (calculateDiversificationAlignmentScore(end) - calculateDiversificationAlignmentScore(start) +
		calculateRiskAdjustedScore(end) - calculateRiskAdjustedScore(start) +
		calculatePortfolioQualityScore(end) - calculatePortfolioQualityScore(start)) / 3.0

	return clamp01(0.5 + improvement*0.5)
}

// calculatePortfolioQualityScore blends expected total return, long-term
// promise, and stability.
func calculatePortfolioQualityScore(ctx models.PortfolioContext) float64 {
	if ctx.TotalValue <= 0 {
		return 0.5
	}

	return calculateTotalReturnScore(ctx)*QualityWeightTotalReturn +
		calculateLongTermPromiseScore(ctx)*QualityWeightLongTermPromise +
		calculateStabilityScore(ctx)*QualityWeightStability
}

// calculateTotalReturnScore maps the value-weighted expected total return
// (CAGR plus dividends) onto an asymmetric curve peaking at the 11% target:
// returns past 20% cap at 0.95 rather than rewarding momentum-chasing.
func calculateTotalReturnScore(ctx models.PortfolioContext) float64 {
	weightedCAGR := 0.0
	weightedDividend := 0.0

	forEachWeight(ctx, func(isin string, weight float64) {
		if cagr, ok := ctx.SecurityCAGRs[isin]; ok {
			weightedCAGR += cagr * weight
		} else if score, ok := ctx.SecurityScores[isin]; ok {
			// No history: estimate growth from the quality score.
			weightedCAGR += score * 0.15 * weight
		}
		weightedDividend += ctx.SecurityDividends[isin] * weight
	})

	totalReturn := weightedCAGR + weightedDividend
	const target = 0.11

	switch {
	case totalReturn >= 0.20:
		return 0.95
	case totalReturn >= target:
		return 1.0 - (totalReturn-target)/0.09*0.15
	case totalReturn >= 0.05:
		return 0.5 + (totalReturn-0.05)/0.06*0.5
	case totalReturn >= 0:
		return totalReturn / 0.05 * 0.5
	default:
		return 0.1
	}
}

// calculateLongTermPromiseScore is the value-weighted quality score.
func calculateLongTermPromiseScore(ctx models.PortfolioContext) float64 {
	value, ok := weightedMetric(ctx, ctx.SecurityScores, false)
	if !ok {
		return 0.5
	}
	return value
}

// calculateStabilityScore blends volatility (60%) and drawdown (40%)
// scores of the end portfolio.
func calculateStabilityScore(ctx models.PortfolioContext) float64 {
	if ctx.TotalValue <= 0 {
		return 0.5
	}

	volScore := 0.5
	if weightedVol, ok := weightedMetric(ctx, ctx.SecurityVolatility, true); ok {
		switch {
		case weightedVol <= 0.15:
			volScore = 1.0
		case weightedVol <= 0.25:
			volScore = 1.0 - (weightedVol-0.15)/0.10*0.3
		case weightedVol <= 0.40:
			volScore = 0.7 - (weightedVol-0.25)/0.15*0.4
		default:
			volScore = math.Max(0.1, 0.3-(weightedVol-0.40))
		}
	}

	ddScore := 0.5
	if weightedDD, ok := weightedAbsMetric(ctx, ctx.SecurityMaxDrawdown); ok {
		ddScore = drawdownCurve(weightedDD)
	}

	return volScore*0.6 + ddScore*0.4
}

// calculateDiversificationAlignmentScore blends geographic fit, industry
// fit, and optimizer target alignment.
func calculateDiversificationAlignmentScore(ctx models.PortfolioContext) float64 {
	if ctx.TotalValue <= 0 {
		return 0.5
	}

	geo := allocationFitScore(ctx, ctx.SecurityGeographies, ctx.GeographyWeights, DeviationScale)
	industry := allocationFitScore(ctx, ctx.SecurityIndustries, ctx.IndustryWeights, DeviationScale)
	alignment := calculateOptimizerAlignment(ctx)

	return geo*DiversificationWeightGeographic +
		industry*DiversificationWeightIndustry +
		alignment*DiversificationWeightOptimizer
}

// CalculateDiversificationScore is the standalone diversification score of
// a portfolio, as reported in evaluation results.
func CalculateDiversificationScore(ctx models.PortfolioContext) float64 {
	if ctx.TotalValue <= 0 {
		return 0.5
	}
	return calculateDiversificationAlignmentScore(ctx)
}

// allocationFitScore measures how close the portfolio sits to its targets
// in one dimension (geography or industry): position values split evenly
// across their comma-separated group memberships (missing values bucket to
// OTHER), then the average absolute deviation from the targets maps
// linearly to [0, 1] over the deviation scale.
func allocationFitScore(
	ctx models.PortfolioContext,
	membership map[string]string,
	targets map[string]float64,
	scale float64,
) float64 {
	if membership == nil || len(targets) == 0 {
		return 0.5
	}

	groupValues := make(map[string]float64)
	for isin, value := range ctx.Positions {
		groups := utils.ParseCSV(membership[isin])
		if len(groups) == 0 {
			groups = []string{"OTHER"}
		}
		share := value / float64(len(groups))
		for _, group := range groups {
			groupValues[group] += share
		}
	}

	totalDeviation := 0.0
	for group, target := range targets {
		totalDeviation += math.Abs(groupValues[group]/ctx.TotalValue - target)
	}

	avgDeviation := totalDeviation / float64(len(targets))
	return math.Max(0, 1.0-avgDeviation/scale)
}

// calculateOptimizerAlignment scores how closely current weights track the
// optimizer's targets: 20% average deviation scores zero.
func calculateOptimizerAlignment(ctx models.PortfolioContext) float64 {
	if len(ctx.OptimizerTargetWeights) == 0 {
		return 0.5
	}

	totalDeviation := 0.0
	for isin, target := range ctx.OptimizerTargetWeights {
		currentWeight := ctx.Positions[isin] / ctx.TotalValue
		totalDeviation += math.Abs(currentWeight - target)
	}

	avgDeviation := totalDeviation / float64(len(ctx.OptimizerTargetWeights))
	return math.Max(0, 1.0-avgDeviation/0.20)
}

// calculateRiskAdjustedScore blends Sharpe, volatility, and drawdown scores.
func calculateRiskAdjustedScore(ctx models.PortfolioContext) float64 {
	if ctx.TotalValue <= 0 {
		return 0.5
	}

	sharpeScore := 0.5
	if weightedSharpe, ok := weightedMetric(ctx, ctx.SecuritySharpe, false); ok {
		sharpeScore = sharpeCurve(weightedSharpe)
	}

	volScore := 0.5
	if weightedVol, ok := weightedMetric(ctx, ctx.SecurityVolatility, true); ok {
		switch {
		case weightedVol <= 0.15:
			volScore = 1.0
		case weightedVol <= 0.25:
			volScore = 0.8 + (0.25-weightedVol)*2
		case weightedVol <= 0.40:
			volScore = 0.5 + (0.40-weightedVol)/0.15*0.3
		default:
			volScore = math.Max(0.2, 0.5-(weightedVol-0.40))
		}
	}

	ddScore := 0.5
	if weightedDD, ok := weightedAbsMetric(ctx, ctx.SecurityMaxDrawdown); ok {
		switch {
		case weightedDD <= 0.10:
			ddScore = 1.0
		case weightedDD <= 0.20:
			ddScore = 0.8 + (0.20-weightedDD)*2
		case weightedDD <= 0.30:
			ddScore = 0.6 + (0.30-weightedDD)*2
		case weightedDD <= 0.50:
			ddScore = 0.2 + (0.50-weightedDD)*2
		default:
			ddScore = math.Max(0.0, 0.2-(weightedDD-0.50))
		}
	}

	return sharpeScore*RiskWeightSharpe + volScore*RiskWeightVolatility + ddScore*RiskWeightDrawdown
}

// sharpeCurve maps a weighted Sharpe ratio onto [0, 1].
func sharpeCurve(sharpe float64) float64 {
	switch {
	case sharpe >= 2.0:
		return 1.0
	case sharpe >= 1.0:
		return 0.7 + (sharpe-1.0)*0.3
	case sharpe >= 0.5:
		return 0.4 + (sharpe-0.5)*0.6
	case sharpe >= 0:
		return sharpe * 0.8
	default:
		return 0.0
	}
}

// drawdownCurve maps a weighted absolute drawdown onto [0, 1].
func drawdownCurve(dd float64) float64 {
	switch {
	case dd <= 0.10:
		return 1.0
	case dd <= 0.20:
		return 0.8 + (0.20-dd)*2
	case dd <= 0.30:
		return 0.6 + (0.30-dd)*2
	default:
		return math.Max(0.1, 0.6-(dd-0.30)*2)
	}
}

// =============================================================================
// MULTI-TIMEFRAME BLEND
// =============================================================================

// Horizon blend weights: the long horizon dominates because the portfolio
// is managed for decade-scale compounding, but near-term robustness still
// earns a vote.
const (
	TimeframeWeightShort  = 0.2
	TimeframeWeightMedium = 0.3
	TimeframeWeightLong   = 0.5
)

// EvaluateEndStateMultiTimeframe scores the end state under three horizon
// emphases and blends them 0.2*short + 0.3*medium + 0.5*long. The medium
// horizon is the standard scorer; the short horizon re-weights toward
// risk-adjusted metrics (what hurts this quarter), the long horizon toward
// portfolio quality (what compounds over a decade).
func EvaluateEndStateMultiTimeframe(
	startContext models.PortfolioContext,
	endContext models.PortfolioContext,
	sequence []models.ActionCandidate,
	transactionCostFixed float64,
	transactionCostPercent float64,
	costPenaltyFactor float64,
	scoringConfig *models.ScoringConfig,
) float64 {
	medium := EvaluateEndState(startContext, endContext, sequence,
		transactionCostFixed, transactionCostPercent, costPenaltyFactor, scoringConfig)

	short := horizonScore(startContext, endContext, map[string]float64{
		"quality": 0.20, "diversification": 0.25, "risk": 0.45, "improvement": 0.10,
	})
	long := horizonScore(startContext, endContext, map[string]float64{
		"quality": 0.50, "diversification": 0.30, "risk": 0.10, "improvement": 0.10,
	})

	return clamp01(TimeframeWeightShort*short + TimeframeWeightMedium*medium + TimeframeWeightLong*long)
}

// horizonScore recomputes the component blend under one horizon's weights.
func horizonScore(start, end models.PortfolioContext, weights map[string]float64) float64 {
	return calculatePortfolioQualityScore(end)*weights["quality"] +
		calculateDiversificationAlignmentScore(end)*weights["diversification"] +
		calculateRiskAdjustedScore(end)*weights["risk"] +
		calculateEndStateImprovementScore(start, end)*weights["improvement"]
}

// =============================================================================
// TRANSACTION COSTS
// =============================================================================

// CalculateTransactionCost totals a sequence's transaction costs with the
// default spread and slippage assumptions.
func CalculateTransactionCost(
	sequence []models.ActionCandidate,
	transactionCostFixed float64,
	transactionCostPercent float64,
) float64 {
	return CalculateTransactionCostEnhanced(sequence, transactionCostFixed, transactionCostPercent, 0.001, 0.0015, 0.0)
}

// CalculateTransactionCostEnhanced totals the per-trade fixed fee plus the
// variable, spread, slippage, and market-impact percentages of each trade's
// absolute value.
func CalculateTransactionCostEnhanced(
	sequence []models.ActionCandidate,
	transactionCostFixed float64,
	transactionCostPercent float64,
	spreadCostPercent float64,
	slippagePercent float64,
	marketImpactPercent float64,
) float64 {
	variableRate := transactionCostPercent + spreadCostPercent + slippagePercent + marketImpactPercent

	total := 0.0
	for _, action := range sequence {
		total += transactionCostFixed + math.Abs(action.ValueEUR)*variableRate
	}
	return total
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// forEachWeight visits every position with its value weight.
func forEachWeight(ctx models.PortfolioContext, visit func(isin string, weight float64)) {
	if ctx.TotalValue <= 0 {
		return
	}
	for isin, value := range ctx.Positions {
		visit(isin, value/ctx.TotalValue)
	}
}

// weightedMetric is the value-weighted average of a per-security metric.
// ok=false when no position carries the metric. positiveOnly skips
// non-positive values (volatility of zero means "unknown", not "riskless").
func weightedMetric(ctx models.PortfolioContext, metric map[string]float64, positiveOnly bool) (float64, bool) {
	total := 0.0
	found := false
	forEachWeight(ctx, func(isin string, weight float64) {
		if v, ok := metric[isin]; ok && (!positiveOnly || v > 0) {
			total += v * weight
			found = true
		}
	})
	return total, found
}

// weightedAbsMetric is weightedMetric over absolute values, for metrics
// like drawdown reported with either sign.
func weightedAbsMetric(ctx models.PortfolioContext, metric map[string]float64) (float64, bool) {
	total := 0.0
	found := false
	forEachWeight(ctx, func(isin string, weight float64) {
		if v, ok := metric[isin]; ok {
			total += math.Abs(v) * weight
			found = true
		}
	})
	return total, found
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func clamp01Signed(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
