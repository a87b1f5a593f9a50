package calculators

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/quantum"
)

// Quantum decision thresholds: above high the detector blocks, between
// warning and high it only dampens priority.
const (
	quantumHighProbability    = 0.7
	quantumWarningProbability = 0.5
)

// QualityCheckResult is the outcome of the score-based quality gates, used
// when tag filtering is off or a security carries no tags.
type QualityCheckResult struct {
	PassesQualityGate  bool
	IsValueTrap        bool
	IsBubbleRisk       bool
	BelowMinimumReturn bool
	QualityGateReason  string

	// Quantum ensemble outputs
	QuantumValueTrapProb float64
	IsQuantumValueTrap   bool
	IsQuantumWarning     bool
	IsEnsembleValueTrap  bool
	QuantumBubbleProb    float64
}

// CheckQualityGates runs the score-based quality, value-trap, and bubble
// gates over one security. The value-trap decision is an ensemble: the
// classical threshold rules OR the quantum two-state detector may block.
func CheckQualityGates(
	ctx *domain.OpportunityContext,
	isin string,
	isNewPosition bool,
	config *domain.PlannerConfiguration,
) QualityCheckResult {
	result := QualityCheckResult{PassesQualityGate: true}
	if ctx == nil || isin == "" {
		return result
	}

	longTerm := scoreAt(ctx.LongTermScores, isin)
	fundamentals := scoreAt(ctx.FundamentalsScores, isin)
	momentum := scoreAt(ctx.MomentumScores, isin)
	volatility := scoreAt(ctx.Volatility, isin)

	// Quality gate: new positions need both long-term and fundamentals
	// above the floor; existing positions only fail on truly poor scores.
	floor := 0.5
	if !isNewPosition {
		floor = 0.4
	}
	if longTerm > 0 && fundamentals > 0 && (longTerm < floor || fundamentals < floor) {
		result.PassesQualityGate = false
		result.QualityGateReason = "quality_gate_fail"
	}

	// Minimum-return gate: a CAGR far below the target annual return is
	// excluded outright.
	if cagr, ok := lookupScore(ctx.CAGRs, isin); ok {
		targetReturn := ctx.TargetReturn
		if targetReturn <= 0 {
			targetReturn = 0.11
		}
		if cagr < targetReturn*0.25 {
			result.BelowMinimumReturn = true
		}
	}

	// Value-trap detection needs valuation context: how cheap versus the
	// market multiple.
	peVsMarket := 0.0
	havePE := false
	if pe, ok := lookupScore(ctx.PERatios, isin); ok && ctx.MarketAvgPE > 0 {
		peVsMarket = (pe - ctx.MarketAvgPE) / ctx.MarketAvgPE
		havePE = true
	}

	if havePE && peVsMarket < -0.20 {
		// Classical rule: cheap plus weak fundamentals and falling tape.
		if fundamentals > 0 && fundamentals < 0.45 && (momentum < -0.05 || volatility > 0.35) {
			result.IsValueTrap = true
		}

		// Quantum detector over the same inputs.
		calc := quantum.NewQuantumProbabilityCalculator()
		vol := volatility
		if vol == 0 {
			vol = 0.20
		}
		result.QuantumValueTrapProb = calc.CalculateValueTrapProbability(
			peVsMarket, fundamentals, longTerm, momentum, vol, ctx.RegimeScore)

		switch {
		case result.QuantumValueTrapProb > quantumHighProbability:
			result.IsQuantumValueTrap = true
		case result.QuantumValueTrapProb > quantumWarningProbability:
			result.IsQuantumWarning = true
		}
	}

	// Bubble detection: growth carried by volatility rather than quality.
	if cagr, ok := lookupScore(ctx.CAGRs, isin); ok && cagr > 0.25 {
		sharpe := scoreAt(ctx.Sharpe, isin)
		calc := quantum.NewQuantumProbabilityCalculator()
		vol := volatility
		if vol == 0 {
			vol = 0.20
		}
		result.QuantumBubbleProb = calc.CalculateBubbleProbability(
			cagr, sharpe, sharpe, vol, fundamentals, ctx.RegimeScore, nil)
		if result.QuantumBubbleProb > quantumHighProbability || (fundamentals > 0 && fundamentals < 0.45 && vol > 0.40) {
			result.IsBubbleRisk = true
		}
	}

	// Ensemble: either detector blocking marks the trap.
	result.IsEnsembleValueTrap = result.IsValueTrap || result.IsQuantumValueTrap

	return result
}

// scoreAt returns the score for isin, or 0 when the map or key is absent.
func scoreAt(scores map[string]float64, isin string) float64 {
	if scores == nil {
		return 0
	}
	return scores[isin]
}

// lookupScore is scoreAt with presence reporting.
func lookupScore(scores map[string]float64, isin string) (float64, bool) {
	if scores == nil {
		return 0, false
	}
	v, ok := scores[isin]
	return v, ok
}
