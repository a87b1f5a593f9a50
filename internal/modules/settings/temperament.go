package settings

import (
	"github.com/aristath/trading-planner/internal/utils"
)

// The temperament layer derives the evaluator's tunable parameters from the
// three temperament sliders (risk tolerance, aggression, patience). Each
// parameter's slider, range, and base live in the utils mapping table; this
// file only groups the derived values into the shapes the scorer consumes.

// EvaluationWeights are the four end-state scoring component weights.
type EvaluationWeights struct {
	PortfolioQuality         float64
	DiversificationAlignment float64
	RiskAdjustedMetrics      float64
	EndStateImprovement      float64
}

// Normalize rescales the weights so they sum to 1.0. Zero-sum weights are
// returned unchanged.
func (w EvaluationWeights) Normalize() EvaluationWeights {
	sum := w.PortfolioQuality + w.DiversificationAlignment + w.RiskAdjustedMetrics + w.EndStateImprovement
	if sum == 0 {
		return w
	}
	return EvaluationWeights{
		PortfolioQuality:         w.PortfolioQuality / sum,
		DiversificationAlignment: w.DiversificationAlignment / sum,
		RiskAdjustedMetrics:      w.RiskAdjustedMetrics / sum,
		EndStateImprovement:      w.EndStateImprovement / sum,
	}
}

// ScoringParams are the scoring thresholds the risk-adjusted and deviation
// scorers interpolate against.
type ScoringParams struct {
	DeviationScale       float64 // Scale for diversification deviation penalties
	RegimeBullThreshold  float64 // Regime score above which bull adjustments apply
	RegimeBearThreshold  float64 // Regime score below which bear adjustments apply (negative)
	VolatilityExcellent  float64
	VolatilityGood       float64
	VolatilityAcceptable float64
	DrawdownExcellent    float64
	DrawdownGood         float64
	DrawdownAcceptable   float64
	SharpeExcellent      float64
	SharpeGood           float64
	SharpeAcceptable     float64
}

// sliders reads the three temperament slider values, defaulting each to the
// neutral midpoint.
func (s *Service) sliders() (riskTolerance, aggression, patience float64) {
	return s.GetFloat("risk_tolerance", 0.5),
		s.GetFloat("temperament_aggression", 0.5),
		s.GetFloat("temperament_patience", 0.5)
}

// adjusted resolves one mapped parameter against the current sliders. An
// unmapped name returns its fallback untouched.
func (s *Service) adjusted(name string, fallback float64) float64 {
	mapping, ok := utils.GetTemperamentMapping(name)
	if !ok {
		return fallback
	}
	risk, aggression, patience := s.sliders()
	return utils.GetAdjustedValue(mapping, risk, aggression, patience)
}

// GetAdjustedEvaluationWeights returns the four evaluation weights adjusted
// by temperament and normalised to sum to 1.
func (s *Service) GetAdjustedEvaluationWeights() EvaluationWeights {
	return EvaluationWeights{
		PortfolioQuality:         s.adjusted("evaluation_quality_weight", 0.35),
		DiversificationAlignment: s.adjusted("evaluation_diversification_weight", 0.30),
		RiskAdjustedMetrics:      s.adjusted("evaluation_risk_adjusted_weight", 0.25),
		EndStateImprovement:      s.adjusted("evaluation_improvement_weight", 0.10),
	}.Normalize()
}

// TradeParams are the planner-level trading parameters the temperament
// sliders tune.
type TradeParams struct {
	MinHoldDays          int
	SellCooldownDays     int
	MaxLossThreshold     float64
	MaxSellPercentage    float64
	AveragingDownPercent float64
	WindfallThreshold    float64
	MinGainThreshold     float64
}

// GetAdjustedTradeParams returns the trading parameters adjusted by
// temperament: patient temperaments hold longer, aggressive ones take
// profit earlier and sell larger slices.
func (s *Service) GetAdjustedTradeParams() TradeParams {
	return TradeParams{
		MinHoldDays:          int(s.adjusted("risk_min_hold_days", 90)),
		SellCooldownDays:     int(s.adjusted("risk_sell_cooldown_days", 180)),
		MaxLossThreshold:     s.adjusted("risk_max_loss_threshold", -0.20),
		MaxSellPercentage:    s.adjusted("risk_max_sell_percentage", 0.20),
		AveragingDownPercent: s.adjusted("averaging_down_percent", 0.10),
		WindfallThreshold:    s.adjusted("profit_taking_windfall_threshold", 0.20),
		MinGainThreshold:     s.adjusted("profit_taking_min_gain_threshold", 0.15),
	}
}

// GetAdjustedScoringParams returns the scoring thresholds adjusted by
// temperament.
func (s *Service) GetAdjustedScoringParams() ScoringParams {
	return ScoringParams{
		DeviationScale:       s.adjusted("scoring_deviation_scale", 0.30),
		RegimeBullThreshold:  s.adjusted("scoring_regime_bull_threshold", 0.33),
		RegimeBearThreshold:  s.adjusted("scoring_regime_bear_threshold", -0.33),
		VolatilityExcellent:  s.adjusted("scoring_volatility_excellent", 0.15),
		VolatilityGood:       s.adjusted("scoring_volatility_good", 0.25),
		VolatilityAcceptable: s.adjusted("scoring_volatility_acceptable", 0.35),
		DrawdownExcellent:    s.adjusted("scoring_drawdown_excellent", 0.10),
		DrawdownGood:         s.adjusted("scoring_drawdown_good", 0.20),
		DrawdownAcceptable:   s.adjusted("scoring_drawdown_acceptable", 0.30),
		SharpeExcellent:      s.adjusted("scoring_sharpe_excellent", 2.0),
		SharpeGood:           s.adjusted("scoring_sharpe_good", 1.0),
		SharpeAcceptable:     s.adjusted("scoring_sharpe_acceptable", 0.5),
	}
}
