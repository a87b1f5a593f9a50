package utils

// TemperamentMapping describes how one tunable parameter responds to the
// user's temperament sliders. The adjusted value interpolates linearly from
// Min (slider at 0) through Base (slider at 0.5) to Max (slider at 1);
// Inverted flips the slider first. Slider selects which of the three
// temperament dimensions drives the parameter.
type TemperamentMapping struct {
	Slider   string // "risk_tolerance", "aggression", or "patience"
	Min      float64
	Base     float64
	Max      float64
	Inverted bool
}

const (
	SliderRiskTolerance = "risk_tolerance"
	SliderAggression    = "aggression"
	SliderPatience      = "patience"
)

// GetAdjustedValue resolves a mapping against the current slider values.
func GetAdjustedValue(m TemperamentMapping, riskTolerance, aggression, patience float64) float64 {
	var slider float64
	switch m.Slider {
	case SliderAggression:
		slider = aggression
	case SliderPatience:
		slider = patience
	default:
		slider = riskTolerance
	}

	if slider < 0 {
		slider = 0
	} else if slider > 1 {
		slider = 1
	}
	if m.Inverted {
		slider = 1 - slider
	}

	if slider < 0.5 {
		return m.Min + (m.Base-m.Min)*(slider/0.5)
	}
	return m.Base + (m.Max-m.Base)*((slider-0.5)/0.5)
}

// GetTemperamentMapping returns the mapping for a parameter name, or
// exists=false when the parameter is not temperament-adjusted.
func GetTemperamentMapping(name string) (TemperamentMapping, bool) {
	m, ok := temperamentMappings[name]
	return m, ok
}

// temperamentMappings is the parameter table. Base values match the scoring
// constants; Min/Max bracket how far a slider may push them.
var temperamentMappings = map[string]TemperamentMapping{
	// Evaluation weights (aggression trades risk caution for improvement-chasing)
	"evaluation_quality_weight":         {Slider: SliderAggression, Min: 0.35, Base: 0.30, Max: 0.22},
	"evaluation_diversification_weight": {Slider: SliderRiskTolerance, Min: 0.35, Base: 0.30, Max: 0.24, Inverted: true},
	"evaluation_risk_adjusted_weight":   {Slider: SliderRiskTolerance, Min: 0.35, Base: 0.25, Max: 0.16, Inverted: true},
	"evaluation_improvement_weight":     {Slider: SliderAggression, Min: 0.08, Base: 0.15, Max: 0.30},

	// Scoring thresholds
	"scoring_deviation_scale":       {Slider: SliderRiskTolerance, Min: 0.25, Base: 0.30, Max: 0.40},
	"scoring_regime_bull_threshold": {Slider: SliderAggression, Min: 0.45, Base: 0.33, Max: 0.25},
	"scoring_regime_bear_threshold": {Slider: SliderAggression, Min: -0.25, Base: -0.33, Max: -0.45},
	"scoring_volatility_excellent":  {Slider: SliderRiskTolerance, Min: 0.12, Base: 0.15, Max: 0.18},
	"scoring_volatility_good":       {Slider: SliderRiskTolerance, Min: 0.20, Base: 0.25, Max: 0.30},
	"scoring_volatility_acceptable": {Slider: SliderRiskTolerance, Min: 0.30, Base: 0.35, Max: 0.45},
	"scoring_drawdown_excellent":    {Slider: SliderRiskTolerance, Min: 0.08, Base: 0.10, Max: 0.14},
	"scoring_drawdown_good":         {Slider: SliderRiskTolerance, Min: 0.15, Base: 0.20, Max: 0.25},
	"scoring_drawdown_acceptable":   {Slider: SliderRiskTolerance, Min: 0.25, Base: 0.30, Max: 0.40},
	"scoring_sharpe_excellent":      {Slider: SliderRiskTolerance, Min: 2.2, Base: 2.0, Max: 1.8},
	"scoring_sharpe_good":           {Slider: SliderRiskTolerance, Min: 1.2, Base: 1.0, Max: 0.8},
	"scoring_sharpe_acceptable":     {Slider: SliderRiskTolerance, Min: 0.6, Base: 0.5, Max: 0.4},

	// Profit taking
	"profit_taking_min_gain_threshold": {Slider: SliderAggression, Min: 0.25, Base: 0.15, Max: 0.08},
	"profit_taking_windfall_threshold": {Slider: SliderAggression, Min: 0.30, Base: 0.20, Max: 0.12},
	"profit_taking_sell_percentage":    {Slider: SliderAggression, Min: 0.10, Base: 0.20, Max: 0.40},

	// Averaging down
	"averaging_down_min_loss_threshold": {Slider: SliderRiskTolerance, Min: -0.03, Base: -0.05, Max: -0.08},
	"averaging_down_max_loss_threshold": {Slider: SliderRiskTolerance, Min: -0.12, Base: -0.18, Max: -0.25},
	"averaging_down_percent":            {Slider: SliderRiskTolerance, Min: 0.05, Base: 0.10, Max: 0.20},

	// Opportunity buys
	"opportunity_buys_min_score":     {Slider: SliderRiskTolerance, Min: 0.75, Base: 0.65, Max: 0.55},
	"opportunity_buys_max_positions": {Slider: SliderAggression, Min: 2, Base: 3, Max: 5},

	// Risk management
	"risk_min_hold_days":           {Slider: SliderPatience, Min: 30, Base: 90, Max: 180},
	"risk_sell_cooldown_days":      {Slider: SliderPatience, Min: 60, Base: 180, Max: 365},
	"risk_max_loss_threshold":      {Slider: SliderRiskTolerance, Min: -0.12, Base: -0.20, Max: -0.30},
	"risk_max_sell_percentage":     {Slider: SliderAggression, Min: 0.10, Base: 0.20, Max: 0.50},
	"risk_max_trades_per_day":      {Slider: SliderAggression, Min: 2, Base: 4, Max: 8},
	"risk_max_trades_per_week":     {Slider: SliderAggression, Min: 5, Base: 10, Max: 20},
	"risk_min_time_between_trades": {Slider: SliderAggression, Min: 15, Base: 5, Max: 2},

	// Rebalancing
	"rebalancing_min_overweight_threshold": {Slider: SliderPatience, Min: 0.003, Base: 0.005, Max: 0.010},
}
