package settings

// SettingDefaults holds all default values for configurable settings
var SettingDefaults = map[string]interface{}{
	// Security scoring
	"min_security_score":   0.5,  // Minimum score for security to be recommended (0-1)
	"target_annual_return": 0.11, // Optimal CAGR for scoring (11%)
	"market_avg_pe":        22.0, // Reference P/E for valuation

	// Portfolio Optimizer settings
	"optimizer_blend":             0.5,   // 0.0 = pure Mean-Variance, 1.0 = pure HRP
	"optimizer_target_return":     0.11,  // Target annual return for MV component
	"target_return_threshold_pct": 0.80,  // Threshold percentage for target return filtering (0.80 = 80% of target)
	"optimizer_max_cvar_95":       -0.15, // Maximum CVaR at 95% confidence (max -15% loss in tail risk)

	// Cash management
	"min_cash_reserve": 500.0, // Minimum cash to keep (never fully deploy)
	"min_cash_buffer":  0.05,  // Fraction of portfolio kept as cash

	// Trade Frequency Limits settings
	"trade_frequency_limits_enabled":  1.0,  // 1.0 = enabled, 0.0 = disabled
	"min_time_between_trades_minutes": 60.0, // Minimum minutes between any trades
	"max_trades_per_day":              4.0,  // Maximum trades per calendar day
	"max_trades_per_week":             10.0, // Maximum trades per rolling 7-day window

	// Trade Safety settings
	"buy_cooldown_days":  30.0,  // Prevent buying same security within 30 days
	"sell_cooldown_days": 180.0, // Prevent re-trading a sold security within 180 days
	"min_hold_days":      90.0,  // Minimum hold time before selling (days)
	"max_loss_threshold": -0.20, // Never auto-sell below this unrealised return

	// Transaction costs (used by the planner and the worthwhileness filter)
	"transaction_cost_fixed":   2.0,   // Fixed transaction cost per trade in EUR
	"transaction_cost_percent": 0.002, // Variable transaction cost as decimal (0.002 = 0.2%)
	"min_trade_value":          250.0, // Floor on EUR value for worthwhileness

	// Search controls
	"beam_width":       10.0,
	"batch_size":       500.0,
	"max_plan_depth":   4.0,
	"max_combinations": 1000.0,
	"diversity_weight": 0.3,

	// Scenario evaluation
	"enable_monte_carlo":          0.0, // 1.0 = enabled, 0.0 = disabled
	"monte_carlo_paths":           100.0,
	"enable_stochastic_scenarios": 0.0,

	// Temperament sliders (0 = cautious/patient, 1 = aggressive/impatient)
	"risk_tolerance":         0.5,
	"temperament_aggression": 0.5,
	"temperament_patience":   0.5,

	// Virtual test currency (for exercising the planner in research mode)
	"virtual_test_cash": 0.0,
}
