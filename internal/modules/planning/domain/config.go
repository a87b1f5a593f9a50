// Package domain provides planning domain models.
package domain

// PlannerConfiguration is the complete tuning surface for one planner
// instance: search controls, costs, risk rules, scenario mode, and the
// enable flags for every calculator, pattern, generator, and filter.
type PlannerConfiguration struct {
	// Planner identification
	Name                  string `json:"name"`
	Description           string `json:"description"`
	EnableBatchGeneration bool   `json:"enable_batch_generation"`

	// Global planner settings
	MaxDepth                    int     `json:"max_depth"`
	MaxOpportunitiesPerCategory int     `json:"max_opportunities_per_category"`
	EnableDiverseSelection      bool    `json:"enable_diverse_selection"`
	DiversityWeight             float64 `json:"diversity_weight"`
	MaxSequenceAttempts         int     `json:"max_sequence_attempts"`

	// Transaction costs
	TransactionCostFixed   float64 `json:"transaction_cost_fixed"`
	TransactionCostPercent float64 `json:"transaction_cost_percent"`

	// Trade permissions
	AllowSell bool `json:"allow_sell"`
	AllowBuy  bool `json:"allow_buy"`

	// Risk management settings
	MinHoldDays          int     `json:"min_hold_days"`
	SellCooldownDays     int     `json:"sell_cooldown_days"`
	MaxLossThreshold     float64 `json:"max_loss_threshold"`
	MaxSellPercentage    float64 `json:"max_sell_percentage"`
	AveragingDownPercent float64 `json:"averaging_down_percent"`

	// Portfolio optimizer settings
	OptimizerBlend        float64 `json:"optimizer_blend"`         // 0.0 = pure MV, 1.0 = pure HRP
	OptimizerTargetReturn float64 `json:"optimizer_target_return"` // Annual target for the MV branch
	MinCashReserve        float64 `json:"min_cash_reserve"`        // EUR kept out of deployment

	// Search controls
	BeamWidth       int `json:"beam_width"`       // Global beam size (top-K kept across batches)
	BatchSize       int `json:"batch_size"`       // Sequences per streamed batch
	MaxCombinations int `json:"max_combinations"` // Cap on combinatorial enumeration, applied before filtering

	// Early termination
	EnableEarlyTermination bool `json:"enable_early_termination"`
	MinBatchesToEvaluate   int  `json:"min_batches_to_evaluate"`
	PlateauThreshold       int  `json:"plateau_threshold"`

	// Scenario evaluation mode (mutually exclusive; deterministic when both off)
	EnableMonteCarlo          bool      `json:"enable_monte_carlo"`
	MonteCarloPaths           int       `json:"monte_carlo_paths"`
	EnableStochasticScenarios bool      `json:"enable_stochastic_scenarios"`
	StochasticShifts          []float64 `json:"stochastic_shifts,omitempty"`

	// Beam objective: "single_objective" keeps top-K by end-state score,
	// "multi_objective" maintains a Pareto front on (end-state,
	// diversification, risk, -cost)
	EvaluationMode string `json:"evaluation_mode"`

	// EnablePrioritySorting scores heavier sequences first inside a batch
	EnablePrioritySorting bool `json:"enable_priority_sorting"`

	// EnableMultiTimeframe blends the end-state score across short, medium,
	// and long horizons (0.2/0.3/0.5)
	EnableMultiTimeframe bool `json:"enable_multi_timeframe"`

	// CostPenaltyFactor subtracts cost/total_value scaled by this factor
	// from the end-state score (0 disables)
	CostPenaltyFactor float64 `json:"cost_penalty_factor"`

	// Opportunity calculator enable flags
	EnableProfitTakingCalc    bool `json:"enable_profit_taking_calc"`
	EnableAveragingDownCalc   bool `json:"enable_averaging_down_calc"`
	EnableOpportunityBuysCalc bool `json:"enable_opportunity_buys_calc"`
	EnableRebalanceSellsCalc  bool `json:"enable_rebalance_sells_calc"`
	EnableRebalanceBuysCalc   bool `json:"enable_rebalance_buys_calc"`
	EnableWeightBasedCalc     bool `json:"enable_weight_based_calc"`

	// Pattern generator enable flags
	EnableDirectBuyPattern        bool `json:"enable_direct_buy_pattern"`
	EnableProfitTakingPattern     bool `json:"enable_profit_taking_pattern"`
	EnableRebalancePattern        bool `json:"enable_rebalance_pattern"`
	EnableAveragingDownPattern    bool `json:"enable_averaging_down_pattern"`
	EnableSingleBestPattern       bool `json:"enable_single_best_pattern"`
	EnableMultiSellPattern        bool `json:"enable_multi_sell_pattern"`
	EnableMixedStrategyPattern    bool `json:"enable_mixed_strategy_pattern"`
	EnableOpportunityFirstPattern bool `json:"enable_opportunity_first_pattern"`
	EnableDeepRebalancePattern    bool `json:"enable_deep_rebalance_pattern"`
	EnableCashGenerationPattern   bool `json:"enable_cash_generation_pattern"`
	EnableCostOptimizedPattern    bool `json:"enable_cost_optimized_pattern"`
	EnableAdaptivePattern         bool `json:"enable_adaptive_pattern"`
	EnableMarketRegimePattern     bool `json:"enable_market_regime_pattern"`

	// Sequence generator enable flags
	EnableCombinatorialGenerator         bool `json:"enable_combinatorial_generator"`
	EnableEnhancedCombinatorialGenerator bool `json:"enable_enhanced_combinatorial_generator"`
	EnableConstraintRelaxationGenerator  bool `json:"enable_constraint_relaxation_generator"`

	// Filter enable flags
	EnableCorrelationAwareFilter bool `json:"enable_correlation_aware_filter"`
	EnableDiversityFilter        bool `json:"enable_diversity_filter"`
	EnableEligibilityFilter      bool `json:"enable_eligibility_filter"`
	EnableRecentlyTradedFilter   bool `json:"enable_recently_traded_filter"`

	// Tag filtering
	EnableTagFiltering bool `json:"enable_tag_filtering"`
}

// NewDefaultConfiguration creates a PlannerConfiguration with default
// settings: every module enabled, full depth, standard costs and limits.
func NewDefaultConfiguration() *PlannerConfiguration {
	return &PlannerConfiguration{
		Name:                        "default",
		EnableBatchGeneration:       true,
		MaxDepth:                    10,
		MaxOpportunitiesPerCategory: 10,
		MaxSequenceAttempts:         20,
		EnableDiverseSelection:      true,
		DiversityWeight:             0.3,
		TransactionCostFixed:        5.0,
		TransactionCostPercent:      0.001,
		AllowSell:                   true,
		AllowBuy:                    true,
		MinHoldDays:                 90,
		SellCooldownDays:            180,
		MaxLossThreshold:            -0.20,
		MaxSellPercentage:           0.20,
		AveragingDownPercent:        0.10,
		OptimizerBlend:              0.5,
		OptimizerTargetReturn:       0.11,
		MinCashReserve:              500.0,
		BeamWidth:                   10,
		BatchSize:                   500,
		MaxCombinations:             1000,
		EnableEarlyTermination:      true,
		MinBatchesToEvaluate:        2,
		PlateauThreshold:            3,
		MonteCarloPaths:             100,
		EvaluationMode:              "single_objective",
		CostPenaltyFactor:           0.1,

		EnableProfitTakingCalc:    true,
		EnableAveragingDownCalc:   true,
		EnableOpportunityBuysCalc: true,
		EnableRebalanceSellsCalc:  true,
		EnableRebalanceBuysCalc:   true,
		EnableWeightBasedCalc:     true,

		EnableDirectBuyPattern:        true,
		EnableProfitTakingPattern:     true,
		EnableRebalancePattern:        true,
		EnableAveragingDownPattern:    true,
		EnableSingleBestPattern:       true,
		EnableMultiSellPattern:        true,
		EnableMixedStrategyPattern:    true,
		EnableOpportunityFirstPattern: true,
		EnableDeepRebalancePattern:    true,
		EnableCashGenerationPattern:   true,
		EnableCostOptimizedPattern:    true,
		EnableAdaptivePattern:         true,
		EnableMarketRegimePattern:     true,

		EnableCombinatorialGenerator:         true,
		EnableEnhancedCombinatorialGenerator: true,
		EnableConstraintRelaxationGenerator:  true,

		EnableCorrelationAwareFilter: true,
		EnableDiversityFilter:        true,
		EnableEligibilityFilter:      true,
		EnableRecentlyTradedFilter:   true,

		EnableTagFiltering: true,
	}
}

// enabledNames collects the names whose flag is set, preserving order.
func enabledNames(entries []struct {
	name    string
	enabled bool
}) []string {
	out := []string{}
	for _, e := range entries {
		if e.enabled {
			out = append(out, e.name)
		}
	}
	return out
}

// GetEnabledCalculators returns the enabled opportunity calculator names.
func (c *PlannerConfiguration) GetEnabledCalculators() []string {
	return enabledNames([]struct {
		name    string
		enabled bool
	}{
		{"profit_taking", c.EnableProfitTakingCalc},
		{"averaging_down", c.EnableAveragingDownCalc},
		{"opportunity_buys", c.EnableOpportunityBuysCalc},
		{"rebalance_sells", c.EnableRebalanceSellsCalc},
		{"rebalance_buys", c.EnableRebalanceBuysCalc},
		{"weight_based", c.EnableWeightBasedCalc},
	})
}

// GetEnabledPatterns returns the enabled pattern generator names.
func (c *PlannerConfiguration) GetEnabledPatterns() []string {
	return enabledNames([]struct {
		name    string
		enabled bool
	}{
		{"direct_buy", c.EnableDirectBuyPattern},
		{"profit_taking", c.EnableProfitTakingPattern},
		{"rebalance", c.EnableRebalancePattern},
		{"averaging_down", c.EnableAveragingDownPattern},
		{"single_best", c.EnableSingleBestPattern},
		{"multi_sell", c.EnableMultiSellPattern},
		{"mixed_strategy", c.EnableMixedStrategyPattern},
		{"opportunity_first", c.EnableOpportunityFirstPattern},
		{"deep_rebalance", c.EnableDeepRebalancePattern},
		{"cash_generation", c.EnableCashGenerationPattern},
		{"cost_optimized", c.EnableCostOptimizedPattern},
		{"adaptive", c.EnableAdaptivePattern},
		{"market_regime", c.EnableMarketRegimePattern},
		{"combinatorial", c.EnableCombinatorialGenerator},
	})
}

// GetEnabledGenerators returns the enabled sequence generator names.
func (c *PlannerConfiguration) GetEnabledGenerators() []string {
	return enabledNames([]struct {
		name    string
		enabled bool
	}{
		{"combinatorial", c.EnableCombinatorialGenerator},
		{"enhanced_combinatorial", c.EnableEnhancedCombinatorialGenerator},
		{"constraint_relaxation", c.EnableConstraintRelaxationGenerator},
	})
}

// GetEnabledFilters returns the enabled filter names.
func (c *PlannerConfiguration) GetEnabledFilters() []string {
	return enabledNames([]struct {
		name    string
		enabled bool
	}{
		{"correlation_aware", c.EnableCorrelationAwareFilter},
		{"diversity", c.EnableDiversityFilter},
		{"eligibility", c.EnableEligibilityFilter},
		{"recently_traded", c.EnableRecentlyTradedFilter},
	})
}

// GetCalculatorParams returns the parameters threaded into one calculator.
func (c *PlannerConfiguration) GetCalculatorParams(name string) map[string]interface{} {
	params := make(map[string]interface{})

	switch name {
	case "profit_taking", "rebalance_sells", "weight_based":
		params["max_sell_percentage"] = c.MaxSellPercentage
		params["min_hold_days"] = float64(c.MinHoldDays)
	case "averaging_down":
		params["averaging_down_percent"] = c.AveragingDownPercent
	}

	return params
}

// GetPatternParams returns the parameters threaded into one pattern.
func (c *PlannerConfiguration) GetPatternParams(name string) map[string]interface{} {
	params := make(map[string]interface{})
	if name == "combinatorial" {
		params["max_depth"] = float64(c.MaxDepth)
		params["max_combinations"] = float64(c.MaxCombinations)
	}
	return params
}

// GetGeneratorParams returns the parameters threaded into one generator.
func (c *PlannerConfiguration) GetGeneratorParams(name string) map[string]interface{} {
	return map[string]interface{}{"max_depth": float64(c.MaxDepth)}
}

// GetFilterParams returns the parameters threaded into one filter.
func (c *PlannerConfiguration) GetFilterParams(name string) map[string]interface{} {
	params := make(map[string]interface{})
	if name == "diversity" && c.EnableDiverseSelection {
		params["diversity_weight"] = c.DiversityWeight
	}
	return params
}
