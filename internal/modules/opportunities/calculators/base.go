// Package calculators implements the six opportunity calculators: each one
// scans the portfolio snapshot for a single kind of trade (profit taking,
// averaging down, rebalancing sells/buys, opportunity buys, weight-based
// moves toward optimiser targets) and emits
// priced, prioritised candidates plus the securities its rules excluded.
package calculators

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// OpportunityCalculator is the capability every registered calculator
// implements.
type OpportunityCalculator interface {
	// Name returns the unique identifier for this calculator.
	Name() string

	// Category returns the opportunity category this calculator produces.
	Category() domain.OpportunityCategory

	// Calculate identifies trading opportunities based on the opportunity
	// context, returning candidates plus the securities each rule
	// pre-filtered.
	Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) (domain.CalculatorResult, error)
}

// BaseCalculator provides the named logger every calculator embeds.
type BaseCalculator struct {
	log zerolog.Logger
}

// NewBaseCalculator creates a base calculator with logging.
func NewBaseCalculator(log zerolog.Logger, name string) *BaseCalculator {
	return &BaseCalculator{
		log: log.With().Str("calculator", name).Logger(),
	}
}

// GetFloatParam retrieves a float parameter with a default value.
func GetFloatParam(params map[string]interface{}, key string, defaultValue float64) float64 {
	if params == nil {
		return defaultValue
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return defaultValue
}

// GetIntParam retrieves an int parameter with a default value.
func GetIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if params == nil {
		return defaultValue
	}
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultValue
}

// GetBoolParam retrieves a bool parameter with a default value.
func GetBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if params == nil {
		return defaultValue
	}
	if v, ok := params[key].(bool); ok {
		return v
	}
	return defaultValue
}

// configFrom extracts the planner configuration threaded through params by
// the registry, defaulting when absent.
func configFrom(params map[string]interface{}) *domain.PlannerConfiguration {
	if cfg, ok := params["config"].(*domain.PlannerConfiguration); ok && cfg != nil {
		return cfg
	}
	return domain.NewDefaultConfiguration()
}

// RoundToLotSize rounds a quantity to a whole number of lots: down when
// that still leaves at least one lot, otherwise up, otherwise zero.
func RoundToLotSize(quantity int, lotSize int) int {
	if lotSize <= 0 {
		return quantity
	}

	if down := (quantity / lotSize) * lotSize; down >= lotSize {
		return down
	}
	if up := ((quantity + lotSize - 1) / lotSize) * lotSize; up >= lotSize {
		return up
	}
	return 0
}

// contains checks if a string slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// abs returns the absolute value of a float.
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// tagsFor fetches a security's tags when tag filtering is on; a nil repo or
// lookup failure yields no tags, which every caller treats as "no boost,
// no tag-based gate".
func tagsFor(repo SecurityRepository, symbol string, config *domain.PlannerConfiguration) []string {
	if repo == nil || config == nil || !config.EnableTagFiltering {
		return nil
	}
	tags, err := repo.GetTagsForSecurity(symbol)
	if err != nil {
		return nil
	}
	return tags
}

// candidateSet turns a tag filter's symbol list into a lookup set. A nil
// return means "no tag restriction" (filtering off or unavailable); an
// empty set means the filter ran and nothing qualified.
func candidateSet(symbols []string, err error) map[string]bool {
	if err != nil {
		return nil
	}
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return set
}

// ApplyQuantumWarningPenalty dampens priority on securities carrying a
// quantum bubble warning. Averaging down takes the smallest penalty (the
// position already exists); new buys take the full one; sells none.
func ApplyQuantumWarningPenalty(priority float64, securityTags []string, calculatorType string) float64 {
	if !contains(securityTags, "quantum-bubble-warning") {
		return priority
	}

	switch calculatorType {
	case "averaging_down":
		return priority * 0.9
	case "profit_taking", "rebalance_sells":
		return priority
	default:
		return priority * 0.7
	}
}

// ApplyTagBasedPriorityBoosts scales priority by the security's tags:
// quality and dividend tags boost, risk tags boost or dampen by side, and
// performance tags push sells of stale or overstretched positions.
func ApplyTagBasedPriorityBoosts(priority float64, securityTags []string, calculatorType string, _ ...SecurityRepository) float64 {
	if len(securityTags) == 0 {
		return priority
	}

	buySide := calculatorType == "opportunity_buys" || calculatorType == "averaging_down" ||
		calculatorType == "rebalance_buys" || calculatorType == "weight_based"
	sellSide := calculatorType == "profit_taking" || calculatorType == "rebalance_sells"

	multiplier := 1.0

	if buySide {
		switch {
		case contains(securityTags, "low-risk"):
			multiplier *= 1.15
		case contains(securityTags, "medium-risk"):
			multiplier *= 1.05
		case contains(securityTags, "high-risk"):
			multiplier *= 0.90
		}
		if contains(securityTags, "meets-target-return") {
			multiplier *= 1.10
		}
	}

	for tag, boost := range qualityBoosts {
		if contains(securityTags, tag) {
			multiplier *= boost
		}
	}

	if sellSide {
		for tag, boost := range sellSignalBoosts {
			if contains(securityTags, tag) {
				multiplier *= boost
			}
		}
	}

	return priority * multiplier
}

// qualityBoosts apply to every calculator: better securities deserve
// attention whichever side of the trade they are on.
var qualityBoosts = map[string]float64{
	"strong-fundamentals":   1.12,
	"consistent-grower":     1.10,
	"stable":                1.08,
	"dividend-focused":      1.10,
	"dividend-total-return": 1.12,
	"growth":                1.08,
	"value":                 1.08,
}

// sellSignalBoosts push the sell calculators toward positions whose run
// looks over.
var sellSignalBoosts = map[string]float64{
	"unsustainable-gains": 1.25,
	"underperforming":     1.20,
	"stagnant":            1.15,
}
