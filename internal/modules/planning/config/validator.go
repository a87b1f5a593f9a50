// Package config validates planner configurations before a request runs.
package config

import (
	"fmt"
	"strings"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
)

// ValidationError names one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every invalid field in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, len(e))
	for i, err := range e {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// rule is one validation check: the field it covers, the predicate that
// passes, and the message when it doesn't.
type rule struct {
	field   string
	ok      func(c *domain.PlannerConfiguration) bool
	message string
}

// rules is the full validation table. Range rules keep the search bounded;
// the structural rules keep the pipeline runnable at all.
var rules = []rule{
	{"name", func(c *domain.PlannerConfiguration) bool { return c.Name != "" }, "name is required"},

	{"max_depth", func(c *domain.PlannerConfiguration) bool { return c.MaxDepth > 0 }, "must be greater than 0"},
	{"max_depth", func(c *domain.PlannerConfiguration) bool { return c.MaxDepth <= 10 }, "must be <= 10 (higher values can cause performance issues)"},
	{"max_opportunities_per_category", func(c *domain.PlannerConfiguration) bool { return c.MaxOpportunitiesPerCategory > 0 }, "must be greater than 0"},
	{"diversity_weight", func(c *domain.PlannerConfiguration) bool { return c.DiversityWeight >= 0 && c.DiversityWeight <= 1 }, "must be between 0.0 and 1.0"},

	{"beam_width", func(c *domain.PlannerConfiguration) bool { return c.BeamWidth >= 1 && c.BeamWidth <= 100 }, "must be between 1 and 100"},
	{"batch_size", func(c *domain.PlannerConfiguration) bool { return c.BatchSize >= 10 && c.BatchSize <= 5000 }, "must be between 10 and 5000"},
	{"max_combinations", func(c *domain.PlannerConfiguration) bool { return c.MaxCombinations >= 1 && c.MaxCombinations <= 10000 }, "must be between 1 and 10000"},
	{"monte_carlo_paths", func(c *domain.PlannerConfiguration) bool { return c.MonteCarloPaths >= 1 && c.MonteCarloPaths <= 500 }, "must be between 1 and 500"},
	{"min_batches_to_evaluate", func(c *domain.PlannerConfiguration) bool { return c.MinBatchesToEvaluate >= 1 }, "must be >= 1"},
	{"plateau_threshold", func(c *domain.PlannerConfiguration) bool { return c.PlateauThreshold >= 1 }, "must be >= 1"},

	{"transaction_cost_fixed", func(c *domain.PlannerConfiguration) bool { return c.TransactionCostFixed >= 0 }, "must be >= 0.0"},
	{"transaction_cost_percent", func(c *domain.PlannerConfiguration) bool { return c.TransactionCostPercent >= 0 && c.TransactionCostPercent <= 0.1 }, "must be between 0.0 and 0.1"},

	{"min_hold_days", func(c *domain.PlannerConfiguration) bool { return c.MinHoldDays >= 0 && c.MinHoldDays <= 365 }, "must be between 0 and 365"},
	{"sell_cooldown_days", func(c *domain.PlannerConfiguration) bool { return c.SellCooldownDays >= 0 && c.SellCooldownDays <= 365 }, "must be between 0 and 365"},
	{"max_loss_threshold", func(c *domain.PlannerConfiguration) bool { return c.MaxLossThreshold >= -1 && c.MaxLossThreshold <= 0 }, "must be between -1.0 and 0.0"},
	{"max_sell_percentage", func(c *domain.PlannerConfiguration) bool { return c.MaxSellPercentage >= 0.01 && c.MaxSellPercentage <= 1 }, "must be between 0.01 and 1.0"},

	{"optimizer_blend", func(c *domain.PlannerConfiguration) bool { return c.OptimizerBlend >= 0 && c.OptimizerBlend <= 1 }, "must be between 0.0 and 1.0"},

	{"opportunity_calculators", func(c *domain.PlannerConfiguration) bool { return len(c.GetEnabledCalculators()) > 0 }, "at least one opportunity calculator must be enabled"},
	{"allow_buy/allow_sell", func(c *domain.PlannerConfiguration) bool { return c.AllowBuy || c.AllowSell }, "at least one of allow_buy or allow_sell must be true"},
}

// Validator validates planner configurations.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the full rule table, collecting every violation.
func (v *Validator) Validate(config *domain.PlannerConfiguration) error {
	var errors ValidationErrors
	for _, r := range rules {
		if !r.ok(config) {
			errors = append(errors, ValidationError{Field: r.field, Message: r.message})
		}
	}
	if len(errors) > 0 {
		return errors
	}
	return nil
}

// ValidateQuick checks only the structural minimum, for load-time use.
func (v *Validator) ValidateQuick(config *domain.PlannerConfiguration) error {
	var errors ValidationErrors
	if config.Name == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "name is required"})
	}
	if config.MaxDepth <= 0 {
		errors = append(errors, ValidationError{Field: "max_depth", Message: "must be greater than 0"})
	}
	if len(errors) > 0 {
		return errors
	}
	return nil
}
