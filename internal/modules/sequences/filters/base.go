// Package filters provides post-generation sequence filters. Each filter is
// registered by name and applied to the generated pool before batching:
// deduplication, correlation-aware pruning, eligibility re-checks,
// recently-traded suppression, and diversity pruning.
package filters

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// SequenceFilter is the capability a registered filter implements.
type SequenceFilter interface {
	// Name returns the unique identifier for this filter.
	Name() string

	// Filter returns the subset of sequences that pass, in input order.
	Filter(sequences []domain.ActionSequence, params map[string]interface{}) ([]domain.ActionSequence, error)
}

// BaseFilter provides common functionality for all filters.
type BaseFilter struct {
	log zerolog.Logger
}

// NewBaseFilter creates a base filter with a named logger.
func NewBaseFilter(log zerolog.Logger, name string) *BaseFilter {
	return &BaseFilter{
		log: log.With().Str("filter", name).Logger(),
	}
}

// GetFloatParam retrieves a float parameter with a default value.
func GetFloatParam(params map[string]interface{}, key string, defaultValue float64) float64 {
	if params == nil {
		return defaultValue
	}
	if val, ok := params[key]; ok {
		if f, ok := val.(float64); ok {
			return f
		}
		if i, ok := val.(int); ok {
			return float64(i)
		}
	}
	return defaultValue
}

// GetIntParam retrieves an int parameter with a default value.
func GetIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if params == nil {
		return defaultValue
	}
	if val, ok := params[key]; ok {
		if i, ok := val.(int); ok {
			return i
		}
		if f, ok := val.(float64); ok {
			return int(f)
		}
	}
	return defaultValue
}
