package filters

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// FilterRegistry maps filter names to filter values. Filters run in the
// order they are applied by ApplyFilters, each seeing the previous filter's
// output.
type FilterRegistry struct {
	filters map[string]SequenceFilter
	order   []string
	log     zerolog.Logger
}

// NewFilterRegistry creates an empty registry.
func NewFilterRegistry(log zerolog.Logger) *FilterRegistry {
	return &FilterRegistry{
		filters: make(map[string]SequenceFilter),
		log:     log.With().Str("component", "filter_registry").Logger(),
	}
}

// Register adds a filter. Later registrations with the same name replace the
// earlier one but keep its position in the application order.
func (r *FilterRegistry) Register(f SequenceFilter) {
	if _, exists := r.filters[f.Name()]; !exists {
		r.order = append(r.order, f.Name())
	}
	r.filters[f.Name()] = f
}

// Get returns the named filter, or nil.
func (r *FilterRegistry) Get(name string) SequenceFilter {
	return r.filters[name]
}

// Names returns the registered filter names in application order.
func (r *FilterRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ApplyFilters runs every registered-and-enabled filter over the sequences.
// Dedupe always runs; the rest consult config.GetEnabledFilters. A filter
// error is logged and that filter skipped, never failing the pool.
func (r *FilterRegistry) ApplyFilters(
	sequences []domain.ActionSequence,
	config *domain.PlannerConfiguration,
) ([]domain.ActionSequence, error) {
	enabled := map[string]bool{"dedupe": true, "diversity": true}
	if config != nil {
		enabled = map[string]bool{"dedupe": true}
		for _, name := range config.GetEnabledFilters() {
			enabled[name] = true
		}
	}

	current := sequences
	for _, name := range r.order {
		if !enabled[name] {
			continue
		}
		f := r.filters[name]

		var params map[string]interface{}
		if config != nil {
			params = config.GetFilterParams(name)
		}

		filtered, err := f.Filter(current, params)
		if err != nil {
			r.log.Warn().Err(err).Str("filter", name).Msg("Filter failed, skipping")
			continue
		}

		if len(filtered) != len(current) {
			r.log.Debug().
				Str("filter", name).
				Int("input", len(current)).
				Int("output", len(filtered)).
				Msg("Filter applied")
		}
		current = filtered
	}

	return current, nil
}
