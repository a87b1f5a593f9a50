package sequences

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// Pattern is one named sequence-generation strategy. Each pattern takes the
// categorised candidate lists and composes them into ordered sequences its
// strategy considers worth evaluating; the registry owns which patterns run.
type Pattern interface {
	// Name returns the unique identifier this pattern registers under.
	Name() string

	// DefaultParams returns the pattern's tunable parameters with defaults.
	DefaultParams() map[string]interface{}

	// Generate composes candidate actions into sequences. Implementations
	// must be deterministic for identical inputs.
	Generate(opportunities domain.OpportunitiesByCategory, ctx *domain.OpportunityContext, params map[string]interface{}) []domain.ActionSequence
}

// PatternRegistry maps pattern names to pattern values.
type PatternRegistry struct {
	patterns map[string]Pattern
	order    []string
	log      zerolog.Logger
}

// NewPatternRegistry creates an empty registry.
func NewPatternRegistry(log zerolog.Logger) *PatternRegistry {
	return &PatternRegistry{
		patterns: make(map[string]Pattern),
		log:      log.With().Str("component", "pattern_registry").Logger(),
	}
}

// Register adds a pattern, keeping first-registration order for
// deterministic generation across runs.
func (r *PatternRegistry) Register(p Pattern) {
	if _, exists := r.patterns[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.patterns[p.Name()] = p
}

// Get returns the named pattern, or nil.
func (r *PatternRegistry) Get(name string) Pattern {
	return r.patterns[name]
}

// Names returns the registered pattern names in registration order.
func (r *PatternRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GenerateAll runs every enabled pattern in registration order and
// concatenates their sequences. Per-pattern failures cannot happen by
// construction (patterns return, never error); an empty result from one
// pattern simply contributes nothing.
func (r *PatternRegistry) GenerateAll(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) []domain.ActionSequence {
	enabled := make(map[string]bool)
	if config != nil {
		for _, name := range config.GetEnabledPatterns() {
			enabled[name] = true
		}
	} else {
		for _, name := range r.order {
			enabled[name] = true
		}
	}

	var all []domain.ActionSequence
	for _, name := range r.order {
		if !enabled[name] {
			continue
		}
		p := r.patterns[name]

		params := p.DefaultParams()
		if config != nil {
			for k, v := range config.GetPatternParams(name) {
				params[k] = v
			}
		}

		sequences := p.Generate(opportunities, ctx, params)
		if len(sequences) > 0 {
			r.log.Debug().
				Str("pattern", name).
				Int("sequences", len(sequences)).
				Msg("Pattern generated sequences")
		}
		all = append(all, sequences...)
	}

	return all
}

// NewPopulatedPatternRegistry registers the full pattern set in a fixed
// order, combinatorial last so the cheap targeted patterns claim their
// hashes before the exhaustive pool floods in.
func NewPopulatedPatternRegistry(log zerolog.Logger, exhaustive *ExhaustiveGenerator) *PatternRegistry {
	r := NewPatternRegistry(log)

	r.Register(&DirectBuyPattern{})
	r.Register(&ProfitTakingPattern{})
	r.Register(&RebalancePattern{})
	r.Register(&AveragingDownPattern{})
	r.Register(&SingleBestPattern{})
	r.Register(&MultiSellPattern{})
	r.Register(&MixedStrategyPattern{})
	r.Register(&OpportunityFirstPattern{})
	r.Register(&DeepRebalancePattern{})
	r.Register(&CashGenerationPattern{})
	r.Register(&CostOptimizedPattern{})
	r.Register(&AdaptivePattern{})
	r.Register(&MarketRegimePattern{})
	r.Register(&CombinatorialPattern{generator: exhaustive})

	return r
}
