package calculators

import (
	"fmt"
	"sync"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// ProgressUpdate reports one calculator's completion during opportunity
// identification.
type ProgressUpdate struct {
	Phase    string
	SubPhase string
	Current  int
	Total    int
	Message  string
	Details  map[string]any
}

// ProgressCallback receives progress updates; nil callbacks are ignored.
type ProgressCallback func(update ProgressUpdate)

// CalculatorRegistry holds the opportunity calculators by name. Which ones
// run for a request comes from the planner configuration's enabled set.
type CalculatorRegistry struct {
	mu          sync.RWMutex
	calculators map[string]OpportunityCalculator
	log         zerolog.Logger
}

// NewCalculatorRegistry creates an empty calculator registry.
func NewCalculatorRegistry(log zerolog.Logger) *CalculatorRegistry {
	return &CalculatorRegistry{
		calculators: make(map[string]OpportunityCalculator),
		log:         log.With().Str("component", "calculator_registry").Logger(),
	}
}

// NewPopulatedRegistry creates a registry with the full calculator set.
func NewPopulatedRegistry(tagFilter TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *CalculatorRegistry {
	registry := NewCalculatorRegistry(log)

	registry.Register(NewProfitTakingCalculator(tagFilter, securityRepo, log))
	registry.Register(NewAveragingDownCalculator(tagFilter, securityRepo, log))
	registry.Register(NewRebalanceSellsCalculator(tagFilter, securityRepo, log))
	registry.Register(NewRebalanceBuysCalculator(tagFilter, securityRepo, log))
	registry.Register(NewOpportunityBuysCalculator(tagFilter, securityRepo, log))
	registry.Register(NewWeightBasedCalculator(securityRepo, log))

	log.Info().Int("calculators", len(registry.calculators)).Msg("Calculator registry initialized")
	return registry
}

// Register adds a calculator under its own name.
func (r *CalculatorRegistry) Register(calculator OpportunityCalculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[calculator.Name()] = calculator
	r.log.Debug().
		Str("name", calculator.Name()).
		Str("category", string(calculator.Category())).
		Msg("Registered calculator")
}

// Get retrieves a calculator by name.
func (r *CalculatorRegistry) Get(name string) (OpportunityCalculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	calculator, ok := r.calculators[name]
	if !ok {
		return nil, fmt.Errorf("calculator not found: %s", name)
	}
	return calculator, nil
}

// GetEnabled returns the calculators the configuration enables, in the
// configuration's order. A nil configuration enables everything registered.
func (r *CalculatorRegistry) GetEnabled(config *domain.PlannerConfiguration) []OpportunityCalculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if config == nil {
		return r.listLocked()
	}

	var enabled []OpportunityCalculator
	for _, name := range config.GetEnabledCalculators() {
		if calculator, ok := r.calculators[name]; ok {
			enabled = append(enabled, calculator)
		}
	}
	return enabled
}

// List returns every registered calculator.
func (r *CalculatorRegistry) List() []OpportunityCalculator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *CalculatorRegistry) listLocked() []OpportunityCalculator {
	out := make([]OpportunityCalculator, 0, len(r.calculators))
	for _, c := range r.calculators {
		out = append(out, c)
	}
	return out
}

// IdentifyOpportunities runs the enabled calculators and returns the
// candidate lists by category.
func (r *CalculatorRegistry) IdentifyOpportunities(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) (domain.OpportunitiesByCategory, error) {
	result, err := r.IdentifyOpportunitiesWithExclusions(ctx, config)
	if err != nil {
		return nil, err
	}
	return result.ToOpportunitiesByCategory(), nil
}

// IdentifyOpportunitiesWithExclusions runs the enabled calculators and
// aggregates candidates plus pre-filtered securities per category. One
// calculator failing is logged and skipped, never fatal for the batch.
func (r *CalculatorRegistry) IdentifyOpportunitiesWithExclusions(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) (domain.OpportunitiesResultByCategory, error) {
	return r.IdentifyOpportunitiesWithProgress(ctx, config, nil)
}

// IdentifyOpportunitiesWithProgress is IdentifyOpportunitiesWithExclusions
// with a per-calculator progress callback.
func (r *CalculatorRegistry) IdentifyOpportunitiesWithProgress(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	progressCallback ProgressCallback,
) (domain.OpportunitiesResultByCategory, error) {
	enabled := r.GetEnabled(config)
	results := make(domain.OpportunitiesResultByCategory)

	r.log.Info().Int("enabled_calculators", len(enabled)).Msg("Identifying opportunities")

	totalCandidates := 0
	totalPreFiltered := 0

	for i, calculator := range enabled {
		name := calculator.Name()

		var params map[string]interface{}
		if config != nil {
			params = config.GetCalculatorParams(name)
		} else {
			params = make(map[string]interface{})
		}
		params["config"] = config

		result, err := calculator.Calculate(ctx, params)
		if err != nil {
			r.log.Error().Err(err).Str("calculator", name).Msg("Calculator failed")
			continue
		}

		category := calculator.Category()
		merged := results[category]
		merged.Candidates = append(merged.Candidates, result.Candidates...)
		merged.PreFiltered = append(merged.PreFiltered, result.PreFiltered...)
		results[category] = merged

		totalCandidates += len(result.Candidates)
		totalPreFiltered += len(result.PreFiltered)

		if progressCallback != nil {
			progressCallback(ProgressUpdate{
				Phase:    "opportunity_identification",
				SubPhase: name,
				Current:  i + 1,
				Total:    len(enabled),
				Message:  fmt.Sprintf("Completed %s", name),
				Details: map[string]any{
					"candidates":         len(result.Candidates),
					"pre_filtered":       len(result.PreFiltered),
					"calculators_total":  len(enabled),
					"calculators_done":   i + 1,
					"candidates_so_far":  totalCandidates,
					"filtered_so_far":    totalPreFiltered,
					"current_calculator": name,
				},
			})
		}
	}

	r.log.Info().
		Int("total_candidates", totalCandidates).
		Int("total_pre_filtered", totalPreFiltered).
		Int("categories", len(results)).
		Msg("Opportunity identification complete")

	return results, nil
}
