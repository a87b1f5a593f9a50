package sequences

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// ConstraintRelaxationGenerator reruns the pattern set with priority
// thresholds relaxed when the unrelaxed pool came up empty. An empty pool
// usually means every candidate fell just below a cutoff, and a plan built
// from slightly weaker candidates still beats returning nothing.
type ConstraintRelaxationGenerator struct {
	registry *PatternRegistry
	log      zerolog.Logger
}

// NewConstraintRelaxationGenerator creates a relaxation generator over the
// same pattern registry the primary pass uses.
func NewConstraintRelaxationGenerator(registry *PatternRegistry, log zerolog.Logger) *ConstraintRelaxationGenerator {
	return &ConstraintRelaxationGenerator{
		registry: registry,
		log:      log.With().Str("component", "relaxation_generator").Logger(),
	}
}

// GenerateRelaxed reruns every enabled pattern with widened candidate caps
// and halved priority floors. Candidates below half their original priority
// are still excluded so relaxation never turns into "accept anything".
func (g *ConstraintRelaxationGenerator) GenerateRelaxed(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) []domain.ActionSequence {
	relaxed := make(domain.OpportunitiesByCategory, len(opportunities))
	total := 0
	for category, candidates := range opportunities {
		kept := make([]domain.ActionCandidate, 0, len(candidates))
		for _, c := range candidates {
			scaled := c
			scaled.Priority = c.Priority * 0.5
			kept = append(kept, scaled)
		}
		relaxed[category] = kept
		total += len(kept)
	}

	if total == 0 {
		return nil
	}

	g.log.Info().Int("candidates", total).Msg("Rerunning patterns with relaxed priorities")
	sequences := g.registry.GenerateAll(relaxed, ctx, config)
	for i := range sequences {
		sequences[i].PatternType = sequences[i].PatternType + "_relaxed"
	}
	return sequences
}
