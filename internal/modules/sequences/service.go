package sequences

import (
	"context"

	"github.com/aristath/trading-planner/internal/modules/planning/constraints"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
	"github.com/aristath/trading-planner/internal/modules/sequences/filters"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is how many sequences a streamed batch holds unless the
// caller overrides it.
const DefaultBatchSize = 500

// Service generates and filters trading sequences: pattern generators feed
// a shared pool, partial-execution and constraint-relaxation expand it, the
// filter registry prunes it, and the result is handed over either as one
// slice or as a stream of fixed-size batches.
type Service struct {
	patternRegistry *PatternRegistry
	partials        *PartialExecutionGenerator
	relaxation      *ConstraintRelaxationGenerator
	filterRegistry  *filters.FilterRegistry
	log             zerolog.Logger
}

// NewService creates a sequences service with the full pattern set and the
// given filter registry. Use NewPopulatedFilterRegistry for the standard
// filter chain.
func NewService(
	log zerolog.Logger,
	enforcer *constraints.Enforcer,
	filterRegistry *filters.FilterRegistry,
) *Service {
	exhaustive := NewExhaustiveGenerator(log, enforcer)
	patternRegistry := NewPopulatedPatternRegistry(log, exhaustive)

	return &Service{
		patternRegistry: patternRegistry,
		partials:        NewPartialExecutionGenerator(log),
		relaxation:      NewConstraintRelaxationGenerator(patternRegistry, log),
		filterRegistry:  filterRegistry,
		log:             log.With().Str("module", "sequences").Logger(),
	}
}

// NewPopulatedFilterRegistry builds the standard filter chain: dedupe first,
// then correlation-aware, eligibility, recently-traded, and diversity
// pruning. Any of the three sources may be nil, disabling that filter's
// effect without unregistering it.
func NewPopulatedFilterRegistry(
	log zerolog.Logger,
	correlations filters.CorrelationSource,
	eligibility filters.EligibilityChecker,
	recentTrades filters.RecentTradeLookup,
) *filters.FilterRegistry {
	registry := filters.NewFilterRegistry(log)
	registry.Register(filters.NewDedupeFilter(log))
	registry.Register(filters.NewCorrelationAwareFilter(log, correlations))
	registry.Register(filters.NewEligibilityFilter(log, eligibility))
	registry.Register(filters.NewRecentlyTradedFilter(log, recentTrades))
	registry.Register(filters.NewDiversityFilter(log))
	return registry
}

// generatePool runs the full generation pipeline and returns the filtered
// sequence pool in deterministic order.
func (s *Service) generatePool(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	detailedCallback progress.DetailedCallback,
) []domain.ActionSequence {
	sequences := s.patternRegistry.GenerateAll(opportunities, ctx, config)

	progress.CallDetailed(detailedCallback, progress.Update{
		Phase:    "sequence_generation",
		SubPhase: "patterns",
		Current:  1,
		Total:    3,
		Message:  "pattern generation complete",
		Details:  map[string]any{"sequences": len(sequences)},
	})

	// Constraint relaxation only fires when the primary pass found nothing.
	if len(sequences) == 0 && (config == nil || config.EnableConstraintRelaxationGenerator) {
		sequences = s.relaxation.GenerateRelaxed(opportunities, ctx, config)
	}

	// Partial-execution variants of the pool so far.
	maxExpansions := 0
	if config != nil && config.MaxSequenceAttempts > 0 {
		maxExpansions = config.MaxSequenceAttempts * 10
	}
	sequences = append(sequences, s.partials.Expand(sequences, ctx, maxExpansions)...)

	progress.CallDetailed(detailedCallback, progress.Update{
		Phase:    "sequence_generation",
		SubPhase: "expansion",
		Current:  2,
		Total:    3,
		Message:  "partial-execution expansion complete",
		Details:  map[string]any{"sequences": len(sequences)},
	})

	// Depth cap applies to every generator's output, not just the
	// combinatorial enumeration.
	if config != nil && config.MaxDepth > 0 {
		capped := sequences[:0]
		for _, seq := range sequences {
			if seq.Depth <= config.MaxDepth {
				capped = append(capped, seq)
			}
		}
		sequences = capped
	}

	if s.filterRegistry != nil {
		filtered, err := s.filterRegistry.ApplyFilters(sequences, config)
		if err != nil {
			s.log.Error().Err(err).Msg("Filter application failed, continuing with unfiltered pool")
		} else {
			sequences = filtered
		}
	}

	progress.CallDetailed(detailedCallback, progress.Update{
		Phase:    "sequence_generation",
		SubPhase: "filters",
		Current:  3,
		Total:    3,
		Message:  "filtering complete",
		Details:  map[string]any{"sequences": len(sequences)},
	})

	return sequences
}

// GenerateSequences creates the full filtered sequence pool at once.
// The progressCallback is invoked as generation advances.
func (s *Service) GenerateSequences(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	progressCallback progress.Callback,
) ([]domain.ActionSequence, error) {
	var detailed progress.DetailedCallback
	if progressCallback != nil {
		detailed = func(u progress.Update) {
			progress.Call(progressCallback, u.Current, u.Total, u.Message)
		}
	}

	sequences := s.generatePool(opportunities, ctx, config, detailed)

	s.log.Info().
		Int("final_sequences", len(sequences)).
		Msg("Sequence generation complete")

	return sequences, nil
}

// GenerateSequencesWithDetailedProgress creates sequences with structured
// progress updates for callers that render per-phase metrics.
func (s *Service) GenerateSequencesWithDetailedProgress(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	detailedCallback progress.DetailedCallback,
) ([]domain.ActionSequence, error) {
	sequences := s.generatePool(opportunities, ctx, config, detailedCallback)

	s.log.Info().
		Int("final_sequences", len(sequences)).
		Msg("Sequence generation with detailed progress complete")

	return sequences, nil
}

// StreamBatches generates the sequence pool and delivers it as numbered
// SequenceBatch values on the returned channel. A batch is emitted as soon
// as batchSize sequences have accumulated, or when the pool is exhausted;
// the final batch carries MoreAvailable=false. Cancelling ctx stops
// production; the channel is closed either way.
func (s *Service) StreamBatches(
	ctx context.Context,
	opportunities domain.OpportunitiesByCategory,
	opCtx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	batchSize int,
) <-chan domain.SequenceBatch {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make(chan domain.SequenceBatch)

	go func() {
		defer close(out)

		pool := s.generatePool(opportunities, opCtx, config, nil)
		if len(pool) == 0 {
			select {
			case out <- domain.SequenceBatch{BatchNumber: 0, Sequences: nil, MoreAvailable: false}:
			case <-ctx.Done():
			}
			return
		}

		batchNumber := 0
		for start := 0; start < len(pool); start += batchSize {
			end := start + batchSize
			if end > len(pool) {
				end = len(pool)
			}

			batch := domain.SequenceBatch{
				BatchNumber:   batchNumber,
				Sequences:     pool[start:end],
				MoreAvailable: end < len(pool),
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				s.log.Debug().Int("batch", batchNumber).Msg("Sequence stream cancelled")
				return
			}
			batchNumber++
		}
	}()

	return out
}
