// Package sequences turns categorised opportunity lists into ordered,
// feasible action sequences: a registry of named pattern generators, a
// combinatorial enumerator, partial-execution and constraint-relaxation
// expansion, post-generation filters, and a streaming batch surface.
package sequences

import (
	"fmt"

	"github.com/aristath/trading-planner/internal/modules/planning/constraints"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
	"github.com/rs/zerolog"
)

// ExhaustiveGenerator enumerates mixed sell-then-buy combinations of the
// candidate pool up to a maximum depth:
// - Collects all opportunities regardless of category
// - Applies constraint filtering (cooloff, ineligibility, allow_buy/sell)
// - Generates all combinations from depth 1 to max_depth, deterministically
// - Uses order-independent hashing for deduplication
// - Prunes cash-infeasible and over-concentrated sequences during generation
type ExhaustiveGenerator struct {
	log      zerolog.Logger
	enforcer *constraints.Enforcer
}

// NewExhaustiveGenerator creates a new exhaustive sequence generator.
func NewExhaustiveGenerator(log zerolog.Logger, enforcer *constraints.Enforcer) *ExhaustiveGenerator {
	return &ExhaustiveGenerator{
		log:      log.With().Str("component", "exhaustive_generator").Logger(),
		enforcer: enforcer,
	}
}

// GenerationConfig contains parameters for sequence generation.
type GenerationConfig struct {
	MaxDepth        int     // Maximum number of actions per sequence
	MaxSequences    int     // Maximum total sequences to generate (0 = unlimited); applied before post-filters
	AvailableCash   float64 // Available cash for feasibility checks
	PruneInfeasible bool    // Whether to prune cash-infeasible sequences during generation

	// Optional progress reporting
	ProgressCallback         progress.Callback
	DetailedProgressCallback progress.DetailedCallback
}

// DefaultGenerationConfig returns sensible defaults for generation.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxDepth:        4,
		MaxSequences:    0,
		AvailableCash:   0,
		PruneInfeasible: true,
	}
}

// Generate creates all valid action sequences from the given opportunities.
// Returns deduplicated sequences in deterministic order.
func (g *ExhaustiveGenerator) Generate(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
	config GenerationConfig,
) []domain.ActionSequence {
	allCandidates := g.collectAndFilter(opportunities, ctx)
	if len(allCandidates) == 0 {
		g.log.Debug().Msg("No valid candidates after filtering")
		return nil
	}

	costFixed, costPct := 2.0, 0.002
	if ctx != nil {
		costFixed = ctx.TransactionCostFixed
		costPct = ctx.TransactionCostPercent
	}

	g.log.Info().
		Int("candidates", len(allCandidates)).
		Int("max_depth", config.MaxDepth).
		Msg("Starting exhaustive generation")

	var sequences []domain.ActionSequence
	seen := make(map[string]bool)
	pruned := 0

	effectiveMaxDepth := config.MaxDepth
	if effectiveMaxDepth > len(allCandidates) {
		effectiveMaxDepth = len(allCandidates)
	}

	for depth := 1; depth <= effectiveMaxDepth; depth++ {
		combos := g.generateCombinations(allCandidates, depth)
		for _, combo := range combos {
			normalized := NormalizeSequence(combo)

			hash := ComputeSequenceHash(normalized)
			if seen[hash] {
				continue
			}
			seen[hash] = true

			if config.PruneInfeasible {
				if config.AvailableCash >= 0 && !CashPathFeasible(normalized, config.AvailableCash, costFixed, costPct) {
					pruned++
					continue
				}
				if !ConcentrationFeasible(normalized, ctx, 0) {
					pruned++
					continue
				}
			}

			sequences = append(sequences, domain.ActionSequence{
				Actions:      normalized,
				Priority:     ComputePriority(normalized),
				Depth:        len(normalized),
				PatternType:  "combinatorial",
				SequenceHash: hash,
			})

			if config.MaxSequences > 0 && len(sequences) >= config.MaxSequences {
				g.log.Info().
					Int("sequences", len(sequences)).
					Msg("Reached max combinations limit")
				return sequences
			}
		}

		progress.Call(config.ProgressCallback, depth, effectiveMaxDepth, "generating sequences")
		progress.CallDetailed(config.DetailedProgressCallback, progress.Update{
			Phase:    "sequence_generation",
			SubPhase: fmt.Sprintf("depth_%d", depth),
			Current:  depth,
			Total:    effectiveMaxDepth,
			Message:  "enumerating combinations",
			Details: map[string]any{
				"candidates_count":      len(allCandidates),
				"current_depth":         depth,
				"combinations_at_depth": len(combos),
				"sequences_generated":   len(sequences),
				"infeasible_pruned":     pruned,
				"sequences":             len(sequences),
				"pruned":                pruned,
			},
		})
	}

	g.log.Info().
		Int("sequences", len(sequences)).
		Int("pruned", pruned).
		Msg("Exhaustive generation complete")

	return sequences
}

// collectAndFilter gathers all opportunities and applies constraint filtering.
func (g *ExhaustiveGenerator) collectAndFilter(
	opportunities domain.OpportunitiesByCategory,
	ctx *domain.OpportunityContext,
) []domain.ActionCandidate {
	var all []domain.ActionCandidate

	for category, candidates := range opportunities {
		for _, c := range candidates {
			if g.enforcer != nil {
				feasible, reason := g.enforcer.IsActionFeasible(c, ctx)
				if !feasible {
					g.log.Debug().
						Str("symbol", c.Symbol).
						Str("side", c.Side).
						Str("category", string(category)).
						Str("reason", reason).
						Msg("Candidate filtered")
					continue
				}
			}
			all = append(all, c)
		}
	}

	// Deterministic order: priority descending, ISIN then side as
	// tie-breakers so equal-priority runs enumerate identically.
	sortCandidates(all)

	return all
}

// generateCombinations returns all k-element subsets of items (n choose k)
// in lexicographic index order.
func (g *ExhaustiveGenerator) generateCombinations(items []domain.ActionCandidate, k int) [][]domain.ActionCandidate {
	n := len(items)
	if k > n || k <= 0 {
		return nil
	}

	var result [][]domain.ActionCandidate
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}

	for {
		combo := make([]domain.ActionCandidate, k)
		for i, idx := range indices {
			combo[i] = items[idx]
		}
		result = append(result, combo)

		i := k - 1
		for i >= 0 && indices[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}

		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}

	return result
}
