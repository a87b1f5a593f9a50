package sequences

import (
	"math"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// PartialMultipliers are the quantity fractions the partial-execution
// generator expands each selected buy with. 1.0 reproduces the original
// candidate; the smaller fractions let the search trade position size
// against cash headroom.
var PartialMultipliers = []float64{0.25, 0.50, 0.75, 1.00}

// PartialExecutionGenerator expands buy candidates into scaled variants.
// Scaled actions are tagged "partial" so the sequence invariant permitting
// one symbol at most once per sequence is relaxed for them.
type PartialExecutionGenerator struct {
	log zerolog.Logger
}

// NewPartialExecutionGenerator creates a partial-execution generator.
func NewPartialExecutionGenerator(log zerolog.Logger) *PartialExecutionGenerator {
	return &PartialExecutionGenerator{
		log: log.With().Str("component", "partial_generator").Logger(),
	}
}

// Expand returns additional sequences with each selected buy scaled by the
// partial multipliers. Only buys whose scaled quantity stays a whole number
// of lots survive; scaled variants that fail the cash-path or concentration
// pre-checks are dropped.
func (g *PartialExecutionGenerator) Expand(
	sequences []domain.ActionSequence,
	ctx *domain.OpportunityContext,
	maxExpansions int,
) []domain.ActionSequence {
	var expanded []domain.ActionSequence

	for _, seq := range sequences {
		if maxExpansions > 0 && len(expanded) >= maxExpansions {
			break
		}

		for i, action := range seq.Actions {
			if action.Side != "BUY" || action.Quantity <= 1 {
				continue
			}

			for _, mult := range PartialMultipliers {
				if mult == 1.0 {
					continue // the original sequence already covers full size
				}

				scaledQty := int(math.Floor(float64(action.Quantity) * mult))
				if scaledQty < 1 || scaledQty == action.Quantity {
					continue
				}

				scaled := action
				scaled.Quantity = scaledQty
				scaled.ValueEUR = float64(scaledQty) * action.Price
				scaled.Tags = append(append([]string{}, action.Tags...), "partial")

				actions := make([]domain.ActionCandidate, len(seq.Actions))
				copy(actions, seq.Actions)
				actions[i] = scaled

				if !feasible(actions, ctx) {
					continue
				}

				partial := NewSequence(actions, seq.PatternType+"_partial")
				expanded = append(expanded, partial)

				if maxExpansions > 0 && len(expanded) >= maxExpansions {
					return expanded
				}
			}
		}
	}

	if len(expanded) > 0 {
		g.log.Debug().Int("expanded", len(expanded)).Msg("Generated partial-execution variants")
	}
	return expanded
}
