package filters

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// DefaultDiversityWeight controls how aggressively near-duplicate sequences
// are pruned: a candidate is dropped when an already-accepted sequence has
// Jaccard similarity on (symbol, side) pairs above 1 - weight.
const DefaultDiversityWeight = 0.3

// DiversityFilter prunes sequences that are near-duplicates of an earlier,
// higher-priority one. Evaluating fifty variations of the same trade idea
// wastes evaluator budget the beam could spend on genuinely different plans.
type DiversityFilter struct {
	*BaseFilter
}

// NewDiversityFilter creates the diversity filter.
func NewDiversityFilter(log zerolog.Logger) *DiversityFilter {
	return &DiversityFilter{
		BaseFilter: NewBaseFilter(log, "diversity"),
	}
}

// Name returns the filter name.
func (f *DiversityFilter) Name() string {
	return "diversity"
}

// Filter keeps each sequence unless a previously kept one is too similar.
// Params: "diversity_weight" (float, default 0.3). Input order is preserved,
// so callers should present sequences best-first.
func (f *DiversityFilter) Filter(
	sequences []domain.ActionSequence,
	params map[string]interface{},
) ([]domain.ActionSequence, error) {
	if len(sequences) <= 1 {
		return sequences, nil
	}

	weight := GetFloatParam(params, "diversity_weight", DefaultDiversityWeight)
	if weight <= 0 {
		return sequences, nil
	}
	maxSimilarity := 1.0 - weight

	keptKeys := make([]map[string]bool, 0, len(sequences))
	var result []domain.ActionSequence
	dropped := 0

	for _, seq := range sequences {
		keys := actionKeySet(seq)

		tooSimilar := false
		for _, kept := range keptKeys {
			if jaccard(keys, kept) > maxSimilarity {
				tooSimilar = true
				break
			}
		}
		if tooSimilar {
			dropped++
			continue
		}

		keptKeys = append(keptKeys, keys)
		result = append(result, seq)
	}

	if dropped > 0 {
		f.log.Info().
			Int("input", len(sequences)).
			Int("dropped", dropped).
			Float64("max_similarity", maxSimilarity).
			Msg("Pruned near-duplicate sequences")
	}

	return result, nil
}

func actionKeySet(seq domain.ActionSequence) map[string]bool {
	keys := make(map[string]bool, len(seq.Actions))
	for _, action := range seq.Actions {
		keys[action.Symbol+"|"+action.Side] = true
	}
	return keys
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
