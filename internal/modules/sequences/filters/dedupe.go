package filters

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// DedupeFilter drops sequences whose hash has already been seen, keeping
// the first occurrence. Several patterns can propose the same trade set
// (multi_sell and profit_taking both emit single sells, for instance), and
// evaluating one of them is enough.
type DedupeFilter struct {
	*BaseFilter
}

// NewDedupeFilter creates a new deduplication filter.
func NewDedupeFilter(log zerolog.Logger) *DedupeFilter {
	return &DedupeFilter{BaseFilter: NewBaseFilter(log, "dedupe")}
}

// Name returns the filter name.
func (f *DedupeFilter) Name() string { return "dedupe" }

// Filter keeps the first sequence per hash. Sequences without a hash pass
// through untouched.
func (f *DedupeFilter) Filter(sequences []domain.ActionSequence, _ map[string]interface{}) ([]domain.ActionSequence, error) {
	seen := make(map[string]bool, len(sequences))
	result := sequences[:0:0]

	for _, seq := range sequences {
		if seq.SequenceHash != "" {
			if seen[seq.SequenceHash] {
				continue
			}
			seen[seq.SequenceHash] = true
		}
		result = append(result, seq)
	}

	if dropped := len(sequences) - len(result); dropped > 0 {
		f.log.Debug().Int("duplicates_removed", dropped).Msg("Deduplicated sequences")
	}

	return result, nil
}
