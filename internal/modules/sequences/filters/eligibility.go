package filters

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// EligibilityChecker re-applies the safety gate's per-action checks. Time
// may have advanced between opportunity identification and generation (long
// enumerations, queued batches), so a candidate that was eligible at
// identification can have slipped into a cooldown window by the time its
// sequence is assembled.
type EligibilityChecker interface {
	IsEligible(action domain.ActionCandidate) bool
}

// EligibilityFilter drops sequences containing any action that no longer
// passes the safety checks.
type EligibilityFilter struct {
	*BaseFilter
	checker EligibilityChecker
}

// NewEligibilityFilter creates the filter. checker may be nil, in which case
// every sequence passes.
func NewEligibilityFilter(log zerolog.Logger, checker EligibilityChecker) *EligibilityFilter {
	return &EligibilityFilter{
		BaseFilter: NewBaseFilter(log, "eligibility"),
		checker:    checker,
	}
}

// Name returns the filter name.
func (f *EligibilityFilter) Name() string {
	return "eligibility"
}

// Filter drops sequences with any ineligible action.
func (f *EligibilityFilter) Filter(
	sequences []domain.ActionSequence,
	_ map[string]interface{},
) ([]domain.ActionSequence, error) {
	if f.checker == nil || len(sequences) == 0 {
		return sequences, nil
	}

	var result []domain.ActionSequence
	dropped := 0

	for _, seq := range sequences {
		eligible := true
		for _, action := range seq.Actions {
			if !f.checker.IsEligible(action) {
				eligible = false
				break
			}
		}
		if !eligible {
			dropped++
			continue
		}
		result = append(result, seq)
	}

	if dropped > 0 {
		f.log.Info().
			Int("input", len(sequences)).
			Int("dropped", dropped).
			Msg("Dropped sequences with ineligible actions")
	}

	return result, nil
}
