package filters

import (
	"sync"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// DefaultCorrelationThreshold is the pairwise return correlation above which
// two buys in one sequence are considered redundant exposure.
const DefaultCorrelationThreshold = 0.7

// CorrelationSource supplies the pairwise correlation map, keyed
// "ISIN1:ISIN2" with both orderings present. It is refreshed lazily so the
// covariance build only runs when this filter is actually enabled.
type CorrelationSource interface {
	CorrelationMap(isins []string) (map[string]float64, error)
}

// CorrelationAwareFilter drops sequences containing two BUY actions whose
// pairwise return correlation exceeds the threshold. Buying two near-
// identical exposures in one plan concentrates risk the diversification
// score can't see at the allocation level.
type CorrelationAwareFilter struct {
	*BaseFilter
	source CorrelationSource

	mu     sync.Mutex
	cached map[string]float64
}

// NewCorrelationAwareFilter creates the filter. source may be nil, in which
// case every sequence passes.
func NewCorrelationAwareFilter(log zerolog.Logger, source CorrelationSource) *CorrelationAwareFilter {
	return &CorrelationAwareFilter{
		BaseFilter: NewBaseFilter(log, "correlation_aware"),
		source:     source,
	}
}

// Name returns the filter name.
func (f *CorrelationAwareFilter) Name() string {
	return "correlation_aware"
}

// Filter drops sequences with highly correlated buy pairs.
// Params: "correlation_threshold" (float, default 0.7).
func (f *CorrelationAwareFilter) Filter(
	sequences []domain.ActionSequence,
	params map[string]interface{},
) ([]domain.ActionSequence, error) {
	if f.source == nil || len(sequences) == 0 {
		return sequences, nil
	}

	threshold := GetFloatParam(params, "correlation_threshold", DefaultCorrelationThreshold)

	correlations, err := f.correlations(sequences)
	if err != nil {
		f.log.Warn().Err(err).Msg("Correlation data unavailable, passing all sequences")
		return sequences, nil
	}

	var result []domain.ActionSequence
	dropped := 0
	for _, seq := range sequences {
		if f.hasCorrelatedBuys(seq, correlations, threshold) {
			dropped++
			continue
		}
		result = append(result, seq)
	}

	if dropped > 0 {
		f.log.Info().
			Int("input", len(sequences)).
			Int("dropped", dropped).
			Float64("threshold", threshold).
			Msg("Dropped sequences with correlated buys")
	}

	return result, nil
}

func (f *CorrelationAwareFilter) correlations(sequences []domain.ActionSequence) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil {
		return f.cached, nil
	}

	seen := make(map[string]bool)
	var isins []string
	for _, seq := range sequences {
		for _, action := range seq.Actions {
			if action.Side == "BUY" && action.ISIN != "" && !seen[action.ISIN] {
				seen[action.ISIN] = true
				isins = append(isins, action.ISIN)
			}
		}
	}

	m, err := f.source.CorrelationMap(isins)
	if err != nil {
		return nil, err
	}
	f.cached = m
	return m, nil
}

func (f *CorrelationAwareFilter) hasCorrelatedBuys(seq domain.ActionSequence, correlations map[string]float64, threshold float64) bool {
	var buys []string
	for _, action := range seq.Actions {
		if action.Side == "BUY" && action.ISIN != "" {
			buys = append(buys, action.ISIN)
		}
	}

	for i := 0; i < len(buys); i++ {
		for j := i + 1; j < len(buys); j++ {
			if corr, ok := correlations[buys[i]+":"+buys[j]]; ok && corr > threshold {
				return true
			}
		}
	}
	return false
}
