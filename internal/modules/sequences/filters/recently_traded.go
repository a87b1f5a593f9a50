package filters

import (
	"time"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// DefaultSameSideCooloffDays suppresses repeating the same side on a symbol
// traded recently: selling what was just sold again, or re-buying a fresh buy.
const DefaultSameSideCooloffDays = 7

// RecentTradeLookup reports the most recent same-side trade timestamp for a
// symbol, or ok=false when it has not been traded on that side.
type RecentTradeLookup interface {
	LastTradeAt(symbol, side string) (t time.Time, ok bool)
}

// RecentlyTradedFilter drops sequences containing a same-side trade on a
// symbol traded within the cooloff window.
type RecentlyTradedFilter struct {
	*BaseFilter
	lookup RecentTradeLookup
	now    func() time.Time
}

// NewRecentlyTradedFilter creates the filter. lookup may be nil, in which
// case every sequence passes.
func NewRecentlyTradedFilter(log zerolog.Logger, lookup RecentTradeLookup) *RecentlyTradedFilter {
	return &RecentlyTradedFilter{
		BaseFilter: NewBaseFilter(log, "recently_traded"),
		lookup:     lookup,
		now:        time.Now,
	}
}

// Name returns the filter name.
func (f *RecentlyTradedFilter) Name() string {
	return "recently_traded"
}

// Filter drops sequences repeating a recent same-side trade.
// Params: "same_side_cooloff_days" (int, default 7).
func (f *RecentlyTradedFilter) Filter(
	sequences []domain.ActionSequence,
	params map[string]interface{},
) ([]domain.ActionSequence, error) {
	if f.lookup == nil || len(sequences) == 0 {
		return sequences, nil
	}

	cooloffDays := GetIntParam(params, "same_side_cooloff_days", DefaultSameSideCooloffDays)
	if cooloffDays <= 0 {
		return sequences, nil
	}
	cutoff := f.now().AddDate(0, 0, -cooloffDays)

	var result []domain.ActionSequence
	dropped := 0

	for _, seq := range sequences {
		recent := false
		for _, action := range seq.Actions {
			if t, ok := f.lookup.LastTradeAt(action.Symbol, action.Side); ok && t.After(cutoff) {
				recent = true
				break
			}
		}
		if recent {
			dropped++
			continue
		}
		result = append(result, seq)
	}

	if dropped > 0 {
		f.log.Info().
			Int("input", len(sequences)).
			Int("dropped", dropped).
			Int("cooloff_days", cooloffDays).
			Msg("Dropped sequences repeating recent same-side trades")
	}

	return result, nil
}
