package calculators

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
)

// ExclusionCollector accumulates the securities a calculator filters out
// and the rules that filtered them, aggregated per security. Reasons the
// user has dismissed are flagged rather than hidden, so the caller can see
// both what fired and what the user chose to ignore.
type ExclusionCollector struct {
	calculator string
	dismissed  domain.DismissedFilters
	order      []string
	bySecurity map[string]*domain.PreFilteredSecurity
}

// NewExclusionCollector creates a collector for one calculator. An optional
// DismissedFilters table marks reasons the user has dismissed.
func NewExclusionCollector(calculator string, dismissed ...domain.DismissedFilters) *ExclusionCollector {
	var d domain.DismissedFilters
	if len(dismissed) > 0 {
		d = dismissed[0]
	}
	return &ExclusionCollector{
		calculator: calculator,
		dismissed:  d,
		bySecurity: make(map[string]*domain.PreFilteredSecurity),
	}
}

// Add records one exclusion reason for a security. An empty ISIN, or a
// reason already recorded for that security, is ignored.
func (c *ExclusionCollector) Add(isin, symbol, name, reason string) {
	if isin == "" {
		return
	}
	key := isin

	entry, ok := c.bySecurity[key]
	if !ok {
		entry = &domain.PreFilteredSecurity{
			ISIN:       isin,
			Symbol:     symbol,
			Name:       name,
			Calculator: c.calculator,
		}
		c.bySecurity[key] = entry
		c.order = append(c.order, key)
	}

	for _, existing := range entry.Reasons {
		if existing.Reason == reason {
			return
		}
	}
	entry.Reasons = append(entry.Reasons, domain.PreFilteredReason{
		Reason:    reason,
		Dismissed: c.dismissed.IsDismissed(isin, c.calculator, reason),
	})
}

// Result returns the collected exclusions in first-seen order.
func (c *ExclusionCollector) Result() []domain.PreFilteredSecurity {
	out := make([]domain.PreFilteredSecurity, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, *c.bySecurity[key])
	}
	return out
}
