// Package universe holds the investment universe: the securities the
// planner may trade, their trade configuration, and their tags. The
// repository is an in-memory store seeded from each planning request's
// securities payload; persistence lives outside this module.
package universe

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SecurityRepository is a concurrency-safe in-memory store of the universe,
// indexed by ISIN (primary) and symbol (boundary identifier).
type SecurityRepository struct {
	mu       sync.RWMutex
	byISIN   map[string]Security
	bySymbol map[string]string // symbol -> ISIN
	order    []string          // ISINs in insertion order, for deterministic GetAll
}

// NewSecurityRepository creates an empty repository.
func NewSecurityRepository() *SecurityRepository {
	return &SecurityRepository{
		byISIN:   make(map[string]Security),
		bySymbol: make(map[string]string),
	}
}

// Create inserts or replaces a security. ISIN is required; symbol is
// indexed when present.
func (r *SecurityRepository) Create(security Security) error {
	if security.ISIN == "" {
		return fmt.Errorf("security %q has no ISIN", security.Symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byISIN[security.ISIN]; !exists {
		r.order = append(r.order, security.ISIN)
	}
	r.byISIN[security.ISIN] = security
	if security.Symbol != "" {
		r.bySymbol[strings.ToUpper(security.Symbol)] = security.ISIN
	}
	return nil
}

// Seed replaces the whole universe with the given securities, e.g. from a
// planning request's payload.
func (r *SecurityRepository) Seed(securities []Security) error {
	r.mu.Lock()
	r.byISIN = make(map[string]Security, len(securities))
	r.bySymbol = make(map[string]string, len(securities))
	r.order = r.order[:0]
	r.mu.Unlock()

	for _, sec := range securities {
		if err := r.Create(sec); err != nil {
			return err
		}
	}
	return nil
}

// GetByISIN returns the security with the given ISIN, or nil when absent.
func (r *SecurityRepository) GetByISIN(isin string) (*Security, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sec, ok := r.byISIN[isin]; ok {
		out := sec
		return &out, nil
	}
	return nil, nil
}

// GetBySymbol returns the security with the given symbol, or nil when absent.
func (r *SecurityRepository) GetBySymbol(symbol string) (*Security, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if isin, ok := r.bySymbol[strings.ToUpper(symbol)]; ok {
		out := r.byISIN[isin]
		return &out, nil
	}
	return nil, nil
}

// GetAll returns every security in insertion order.
func (r *SecurityRepository) GetAll() ([]Security, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Security, 0, len(r.order))
	for _, isin := range r.order {
		out = append(out, r.byISIN[isin])
	}
	return out, nil
}

// GetAllActive returns every security. All securities held by the
// repository are active; inactive ones never enter it.
func (r *SecurityRepository) GetAllActive() ([]Security, error) {
	return r.GetAll()
}

// GetAllActiveTradable returns securities with at least one trade side
// allowed.
func (r *SecurityRepository) GetAllActiveTradable() ([]Security, error) {
	all, _ := r.GetAll()
	out := make([]Security, 0, len(all))
	for _, sec := range all {
		if sec.AllowBuy || sec.AllowSell {
			out = append(out, sec)
		}
	}
	return out, nil
}

// GetByISINs returns the securities matching the given ISINs, in the
// repository's insertion order.
func (r *SecurityRepository) GetByISINs(isins []string) ([]Security, error) {
	want := make(map[string]bool, len(isins))
	for _, isin := range isins {
		want[isin] = true
	}

	all, _ := r.GetAll()
	out := make([]Security, 0, len(isins))
	for _, sec := range all {
		if want[sec.ISIN] {
			out = append(out, sec)
		}
	}
	return out, nil
}

// GetBySymbols returns the securities matching the given symbols.
func (r *SecurityRepository) GetBySymbols(symbols []string) ([]Security, error) {
	want := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		want[strings.ToUpper(symbol)] = true
	}

	all, _ := r.GetAll()
	out := make([]Security, 0, len(symbols))
	for _, sec := range all {
		if want[strings.ToUpper(sec.Symbol)] {
			out = append(out, sec)
		}
	}
	return out, nil
}

// GetByTags returns securities carrying any of the given tag IDs.
func (r *SecurityRepository) GetByTags(tagIDs []string) ([]Security, error) {
	if len(tagIDs) == 0 {
		return []Security{}, nil
	}
	want := make(map[string]bool, len(tagIDs))
	for _, tag := range tagIDs {
		want[tag] = true
	}

	all, _ := r.GetAll()
	out := []Security{}
	for _, sec := range all {
		for _, tag := range sec.Tags {
			if want[tag] {
				out = append(out, sec)
				break
			}
		}
	}
	return out, nil
}

// GetPositionsByTags returns securities carrying any of the given tags,
// restricted to the given position symbols.
func (r *SecurityRepository) GetPositionsByTags(positionSymbols []string, tagIDs []string) ([]Security, error) {
	tagged, err := r.GetByTags(tagIDs)
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool, len(positionSymbols))
	for _, symbol := range positionSymbols {
		held[strings.ToUpper(symbol)] = true
	}

	out := make([]Security, 0, len(tagged))
	for _, sec := range tagged {
		if held[strings.ToUpper(sec.Symbol)] {
			out = append(out, sec)
		}
	}
	return out, nil
}

// GetTagsForSecurity returns the tags on the security with the given
// symbol, sorted for stable output. An unknown symbol yields an empty list.
func (r *SecurityRepository) GetTagsForSecurity(symbol string) ([]string, error) {
	sec, err := r.GetBySymbol(symbol)
	if err != nil || sec == nil {
		return []string{}, err
	}

	tags := make([]string, len(sec.Tags))
	copy(tags, sec.Tags)
	sort.Strings(tags)
	return tags, nil
}

// SetTags replaces the tags on the security with the given symbol.
func (r *SecurityRepository) SetTags(symbol string, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	isin, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return fmt.Errorf("security not found: %s", symbol)
	}
	sec := r.byISIN[isin]
	sec.Tags = append([]string{}, tags...)
	r.byISIN[isin] = sec
	return nil
}

// Count returns the number of securities held.
func (r *SecurityRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byISIN)
}
