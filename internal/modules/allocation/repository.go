// Package allocation manages allocation targets: target percentages for
// geography and industry diversification, plus the group aggregation used
// to compare current allocations against them. Targets are held in memory,
// seeded from configuration or the planning request.
package allocation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aristath/trading-planner/internal/utils"
	"github.com/rs/zerolog"
)

// TargetTypeGeography and TargetTypeIndustry are the two allocation target
// dimensions.
const (
	TargetTypeGeography = "geography"
	TargetTypeIndustry  = "industry"
)

// AllocationTarget defines one target percentage for a geography or
// industry group.
type AllocationTarget struct {
	TargetType string  `json:"target_type"` // "geography" or "industry"
	Name       string  `json:"name"`        // Group name (e.g. "EU", "Technology")
	TargetPct  float64 `json:"target_pct"`  // Target fraction (0-1)
}

// SecurityInfo represents security information needed for allocation
// calculations.
type SecurityInfo struct {
	ISIN      string
	Symbol    string
	Name      string
	Geography string // May be comma-separated
	Industry  string // May be comma-separated
}

// SecurityProvider supplies active tradable securities for determining
// available geographies and industries. Defined here to avoid a cycle with
// the universe module.
type SecurityProvider interface {
	GetAllActiveTradable() ([]SecurityInfo, error)
}

// PortfolioSummary is the allocation view of the portfolio: current
// allocations per geography and industry against their targets.
type PortfolioSummary struct {
	CountryAllocations  []PortfolioAllocation
	IndustryAllocations []PortfolioAllocation
	TotalValue          float64
	CashBalance         float64
}

// PortfolioAllocation represents allocation info for one group.
type PortfolioAllocation struct {
	Name         string
	TargetPct    float64
	CurrentPct   float64
	CurrentValue float64
	Deviation    float64
}

// Repository is a concurrency-safe in-memory store of allocation targets.
type Repository struct {
	mu               sync.RWMutex
	targets          map[string]map[string]float64 // targetType -> name -> pct
	securityProvider SecurityProvider
	log              zerolog.Logger
}

// NewRepository creates an empty repository. securityProvider may be nil,
// which disables GetAvailableGeographies/Industries.
func NewRepository(securityProvider SecurityProvider, log zerolog.Logger) *Repository {
	return &Repository{
		targets: map[string]map[string]float64{
			TargetTypeGeography: {},
			TargetTypeIndustry:  {},
		},
		securityProvider: securityProvider,
		log:              log.With().Str("repository", "allocation").Logger(),
	}
}

// GetAll returns every target as "type:name" -> pct.
func (r *Repository) GetAll() (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64)
	for targetType, byName := range r.targets {
		for name, pct := range byName {
			out[targetType+":"+name] = pct
		}
	}
	return out, nil
}

// GetByType returns the targets of one type, sorted by name.
func (r *Repository) GetByType(targetType string) ([]AllocationTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName, ok := r.targets[targetType]
	if !ok {
		return nil, fmt.Errorf("unknown target type: %s", targetType)
	}

	out := make([]AllocationTarget, 0, len(byName))
	for name, pct := range byName {
		out = append(out, AllocationTarget{TargetType: targetType, Name: name, TargetPct: pct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetGeographyTargets returns geography targets as name -> pct.
func (r *Repository) GetGeographyTargets() (map[string]float64, error) {
	return r.copyType(TargetTypeGeography)
}

// GetIndustryTargets returns industry targets as name -> pct.
func (r *Repository) GetIndustryTargets() (map[string]float64, error) {
	return r.copyType(TargetTypeIndustry)
}

func (r *Repository) copyType(targetType string) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.targets[targetType]))
	for name, pct := range r.targets[targetType] {
		out[name] = pct
	}
	return out, nil
}

// Upsert inserts or replaces one target.
func (r *Repository) Upsert(target AllocationTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.targets[target.TargetType]
	if !ok {
		return fmt.Errorf("unknown target type: %s", target.TargetType)
	}
	byName[target.Name] = target.TargetPct
	return nil
}

// Delete removes one target.
func (r *Repository) Delete(targetType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.targets[targetType]
	if !ok {
		return fmt.Errorf("unknown target type: %s", targetType)
	}
	delete(byName, name)
	return nil
}

// SetGeographyTargets replaces all geography targets.
func (r *Repository) SetGeographyTargets(targets map[string]float64) error {
	return r.setType(TargetTypeGeography, targets)
}

// SetIndustryTargets replaces all industry targets.
func (r *Repository) SetIndustryTargets(targets map[string]float64) error {
	return r.setType(TargetTypeIndustry, targets)
}

func (r *Repository) setType(targetType string, targets map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName := make(map[string]float64, len(targets))
	for name, pct := range targets {
		byName[name] = pct
	}
	r.targets[targetType] = byName
	return nil
}

// GetAvailableGeographies lists the distinct geographies present in the
// tradable universe.
func (r *Repository) GetAvailableGeographies() ([]string, error) {
	return r.availableValues(func(s SecurityInfo) string { return s.Geography })
}

// GetAvailableIndustries lists the distinct industries present in the
// tradable universe.
func (r *Repository) GetAvailableIndustries() ([]string, error) {
	return r.availableValues(func(s SecurityInfo) string { return s.Industry })
}

func (r *Repository) availableValues(extract func(SecurityInfo) string) ([]string, error) {
	if r.securityProvider == nil {
		return []string{}, nil
	}

	securities, err := r.securityProvider.GetAllActiveTradable()
	if err != nil {
		return nil, fmt.Errorf("list tradable securities: %w", err)
	}

	seen := make(map[string]bool)
	for _, sec := range securities {
		if strings.HasSuffix(sec.Symbol, ".IDX") {
			continue
		}
		for _, value := range utils.ParseCSV(extract(sec)) {
			seen[value] = true
		}
	}

	out := make([]string, 0, len(seen))
	for value := range seen {
		out = append(out, value)
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeWeights scales a weight map so it sums to 1.0. An empty or
// zero-sum map is returned unchanged.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	if len(weights) == 0 {
		return weights
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return weights
	}

	normalized := make(map[string]float64, len(weights))
	for k, v := range weights {
		normalized[k] = v / total
	}
	return normalized
}
