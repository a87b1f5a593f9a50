// Package opportunities turns portfolio state into candidate trade actions.
package opportunities

import (
	"fmt"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/opportunities/calculators"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
)

// SecurityRepository is the slice of universe access the module needs.
// The universe module's repository satisfies it.
type SecurityRepository interface {
	GetAllActive() ([]universe.Security, error)
	GetByTags(tags []string) ([]universe.Security, error)
	GetPositionsByTags(positionSymbols []string, tags []string) ([]universe.Security, error)
	GetTagsForSecurity(symbol string) ([]string, error)
}

// Service runs the enabled calculators over an opportunity context and
// returns candidates grouped by category.
type Service struct {
	registry *calculators.CalculatorRegistry
	log      zerolog.Logger
}

// NewService builds a service with the full calculator registry. The tag
// filter is consulted only when EnableTagFiltering is set on the config.
func NewService(tagFilter calculators.TagFilter, securityRepo SecurityRepository, log zerolog.Logger) *Service {
	return &Service{
		registry: calculators.NewPopulatedRegistry(tagFilter, securityRepo, log),
		log:      log.With().Str("module", "opportunities").Logger(),
	}
}

// GetRegistry exposes the underlying registry.
func (s *Service) GetRegistry() *calculators.CalculatorRegistry {
	return s.registry
}

// IdentifyOpportunities runs the enabled calculators and returns candidates
// by category, dropping the pre-filtered diagnostics.
func (s *Service) IdentifyOpportunities(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) (domain.OpportunitiesByCategory, error) {
	result, err := s.IdentifyOpportunitiesWithExclusions(ctx, config)
	if err != nil {
		return nil, err
	}
	return result.ToOpportunitiesByCategory(), nil
}

// IdentifyOpportunitiesWithExclusions runs the enabled calculators and keeps
// the pre-filtered securities alongside the candidates.
func (s *Service) IdentifyOpportunitiesWithExclusions(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) (domain.OpportunitiesResultByCategory, error) {
	return s.IdentifyOpportunitiesWithProgress(ctx, config, nil)
}

// IdentifyOpportunitiesWithProgress is the full entry point: per-calculator
// progress updates flow through the callback when one is given.
func (s *Service) IdentifyOpportunitiesWithProgress(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	progressCallback progress.DetailedCallback,
) (domain.OpportunitiesResultByCategory, error) {
	switch {
	case ctx == nil:
		return nil, fmt.Errorf("opportunity context is nil")
	case config == nil:
		return nil, fmt.Errorf("planner configuration is nil")
	}

	s.log.Info().Msg("Identifying opportunities")

	results, err := s.registry.IdentifyOpportunitiesWithProgress(ctx, config, bridgeProgress(progressCallback))
	if err != nil {
		return nil, fmt.Errorf("failed to identify opportunities: %w", err)
	}

	if max := config.MaxOpportunitiesPerCategory; max > 0 {
		results = s.capPerCategory(results, max)
	}
	return results, nil
}

// bridgeProgress adapts the planning progress callback to the registry's
// callback shape. Returns nil for nil so the registry skips reporting.
func bridgeProgress(cb progress.DetailedCallback) calculators.ProgressCallback {
	if cb == nil {
		return nil
	}
	return func(u calculators.ProgressUpdate) {
		cb(progress.Update{
			Phase:    u.Phase,
			SubPhase: u.SubPhase,
			Current:  u.Current,
			Total:    u.Total,
			Message:  u.Message,
			Details:  u.Details,
		})
	}
}

// capPerCategory keeps the top-N candidates per category by priority.
// Pre-filtered diagnostics are never truncated.
func (s *Service) capPerCategory(
	results domain.OpportunitiesResultByCategory,
	max int,
) domain.OpportunitiesResultByCategory {
	capped := make(domain.OpportunitiesResultByCategory, len(results))
	for category, result := range results {
		if len(result.Candidates) <= max {
			capped[category] = result
			continue
		}

		candidates := append([]domain.ActionCandidate(nil), result.Candidates...)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority > candidates[j].Priority
		})
		capped[category] = domain.CalculatorResult{
			Candidates:  candidates[:max],
			PreFiltered: result.PreFiltered,
		}

		s.log.Debug().
			Str("category", string(category)).
			Int("original", len(result.Candidates)).
			Int("kept", max).
			Msg("Capped opportunities per category")
	}
	return capped
}
