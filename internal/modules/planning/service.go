// Package planning is the facade over the planning pipeline: opportunity
// identification, sequence generation, evaluation dispatch, beam
// coordination, and plan assembly.
package planning

import (
	"context"

	"github.com/aristath/trading-planner/internal/modules/opportunities"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/planner"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
	"github.com/aristath/trading-planner/internal/modules/sequences"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/aristath/trading-planner/internal/resilience"
	"github.com/rs/zerolog"
)

// Service exposes plan creation to transports and jobs.
type Service struct {
	planner *planner.Planner
	log     zerolog.Logger
}

// NewService wires the coordinator from its collaborators.
func NewService(
	opportunitiesService *opportunities.Service,
	sequencesService *sequences.Service,
	evaluators []planner.BatchEvaluator,
	breakers *resilience.Registry,
	assembler *planner.Assembler,
	cache *resilience.RecommendationCache,
	securityRepo *universe.SecurityRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		planner: planner.NewPlanner(opportunitiesService, sequencesService, evaluators, breakers, assembler, cache, securityRepo, log),
		log:     log.With().Str("module", "planning").Logger(),
	}
}

// CreatePlan creates a holistic trading plan.
func (s *Service) CreatePlan(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) (*domain.HolisticPlan, error) {
	return s.planner.CreatePlan(ctx, config)
}

// CreatePlanWithRejections creates a plan with rejection tracking and an
// optional progress callback.
func (s *Service) CreatePlanWithRejections(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration, progressCallback progress.Callback) (*planner.PlanResult, error) {
	return s.planner.CreatePlanWithRejections(ctx, config, progressCallback)
}

// CreatePlanWithDetailedProgress creates a plan with structured progress
// updates.
func (s *Service) CreatePlanWithDetailedProgress(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration, detailedCallback progress.DetailedCallback) (*planner.PlanResult, error) {
	return s.planner.CreatePlanWithDetailedProgress(ctx, config, detailedCallback)
}

// CreatePlanContext creates a plan under a caller-supplied context;
// cancelling it aborts the request without a partial plan.
func (s *Service) CreatePlanContext(requestCtx context.Context, ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) (*planner.PlanResult, error) {
	return s.planner.CreatePlanContext(requestCtx, ctx, config)
}
