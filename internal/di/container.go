// Package di constructs the long-lived object graph at startup: the
// resilience registries, the recommendation cache, the safety gate, the
// evaluator pool, and the shared services. It is the one place allowed to
// know concrete types; everything else depends on interfaces.
package di

import (
	"github.com/aristath/trading-planner/internal/config"
	planevaluation "github.com/aristath/trading-planner/internal/modules/planning/evaluation"
	"github.com/aristath/trading-planner/internal/modules/planning/planner"
	"github.com/aristath/trading-planner/internal/modules/settings"
	"github.com/aristath/trading-planner/internal/planning/safety"
	"github.com/aristath/trading-planner/internal/resilience"
	"github.com/aristath/trading-planner/internal/services"
	"github.com/rs/zerolog"
)

// Container holds every long-lived component shared across requests.
// Request-scoped state (repositories seeded from an RPC payload, the
// opportunity context) is assembled per request by the transport layer.
type Container struct {
	Config *config.Config

	// Resilience layer: shared across requests by design
	Cache    *resilience.RecommendationCache
	Breakers *resilience.Registry

	// Safety gate and frequency limiter
	SafetyGateConfig safety.GateConfig
	FrequencyConfig  safety.FrequencyConfig

	// Evaluation
	EvaluationService *planevaluation.Service
	Evaluators        []planner.BatchEvaluator

	// Shared services
	CurrencyExchange *services.CurrencyExchangeService
	SettingsService  *settings.Service
	Assembler        *planner.Assembler

	Log zerolog.Logger
}

// Close stops background maintenance owned by the container.
func (c *Container) Close() {
	if c.Cache != nil {
		c.Cache.StopSweep()
	}
}
