package di

import (
	"fmt"
	"time"

	"github.com/aristath/trading-planner/internal/config"
	"github.com/aristath/trading-planner/internal/evaluation"
	planevaluation "github.com/aristath/trading-planner/internal/modules/planning/evaluation"
	"github.com/aristath/trading-planner/internal/modules/planning/planner"
	"github.com/aristath/trading-planner/internal/modules/settings"
	"github.com/aristath/trading-planner/internal/planning/safety"
	"github.com/aristath/trading-planner/internal/resilience"
	"github.com/aristath/trading-planner/internal/services"
	"github.com/rs/zerolog"
)

// Wire initializes the long-lived dependencies and returns the container.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	cache := resilience.NewRecommendationCache(log)
	if cfg.CacheSweepSchedule != "" {
		if err := cache.StartSweep(cfg.CacheSweepSchedule); err != nil {
			return nil, fmt.Errorf("start cache sweep: %w", err)
		}
	}

	breakers := resilience.NewRegistry()

	currency := services.NewCurrencyExchangeService(map[string]float64{
		"USD": 1.08,
		"GBP": 0.85,
	}, log)

	settingsService := settings.NewService(map[string]interface{}{
		"buy_cooldown_days":        float64(cfg.BuyCooldownDays),
		"sell_cooldown_days":       float64(cfg.SellCooldownDays),
		"min_hold_days":            float64(cfg.MinHoldDays),
		"max_loss_threshold":       cfg.MaxLossThreshold,
		"optimizer_blend":          cfg.OptimizerBlend,
		"optimizer_target_return":  cfg.OptimizerTargetReturn,
		"transaction_cost_fixed":   cfg.TransactionFeeFixed,
		"transaction_cost_percent": cfg.TransactionFeePercent,
		"min_cash_reserve":         cfg.MinCashBuffer,
	}, log)

	evaluationService := planevaluation.NewService(0, log)
	evaluationService.SetScoringConfig(evaluation.NewScorerConfig(settingsService).ToScoringConfig())

	// Evaluator pool: the in-process instance first, then any configured
	// remote replicas, dispatched round-robin by the coordinator.
	evaluators := []planner.BatchEvaluator{
		planner.NewInProcessEvaluator(evaluationService),
	}
	for i, endpoint := range cfg.EvaluatorEndpoints {
		name := fmt.Sprintf("evaluator-%d", i+1)
		evaluators = append(evaluators, planner.NewHTTPEvaluator(name, endpoint, 60*time.Second, log))
	}

	container := &Container{
		Config:   cfg,
		Cache:    cache,
		Breakers: breakers,
		SafetyGateConfig: safety.GateConfig{
			BuyCooldownDays:  cfg.BuyCooldownDays,
			SellCooldownDays: cfg.SellCooldownDays,
			MinHoldDays:      cfg.MinHoldDays,
			MaxLossThreshold: cfg.MaxLossThreshold,
		},
		FrequencyConfig: safety.FrequencyConfig{
			Enabled:                  cfg.TradeFrequencyLimitsEnabled,
			MinTimeBetweenTradesMins: cfg.MinTimeBetweenTradesMins,
			MaxTradesPerDay:          cfg.MaxTradesPerDay,
			MaxTradesPerWeek:         cfg.MaxTradesPerWeek,
		},
		EvaluationService: evaluationService,
		Evaluators:        evaluators,
		CurrencyExchange:  currency,
		SettingsService:   settingsService,
		Assembler:         planner.NewAssembler(currency, log),
		Log:               log,
	}

	log.Info().
		Int("evaluators", len(evaluators)).
		Msg("Dependency injection wiring completed")

	return container, nil
}
