// Package config loads configuration from environment variables (.env file
// via godotenv, then the process environment) into one Config struct that
// is threaded through constructors at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full planner configuration surface.
type Config struct {
	// Process
	LogLevel   string
	ServerPort int

	// Transaction costs
	TransactionFeeFixed   float64 // Fixed EUR cost per trade
	TransactionFeePercent float64 // Per-trade percentage cost (decimal)

	// Position sizing
	MaxPositionPct float64 // Hard cap per symbol
	MinPositionPct float64 // Minimum non-zero position size
	MinTradeValue  float64 // Floor on EUR value for worthwhileness
	MinCashBuffer  float64 // Fraction of portfolio kept as cash

	// Safety gate
	BuyCooldownDays  int
	SellCooldownDays int
	MinHoldDays      int
	MaxLossThreshold float64

	// Frequency limiter
	TradeFrequencyLimitsEnabled bool
	MinTimeBetweenTradesMins    int
	MaxTradesPerDay             int
	MaxTradesPerWeek            int

	// Scenario evaluation
	EnableMonteCarlo          bool
	MonteCarloPaths           int
	EnableStochasticScenarios bool

	// Search controls
	BeamWidth       int
	BatchSize       int
	MaxDepth        int
	MaxCombinations int
	DiversityWeight float64

	// Optimiser
	OptimizerBlend        float64
	OptimizerTargetReturn float64

	// Evaluator pool: comma-separated endpoints, empty means in-process only
	EvaluatorEndpoints []string

	// Cache maintenance
	CacheSweepSchedule string
}

// Load reads the .env file (when present) and the environment into a
// Config, validating ranges.
func Load() (*Config, error) {
	// Missing .env is fine; the environment alone is a valid source.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		TransactionFeeFixed:   getEnvFloat("TRANSACTION_FEE_FIXED", 2.0),
		TransactionFeePercent: getEnvFloat("TRANSACTION_FEE_PERCENT", 0.002),

		MaxPositionPct: getEnvFloat("MAX_POSITION_PCT", 0.20),
		MinPositionPct: getEnvFloat("MIN_POSITION_PCT", 0.01),
		MinTradeValue:  getEnvFloat("MIN_TRADE_VALUE", 250.0),
		MinCashBuffer:  getEnvFloat("MIN_CASH_BUFFER", 0.05),

		BuyCooldownDays:  getEnvInt("BUY_COOLDOWN_DAYS", 30),
		SellCooldownDays: getEnvInt("SELL_COOLDOWN_DAYS", 180),
		MinHoldDays:      getEnvInt("MIN_HOLD_DAYS", 90),
		MaxLossThreshold: getEnvFloat("MAX_LOSS_THRESHOLD", -0.20),

		TradeFrequencyLimitsEnabled: getEnvBool("TRADE_FREQUENCY_LIMITS_ENABLED", true),
		MinTimeBetweenTradesMins:    getEnvInt("MIN_TIME_BETWEEN_TRADES_MINUTES", 5),
		MaxTradesPerDay:             getEnvInt("MAX_TRADES_PER_DAY", 4),
		MaxTradesPerWeek:            getEnvInt("MAX_TRADES_PER_WEEK", 10),

		EnableMonteCarlo:          getEnvBool("ENABLE_MONTE_CARLO", false),
		MonteCarloPaths:           getEnvInt("MONTE_CARLO_PATHS", 100),
		EnableStochasticScenarios: getEnvBool("ENABLE_STOCHASTIC_SCENARIOS", false),

		BeamWidth:       getEnvInt("BEAM_WIDTH", 10),
		BatchSize:       getEnvInt("BATCH_SIZE", 500),
		MaxDepth:        getEnvInt("MAX_DEPTH", 4),
		MaxCombinations: getEnvInt("MAX_COMBINATIONS", 1000),
		DiversityWeight: getEnvFloat("DIVERSITY_WEIGHT", 0.3),

		OptimizerBlend:        getEnvFloat("OPTIMIZER_BLEND", 0.5),
		OptimizerTargetReturn: getEnvFloat("OPTIMIZER_TARGET_RETURN", 0.11),

		CacheSweepSchedule: getEnv("CACHE_SWEEP_SCHEDULE", "@daily"),
	}

	if endpoints := getEnv("EVALUATOR_ENDPOINTS", ""); endpoints != "" {
		for _, e := range strings.Split(endpoints, ",") {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				cfg.EvaluatorEndpoints = append(cfg.EvaluatorEndpoints, trimmed)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxDepth < 1 || c.MaxDepth > 10 {
		return fmt.Errorf("MAX_DEPTH must be in [1, 10], got %d", c.MaxDepth)
	}
	if c.BeamWidth < 1 || c.BeamWidth > 100 {
		return fmt.Errorf("BEAM_WIDTH must be in [1, 100], got %d", c.BeamWidth)
	}
	if c.BatchSize < 10 || c.BatchSize > 5000 {
		return fmt.Errorf("BATCH_SIZE must be in [10, 5000], got %d", c.BatchSize)
	}
	if c.MaxCombinations < 1 || c.MaxCombinations > 10000 {
		return fmt.Errorf("MAX_COMBINATIONS must be in [1, 10000], got %d", c.MaxCombinations)
	}
	if c.MonteCarloPaths < 1 || c.MonteCarloPaths > 500 {
		return fmt.Errorf("MONTE_CARLO_PATHS must be in [1, 500], got %d", c.MonteCarloPaths)
	}
	if c.TransactionFeeFixed < 0 {
		return fmt.Errorf("TRANSACTION_FEE_FIXED must be >= 0, got %f", c.TransactionFeeFixed)
	}
	if c.TransactionFeePercent < 0 || c.TransactionFeePercent > 0.1 {
		return fmt.Errorf("TRANSACTION_FEE_PERCENT must be in [0, 0.1], got %f", c.TransactionFeePercent)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
