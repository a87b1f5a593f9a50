package services

import (
	"github.com/aristath/trading-planner/internal/domain"
	"github.com/aristath/trading-planner/internal/modules/portfolio"
	"github.com/aristath/trading-planner/internal/modules/universe"
)

// The builder names its own dependencies as narrow interfaces; the caller
// decides what implements them (in-memory request-scoped stores here,
// repositories elsewhere).

// PositionRepository provides the held positions.
type PositionRepository interface {
	GetAll() ([]portfolio.Position, error)
}

// SecurityRepository provides the active universe and point lookups.
type SecurityRepository interface {
	GetAllActive() ([]universe.Security, error)
	GetByISIN(isin string) (*universe.Security, error)
	GetBySymbol(symbol string) (*universe.Security, error)
}

// AllocationRepository provides the allocation targets.
type AllocationRepository interface {
	GetAll() (map[string]float64, error)
	GetGeographyTargets() (map[string]float64, error)
	GetIndustryTargets() (map[string]float64, error)
}

// TradeRepository provides trade history for the cooloff sets.
type TradeRepository interface {
	GetRecentlySoldISINs(days int) (map[string]bool, error)
	GetRecentlyBoughtISINs(days int) (map[string]bool, error)
}

// ScoresRepository provides the per-ISIN score families.
type ScoresRepository interface {
	GetTotalScores(isinList []string) (map[string]float64, error)
	GetCAGRs(isinList []string) (map[string]float64, error)
	GetQualityScores(isinList []string) (longTermScores, stabilityScores map[string]float64, err error)
	GetValueTrapData(isinList []string) (opportunityScores, momentumScores, volatility map[string]float64, err error)
	GetRiskMetrics(isinList []string) (sharpe, maxDrawdown map[string]float64, err error)
}

// SettingsRepository provides the planner settings the builder consults.
type SettingsRepository interface {
	GetTargetReturnSettings() (targetReturn, thresholdPct float64, err error)
	GetCooloffDays() (int, error)
	GetVirtualTestCash() (float64, error)
	IsCooloffDisabled() (bool, error)
}

// RegimeRepository provides the current market regime score.
type RegimeRepository interface {
	GetCurrentRegimeScore() (float64, error)
}

// CashManager provides cash balances per currency.
type CashManager interface {
	GetAllCashBalances() (map[string]float64, error)
}

// PriceClient provides current quotes, batched by symbol.
type PriceClient interface {
	GetBatchQuotes(symbolMap map[string]*string) (map[string]*float64, error)
}

// PriceConversionServiceInterface converts quoted prices to EUR.
type PriceConversionServiceInterface interface {
	ConvertPricesToEUR(prices map[string]float64, securities []universe.Security) map[string]float64
}

// BrokerClient exposes connectivity and in-flight orders for the cooloff
// sets.
type BrokerClient interface {
	IsConnected() bool
	GetPendingOrders() ([]domain.BrokerPendingOrder, error)
}

// ExpectedReturnsCalculator wraps the optimiser's expected-return
// calculation over universe securities. Securities below the minimum are
// excluded from the result.
type ExpectedReturnsCalculator interface {
	CalculateExpectedReturnsForUniverse(
		securities []universe.Security,
		regimeScore float64,
		targetReturn float64,
		targetReturnThresholdPct float64,
	) (map[string]float64, error)
}
