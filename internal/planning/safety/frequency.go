package safety

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// FrequencyConfig bounds how often the system may trade at all, independent
// of which symbol is traded.
type FrequencyConfig struct {
	Enabled                  bool
	MinTimeBetweenTradesMins int
	MaxTradesPerDay          int
	MaxTradesPerWeek         int
}

// DefaultFrequencyConfig returns the standard trade frequency caps.
func DefaultFrequencyConfig() FrequencyConfig {
	return FrequencyConfig{
		Enabled:                  true,
		MinTimeBetweenTradesMins: 5,
		MaxTradesPerDay:          4,
		MaxTradesPerWeek:         10,
	}
}

// TradeCounts is the activity snapshot the limiter checks against.
type TradeCounts struct {
	LastTradeAt    *time.Time
	TradesToday    int
	TradesThisWeek int
}

// TradeActivitySource supplies the current trade counts. A storage error
// here blocks execution (fail closed).
type TradeActivitySource interface {
	CurrentCounts() (TradeCounts, error)
}

// FrequencyLimiter rejects plan execution when the next trade would exceed
// the configured caps.
type FrequencyLimiter struct {
	config FrequencyConfig
	source TradeActivitySource
	now    func() time.Time
	log    zerolog.Logger
}

// NewFrequencyLimiter creates a limiter over the given activity source.
func NewFrequencyLimiter(config FrequencyConfig, source TradeActivitySource, log zerolog.Logger) *FrequencyLimiter {
	return &FrequencyLimiter{
		config: config,
		source: source,
		now:    time.Now,
		log:    log.With().Str("component", "frequency_limiter").Logger(),
	}
}

// CheckNextTrade reports whether one more trade may execute now. A nil
// return means allowed. Any error reading the activity source rejects
// (fail closed): the limiter exists to stop runaway trading, and an
// unreadable trade log is exactly the situation where runaway trading could
// go unnoticed.
func (l *FrequencyLimiter) CheckNextTrade() *Rejection {
	if !l.config.Enabled {
		return nil
	}

	counts, err := l.source.CurrentCounts()
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to read trade activity, rejecting execution")
		return &Rejection{Rule: "frequency_limit", Reason: "trade activity unavailable, failing closed"}
	}

	if counts.LastTradeAt != nil && l.config.MinTimeBetweenTradesMins > 0 {
		elapsed := l.now().Sub(*counts.LastTradeAt)
		minGap := time.Duration(l.config.MinTimeBetweenTradesMins) * time.Minute
		if elapsed < minGap {
			remaining := minGap - elapsed
			return &Rejection{
				Rule:   "frequency_limit",
				Reason: fmt.Sprintf("wait %.0f seconds before the next trade (minimum %d minutes between trades)", remaining.Seconds(), l.config.MinTimeBetweenTradesMins),
			}
		}
	}

	if l.config.MaxTradesPerDay > 0 && counts.TradesToday >= l.config.MaxTradesPerDay {
		return &Rejection{
			Rule:   "frequency_limit",
			Reason: fmt.Sprintf("daily limit reached (%d of %d trades today)", counts.TradesToday, l.config.MaxTradesPerDay),
		}
	}

	if l.config.MaxTradesPerWeek > 0 && counts.TradesThisWeek >= l.config.MaxTradesPerWeek {
		return &Rejection{
			Rule:   "frequency_limit",
			Reason: fmt.Sprintf("weekly limit reached (%d of %d trades this week)", counts.TradesThisWeek, l.config.MaxTradesPerWeek),
		}
	}

	return nil
}
