// Package safety is the pre-flight gate consulted by the opportunity
// identifier before any candidate enters the search, plus the trade
// frequency limiter consulted before a plan executes. Every check here is
// conservative: a storage error inside the frequency limiter blocks the
// trade rather than letting it through.
package safety

import (
	"fmt"
	"time"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// GateConfig tunes the four eligibility filters.
type GateConfig struct {
	BuyCooldownDays  int
	SellCooldownDays int
	MinHoldDays      int
	MaxLossThreshold float64 // e.g. -0.20: never auto-sell a position down more than 20%
}

// DefaultGateConfig returns the standard cooldown and hold rules.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		BuyCooldownDays:  30,
		SellCooldownDays: 180,
		MinHoldDays:      90,
		MaxLossThreshold: -0.20,
	}
}

// TradeLog is the slice of trade history the gate needs. Implementations
// are supplied by the caller (in-memory for tests, repository-backed in the
// full system).
type TradeLog interface {
	// LastBoughtAt returns the most recent buy timestamp for the ISIN, or
	// ok=false if never bought.
	LastBoughtAt(isin string) (t time.Time, ok bool, err error)
	// LastSoldAt returns the most recent sell timestamp for the ISIN, or
	// ok=false if never sold.
	LastSoldAt(isin string) (t time.Time, ok bool, err error)
}

// Rejection describes why the gate blocked a candidate.
type Rejection struct {
	Rule   string // "buy_cooldown", "sell_cooldown", "min_hold", "max_loss_hold"
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Rule, r.Reason)
}

// Unwrap ties every gate rejection to the shared sentinel so callers can
// match with errors.Is(err, domain.ErrSafetyRejected).
func (r *Rejection) Unwrap() error {
	return domain.ErrSafetyRejected
}

// Gate applies the four eligibility filters to action candidates.
type Gate struct {
	config GateConfig
	trades TradeLog
	now    func() time.Time
	log    zerolog.Logger
}

// NewGate creates a safety gate. trades may be nil, in which case the
// cooldown filters pass (there is no history to check against).
func NewGate(config GateConfig, trades TradeLog, log zerolog.Logger) *Gate {
	return &Gate{
		config: config,
		trades: trades,
		now:    time.Now,
		log:    log.With().Str("component", "safety_gate").Logger(),
	}
}

// CheckBuy applies the buy-side filter: a symbol bought inside
// BuyCooldownDays is rejected.
func (g *Gate) CheckBuy(isin, symbol string) *Rejection {
	if g.trades == nil || g.config.BuyCooldownDays <= 0 {
		return nil
	}

	boughtAt, ok, err := g.trades.LastBoughtAt(isin)
	if err != nil {
		g.log.Warn().Err(err).Str("symbol", symbol).Msg("Trade history lookup failed, rejecting buy")
		return &Rejection{Rule: "buy_cooldown", Reason: "trade history unavailable"}
	}
	if !ok {
		return nil
	}

	daysSince := g.now().Sub(boughtAt).Hours() / 24
	if daysSince < float64(g.config.BuyCooldownDays) {
		return &Rejection{
			Rule:   "buy_cooldown",
			Reason: fmt.Sprintf("%s bought %.0f days ago (cooldown %d days)", symbol, daysSince, g.config.BuyCooldownDays),
		}
	}
	return nil
}

// CheckSell applies the three sell-side filters in order: sell cooldown,
// minimum hold, and maximum-loss hold. position supplies acquisition date
// and unrealised return; a nil position passes (nothing held, nothing to
// protect).
func (g *Gate) CheckSell(isin, symbol string, position *domain.EnrichedPosition) *Rejection {
	if g.trades != nil && g.config.SellCooldownDays > 0 {
		soldAt, ok, err := g.trades.LastSoldAt(isin)
		if err != nil {
			g.log.Warn().Err(err).Str("symbol", symbol).Msg("Trade history lookup failed, rejecting sell")
			return &Rejection{Rule: "sell_cooldown", Reason: "trade history unavailable"}
		}
		if ok {
			daysSince := g.now().Sub(soldAt).Hours() / 24
			if daysSince < float64(g.config.SellCooldownDays) {
				return &Rejection{
					Rule:   "sell_cooldown",
					Reason: fmt.Sprintf("%s sold %.0f days ago (cooldown %d days)", symbol, daysSince, g.config.SellCooldownDays),
				}
			}
		}
	}

	if position == nil {
		return nil
	}

	if g.config.MinHoldDays > 0 && position.FirstBoughtAt != nil {
		daysHeld := g.now().Sub(*position.FirstBoughtAt).Hours() / 24
		if daysHeld < float64(g.config.MinHoldDays) {
			return &Rejection{
				Rule:   "min_hold",
				Reason: fmt.Sprintf("%s held %.0f days (minimum %d days)", symbol, daysHeld, g.config.MinHoldDays),
			}
		}
	}

	if position.UnrealizedPnLPct < g.config.MaxLossThreshold {
		return &Rejection{
			Rule:   "max_loss_hold",
			Reason: fmt.Sprintf("%s is down %.1f%% (threshold %.0f%%), not realising deep losses", symbol, position.UnrealizedPnLPct*100, g.config.MaxLossThreshold*100),
		}
	}

	return nil
}

// Check routes a candidate to the buy- or sell-side filters.
func (g *Gate) Check(candidate domain.ActionCandidate, position *domain.EnrichedPosition) *Rejection {
	switch candidate.Side {
	case "BUY":
		return g.CheckBuy(candidate.ISIN, candidate.Symbol)
	case "SELL":
		return g.CheckSell(candidate.ISIN, candidate.Symbol, position)
	default:
		return &Rejection{Rule: "unknown_side", Reason: fmt.Sprintf("unrecognised side %q", candidate.Side)}
	}
}

// IneligibleISINs runs the sell-side filters over every enriched position
// and returns the set of ISINs that must not be sold, in the shape the
// opportunity context carries.
func (g *Gate) IneligibleISINs(positions []domain.EnrichedPosition) map[string]bool {
	out := make(map[string]bool)
	for i := range positions {
		pos := &positions[i]
		if pos.ISIN == "" {
			continue
		}
		if rej := g.CheckSell(pos.ISIN, pos.Symbol, pos); rej != nil {
			g.log.Debug().Str("symbol", pos.Symbol).Str("rule", rej.Rule).Str("reason", rej.Reason).Msg("Position ineligible for sale")
			out[pos.ISIN] = true
		}
	}
	return out
}
