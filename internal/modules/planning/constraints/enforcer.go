// Package constraints validates and adjusts action candidates against
// per-security trade rules before they enter sequence generation: side and
// price validation, trade permissions, cooloff periods, ineligibility, the
// max-sell cap, and lot rounding.
package constraints

import (
	"fmt"

	planningdomain "github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
)

// SecurityLookupFunc resolves full security information by symbol or ISIN.
type SecurityLookupFunc func(symbol, isin string) (*universe.Security, bool)

// FilteredAction is an action the enforcer rejected, with the rule that
// rejected it.
type FilteredAction struct {
	Action planningdomain.ActionCandidate
	Reason string
}

// Enforcer applies the constraint rules. It either adjusts an action into
// compliance (quantity capped, rounded to lots, value recalculated) or
// filters it with a reason.
type Enforcer struct {
	log            zerolog.Logger
	securityLookup SecurityLookupFunc
}

// NewEnforcer creates a new constraint enforcer. securityLookup may be nil,
// which skips the per-security rules.
func NewEnforcer(log zerolog.Logger, securityLookup SecurityLookupFunc) *Enforcer {
	return &Enforcer{
		log:            log.With().Str("component", "constraint_enforcer").Logger(),
		securityLookup: securityLookup,
	}
}

// EnforceConstraints validates every action, returning the compliant
// (possibly adjusted) ones and the filtered ones with reasons.
func (e *Enforcer) EnforceConstraints(
	actions []planningdomain.ActionCandidate,
	ctx *planningdomain.OpportunityContext,
	config *planningdomain.PlannerConfiguration,
) ([]planningdomain.ActionCandidate, []FilteredAction) {
	var validated []planningdomain.ActionCandidate
	var filtered []FilteredAction

	for _, action := range actions {
		adjusted, reason := e.apply(action, ctx, config)
		if reason != "" {
			filtered = append(filtered, FilteredAction{Action: action, Reason: reason})
			e.log.Debug().
				Str("symbol", action.Symbol).
				Str("side", action.Side).
				Str("reason", reason).
				Msg("Action filtered by constraints")
			continue
		}
		validated = append(validated, adjusted)
	}

	return validated, filtered
}

// apply runs the rule chain over one action. An empty reason means the
// action passed; the returned action carries any adjustments.
func (e *Enforcer) apply(
	action planningdomain.ActionCandidate,
	ctx *planningdomain.OpportunityContext,
	config *planningdomain.PlannerConfiguration,
) (planningdomain.ActionCandidate, string) {
	if action.ISIN == "" {
		return action, fmt.Sprintf("action missing ISIN for symbol: %s", action.Symbol)
	}
	if action.Side != "BUY" && action.Side != "SELL" {
		return action, fmt.Sprintf("invalid side: %s", action.Side)
	}
	if action.Price <= 0 {
		return action, fmt.Sprintf("invalid price: %.2f", action.Price)
	}

	if reason := contextRules(action, ctx); reason != "" {
		return action, reason
	}

	security, reason := e.resolve(action)
	if reason != "" {
		return action, reason
	}

	if action.Side == "SELL" {
		if !security.AllowSell {
			return action, "allow_sell=false"
		}
		if action, reason = capSellQuantity(action, ctx, config); reason != "" {
			return action, reason
		}
	} else if !security.AllowBuy {
		return action, "allow_buy=false"
	}

	// Lot rounding last, over the possibly capped quantity; the EUR value
	// always follows the final quantity.
	rounded := e.roundToLotSize(action.Quantity, security.MinLot)
	if rounded <= 0 {
		return action, fmt.Sprintf("quantity %d below minimum lot %d", action.Quantity, security.MinLot)
	}
	action.Quantity = rounded
	action.ValueEUR = float64(rounded) * action.Price

	return action, ""
}

// contextRules are the request-level rules: global trade permissions,
// cooloff sets, and the ineligible set.
func contextRules(action planningdomain.ActionCandidate, ctx *planningdomain.OpportunityContext) string {
	if ctx == nil {
		return ""
	}

	switch action.Side {
	case "SELL":
		if !ctx.AllowSell {
			return "global allow_sell=false"
		}
		if ctx.RecentlySoldISINs[action.ISIN] {
			return "cooloff: recently sold"
		}
	case "BUY":
		if !ctx.AllowBuy {
			return "global allow_buy=false"
		}
		if ctx.RecentlyBoughtISINs[action.ISIN] {
			return "cooloff: recently bought"
		}
	}

	if ctx.IneligibleISINs[action.ISIN] {
		return "ineligible: pending order or other constraint"
	}
	return ""
}

// resolve looks the security up; without a lookup every action passes the
// per-security rules.
func (e *Enforcer) resolve(action planningdomain.ActionCandidate) (*universe.Security, string) {
	if e.securityLookup == nil {
		return &universe.Security{AllowBuy: true, AllowSell: true}, ""
	}
	security, found := e.securityLookup(action.Symbol, action.ISIN)
	if !found {
		return nil, fmt.Sprintf("security not found: %s", action.Symbol)
	}
	return security, ""
}

// capSellQuantity bounds a sell at MaxSellPercentage of the held quantity.
// The position is resolved from the enriched positions first, the plain
// position list second. With the cap active, a sell of an ISIN with no held
// quantity is rejected with a reason.
func capSellQuantity(
	action planningdomain.ActionCandidate,
	ctx *planningdomain.OpportunityContext,
	config *planningdomain.PlannerConfiguration,
) (planningdomain.ActionCandidate, string) {
	if config == nil || config.MaxSellPercentage <= 0 || config.MaxSellPercentage >= 1.0 || ctx == nil {
		return action, ""
	}

	held := 0.0
	for _, pos := range ctx.EnrichedPositions {
		if pos.ISIN == action.ISIN {
			held = pos.Quantity
			break
		}
	}
	if held == 0 {
		for _, pos := range ctx.Positions {
			if pos.ISIN == action.ISIN {
				held = pos.Quantity
				break
			}
		}
	}
	if held <= 0 {
		return action, fmt.Sprintf("no position found for %s", action.ISIN)
	}

	maxQuantity := int(held * config.MaxSellPercentage)
	if maxQuantity > 0 && action.Quantity > maxQuantity {
		action.Quantity = maxQuantity
		action.ValueEUR = float64(maxQuantity) * action.Price
	}
	return action, ""
}

// roundToLotSize rounds a quantity to a whole number of lots: down when a
// lot remains, otherwise up, otherwise zero. Non-positive lot sizes pass
// the quantity through.
func (e *Enforcer) roundToLotSize(quantity int, lotSize int) int {
	if lotSize <= 0 {
		return quantity
	}
	if down := (quantity / lotSize) * lotSize; down >= lotSize {
		return down
	}
	if up := ((quantity + lotSize - 1) / lotSize) * lotSize; up >= lotSize {
		return up
	}
	return 0
}

// IsActionFeasible is the generator's fast pre-check: the context rules and
// per-security permissions, without quantity adjustment.
func (e *Enforcer) IsActionFeasible(
	action planningdomain.ActionCandidate,
	ctx *planningdomain.OpportunityContext,
) (bool, string) {
	if action.ISIN == "" {
		return false, "missing ISIN"
	}
	if reason := contextRules(action, ctx); reason != "" {
		return false, reason
	}

	if e.securityLookup != nil {
		security, found := e.securityLookup(action.Symbol, action.ISIN)
		if !found {
			return false, "security not found"
		}
		if action.Side == "SELL" && !security.AllowSell {
			return false, "security allow_sell=false"
		}
		if action.Side == "BUY" && !security.AllowBuy {
			return false, "security allow_buy=false"
		}
	}

	return true, ""
}
