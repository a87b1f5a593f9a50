// Package hash generates deterministic fingerprints of portfolio state,
// settings, and allocation targets. The fingerprints key the recommendation
// cache: two requests with the same fingerprint may reuse each other's
// cached scenario scores and plans.
package hash

import (
	"crypto/md5"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aristath/trading-planner/internal/modules/universe"
)

// CashBucketEUR is the rounding granularity applied to cash balances before
// hashing. Small cash drift (interest, fees) must not invalidate cached
// recommendations, so balances are bucketed to the nearest 10 EUR.
const CashBucketEUR = 10.0

// Position represents a portfolio position for hashing.
type Position struct {
	Symbol   string
	Quantity int
	Price    float64 // Current price (EUR); rounded to cents in the canonical string
}

// PendingOrder represents a pending order for hashing. Pending orders are
// folded into the hypothetical future state so a plan computed while an
// order is in flight stays valid once it executes.
type PendingOrder struct {
	Symbol   string
	Side     string // "buy" or "sell"
	Quantity int
	Price    float64
	Currency string
}

// ApplyPendingOrdersToPortfolio applies pending orders to positions and cash
// balances to get the hypothetical future state.
//
// Pending BUY orders reduce the cash balance in the order's currency and
// increase the position quantity. Pending SELL orders reduce the position
// quantity; cash is not increased because sell proceeds don't exist until
// execution.
func ApplyPendingOrdersToPortfolio(
	positions []Position,
	cashBalances map[string]float64,
	pendingOrders []PendingOrder,
	allowNegativeCash bool,
) ([]Position, map[string]float64) {
	positionMap := make(map[string]Position)
	for _, p := range positions {
		symbol := strings.ToUpper(p.Symbol)
		if p.Quantity > 0 {
			positionMap[symbol] = Position{Symbol: symbol, Quantity: p.Quantity, Price: p.Price}
		}
	}

	adjustedCash := make(map[string]float64, len(cashBalances))
	for currency, amount := range cashBalances {
		adjustedCash[currency] = amount
	}

	for _, order := range pendingOrders {
		symbol := strings.ToUpper(order.Symbol)
		side := strings.ToLower(order.Side)
		currency := order.Currency
		if currency == "" {
			currency = "EUR"
		}

		if symbol == "" || order.Quantity <= 0 || order.Price <= 0 {
			continue
		}

		current := positionMap[symbol]
		switch side {
		case "buy":
			orderValue := float64(order.Quantity) * order.Price
			newCash := adjustedCash[currency] - orderValue
			if !allowNegativeCash {
				newCash = math.Max(0.0, newCash)
			}
			adjustedCash[currency] = newCash
			positionMap[symbol] = Position{Symbol: symbol, Quantity: current.Quantity + order.Quantity, Price: order.Price}
		case "sell":
			newQuantity := current.Quantity - order.Quantity
			if newQuantity > 0 {
				positionMap[symbol] = Position{Symbol: symbol, Quantity: newQuantity, Price: current.Price}
			} else {
				delete(positionMap, symbol)
			}
		}
	}

	adjustedPositions := make([]Position, 0, len(positionMap))
	for _, p := range positionMap {
		if p.Quantity > 0 {
			adjustedPositions = append(adjustedPositions, p)
		}
	}

	return adjustedPositions, adjustedCash
}

// GeneratePortfolioHash generates a deterministic fingerprint of the current
// portfolio state.
//
// The canonical string includes, sorted by symbol:
//   - every position as (symbol, quantity, price rounded to cents)
//   - every universe security's trade configuration (allow_buy, allow_sell,
//     min/max portfolio targets, geography, industry), so changing a
//     security's rules invalidates cached plans even when holdings are
//     unchanged
//   - cash balances as pseudo-positions (CASH.EUR etc.), bucketed to
//     CashBucketEUR so sub-bucket drift maps to the same fingerprint
//
// Returns the first 8 hex characters of the MD5 of the canonical string.
func GeneratePortfolioHash(
	positions []Position,
	securities []universe.Security,
	cashBalances map[string]float64,
	pendingOrders []PendingOrder,
) string {
	if len(pendingOrders) > 0 {
		positions, cashBalances = ApplyPendingOrdersToPortfolio(positions, cashBalances, pendingOrders, true)
	}

	positionMap := make(map[string]Position)
	for _, p := range positions {
		positionMap[strings.ToUpper(p.Symbol)] = p
	}

	stockConfigMap := make(map[string]string)
	for _, security := range securities {
		symbolUpper := strings.ToUpper(security.Symbol)
		if _, exists := positionMap[symbolUpper]; !exists {
			positionMap[symbolUpper] = Position{Symbol: symbolUpper}
		}

		minTarget := ""
		if security.MinPortfolioTarget > 0 {
			minTarget = fmt.Sprintf("%v", security.MinPortfolioTarget)
		}
		maxTarget := ""
		if security.MaxPortfolioTarget > 0 {
			maxTarget = fmt.Sprintf("%v", security.MaxPortfolioTarget)
		}

		stockConfigMap[symbolUpper] = fmt.Sprintf("%v:%v:%s:%s:%s:%s",
			security.AllowBuy, security.AllowSell, minTarget, maxTarget,
			security.Geography, security.Industry)
	}

	sortedSymbols := make([]string, 0, len(positionMap))
	for symbol := range positionMap {
		sortedSymbols = append(sortedSymbols, symbol)
	}
	sort.Strings(sortedSymbols)

	parts := make([]string, 0, len(sortedSymbols)+len(cashBalances))
	for _, symbol := range sortedSymbols {
		pos := positionMap[symbol]
		config, ok := stockConfigMap[symbol]
		if !ok {
			config = "true:false::::"
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%.2f:%s", symbol, pos.Quantity, pos.Price, config))
	}

	canonicalCash := make(map[string]float64, len(cashBalances))
	for currency, amount := range cashBalances {
		canonicalCash[strings.ToUpper(currency)] += amount
	}
	cashCurrencies := make([]string, 0, len(canonicalCash))
	for currency := range canonicalCash {
		cashCurrencies = append(cashCurrencies, currency)
	}
	sort.Strings(cashCurrencies)
	for _, currency := range cashCurrencies {
		amount := canonicalCash[currency]
		if amount <= 0 {
			continue
		}
		bucketed := math.Round(amount/CashBucketEUR) * CashBucketEUR
		parts = append(parts, fmt.Sprintf("CASH.%s:%.0f", currency, bucketed))
	}

	canonical := strings.Join(parts, ",")
	sum := md5.Sum([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:8]
}

// GenerateSettingsHash generates a deterministic hash from the settings that
// affect recommendations, so changing any of them invalidates cached plans.
func GenerateSettingsHash(settings map[string]interface{}) string {
	relevantKeys := []string{
		"min_security_score",
		"min_hold_days",
		"sell_cooldown_days",
		"buy_cooldown_days",
		"max_loss_threshold",
		"target_annual_return",
		"optimizer_blend",
		"optimizer_target_return",
		"transaction_cost_fixed",
		"transaction_cost_percent",
		"min_cash_reserve",
		"max_plan_depth",
	}
	sort.Strings(relevantKeys)

	parts := make([]string, 0, len(relevantKeys))
	for _, k := range relevantKeys {
		value := ""
		if v, exists := settings[k]; exists && v != nil {
			value = fmt.Sprintf("%v", v)
		}
		parts = append(parts, fmt.Sprintf("%s:%s", k, value))
	}
	canonical := strings.Join(parts, ",")

	sum := md5.Sum([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:8]
}

// GenerateAllocationsHash generates a deterministic hash from allocation
// targets (keys like "geography:EU" or "industry:Technology", values as
// target fractions rounded to 4 decimal places).
func GenerateAllocationsHash(allocations map[string]float64) string {
	if len(allocations) == 0 {
		return "00000000"
	}

	sortedKeys := make([]string, 0, len(allocations))
	for k := range allocations {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	parts := make([]string, 0, len(sortedKeys))
	for _, k := range sortedKeys {
		rounded := math.Round(allocations[k]*10000) / 10000
		parts = append(parts, fmt.Sprintf("%s:%.4f", k, rounded))
	}
	canonical := strings.Join(parts, ",")

	sum := md5.Sum([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:8]
}

// GenerateRecommendationCacheKey combines the portfolio, settings, and
// allocations fingerprints into the cache key used by the recommendation
// cache. Cache entries go stale when any of the three inputs change.
func GenerateRecommendationCacheKey(
	positions []Position,
	settings map[string]interface{},
	securities []universe.Security,
	cashBalances map[string]float64,
	allocations map[string]float64,
	pendingOrders []PendingOrder,
) string {
	portfolioHash := GeneratePortfolioHash(positions, securities, cashBalances, pendingOrders)
	settingsHash := GenerateSettingsHash(settings)
	allocationsHash := GenerateAllocationsHash(allocations)
	return fmt.Sprintf("%s:%s:%s", portfolioHash, settingsHash, allocationsHash)
}
