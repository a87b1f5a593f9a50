package sequences

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/scoring"
)

// NormalizeSequence sorts actions SELL-first, then BUY, each side ordered by
// ISIN. Sells must precede the buys they fund, and the canonical order makes
// "SELL A + BUY B" and "BUY B + SELL A" hash identically.
func NormalizeSequence(actions []domain.ActionCandidate) []domain.ActionCandidate {
	result := make([]domain.ActionCandidate, len(actions))
	copy(result, actions)

	sort.Slice(result, func(i, j int) bool {
		if result[i].Side != result[j].Side {
			return result[i].Side == "SELL"
		}
		return result[i].ISIN < result[j].ISIN
	})

	return result
}

// ComputeSequenceHash creates a deterministic MD5 hash over the
// (symbol, side, quantity) tuples of a sequence, in order.
func ComputeSequenceHash(actions []domain.ActionCandidate) string {
	type tuple struct {
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Quantity int    `json:"quantity"`
	}

	tuples := make([]tuple, len(actions))
	for i, action := range actions {
		tuples[i] = tuple{Symbol: action.Symbol, Side: action.Side, Quantity: action.Quantity}
	}

	jsonBytes, err := json.Marshal(tuples)
	if err != nil {
		return ""
	}

	sum := md5.Sum(jsonBytes)
	return hex.EncodeToString(sum[:])
}

// ComputePriority is the aggregate priority of a sequence: the average of
// its actions' priorities.
func ComputePriority(actions []domain.ActionCandidate) float64 {
	if len(actions) == 0 {
		return 0
	}
	var total float64
	for _, a := range actions {
		total += a.Priority
	}
	return total / float64(len(actions))
}

// NewSequence builds an ActionSequence from actions produced by the named
// pattern, normalising order and filling hash, priority, and depth.
func NewSequence(actions []domain.ActionCandidate, patternType string) domain.ActionSequence {
	normalized := NormalizeSequence(actions)
	return domain.ActionSequence{
		Actions:      normalized,
		Priority:     ComputePriority(normalized),
		Depth:        len(normalized),
		PatternType:  patternType,
		SequenceHash: ComputeSequenceHash(normalized),
	}
}

// CashPathFeasible walks the actions in order, crediting sells, debiting
// buys, and debiting the transaction cost of every step, and reports whether
// the running cash balance ever goes negative.
func CashPathFeasible(actions []domain.ActionCandidate, availableCash, costFixed, costPct float64) bool {
	cash := availableCash
	for _, action := range actions {
		cost := costFixed + action.ValueEUR*costPct
		switch action.Side {
		case "SELL":
			cash += action.ValueEUR - cost
		case "BUY":
			cash -= action.ValueEUR + cost
		}
		if cash < 0 {
			return false
		}
	}
	return true
}

// ConcentrationFeasible simulates the running position values across the
// actions and reports whether any buy would push its position above
// maxConcentration of the (also running) total portfolio value. Pass
// maxConcentration <= 0 to use the shared hard cap.
func ConcentrationFeasible(actions []domain.ActionCandidate, ctx *domain.OpportunityContext, maxConcentration float64) bool {
	if ctx == nil || ctx.TotalPortfolioValueEUR <= 0 {
		return true
	}
	if maxConcentration <= 0 {
		maxConcentration = scoring.MaxConcentration
	}

	positionValues := make(map[string]float64, len(ctx.EnrichedPositions))
	for _, pos := range ctx.EnrichedPositions {
		key := pos.ISIN
		if key == "" {
			key = pos.Symbol
		}
		positionValues[key] = pos.MarketValueEUR
	}
	totalValue := ctx.TotalPortfolioValueEUR

	for _, action := range actions {
		key := action.ISIN
		if key == "" {
			key = action.Symbol
		}

		switch action.Side {
		case "SELL":
			positionValues[key] -= action.ValueEUR
			if positionValues[key] < 0 {
				positionValues[key] = 0
			}
		case "BUY":
			positionValues[key] += action.ValueEUR
			if positionValues[key]/totalValue > maxConcentration {
				return false
			}
		}
	}

	return true
}

// sortCandidates orders candidates by priority descending, breaking ties by
// ISIN then side, so equal inputs always enumerate in the same order.
func sortCandidates(candidates []domain.ActionCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if candidates[i].ISIN != candidates[j].ISIN {
			return candidates[i].ISIN < candidates[j].ISIN
		}
		return candidates[i].Side < candidates[j].Side
	})
}

// topByPriority returns up to n candidates sorted by priority descending.
func topByPriority(candidates []domain.ActionCandidate, n int) []domain.ActionCandidate {
	sorted := make([]domain.ActionCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
