package planner

import (
	"fmt"
	"strings"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// ExchangeRateSource converts between currencies during plan assembly. A
// nil source leaves non-EUR prices untouched.
type ExchangeRateSource interface {
	GetRate(from, to string) (float64, error)
}

// Assembler converts the winning sequence into a narrated plan: one step
// per action, each carrying the running transaction cost and cash delta,
// plus a top-level narrative. Narration never changes scores or ordering.
type Assembler struct {
	rates ExchangeRateSource
	log   zerolog.Logger
}

// NewAssembler creates a plan assembler.
func NewAssembler(rates ExchangeRateSource, log zerolog.Logger) *Assembler {
	return &Assembler{
		rates: rates,
		log:   log.With().Str("component", "plan_assembler").Logger(),
	}
}

// Assemble walks the sequence in order and produces the final plan.
// currentScore and the evaluation result supply the score fields; costFixed
// and costPct price each step's transaction cost.
func (a *Assembler) Assemble(
	best ScoredSequence,
	currentScore float64,
	costFixed, costPct float64,
) *domain.HolisticPlan {
	var steps []domain.HolisticStep
	cashRequired := 0.0
	cashGenerated := 0.0
	cumulativeCost := 0.0
	cashDelta := 0.0

	for i, action := range best.Sequence.Actions {
		priceEUR := a.toEUR(action.Price, action.Currency, action.Symbol)

		stepCost := costFixed + action.ValueEUR*costPct
		cumulativeCost += stepCost

		if action.Side == "BUY" {
			cashRequired += action.ValueEUR
			cashDelta -= action.ValueEUR + stepCost
		} else {
			cashGenerated += action.ValueEUR
			cashDelta += action.ValueEUR - stepCost
		}

		steps = append(steps, domain.HolisticStep{
			StepNumber:      i + 1,
			Side:            action.Side,
			ISIN:            action.ISIN,
			Symbol:          action.Symbol,
			Name:            action.Name,
			Quantity:        action.Quantity,
			EstimatedPrice:  priceEUR,
			EstimatedValue:  action.ValueEUR,
			Currency:        "EUR",
			Reason:          action.Reason,
			Narrative:       stepNarrative(i+1, action),
			CumulativeCost:  cumulativeCost,
			CashDelta:       cashDelta,
			IsWindfall:      action.HasTag("windfall"),
			IsAveragingDown: action.HasTag("averaging_down"),
		})
	}

	result := best.Result
	improvement := result.EndScore - currentScore

	return &domain.HolisticPlan{
		Steps:            steps,
		CurrentScore:     currentScore,
		EndStateScore:    result.EndScore,
		Improvement:      improvement,
		NarrativeSummary: planNarrative(steps, improvement),
		ScoreBreakdown:   result.ScoreBreakdown,
		TotalCost:        cumulativeCost,
		CashRequired:     cashRequired,
		CashGenerated:    cashGenerated,
		Feasible:         true,
	}
}

// EmptyPlan is the canonical "no actions recommended" plan.
func EmptyPlan(currentScore float64) *domain.HolisticPlan {
	return &domain.HolisticPlan{
		Steps:            []domain.HolisticStep{},
		CurrentScore:     currentScore,
		EndStateScore:    currentScore,
		NarrativeSummary: "No actions recommended: the portfolio is already well positioned.",
		Feasible:         true,
	}
}

// InfeasiblePlan is the canonical failure plan: empty steps, Feasible=false,
// and the error carried for the caller.
func InfeasiblePlan(err error) *domain.HolisticPlan {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &domain.HolisticPlan{
		Steps:    []domain.HolisticStep{},
		Feasible: false,
		Error:    msg,
	}
}

func (a *Assembler) toEUR(price float64, currency, symbol string) float64 {
	if currency == "" || currency == "EUR" || a.rates == nil {
		return price
	}
	rate, err := a.rates.GetRate(currency, "EUR")
	if err != nil {
		a.log.Warn().
			Err(err).
			Str("currency", currency).
			Str("symbol", symbol).
			Msg("Failed to get exchange rate, using original price")
		return price
	}
	return price * rate
}

// stepNarrative selects a template by the action's tags: windfall,
// profit-taking, rebalance (with group hint), averaging-down, quality,
// opportunity, with a generic fallback.
func stepNarrative(stepNumber int, action domain.ActionCandidate) string {
	verb := "Buy"
	if action.Side == "SELL" {
		verb = "Sell"
	}
	base := fmt.Sprintf("Step %d: %s %d shares of %s", stepNumber, verb, action.Quantity, action.Symbol)

	switch {
	case action.HasTag("windfall"):
		return base + " to lock in a windfall gain well above its historical growth band."
	case action.HasTag("profit_taking"):
		return base + " to take profit and free capital for better-positioned holdings."
	case action.HasTag("averaging_down"):
		return base + ", averaging down on a quality position trading below its cost basis."
	case action.HasTag("rebalance"):
		if hint := groupHint(action.Tags); hint != "" {
			return fmt.Sprintf("%s to move the %s allocation back toward its target.", base, hint)
		}
		return base + " to bring the allocation back toward its target weights."
	case action.HasTag("quality"):
		return base + ", adding to a high-quality holding with strong fundamentals."
	case action.HasTag("opportunity"):
		return base + ", capturing an opportunity flagged by its current valuation."
	default:
		if action.Reason != "" {
			return base + ": " + action.Reason
		}
		return base + "."
	}
}

// groupHint extracts the group name from tags like "underweight_eu" or
// "overweight_technology".
func groupHint(tags []string) string {
	for _, tag := range tags {
		for _, prefix := range []string{"underweight_", "overweight_"} {
			if strings.HasPrefix(tag, prefix) {
				group := strings.ToUpper(strings.TrimPrefix(tag, prefix))
				if strings.HasPrefix(tag, "underweight_") {
					return "underweight " + group
				}
				return "overweight " + group
			}
		}
	}
	return ""
}

// planNarrative composes the top-level summary from the step mix.
func planNarrative(steps []domain.HolisticStep, improvement float64) string {
	if len(steps) == 0 {
		return "No actions recommended: the portfolio is already well positioned."
	}

	buys, sells := 0, 0
	for _, step := range steps {
		if step.Side == "BUY" {
			buys++
		} else {
			sells++
		}
	}

	var mix string
	switch {
	case sells == 0:
		mix = fmt.Sprintf("%d buy(s)", buys)
	case buys == 0:
		mix = fmt.Sprintf("%d sell(s)", sells)
	default:
		mix = fmt.Sprintf("%d sell(s) funding %d buy(s)", sells, buys)
	}

	return fmt.Sprintf("Execute %d action(s) (%s) for an expected score improvement of %.3f.",
		len(steps), mix, improvement)
}
