package planner

import (
	"errors"
	"testing"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRates struct{ rate float64 }

func (f fixedRates) GetRate(from, to string) (float64, error) {
	if f.rate <= 0 {
		return 0, errors.New("no rate")
	}
	return f.rate, nil
}

func TestAssembler_StepAccountingAndCashPath(t *testing.T) {
	assembler := NewAssembler(nil, zerolog.Nop())

	best := ScoredSequence{
		Sequence: domain.ActionSequence{
			SequenceHash: "abc",
			Actions: []domain.ActionCandidate{
				{Side: "SELL", ISIN: "US1", Symbol: "NVDA", Name: "NVIDIA", Quantity: 10, Price: 450, ValueEUR: 4500, Currency: "EUR", Tags: []string{"windfall"}},
				{Side: "BUY", ISIN: "US2", Symbol: "BABA", Name: "Alibaba", Quantity: 20, Price: 105, ValueEUR: 2100, Currency: "EUR", Tags: []string{"averaging_down"}},
			},
		},
		Result: domain.EvaluationResult{EndScore: 0.8, ScoreBreakdown: map[string]float64{"final_score": 0.8}},
	}

	plan := assembler.Assemble(best, 0.5, 2.0, 0.002)

	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.Feasible)
	assert.InDelta(t, 0.3, plan.Improvement, 1e-9)
	assert.Equal(t, 4500.0, plan.CashGenerated)
	assert.Equal(t, 2100.0, plan.CashRequired)

	sellCost := 2.0 + 4500*0.002
	buyCost := 2.0 + 2100*0.002
	assert.InDelta(t, sellCost, plan.Steps[0].CumulativeCost, 1e-9)
	assert.InDelta(t, sellCost+buyCost, plan.Steps[1].CumulativeCost, 1e-9)
	assert.InDelta(t, sellCost+buyCost, plan.TotalCost, 1e-9)

	// The running cash delta never goes negative on this sell-first plan.
	assert.InDelta(t, 4500-sellCost, plan.Steps[0].CashDelta, 1e-9)
	assert.InDelta(t, 4500-sellCost-2100-buyCost, plan.Steps[1].CashDelta, 1e-9)
	for _, step := range plan.Steps {
		assert.GreaterOrEqual(t, step.CashDelta, 0.0)
	}

	assert.True(t, plan.Steps[0].IsWindfall)
	assert.True(t, plan.Steps[1].IsAveragingDown)
	assert.Contains(t, plan.Steps[0].Narrative, "windfall")
	assert.Contains(t, plan.Steps[1].Narrative, "averaging down")
	assert.Contains(t, plan.NarrativeSummary, "1 sell(s) funding 1 buy(s)")
}

func TestAssembler_NarrativeTemplates(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		fragment string
	}{
		{"windfall", []string{"windfall"}, "windfall gain"},
		{"profit taking", []string{"profit_taking"}, "take profit"},
		{"rebalance with group hint", []string{"rebalance", "underweight_eu"}, "underweight EU"},
		{"rebalance plain", []string{"rebalance"}, "target weights"},
		{"averaging down", []string{"averaging_down"}, "cost basis"},
		{"quality", []string{"quality"}, "fundamentals"},
		{"opportunity", []string{"opportunity"}, "valuation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			narrative := stepNarrative(1, domain.ActionCandidate{
				Side: "BUY", Symbol: "SAP", Quantity: 10, Tags: tt.tags,
			})
			assert.Contains(t, narrative, tt.fragment)
		})
	}
}

func TestAssembler_CurrencyConversion(t *testing.T) {
	assembler := NewAssembler(fixedRates{rate: 0.9}, zerolog.Nop())

	best := ScoredSequence{
		Sequence: domain.ActionSequence{Actions: []domain.ActionCandidate{
			{Side: "BUY", Symbol: "AAPL", Quantity: 10, Price: 100, ValueEUR: 900, Currency: "USD"},
		}},
		Result: domain.EvaluationResult{EndScore: 0.7},
	}

	plan := assembler.Assemble(best, 0, 0, 0)
	require.Len(t, plan.Steps, 1)
	assert.InDelta(t, 90.0, plan.Steps[0].EstimatedPrice, 1e-9)
	assert.Equal(t, "EUR", plan.Steps[0].Currency)
}

func TestAssembler_RateFailureKeepsOriginalPrice(t *testing.T) {
	assembler := NewAssembler(fixedRates{rate: 0}, zerolog.Nop())

	best := ScoredSequence{
		Sequence: domain.ActionSequence{Actions: []domain.ActionCandidate{
			{Side: "BUY", Symbol: "AAPL", Quantity: 1, Price: 100, ValueEUR: 100, Currency: "USD"},
		}},
		Result: domain.EvaluationResult{EndScore: 0.7},
	}

	plan := assembler.Assemble(best, 0, 0, 0)
	assert.InDelta(t, 100.0, plan.Steps[0].EstimatedPrice, 1e-9)
}

func TestEmptyAndInfeasiblePlans(t *testing.T) {
	empty := EmptyPlan(0.6)
	assert.True(t, empty.Feasible)
	assert.Empty(t, empty.Steps)
	assert.Contains(t, empty.NarrativeSummary, "No actions recommended")

	infeasible := InfeasiblePlan(errors.New("daily limit reached (4 of 4 trades today)"))
	assert.False(t, infeasible.Feasible)
	assert.Empty(t, infeasible.Steps)
	assert.Contains(t, infeasible.Error, "daily limit")
}
