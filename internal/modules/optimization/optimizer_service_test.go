package optimization

import (
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticPrices generates deterministic daily price series per ISIN with
// distinct drift and wiggle so covariance is well-conditioned.
type syntheticPrices struct{ seeds map[string]float64 }

func (p syntheticPrices) GetPriceHistory(isin string, days int) ([]PricePoint, error) {
	seed, ok := p.seeds[isin]
	if !ok {
		return nil, fmt.Errorf("no history for %s", isin)
	}

	points := make([]PricePoint, 0, days)
	price := 100.0
	for i := 0; i < days; i++ {
		price *= 1 + 0.0004*seed + 0.01*math.Sin(float64(i)*seed+seed)
		points = append(points, PricePoint{
			Date:  fmt.Sprintf("2025-%02d-%02d", 1+(i/28)%12, 1+i%28),
			Close: price,
		})
	}
	return points, nil
}

func testOptimizerService(t *testing.T, seeds map[string]float64, metrics MetricsMap) *OptimizerService {
	t.Helper()
	log := zerolog.Nop()

	return NewOptimizerService(
		NewMVOptimizer(NewCVaRCalculator(log), 0),
		NewHRPOptimizer(),
		NewConstraintsManager(log),
		NewReturnsCalculator(metrics, log),
		NewRiskModelBuilder(syntheticPrices{seeds: seeds}, log),
		log,
	)
}

func metricsFor(isins ...string) MetricsMap {
	out := MetricsMap{}
	for i, isin := range isins {
		cagr := 0.82 + 0.04*float64(i)
		score := 0.7
		out[isin] = SecurityMetrics{CAGRScore: &cagr, TotalScore: &score, DividendYield: 0.02}
	}
	return out
}

func optimizerState(isins ...string) PortfolioState {
	securities := make([]Security, 0, len(isins))
	prices := make(map[string]float64)
	for _, isin := range isins {
		securities = append(securities, Security{
			ISIN: isin, Symbol: isin[:4], ProductType: "EQUITY",
			Geography: "US", Industry: "Technology",
			AllowBuy: true, AllowSell: true, PriorityMultiplier: 1.0,
		})
		prices[isin] = 100.0
	}
	return PortfolioState{
		Securities:     securities,
		Positions:      map[string]Position{},
		PortfolioValue: 100000,
		CashBalance:    10000,
		CurrentPrices:  prices,
	}
}

func TestOptimizerService_WeightsSumToInvestableFraction(t *testing.T) {
	isins := []string{"US0000000001", "US0000000002", "US0000000003"}
	svc := testOptimizerService(t, map[string]float64{
		isins[0]: 1.0, isins[1]: 2.0, isins[2]: 3.0,
	}, metricsFor(isins...))

	settings := DefaultSettings()
	settings.CashReserveFraction = 0.05
	settings.MinCashReserve = 0

	result, err := svc.Optimize(optimizerState(isins...), settings)
	require.NoError(t, err)
	require.True(t, result.Feasible)

	sum := 0.0
	for isin, w := range result.TargetWeights {
		assert.GreaterOrEqual(t, w, settings.WeightCutoff, "weights below the cutoff must be dropped")
		assert.Contains(t, isins, isin)
		sum += w
	}
	assert.InDelta(t, 0.95, sum, 1e-6, "weights renormalise to 1 - cash_reserve_fraction")
}

func TestOptimizerService_InsufficientData(t *testing.T) {
	// No metrics at all: every security is excluded.
	svc := testOptimizerService(t, map[string]float64{"US0000000001": 1.0}, MetricsMap{})

	_, err := svc.Optimize(optimizerState("US0000000001", "US0000000002"), DefaultSettings())
	assert.ErrorIs(t, err, ErrInsufficientData)

	// A single usable security is still insufficient.
	svc = testOptimizerService(t, map[string]float64{"US0000000001": 1.0}, metricsFor("US0000000001"))
	_, err = svc.Optimize(optimizerState("US0000000001", "US0000000002"), DefaultSettings())
	assert.ErrorIs(t, err, ErrInsufficientData)

	// No securities at all.
	_, err = svc.Optimize(PortfolioState{}, DefaultSettings())
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestOptimizerService_Idempotent(t *testing.T) {
	isins := []string{"US0000000001", "US0000000002", "US0000000003"}
	svc := testOptimizerService(t, map[string]float64{
		isins[0]: 1.5, isins[1]: 2.5, isins[2]: 3.5,
	}, metricsFor(isins...))

	state := optimizerState(isins...)
	settings := DefaultSettings()

	first, err := svc.Optimize(state, settings)
	require.NoError(t, err)
	second, err := svc.Optimize(state, settings)
	require.NoError(t, err)

	require.Equal(t, len(first.TargetWeights), len(second.TargetWeights))
	for isin, w := range first.TargetWeights {
		assert.InDelta(t, w, second.TargetWeights[isin], 1e-9, "optimise(optimise(P)) must equal optimise(P)")
	}
}

func TestOptimizerService_BlendExtremes(t *testing.T) {
	isins := []string{"US0000000001", "US0000000002", "US0000000003"}
	seeds := map[string]float64{isins[0]: 1.0, isins[1]: 2.0, isins[2]: 3.0}
	svc := testOptimizerService(t, seeds, metricsFor(isins...))
	state := optimizerState(isins...)

	pureHRP := DefaultSettings()
	pureHRP.Blend = 1.0
	hrpResult, err := svc.Optimize(state, pureHRP)
	require.NoError(t, err)
	require.True(t, hrpResult.HRPSucceeded)

	pureMV := DefaultSettings()
	pureMV.Blend = 0.0
	mvResult, err := svc.Optimize(state, pureMV)
	require.NoError(t, err)

	// With blend=1 the target weights follow the HRP branch exactly (up to
	// cutoff and renormalisation scaling).
	if hrpResult.HRPSucceeded && len(hrpResult.HRPWeights) > 0 {
		for isin := range hrpResult.TargetWeights {
			assert.Contains(t, hrpResult.HRPWeights, isin)
		}
	}
	require.True(t, mvResult.Feasible)
}

func TestBlendWeights_ConvexCombination(t *testing.T) {
	svc := testOptimizerService(t, map[string]float64{}, MetricsMap{})

	mv := map[string]float64{"A": 0.6, "B": 0.4}
	hrp := map[string]float64{"A": 0.2, "B": 0.8}

	blended := svc.blendWeights(mv, hrp, 0.25)
	assert.InDelta(t, 0.75*0.6+0.25*0.2, blended["A"], 1e-9)
	assert.InDelta(t, 0.75*0.4+0.25*0.8, blended["B"], 1e-9)

	// A failed branch yields the other unchanged.
	assert.Equal(t, hrp, svc.blendWeights(nil, hrp, 0.25))
	assert.Equal(t, mv, svc.blendWeights(mv, nil, 0.25))
}

func TestApplyCutoffAndNormalize(t *testing.T) {
	svc := testOptimizerService(t, map[string]float64{}, MetricsMap{})

	weights := map[string]float64{"A": 0.5, "B": 0.45, "C": 0.005}
	out := svc.applyCutoffAndNormalize(weights, 0.01, 0.95)

	assert.NotContains(t, out, "C")
	sum := 0.0
	for _, w := range out {
		sum += w
	}
	assert.InDelta(t, 0.95, sum, 1e-9)
}

func TestReturnsCalculator_HardMinimumFilter(t *testing.T) {
	log := zerolog.Nop()
	lowCAGR := 0.2 // maps to ~1% CAGR, well below any reasonable minimum
	neutral := 0.5
	metrics := MetricsMap{
		"US0000000001": {CAGRScore: &lowCAGR, TotalScore: &neutral},
	}
	calc := NewReturnsCalculator(metrics, log)

	returns, err := calc.CalculateExpectedReturns([]Security{
		{ISIN: "US0000000001", Symbol: "LOW", PriorityMultiplier: 1.0},
		{ISIN: "US0000000002", Symbol: "NODATA", PriorityMultiplier: 1.0},
	}, 0, nil, 0.11, 0.80)

	require.NoError(t, err)
	assert.Empty(t, returns, "below-minimum and missing-data securities are both excluded")
}

func TestReturnsCalculator_ClampsToRange(t *testing.T) {
	log := zerolog.Nop()
	highCAGR := 1.0 // ~20% CAGR
	strong := 1.0
	metrics := MetricsMap{
		"US0000000001": {CAGRScore: &highCAGR, TotalScore: &strong, DividendYield: 0.05},
	}
	calc := NewReturnsCalculator(metrics, log)

	returns, err := calc.CalculateExpectedReturns([]Security{
		{ISIN: "US0000000001", Symbol: "HOT", PriorityMultiplier: 3.0},
	}, 0.5, map[string]float64{"HOT": 0.05}, 0.11, 0.80)

	require.NoError(t, err)
	require.Contains(t, returns, "US0000000001")
	assert.LessOrEqual(t, returns["US0000000001"], ExpectedReturnMax)
	assert.GreaterOrEqual(t, returns["US0000000001"], ExpectedReturnMin)
}
