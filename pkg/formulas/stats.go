// Package formulas is the narrow numerics layer the optimiser and risk
// models sit on: return-series statistics, the correlation/distance
// transforms hierarchical risk parity clusters over, and tail-risk (CVaR)
// estimation. The search core only ever touches these functions, never a
// numeric backend directly.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear is the annualisation basis for daily series.
const tradingDaysPerYear = 252.0

// CalculateReturns converts a price series into simple periodic returns:
// r[i] = p[i+1]/p[i] - 1. Zero prices contribute a zero return.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := range returns {
		if prices[i] != 0 {
			returns[i] = prices[i+1]/prices[i] - 1
		}
	}
	return returns
}

// CalculateAnnualReturn compounds a daily return series into an annualised
// rate: ((1+r1)...(1+rN))^(252/N) - 1. Series shorter than three periods
// return the plain cumulative return; annualising two days of data would
// manufacture absurd rates.
func CalculateAnnualReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}

	if len(returns) < 3 {
		return cumulative - 1
	}

	years := float64(len(returns)) / tradingDaysPerYear
	return math.Pow(cumulative, 1/years) - 1
}

// AnnualizedVolatility scales the standard deviation of daily returns by
// sqrt(252).
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return stat.StdDev(dailyReturns, nil) * math.Sqrt(tradingDaysPerYear)
}

// Mean is the arithmetic mean; an empty series is 0.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev is the sample standard deviation; an empty series is 0.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}
