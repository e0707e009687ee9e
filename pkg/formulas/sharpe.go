package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the annualized Sharpe ratio from periodic
// returns.
//
//	Sharpe = (mean return - periodic risk-free rate) / std dev of returns
//	annualized by sqrt(periods per year)
//
// Returns nil with fewer than two returns or zero variance.
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	meanReturn := Mean(returns)
	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (meanReturn - periodicRiskFree) / stdDev

	annualized := sharpe * math.Sqrt(float64(periodsPerYear))
	return &annualized
}

// CalculateSharpeFromValues calculates the Sharpe ratio directly from a
// daily value series (252 trading days per year).
func CalculateSharpeFromValues(values []float64, riskFreeRate float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	return CalculateSharpeRatio(CalculateReturns(values), riskFreeRate, 252)
}
