package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(data), 1e-9)
	// Sample standard deviation.
	assert.InDelta(t, 2.1381, StdDev(data), 1e-4)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev(nil))
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Empty(t, CalculateReturns([]float64{100}))
	assert.Empty(t, CalculateReturns(nil))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015, 0.005}
	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-12)
	assert.Zero(t, AnnualizedVolatility(nil))
}

func TestCalculateSharpeRatio(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.005, 0.015, 0.01}

	sharpe := CalculateSharpeRatio(returns, 0, 252)
	require.NotNil(t, sharpe)
	expected := Mean(returns) / StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, *sharpe, 1e-9)

	// A risk-free rate shrinks the ratio.
	withRate := CalculateSharpeRatio(returns, 0.05, 252)
	require.NotNil(t, withRate)
	assert.Less(t, *withRate, *sharpe)
}

func TestCalculateSharpeRatioDegenerateInputs(t *testing.T) {
	assert.Nil(t, CalculateSharpeRatio(nil, 0, 252))
	assert.Nil(t, CalculateSharpeRatio([]float64{0.01}, 0, 252))
	// Zero variance.
	assert.Nil(t, CalculateSharpeRatio([]float64{0.01, 0.01, 0.01}, 0, 252))
}

func TestCalculateSharpeFromValues(t *testing.T) {
	values := []float64{100, 101, 103, 102, 104}
	sharpe := CalculateSharpeFromValues(values, 0)
	require.NotNil(t, sharpe)

	direct := CalculateSharpeRatio(CalculateReturns(values), 0, 252)
	assert.InDelta(t, *direct, *sharpe, 1e-12)

	assert.Nil(t, CalculateSharpeFromValues([]float64{100}, 0))
}

func TestCalculateMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90: 25% drawdown.
	dd := CalculateMaxDrawdown([]float64{100, 120, 90, 130})
	require.NotNil(t, dd)
	assert.InDelta(t, 0.25, *dd, 1e-9)

	// Monotonic rise has zero drawdown.
	dd = CalculateMaxDrawdown([]float64{100, 110, 120})
	require.NotNil(t, dd)
	assert.Zero(t, *dd)

	assert.Nil(t, CalculateMaxDrawdown([]float64{100}))
	assert.Nil(t, CalculateMaxDrawdown(nil))
}
