package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionBudget(t *testing.T) {
	rs := testRuleset()

	// Per-remaining-slot: cash is spread across the unfilled slots.
	assert.InDelta(t, 10000, PositionBudget(100000, 0, rs), 1e-9)
	assert.InDelta(t, 20000, PositionBudget(100000, 5, rs), 1e-9)
	assert.InDelta(t, 100000, PositionBudget(100000, 9, rs), 1e-9)

	// At or above the position cap a single slot remains.
	assert.InDelta(t, 100000, PositionBudget(100000, 10, rs), 1e-9)
	assert.InDelta(t, 100000, PositionBudget(100000, 12, rs), 1e-9)

	// Flat sizing ignores holdings.
	rs.BudgetPerRemainingSlot = false
	assert.InDelta(t, 10000, PositionBudget(100000, 5, rs), 1e-9)
}

func TestMaxAffordableShares(t *testing.T) {
	tier := FeeTier{Percent: 0.002, Minimum: 49}

	// A plain budget/price division gives 100 shares, but 100 x 100 + 49
	// overshoots the budget; the count walks down until the fee fits.
	assert.Equal(t, int64(99), MaxAffordableShares(10000, 100, tier))

	// Plenty of headroom for the fee.
	assert.Equal(t, int64(95), MaxAffordableShares(9595, 100, tier))

	// The fee alone can make a single share unaffordable.
	assert.Equal(t, int64(0), MaxAffordableShares(100, 100, tier))
	assert.Equal(t, int64(1), MaxAffordableShares(149, 100, tier))
}

func TestMaxAffordableSharesDegenerateInputs(t *testing.T) {
	tier := FeeTier{Percent: 0.002, Minimum: 49}

	assert.Equal(t, int64(0), MaxAffordableShares(0, 100, tier))
	assert.Equal(t, int64(0), MaxAffordableShares(-100, 100, tier))
	assert.Equal(t, int64(0), MaxAffordableShares(1000, 0, tier))
	assert.Equal(t, int64(0), MaxAffordableShares(1000, -5, tier))
}
