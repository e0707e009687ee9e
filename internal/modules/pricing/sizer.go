package pricing

import (
	"math"

	"github.com/skagen/papertrader/internal/config"
)

// PositionBudget returns the cash budget for one new position. With
// BudgetPerRemainingSlot the available cash is divided across the slots not
// yet filled (MaxPositions - held, floored at one slot); otherwise it is a
// flat available / MaxPositions regardless of holdings.
func PositionBudget(availableCash float64, heldPositions int, rs config.Ruleset) float64 {
	slots := rs.MaxPositions
	if rs.BudgetPerRemainingSlot {
		slots = rs.MaxPositions - heldPositions
		if slots < 1 {
			slots = 1
		}
	}
	return availableCash / float64(slots)
}

// MaxAffordableShares returns the largest whole share count whose total cost
// including the brokerage fee fits within the budget. The fee has a fixed
// minimum, so the count from a plain budget/price division can overshoot; it
// is walked down until the fee-inclusive cost fits. Returns 0 when no whole
// share is affordable.
func MaxAffordableShares(budget, price float64, tier FeeTier) int64 {
	if price <= 0 || budget <= 0 {
		return 0
	}

	shares := int64(math.Floor(budget / price))
	for shares > 0 {
		total := float64(shares)*price + tier.Fee(price, shares)
		if total <= budget {
			break
		}
		shares--
	}
	return shares
}
