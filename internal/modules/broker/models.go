package broker

import (
	"github.com/skagen/papertrader/internal/modules/pricing"
)

// Candidate is a prediction worked up into an actionable trade plan: sized,
// fee-estimated and ranked by expected profit. Held symbols become sell
// candidates for the full holding; others become buy candidates.
type Candidate struct {
	Symbol        string
	PredictedLow  float64
	PredictedHigh float64

	Thresholds *pricing.Thresholds // nil when the prediction is a no-trade
	Shares     int64               // sized buy quantity, or the full holding for a sell
	BuyFee     float64
	SellFee    float64

	// Profit is the fee-inclusive estimate: sell proceeds at the sell
	// threshold minus buy cost at the buy threshold.
	Profit float64

	Held bool
}

// Tradeable reports whether the candidate can produce an order at all
func (c Candidate) Tradeable() bool {
	return c.Thresholds != nil && c.Shares > 0
}
