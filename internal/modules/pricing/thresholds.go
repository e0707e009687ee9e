// Package pricing holds the pure calculation pieces of the engine: buy/sell
// thresholds from a price prediction, brokerage fees, and position sizing.
// Nothing in this package touches the database or the network.
package pricing

import (
	"math"

	"github.com/skagen/papertrader/internal/config"
)

// Thresholds is an actionable buy/sell price pair derived from a prediction
type Thresholds struct {
	Buy  float64
	Sell float64
}

// CalculateThresholds maps a predicted (low, high) pair to tick-aligned buy
// and sell thresholds, or (nil) when the prediction is unusable: negative
// prices, an inverted range, or a spread too thin to cover fees and risk.
//
// The buy threshold sits a margin above the predicted low and the sell
// threshold a margin below the predicted high, so fills do not depend on the
// day touching the exact predicted extremes.
func CalculateThresholds(predictedLow, predictedHigh float64, rs config.Ruleset) *Thresholds {
	if predictedLow < 0 || predictedHigh < 0 {
		return nil
	}
	if predictedLow >= predictedHigh {
		return nil
	}
	if predictedLow*(1+rs.MinSpread) >= predictedHigh {
		return nil
	}

	return &Thresholds{
		Buy:  RoundToTick(predictedLow*(1+rs.BuyMargin), rs.TickSize),
		Sell: RoundToTick(predictedHigh*(1-rs.SellMargin), rs.TickSize),
	}
}

// RoundToTick rounds a price to the nearest multiple of the tick size, then
// re-rounds to the tick's decimal precision so repeated float math cannot
// drift the price off the tick grid.
func RoundToTick(value, tickSize float64) float64 {
	ticked := math.Round(value/tickSize) * tickSize

	precision := tickPrecision(tickSize)
	scale := math.Pow(10, float64(precision))
	return math.Round(ticked*scale) / scale
}

// tickPrecision returns the number of decimal places needed to represent the
// tick size (0.1 -> 1, 0.05 -> 2, 1 -> 0). Capped at 8 places.
func tickPrecision(tickSize float64) int {
	for p := 0; p <= 8; p++ {
		scaled := tickSize * math.Pow(10, float64(p))
		if math.Abs(scaled-math.Round(scaled)) < 1e-9 {
			return p
		}
	}
	return 8
}
