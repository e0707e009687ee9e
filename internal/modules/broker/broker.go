// Package broker orchestrates the order lifecycle: turning predictions into
// sized orders and settling pending orders against a day's price bar.
package broker

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/config"
	"github.com/skagen/papertrader/internal/marketdata"
	"github.com/skagen/papertrader/internal/modules/ledger"
	"github.com/skagen/papertrader/internal/modules/prediction"
	"github.com/skagen/papertrader/internal/modules/pricing"
)

// Broker sizes and creates orders from predictions and settles pending
// orders against daily bars. It holds no ledger state of its own; every
// mutation goes through the store's atomic operations.
type Broker struct {
	store *ledger.Store
	fees  *pricing.FeeSchedule
	rs    config.Ruleset
	log   zerolog.Logger
}

// New creates a broker
func New(store *ledger.Store, fees *pricing.FeeSchedule, rs config.Ruleset, log zerolog.Logger) *Broker {
	return &Broker{
		store: store,
		fees:  fees,
		rs:    rs,
		log:   log.With().Str("component", "broker").Logger(),
	}
}

// PlanCandidates turns raw predictions into ranked trade candidates. Each
// prediction runs through the threshold engine and, for symbols not held,
// the position sizer; candidates come back sorted by estimated profit,
// highest first. Pure reads only; no orders are created here.
func (b *Broker) PlanCandidates(preds []prediction.Prediction) ([]Candidate, error) {
	cash, err := b.store.Cash()
	if err != nil {
		return nil, err
	}
	heldCount, err := b.store.CountStockPositions()
	if err != nil {
		return nil, err
	}

	budget := pricing.PositionBudget(cash.Available, heldCount, b.rs)

	candidates := make([]Candidate, 0, len(preds))
	for _, pred := range preds {
		c := Candidate{
			Symbol:        pred.Symbol,
			PredictedLow:  pred.PredictedLow,
			PredictedHigh: pred.PredictedHigh,
		}

		c.Thresholds = pricing.CalculateThresholds(pred.PredictedLow, pred.PredictedHigh, b.rs)
		if c.Thresholds == nil {
			candidates = append(candidates, c)
			continue
		}

		pos, err := b.store.StockPosition(pred.Symbol)
		if err != nil {
			return nil, err
		}

		tier := b.fees.Tier(pred.Symbol)
		if pos != nil && pos.Shares > 0 {
			c.Held = true
			c.Shares = pos.Shares
		} else {
			c.Shares = pricing.MaxAffordableShares(budget, c.Thresholds.Buy, tier)
		}

		if c.Shares > 0 {
			c.BuyFee = tier.Fee(c.Thresholds.Buy, c.Shares)
			c.SellFee = tier.Fee(c.Thresholds.Sell, c.Shares)
			totalBuyCost := float64(c.Shares)*c.Thresholds.Buy + c.BuyFee
			totalSellProceeds := float64(c.Shares)*c.Thresholds.Sell - c.SellFee
			c.Profit = totalSellProceeds - totalBuyCost
		}

		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Profit > candidates[j].Profit
	})
	return candidates, nil
}

// CreateOrders creates orders for the planned candidates. Sell orders for
// held symbols are always created; buy orders are taken in profit order and
// capped so holdings plus new buys never exceed MaxPositions. A failure on
// one candidate does not block the rest unless the ledger itself is corrupt.
func (b *Broker) CreateOrders(candidates []Candidate, at time.Time) error {
	heldCount, err := b.store.CountStockPositions()
	if err != nil {
		return err
	}

	buySlots := b.rs.MaxPositions - heldCount
	newBuys := 0

	for _, c := range candidates {
		if !c.Tradeable() {
			continue
		}

		if c.Held {
			fee := b.fees.Tier(c.Symbol).Fee(c.Thresholds.Sell, c.Shares)
			_, err = b.store.CreateSellOrder(c.Symbol, c.Thresholds.Sell, c.Shares, fee, at)
		} else {
			if c.Profit <= 0 || newBuys >= buySlots {
				continue
			}
			_, err = b.store.CreateBuyOrder(c.Symbol, c.Thresholds.Buy, c.Shares, c.BuyFee, at)
			if err == nil {
				newBuys++
			}
		}

		if err != nil {
			if ledger.IsConsistencyError(err) {
				return err
			}
			b.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("Order creation skipped")
		}
	}
	return nil
}

// Settle resolves every pending order against the day's bars, one order at a
// time. A nil bar means the symbol did not trade and cancels the order; a
// symbol absent from the map means its price lookup failed, and the order
// stays pending for the next pass. Settlement failures are isolated per
// order; only a consistency error stops the pass.
func (b *Broker) Settle(bars map[string]*marketdata.Bar, at time.Time) error {
	pending, err := b.store.PendingOrders()
	if err != nil {
		return err
	}

	for _, order := range pending {
		bar, ok := bars[order.Symbol]
		if !ok {
			b.log.Warn().
				Str("order_id", order.ID).
				Str("symbol", order.Symbol).
				Msg("No price data for pending order, leaving for next pass")
			continue
		}
		if err := b.settleOne(order, bar, at); err != nil {
			if ledger.IsConsistencyError(err) {
				return err
			}
			b.log.Error().Err(err).
				Str("order_id", order.ID).
				Str("symbol", order.Symbol).
				Msg("Order settlement failed")
		}
	}
	return nil
}

// settleOne applies the day's bar to one pending order:
//
//	BUY:  open <= limit -> execute at open (fee recomputed),
//	      low  <= limit -> execute at limit, else cancel.
//	SELL: open >= limit -> execute at open (fee recomputed),
//	      high >= limit -> execute at limit, else cancel.
func (b *Broker) settleOne(order ledger.Order, bar *marketdata.Bar, at time.Time) error {
	if bar == nil {
		b.log.Info().
			Str("order_id", order.ID).
			Str("symbol", order.Symbol).
			Msg("No bar for settlement date, canceling order")
		return b.store.CancelOrder(order.ID, at)
	}

	switch order.Side {
	case ledger.SideBuy:
		if bar.Open <= order.Price {
			fee := b.fees.Tier(order.Symbol).Fee(bar.Open, order.Shares)
			return b.store.ExecuteOrder(order.ID, &ledger.Execution{Price: bar.Open, Fee: fee}, at)
		}
		if bar.Low <= order.Price {
			return b.store.ExecuteOrder(order.ID, nil, at)
		}
		return b.store.CancelOrder(order.ID, at)

	case ledger.SideSell:
		if bar.Open >= order.Price {
			fee := b.fees.Tier(order.Symbol).Fee(bar.Open, order.Shares)
			return b.store.ExecuteOrder(order.ID, &ledger.Execution{Price: bar.Open, Fee: fee}, at)
		}
		if bar.High >= order.Price {
			return b.store.ExecuteOrder(order.ID, nil, at)
		}
		return b.store.CancelOrder(order.ID, at)

	default:
		return fmt.Errorf("order %s has unknown side %q", order.ID, order.Side)
	}
}
