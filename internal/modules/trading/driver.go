// Package trading runs the daily trading pass: dividends, settlement,
// valuation and order creation for a set of tickers, either for a single day
// or replayed across a historical range.
package trading

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/marketdata"
	"github.com/skagen/papertrader/internal/modules/broker"
	"github.com/skagen/papertrader/internal/modules/ledger"
	"github.com/skagen/papertrader/internal/modules/prediction"
	"github.com/skagen/papertrader/internal/modules/valuation"
	"github.com/skagen/papertrader/pkg/formulas"
)

// Driver orchestrates one trading pass per day. Live and backtest runs share
// the same code path; the only difference is the date handed to RunDay.
type Driver struct {
	store     *ledger.Store
	broker    *broker.Broker
	valuation *valuation.Service
	predictor prediction.Predictor
	provider  marketdata.Provider
	tickers   []string
	log       zerolog.Logger

	// Serializes passes: the ledger is single-writer and no two passes for
	// the same day may interleave.
	mu sync.Mutex
}

// New creates a trading driver
func New(
	store *ledger.Store,
	brk *broker.Broker,
	val *valuation.Service,
	predictor prediction.Predictor,
	provider marketdata.Provider,
	tickers []string,
	log zerolog.Logger,
) *Driver {
	return &Driver{
		store:     store,
		broker:    brk,
		valuation: val,
		predictor: predictor,
		provider:  provider,
		tickers:   tickers,
		log:       log.With().Str("component", "driver").Logger(),
	}
}

// RunToday runs the trading pass for the current date
func (d *Driver) RunToday() error {
	return d.RunDay(time.Now().UTC())
}

// RunDay runs one full trading pass for a date: pay dividends, settle
// pending orders against the day's bars, mark the portfolio to market, then
// create orders from fresh predictions. Weekends are skipped. External data
// failures skip the affected ticker and the pass continues; a ledger
// consistency error aborts the pass.
func (d *Driver) RunDay(date time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		d.log.Debug().Str("date", date.Format("2006-01-02")).Msg("Weekend, skipping pass")
		return nil
	}

	log := d.log.With().Str("date", date.Format("2006-01-02")).Logger()
	log.Info().Msg("Starting trading pass")

	if err := d.valuation.PayDividends(date); err != nil {
		return fmt.Errorf("dividend payout failed: %w", err)
	}

	bars, err := d.settlementBars(date)
	if err != nil {
		return err
	}
	if err := d.broker.Settle(bars, date); err != nil {
		return fmt.Errorf("settlement failed: %w", err)
	}

	if _, err := d.valuation.MarkToMarket(date); err != nil {
		return fmt.Errorf("valuation failed: %w", err)
	}

	preds := d.collectPredictions(date, log)

	candidates, err := d.broker.PlanCandidates(preds)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	if err := d.broker.CreateOrders(candidates, date); err != nil {
		return fmt.Errorf("order creation failed: %w", err)
	}

	log.Info().Int("predictions", len(preds)).Msg("Trading pass finished")
	return nil
}

// settlementBars resolves the day's bar for every symbol with a pending
// order, before any ledger transaction begins. A symbol that did not trade
// maps to nil (cancel); a failed lookup is left out of the map entirely
// (order stays pending).
func (d *Driver) settlementBars(date time.Time) (map[string]*marketdata.Bar, error) {
	pending, err := d.store.PendingOrders()
	if err != nil {
		return nil, err
	}

	bars := make(map[string]*marketdata.Bar)
	for _, order := range pending {
		if _, done := bars[order.Symbol]; done {
			continue
		}

		bar, err := d.provider.DailyBar(order.Symbol, date)
		switch {
		case err == nil:
			bars[order.Symbol] = bar
		case isNotTraded(err):
			bars[order.Symbol] = nil
		default:
			d.log.Warn().Err(err).Str("symbol", order.Symbol).Msg("Bar lookup failed")
		}
	}
	return bars, nil
}

// collectPredictions queries the predictor for every configured ticker,
// skipping tickers whose prediction fails.
func (d *Driver) collectPredictions(date time.Time, log zerolog.Logger) []prediction.Prediction {
	var preds []prediction.Prediction
	for _, ticker := range d.tickers {
		pred, err := d.predictor.Predict(ticker, date)
		if err != nil {
			log.Warn().Err(err).Str("symbol", ticker).Msg("Prediction failed, skipping ticker")
			continue
		}
		preds = append(preds, *pred)
	}
	return preds
}

func isNotTraded(err error) bool {
	return errors.Is(err, marketdata.ErrNotTraded)
}

// BacktestReport summarizes a historical replay
type BacktestReport struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	TradingDays int      `json:"trading_days"`
	StartValue  float64  `json:"start_value"`
	EndValue    float64  `json:"end_value"`
	TotalReturn float64  `json:"total_return"`
	Sharpe      *float64 `json:"sharpe,omitempty"`
	MaxDrawdown *float64 `json:"max_drawdown,omitempty"`
}

// Backtest replays the daily pass across [from, to] inclusive and summarizes
// the resulting portfolio value history. Settlement and creation logic are
// identical to the live pass; only the date source differs.
func (d *Driver) Backtest(from, to time.Time) (*BacktestReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("backtest range is inverted: %s after %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	days := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if err := d.RunDay(day); err != nil {
			return nil, fmt.Errorf("backtest failed on %s: %w", day.Format("2006-01-02"), err)
		}
		days++
	}

	return d.summarize(from, to, days)
}

func (d *Driver) summarize(from, to time.Time, days int) (*BacktestReport, error) {
	samples, err := d.store.PortfolioValueHistory()
	if err != nil {
		return nil, err
	}

	fromKey := from.Format("2006-01-02")
	toKey := to.Format("2006-01-02")

	var values []float64
	for _, sample := range samples {
		if sample.Date >= fromKey && sample.Date <= toKey {
			values = append(values, sample.Value)
		}
	}

	report := &BacktestReport{
		From:        fromKey,
		To:          toKey,
		TradingDays: days,
	}
	if len(values) > 0 {
		report.StartValue = values[0]
		report.EndValue = values[len(values)-1]
		if report.StartValue != 0 {
			report.TotalReturn = (report.EndValue - report.StartValue) / report.StartValue
		}
		report.Sharpe = formulas.CalculateSharpeFromValues(values, 0)
		report.MaxDrawdown = formulas.CalculateMaxDrawdown(values)
	}
	return report, nil
}
