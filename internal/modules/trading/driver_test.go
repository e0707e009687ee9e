package trading

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skagen/papertrader/internal/config"
	"github.com/skagen/papertrader/internal/database"
	"github.com/skagen/papertrader/internal/marketdata"
	"github.com/skagen/papertrader/internal/modules/broker"
	"github.com/skagen/papertrader/internal/modules/ledger"
	"github.com/skagen/papertrader/internal/modules/prediction"
	"github.com/skagen/papertrader/internal/modules/pricing"
	"github.com/skagen/papertrader/internal/modules/valuation"
)

// fakeProvider serves bars and dividends from fixed maps keyed by date
type fakeProvider struct {
	bars map[string]map[string]marketdata.Bar
	divs map[string]map[string]float64
}

func (f *fakeProvider) DailyBar(symbol string, date time.Time) (*marketdata.Bar, error) {
	bar, ok := f.bars[symbol][date.Format("2006-01-02")]
	if !ok {
		return nil, marketdata.ErrNotTraded
	}
	return &bar, nil
}

func (f *fakeProvider) History(symbol string, from, to time.Time) ([]marketdata.Bar, error) {
	var bars []marketdata.Bar
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if bar, ok := f.bars[symbol][d.Format("2006-01-02")]; ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

func (f *fakeProvider) LatestClose(symbol string, asOf time.Time, lookbackDays int) (float64, error) {
	for i := 0; i <= lookbackDays; i++ {
		d := asOf.AddDate(0, 0, -i)
		if bar, ok := f.bars[symbol][d.Format("2006-01-02")]; ok {
			return bar.Close, nil
		}
	}
	return 0, marketdata.ErrNotTraded
}

func (f *fakeProvider) DividendPerShare(symbol string, date time.Time) (float64, error) {
	return f.divs[symbol][date.Format("2006-01-02")], nil
}

// fakePredictor returns a fixed range per symbol, or ErrDataUnavailable
type fakePredictor struct {
	ranges map[string][2]float64
}

func (f *fakePredictor) Predict(symbol string, asOf time.Time) (*prediction.Prediction, error) {
	r, ok := f.ranges[symbol]
	if !ok {
		return nil, prediction.ErrDataUnavailable
	}
	return &prediction.Prediction{Symbol: symbol, PredictedLow: r[0], PredictedHigh: r[1]}, nil
}

func newTestDriver(t *testing.T, provider marketdata.Provider, predictor prediction.Predictor, tickers []string) (*Driver, *ledger.Store) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ledger.InitSchema(db.Conn()))

	rs := config.Ruleset{
		Version:                "v1",
		MinSpread:              0.10,
		BuyMargin:              0.02,
		SellMargin:             0.02,
		TickSize:               0.1,
		MaxPositions:           10,
		BudgetPerRemainingSlot: true,
		FeePercent:             0.002,
		FeeMinimum:             49,
		ValuationLookbackDays:  5,
	}

	store := ledger.NewStore(db.Conn(), zerolog.Nop())
	fees := pricing.NewFeeSchedule(rs, nil, zerolog.Nop())
	brk := broker.New(store, fees, rs, zerolog.Nop())
	val := valuation.New(store, provider, rs, zerolog.Nop())
	return New(store, brk, val, predictor, provider, tickers, zerolog.Nop()), store
}

func TestRunDaySkipsWeekends(t *testing.T) {
	driver, store := newTestDriver(t, &fakeProvider{}, &fakePredictor{
		ranges: map[string][2]float64{"ACME": {100, 130}},
	}, []string{"ACME"})

	require.NoError(t, store.Deposit(100000, time.Now()))

	saturday := time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)
	require.NoError(t, driver.RunDay(saturday))

	// No orders, no valuation sample.
	orders, err := store.Orders()
	require.NoError(t, err)
	assert.Empty(t, orders)

	samples, err := store.PortfolioValueHistory()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestRunDayCreatesOrdersFromPredictions(t *testing.T) {
	monday := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	driver, store := newTestDriver(t, &fakeProvider{}, &fakePredictor{
		ranges: map[string][2]float64{"ACME": {100, 130}},
	}, []string{"ACME"})

	require.NoError(t, store.Deposit(100000, monday))
	require.NoError(t, driver.RunDay(monday))

	pending, err := store.PendingOrders()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ledger.SideBuy, pending[0].Side)
	assert.Equal(t, "ACME", pending[0].Symbol)
	assert.InDelta(t, 102.0, pending[0].Price, 1e-9)

	// The pass valued the all-cash portfolio.
	samples, err := store.PortfolioValueHistory()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 100000, samples[0].Value, 1e-6)
}

func TestRunDaySettlesPreviousOrders(t *testing.T) {
	monday := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	provider := &fakeProvider{
		bars: map[string]map[string]marketdata.Bar{
			"ACME": {
				"2024-03-05": {Open: 101, High: 108, Low: 99, Close: 106},
			},
		},
	}
	driver, store := newTestDriver(t, provider, &fakePredictor{
		ranges: map[string][2]float64{"ACME": {100, 130}},
	}, []string{"ACME"})

	require.NoError(t, store.Deposit(100000, monday))
	require.NoError(t, driver.RunDay(monday))
	require.NoError(t, driver.RunDay(tuesday))

	// Monday's buy executed at Tuesday's open.
	executed, err := store.OrdersByStatus(ledger.StatusExecuted)
	require.NoError(t, err)
	require.Len(t, executed, 1)
	assert.InDelta(t, 101, executed[0].Price, 1e-9)

	pos, err := store.StockPosition("ACME")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 101, pos.AvgCost, 1e-9)

	// Tuesday's valuation marks the position at the close.
	samples, err := store.PortfolioValueHistory()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	cash, err := store.Cash()
	require.NoError(t, err)
	assert.InDelta(t, cash.TotalValue+float64(pos.Shares)*106, samples[1].Value, 1e-6)

	// The ledger still balances after a full cycle.
	sum, err := store.SumTransactionAmounts()
	require.NoError(t, err)
	assert.InDelta(t, cash.TotalValue, sum, 1e-6)
}

func TestRunDayCancelsOrdersOnNonTradingDay(t *testing.T) {
	monday := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	// The symbol has no bar for Tuesday at all.
	driver, store := newTestDriver(t, &fakeProvider{}, &fakePredictor{
		ranges: map[string][2]float64{"ACME": {100, 130}},
	}, []string{"ACME"})

	require.NoError(t, store.Deposit(100000, monday))
	require.NoError(t, driver.RunDay(monday))

	pending, err := store.PendingOrders()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, driver.RunDay(tuesday))

	canceled, err := store.OrdersByStatus(ledger.StatusCanceled)
	require.NoError(t, err)
	require.Len(t, canceled, 1)

	// The canceled reservation is back; only Tuesday's fresh buy holds one.
	pending, err = store.PendingOrders()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	cash, err := store.Cash()
	require.NoError(t, err)
	assert.InDelta(t, 100000, cash.TotalValue, 1e-9)
	assert.InDelta(t, 100000-pending[0].Amount, cash.Available, 1e-9)
}

func TestRunDaySkipsFailedPredictions(t *testing.T) {
	monday := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)

	// No model for either ticker: the pass completes without orders.
	driver, store := newTestDriver(t, &fakeProvider{}, &fakePredictor{}, []string{"AAA", "BBB"})

	require.NoError(t, store.Deposit(100000, monday))
	require.NoError(t, driver.RunDay(monday))

	orders, err := store.Orders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestBacktestFlatPortfolio(t *testing.T) {
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // Monday
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)  // Sunday

	driver, store := newTestDriver(t, &fakeProvider{}, &fakePredictor{}, []string{"ACME"})
	require.NoError(t, store.Deposit(100000, from))

	report, err := driver.Backtest(from, to)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", report.From)
	assert.Equal(t, "2024-03-10", report.To)
	assert.Equal(t, 5, report.TradingDays)
	assert.InDelta(t, 100000, report.StartValue, 1e-6)
	assert.InDelta(t, 100000, report.EndValue, 1e-6)
	assert.InDelta(t, 0, report.TotalReturn, 1e-9)
	// A flat series has zero variance: no Sharpe ratio.
	assert.Nil(t, report.Sharpe)
	require.NotNil(t, report.MaxDrawdown)
	assert.InDelta(t, 0, *report.MaxDrawdown, 1e-9)
}

func TestBacktestRejectsInvertedRange(t *testing.T) {
	driver, _ := newTestDriver(t, &fakeProvider{}, &fakePredictor{}, nil)

	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	_, err := driver.Backtest(from, to)
	assert.Error(t, err)
}

func TestDailyJobRunsDriver(t *testing.T) {
	driver, store := newTestDriver(t, &fakeProvider{}, &fakePredictor{}, nil)
	require.NoError(t, store.Deposit(1000, time.Now()))

	job := NewDailyJob(driver)
	assert.Equal(t, "daily-trading-pass", job.Name())
	job.Run()
}
