package marketdata

import (
	"errors"
	"time"
)

// ErrNotTraded indicates the symbol has no bar for the requested date
// (holiday, suspension, or a date before listing).
var ErrNotTraded = errors.New("symbol did not trade on requested date")

// Dividend is one cash dividend event
type Dividend struct {
	Date     time.Time `json:"date"`
	PerShare float64   `json:"per_share"`
}

// Bar is one day of OHLC price data
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Provider supplies daily price and dividend data for the engine.
// Implementations are expected to block on the network; callers must resolve
// data before entering a ledger transaction.
type Provider interface {
	// DailyBar returns the OHLC bar for the given date, or ErrNotTraded.
	DailyBar(symbol string, date time.Time) (*Bar, error)

	// History returns daily bars in [from, to], oldest first.
	History(symbol string, from, to time.Time) ([]Bar, error)

	// LatestClose returns the most recent close at or before asOf, looking
	// back at most lookbackDays calendar days. Returns ErrNotTraded when the
	// window holds no bar.
	LatestClose(symbol string, asOf time.Time, lookbackDays int) (float64, error)

	// DividendPerShare returns the per-share cash dividend paid on the given
	// date, or 0 when none was paid. Missing dividend data is not an error.
	DividendPerShare(symbol string, date time.Time) (float64, error)
}

// SameDay reports whether two timestamps fall on the same calendar date (UTC).
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
