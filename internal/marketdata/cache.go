package marketdata

import (
	"fmt"
	"sync"
	"time"
)

// Source is the raw feed behind the caching provider. The yahoo client
// satisfies it.
type Source interface {
	History(symbol string, from, to time.Time) ([]Bar, error)
	Dividends(symbol string, from, to time.Time) ([]Dividend, error)
}

// preloadDays pads fetches backward so a backtest walking forward day by day
// refetches a symbol's history once, not once per day.
const preloadDays = 30

// CachingProvider implements Provider over a Source, memoizing bars and
// dividends per symbol. Backtests replay hundreds of days per symbol; without
// the cache every day would be a fresh network round trip.
type CachingProvider struct {
	source Source

	mu    sync.Mutex
	bars  map[string]map[string]Bar     // symbol -> date -> bar
	divs  map[string]map[string]float64 // symbol -> date -> dividend per share
	from  map[string]time.Time          // covered range per symbol
	to    map[string]time.Time
}

// NewCachingProvider wraps a source with a per-symbol cache
func NewCachingProvider(source Source) *CachingProvider {
	return &CachingProvider{
		source: source,
		bars:   make(map[string]map[string]Bar),
		divs:   make(map[string]map[string]float64),
		from:   make(map[string]time.Time),
		to:     make(map[string]time.Time),
	}
}

// DailyBar returns the OHLC bar for the given date, or ErrNotTraded
func (p *CachingProvider) DailyBar(symbol string, date time.Time) (*Bar, error) {
	if err := p.ensure(symbol, date.AddDate(0, 0, -preloadDays), date); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	bar, ok := p.bars[symbol][dateKey(date)]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", symbol, dateKey(date), ErrNotTraded)
	}
	return &bar, nil
}

// History returns daily bars in [from, to], oldest first
func (p *CachingProvider) History(symbol string, from, to time.Time) ([]Bar, error) {
	if err := p.ensure(symbol, from, to); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var bars []Bar
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if bar, ok := p.bars[symbol][dateKey(d)]; ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// LatestClose returns the most recent close at or before asOf within the
// lookback window, or ErrNotTraded when the window holds no bar.
func (p *CachingProvider) LatestClose(symbol string, asOf time.Time, lookbackDays int) (float64, error) {
	if err := p.ensure(symbol, asOf.AddDate(0, 0, -lookbackDays), asOf); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i <= lookbackDays; i++ {
		d := asOf.AddDate(0, 0, -i)
		if bar, ok := p.bars[symbol][dateKey(d)]; ok {
			return bar.Close, nil
		}
	}
	return 0, fmt.Errorf("%s has no close within %d days of %s: %w",
		symbol, lookbackDays, dateKey(asOf), ErrNotTraded)
}

// DividendPerShare returns the per-share dividend paid on the date, or 0
func (p *CachingProvider) DividendPerShare(symbol string, date time.Time) (float64, error) {
	if err := p.ensure(symbol, date.AddDate(0, 0, -preloadDays), date); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.divs[symbol][dateKey(date)], nil
}

// ensure extends the cached range for a symbol to cover [from, to]
func (p *CachingProvider) ensure(symbol string, from, to time.Time) error {
	p.mu.Lock()
	haveFrom, ok := p.from[symbol]
	haveTo := p.to[symbol]
	covered := ok && !from.Before(haveFrom) && !to.After(haveTo)
	if covered {
		p.mu.Unlock()
		return nil
	}

	fetchFrom := from
	fetchTo := to
	if ok {
		if haveFrom.Before(fetchFrom) {
			fetchFrom = haveFrom
		}
		if haveTo.After(fetchTo) {
			fetchTo = haveTo
		}
	}
	p.mu.Unlock()

	// Fetch outside the lock; external calls may block.
	bars, err := p.source.History(symbol, fetchFrom, fetchTo.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}
	divs, err := p.source.Dividends(symbol, fetchFrom, fetchTo.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("failed to fetch dividends for %s: %w", symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bars[symbol] == nil {
		p.bars[symbol] = make(map[string]Bar)
		p.divs[symbol] = make(map[string]float64)
	}
	for _, bar := range bars {
		p.bars[symbol][dateKey(bar.Date)] = bar
	}
	for _, div := range divs {
		p.divs[symbol][dateKey(div.Date)] = div.PerShare
	}
	p.from[symbol] = fetchFrom
	p.to[symbol] = fetchTo
	return nil
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
