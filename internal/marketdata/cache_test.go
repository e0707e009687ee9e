package marketdata

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records fetches so tests can assert cache behavior
type countingSource struct {
	bars      map[string][]Bar
	divs      map[string][]Dividend
	histCalls int
	divCalls  int
	err       error
}

func (s *countingSource) History(symbol string, from, to time.Time) ([]Bar, error) {
	s.histCalls++
	if s.err != nil {
		return nil, s.err
	}
	var out []Bar
	for _, bar := range s.bars[symbol] {
		if !bar.Date.Before(from) && !bar.Date.After(to) {
			out = append(out, bar)
		}
	}
	return out, nil
}

func (s *countingSource) Dividends(symbol string, from, to time.Time) ([]Dividend, error) {
	s.divCalls++
	if s.err != nil {
		return nil, s.err
	}
	var out []Dividend
	for _, div := range s.divs[symbol] {
		if !div.Date.Before(from) && !div.Date.After(to) {
			out = append(out, div)
		}
	}
	return out, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDailyBarCachesFetches(t *testing.T) {
	source := &countingSource{
		bars: map[string][]Bar{
			"ACME": {
				{Date: day(2024, 3, 4), Open: 100, High: 105, Low: 99, Close: 104},
				{Date: day(2024, 3, 5), Open: 104, High: 108, Low: 103, Close: 107},
			},
		},
	}
	p := NewCachingProvider(source)

	bar, err := p.DailyBar("ACME", day(2024, 3, 5))
	require.NoError(t, err)
	assert.InDelta(t, 107, bar.Close, 1e-9)

	bar, err = p.DailyBar("ACME", day(2024, 3, 5))
	require.NoError(t, err)
	assert.InDelta(t, 107, bar.Close, 1e-9)

	// The backward preload also covers earlier dates inside the range.
	bars, err := p.History("ACME", day(2024, 3, 4), day(2024, 3, 5))
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	assert.Equal(t, 1, source.histCalls)
	assert.Equal(t, 1, source.divCalls)
}

func TestDailyBarNotTraded(t *testing.T) {
	source := &countingSource{
		bars: map[string][]Bar{
			"ACME": {{Date: day(2024, 3, 4), Open: 100, High: 105, Low: 99, Close: 104}},
		},
	}
	p := NewCachingProvider(source)

	_, err := p.DailyBar("ACME", day(2024, 3, 3))
	assert.ErrorIs(t, err, ErrNotTraded)
}

func TestEnsureExtendsCoveredRange(t *testing.T) {
	source := &countingSource{
		bars: map[string][]Bar{
			"ACME": {
				{Date: day(2024, 3, 4), Close: 104},
				{Date: day(2024, 6, 3), Close: 130},
			},
		},
	}
	p := NewCachingProvider(source)

	_, err := p.DailyBar("ACME", day(2024, 3, 4))
	require.NoError(t, err)
	require.Equal(t, 1, source.histCalls)

	// A date outside the covered range triggers a second fetch that spans
	// the union of old and new ranges.
	_, err = p.DailyBar("ACME", day(2024, 6, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, source.histCalls)

	// The earlier date is still served from cache.
	_, err = p.DailyBar("ACME", day(2024, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, source.histCalls)
}

func TestHistoryReturnsBarsInOrder(t *testing.T) {
	source := &countingSource{
		bars: map[string][]Bar{
			"ACME": {
				{Date: day(2024, 3, 4), Close: 104},
				{Date: day(2024, 3, 5), Close: 107},
				{Date: day(2024, 3, 7), Close: 110},
			},
		},
	}
	p := NewCachingProvider(source)

	bars, err := p.History("ACME", day(2024, 3, 4), day(2024, 3, 8))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.InDelta(t, 104, bars[0].Close, 1e-9)
	assert.InDelta(t, 110, bars[2].Close, 1e-9)
}

func TestLatestCloseSkipsNonTradingDays(t *testing.T) {
	source := &countingSource{
		bars: map[string][]Bar{
			// Friday's close, queried on the following Monday.
			"ACME": {{Date: day(2024, 3, 1), Close: 102}},
		},
	}
	p := NewCachingProvider(source)

	closePrice, err := p.LatestClose("ACME", day(2024, 3, 4), 5)
	require.NoError(t, err)
	assert.InDelta(t, 102, closePrice, 1e-9)

	_, err = p.LatestClose("ACME", day(2024, 3, 12), 5)
	assert.ErrorIs(t, err, ErrNotTraded)
}

func TestDividendPerShare(t *testing.T) {
	source := &countingSource{
		divs: map[string][]Dividend{
			"ACME": {{Date: day(2024, 3, 5), PerShare: 2.5}},
		},
	}
	p := NewCachingProvider(source)

	per, err := p.DividendPerShare("ACME", day(2024, 3, 5))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, per, 1e-9)

	// No event on the date is zero, not an error.
	per, err = p.DividendPerShare("ACME", day(2024, 3, 6))
	require.NoError(t, err)
	assert.Zero(t, per)
}

func TestSourceFailurePropagates(t *testing.T) {
	source := &countingSource{err: fmt.Errorf("feed down")}
	p := NewCachingProvider(source)

	_, err := p.DailyBar("ACME", day(2024, 3, 4))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotTraded)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)
	c := time.Date(2024, 3, 5, 0, 0, 1, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}
