package pricing

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/config"
)

// FeeTier is one row of the brokerage fee schedule: a percentage of notional
// with a fixed floor.
type FeeTier struct {
	Percent float64
	Minimum float64
}

// Fee returns the brokerage fee for a trade at this tier:
// max(minimum, percent x price x shares).
func (t FeeTier) Fee(price float64, shares int64) float64 {
	notional := t.Percent * price * float64(shares)
	if notional < t.Minimum {
		return t.Minimum
	}
	return notional
}

// VenueClassifier resolves the exchange code a symbol trades on. Lookups may
// hit the network and may fail; the fee schedule tolerates both.
type VenueClassifier interface {
	Venue(symbol string) (string, error)
}

// FeeSchedule selects between the standard and the low-fee tier based on the
// venue a symbol trades on. The venue lookup is injected and failure-prone;
// an unknown venue falls back to the standard tier rather than failing the
// trade.
type FeeSchedule struct {
	standard   FeeTier
	lowFee     FeeTier
	lowVenues  map[string]struct{}
	classifier VenueClassifier
	log        zerolog.Logger
}

// NewFeeSchedule builds the fee schedule from the ruleset
func NewFeeSchedule(rs config.Ruleset, classifier VenueClassifier, log zerolog.Logger) *FeeSchedule {
	lowVenues := make(map[string]struct{}, len(rs.LowFeeVenues))
	for _, v := range rs.LowFeeVenues {
		lowVenues[v] = struct{}{}
	}

	return &FeeSchedule{
		standard:   FeeTier{Percent: rs.FeePercent, Minimum: rs.FeeMinimum},
		lowFee:     FeeTier{Percent: rs.LowFeePercent, Minimum: rs.LowFeeMinimum},
		lowVenues:  lowVenues,
		classifier: classifier,
		log:        log.With().Str("component", "fees").Logger(),
	}
}

// Tier returns the fee tier applicable to a symbol
func (s *FeeSchedule) Tier(symbol string) FeeTier {
	if s.classifier == nil {
		return s.standard
	}

	venue, err := s.classifier.Venue(symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Venue lookup failed, using standard fee tier")
		return s.standard
	}
	if _, ok := s.lowVenues[venue]; ok {
		return s.lowFee
	}
	return s.standard
}

// Fee returns the brokerage fee for a trade in a symbol
func (s *FeeSchedule) Fee(symbol string, price float64, shares int64) float64 {
	return s.Tier(symbol).Fee(price, shares)
}

// CachedClassifier memoizes venue lookups so the fee path performs at most
// one network call per symbol per process.
type CachedClassifier struct {
	upstream VenueClassifier

	mu    sync.Mutex
	cache map[string]string
}

// NewCachedClassifier wraps a classifier with a memoization cache
func NewCachedClassifier(upstream VenueClassifier) *CachedClassifier {
	return &CachedClassifier{
		upstream: upstream,
		cache:    make(map[string]string),
	}
}

// Venue returns the cached venue for a symbol, consulting the upstream
// classifier on first use. Failed lookups are not cached.
func (c *CachedClassifier) Venue(symbol string) (string, error) {
	c.mu.Lock()
	venue, ok := c.cache[symbol]
	c.mu.Unlock()
	if ok {
		return venue, nil
	}

	venue, err := c.upstream.Venue(symbol)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[symbol] = venue
	c.mu.Unlock()
	return venue, nil
}

// StaticClassifier maps symbols to venues from a fixed table, used in tests
// and as a fallback when no quote source is configured.
type StaticClassifier map[string]string

// Venue returns the configured venue for a symbol; unknown symbols resolve
// to an empty venue (standard tier).
func (c StaticClassifier) Venue(symbol string) (string, error) {
	return c[symbol], nil
}
