// Package valuation marks the portfolio to market and posts dividend cash
// transactions.
package valuation

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/config"
	"github.com/skagen/papertrader/internal/marketdata"
	"github.com/skagen/papertrader/internal/modules/ledger"
)

// Service values the portfolio and credits dividends
type Service struct {
	store    *ledger.Store
	provider marketdata.Provider
	rs       config.Ruleset
	log      zerolog.Logger
}

// New creates a valuation service
func New(store *ledger.Store, provider marketdata.Provider, rs config.Ruleset, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		rs:       rs,
		log:      log.With().Str("component", "valuation").Logger(),
	}
}

// PayDividends posts a DIVIDEND transaction for every held position whose
// symbol paid a dividend on the given date. No dividend on the date is the
// common case, not an error; a provider failure skips that symbol only.
func (s *Service) PayDividends(date time.Time) error {
	positions, err := s.store.StockPositions()
	if err != nil {
		return err
	}

	for _, pos := range positions {
		perShare, err := s.provider.DividendPerShare(pos.Symbol, date)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Dividend lookup failed, skipping")
			continue
		}
		if perShare <= 0 {
			continue
		}

		if err := s.store.ReceiveDividend(pos.Symbol, perShare, date); err != nil {
			if ledger.IsConsistencyError(err) {
				return err
			}
			s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to post dividend")
		}
	}
	return nil
}

// MarkToMarket values every held position at its most recent close within
// the lookback window, adds the cash total, and records the sample for the
// date (overwriting an earlier sample for the same date). A position with no
// close inside the window falls back to its book value.
func (s *Service) MarkToMarket(date time.Time) (float64, error) {
	cash, err := s.store.Cash()
	if err != nil {
		return 0, err
	}

	positions, err := s.store.StockPositions()
	if err != nil {
		return 0, err
	}

	total := cash.TotalValue
	for _, pos := range positions {
		closePrice, err := s.provider.LatestClose(pos.Symbol, date, s.rs.ValuationLookbackDays)
		if err != nil {
			if !errors.Is(err, marketdata.ErrNotTraded) {
				s.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Close lookup failed, using book value")
			}
			total += pos.TotalValue
			continue
		}
		total += float64(pos.Shares) * closePrice
	}

	if err := s.store.RecordPortfolioValue(date, total); err != nil {
		return 0, fmt.Errorf("failed to record valuation: %w", err)
	}

	s.log.Info().
		Str("date", date.Format("2006-01-02")).
		Float64("value", total).
		Msg("Portfolio valued")
	return total, nil
}
