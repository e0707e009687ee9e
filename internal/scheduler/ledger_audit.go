package scheduler

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/skagen/papertrader/internal/database"
	"github.com/skagen/papertrader/internal/modules/ledger"
)

// LedgerAuditJob verifies database integrity and the ledger's accounting
// invariants on a schedule. The trading pass already enforces them per
// transaction; the audit catches drift from outside interference (manual
// edits, partial restores, disk corruption).
type LedgerAuditJob struct {
	log   zerolog.Logger
	db    *database.DB
	store *ledger.Store
}

// NewLedgerAuditJob creates the periodic ledger audit job
func NewLedgerAuditJob(db *database.DB, store *ledger.Store, log zerolog.Logger) *LedgerAuditJob {
	return &LedgerAuditJob{
		log:   log.With().Str("job", "ledger_audit").Logger(),
		db:    db,
		store: store,
	}
}

// Name returns the job name
func (j *LedgerAuditJob) Name() string {
	return "ledger-audit"
}

// Run executes the audit: SQLite integrity check, cash conservation, and
// reservation bookkeeping against pending buy orders.
func (j *LedgerAuditJob) Run() error {
	if err := j.checkIntegrity(); err != nil {
		return err
	}
	if err := j.checkConservation(); err != nil {
		return err
	}
	if err := j.checkReservations(); err != nil {
		return err
	}

	j.log.Debug().Msg("Ledger audit passed")
	return nil
}

// checkIntegrity runs SQLite's built-in integrity check
func (j *LedgerAuditJob) checkIntegrity() error {
	var result string
	if err := j.db.Conn().QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		j.log.Error().Str("result", result).Msg("Database integrity check failed")
		return fmt.Errorf("database integrity check failed: %s", result)
	}
	return nil
}

// checkConservation verifies that the signed sum of all transactions equals
// the cash total.
func (j *LedgerAuditJob) checkConservation() error {
	cash, err := j.store.Cash()
	if err != nil {
		return err
	}
	sum, err := j.store.SumTransactionAmounts()
	if err != nil {
		return err
	}

	if diff := math.Abs(sum - cash.TotalValue); diff > 1e-6 {
		j.log.Error().
			Float64("transaction_sum", sum).
			Float64("cash_total", cash.TotalValue).
			Float64("diff", diff).
			Msg("Cash conservation violated")
		return fmt.Errorf("transaction sum %.6f does not match cash total %.6f", sum, cash.TotalValue)
	}
	return nil
}

// checkReservations verifies that the gap between total and available cash
// equals the amounts reserved by pending buy orders.
func (j *LedgerAuditJob) checkReservations() error {
	cash, err := j.store.Cash()
	if err != nil {
		return err
	}
	pending, err := j.store.PendingOrders()
	if err != nil {
		return err
	}

	reserved := 0.0
	for _, order := range pending {
		if order.Side == ledger.SideBuy {
			reserved += order.Amount
		}
	}

	if diff := math.Abs((cash.TotalValue - cash.Available) - reserved); diff > 1e-6 {
		j.log.Error().
			Float64("reserved_by_orders", reserved).
			Float64("total_minus_available", cash.TotalValue-cash.Available).
			Msg("Reservation bookkeeping mismatch")
		return fmt.Errorf("pending buy reservations %.6f do not match cash gap %.6f",
			reserved, cash.TotalValue-cash.Available)
	}
	return nil
}
