package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store owns all persisted ledger entities. Every mutating method runs as a
// single database transaction, so a failure mid-way leaves the ledger exactly
// as it was. Callers hold no entity state across calls; orders are referenced
// by ID and re-fetched inside the transaction before mutation.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new ledger store
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// Deposit credits cash (total and available) and records a DEPOSIT transaction
func (s *Store) Deposit(amount float64, at time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("deposit of %.2f: %w", amount, ErrAmountNotPositive)
	}

	return s.inTx(func(tx *sql.Tx) error {
		cash, err := getCash(tx)
		if err != nil {
			return err
		}

		cash.TotalValue += amount
		cash.Available += amount
		if err := saveCash(tx, cash); err != nil {
			return err
		}

		return insertTransaction(tx, Transaction{
			ID:        uuid.NewString(),
			Type:      TxDeposit,
			Amount:    amount,
			CreatedAt: at,
		})
	})
}

// Withdraw debits cash and records a WITHDRAW transaction. Fails if either
// the total or the available balance would go negative.
func (s *Store) Withdraw(amount float64, at time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("withdrawal of %.2f: %w", amount, ErrAmountNotPositive)
	}

	return s.inTx(func(tx *sql.Tx) error {
		cash, err := getCash(tx)
		if err != nil {
			return err
		}

		if cash.TotalValue < amount || cash.Available < amount {
			return fmt.Errorf("withdraw %.2f with available %.2f, total %.2f: %w",
				amount, cash.Available, cash.TotalValue, ErrInsufficientCash)
		}

		cash.TotalValue -= amount
		cash.Available -= amount
		if err := saveCash(tx, cash); err != nil {
			return err
		}

		return insertTransaction(tx, Transaction{
			ID:        uuid.NewString(),
			Type:      TxWithdraw,
			Amount:    -amount,
			CreatedAt: at,
		})
	})
}

// ReceiveDividend credits cash with shares held x dividend per share and
// records a DIVIDEND transaction. The symbol must be a held position.
func (s *Store) ReceiveDividend(symbol string, perShare float64, at time.Time) error {
	if perShare <= 0 {
		return fmt.Errorf("dividend of %.4f per share: %w", perShare, ErrAmountNotPositive)
	}
	symbol = normalizeSymbol(symbol)

	return s.inTx(func(tx *sql.Tx) error {
		stock, err := getStock(tx, symbol)
		if err != nil {
			return err
		}
		if stock == nil || stock.Shares <= 0 {
			return fmt.Errorf("dividend for %s: %w", symbol, ErrNoPosition)
		}

		total := float64(stock.Shares) * perShare

		cash, err := getCash(tx)
		if err != nil {
			return err
		}
		cash.TotalValue += total
		cash.Available += total
		if err := saveCash(tx, cash); err != nil {
			return err
		}

		s.log.Info().
			Str("symbol", symbol).
			Float64("per_share", perShare).
			Float64("total", total).
			Msg("Dividend received")

		return insertTransaction(tx, Transaction{
			ID:        uuid.NewString(),
			Type:      TxDividend,
			Symbol:    symbol,
			Price:     perShare,
			Shares:    stock.Shares,
			Amount:    total,
			CreatedAt: at,
		})
	})
}

// RecordPortfolioValue stores the valuation sample for a date, overwriting
// any existing sample for the same date.
func (s *Store) RecordPortfolioValue(date time.Time, value float64) error {
	_, err := s.db.Exec(`
		INSERT INTO portfolio_values (date, value) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET value = excluded.value
	`, date.Format(dateLayout), value)
	if err != nil {
		return fmt.Errorf("failed to record portfolio value: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on error.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// getCash fetches the CASH position, enforcing the available <= total
// invariant. A violation means the ledger is corrupt and is fatal.
func getCash(tx *sql.Tx) (*Position, error) {
	row := tx.QueryRow(`
		SELECT total_value, available FROM portfolio
		WHERE asset_type = 'CASH' AND symbol = ''
	`)

	cash := Position{AssetType: AssetCash}
	if err := row.Scan(&cash.TotalValue, &cash.Available); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ConsistencyError{Reason: "CASH position row is missing"}
		}
		return nil, fmt.Errorf("failed to read cash position: %w", err)
	}

	if cash.Available > cash.TotalValue+epsilon {
		return nil, &ConsistencyError{Reason: fmt.Sprintf(
			"available cash %.2f exceeds total %.2f", cash.Available, cash.TotalValue)}
	}
	return &cash, nil
}

func saveCash(tx *sql.Tx, cash *Position) error {
	_, err := tx.Exec(`
		UPDATE portfolio SET total_value = ?, available = ?
		WHERE asset_type = 'CASH' AND symbol = ''
	`, cash.TotalValue, cash.Available)
	if err != nil {
		return fmt.Errorf("failed to update cash position: %w", err)
	}
	return nil
}

// getStock fetches a stock position, or nil if the symbol is not held
func getStock(tx *sql.Tx, symbol string) (*Position, error) {
	row := tx.QueryRow(`
		SELECT shares, avg_cost, total_value FROM portfolio
		WHERE asset_type = 'STOCK' AND symbol = ?
	`, symbol)

	pos := Position{AssetType: AssetStock, Symbol: symbol}
	if err := row.Scan(&pos.Shares, &pos.AvgCost, &pos.TotalValue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read position for %s: %w", symbol, err)
	}

	if pos.Shares < 0 {
		return nil, &ConsistencyError{Reason: fmt.Sprintf(
			"negative share count %d for %s", pos.Shares, symbol)}
	}
	return &pos, nil
}

func insertTransaction(tx *sql.Tx, t Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (id, type, symbol, price, shares, fee, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		string(t.Type),
		nullString(t.Symbol),
		nullFloat(t.Price),
		nullInt(t.Shares),
		t.Fee,
		t.Amount,
		t.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullInt(i int64) interface{} {
	if i == 0 {
		return nil
	}
	return i
}
