package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Order returns an order by ID, or ErrOrderNotFound
func (s *Store) Order(orderID string) (*Order, error) {
	row := s.db.QueryRow(`
		SELECT id, side, symbol, price, shares, fee, amount, status, created_at, updated_at
		FROM orders WHERE id = ?
	`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order %s: %w", orderID, err)
	}
	return order, nil
}

// Orders returns all orders, newest first
func (s *Store) Orders() ([]Order, error) {
	return s.queryOrders(`
		SELECT id, side, symbol, price, shares, fee, amount, status, created_at, updated_at
		FROM orders ORDER BY created_at DESC, id
	`)
}

// OrdersByStatus returns all orders with the given status, newest first
func (s *Store) OrdersByStatus(status OrderStatus) ([]Order, error) {
	return s.queryOrders(`
		SELECT id, side, symbol, price, shares, fee, amount, status, created_at, updated_at
		FROM orders WHERE status = ? ORDER BY created_at DESC, id
	`, string(status))
}

// PendingOrders returns all PENDING orders, oldest first (settlement order)
func (s *Store) PendingOrders() ([]Order, error) {
	return s.queryOrders(`
		SELECT id, side, symbol, price, shares, fee, amount, status, created_at, updated_at
		FROM orders WHERE status = 'PENDING' ORDER BY created_at, id
	`)
}

func (s *Store) queryOrders(query string, args ...interface{}) ([]Order, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o         Order
		side      string
		status    string
		createdAt string
		updatedAt sql.NullString
	)

	err := row.Scan(&o.ID, &side, &o.Symbol, &o.Price, &o.Shares, &o.Fee,
		&o.Amount, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	o.Side = OrderSide(side)
	o.Status = OrderStatus(status)
	o.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(timeLayout, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad updated_at %q: %w", updatedAt.String, err)
		}
		o.UpdatedAt = &t
	}
	return &o, nil
}

// Transactions returns the full transaction history, oldest first
func (s *Store) Transactions() ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, type, symbol, price, shares, fee, amount, created_at
		FROM transactions ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var (
			t         Transaction
			txType    string
			symbol    sql.NullString
			price     sql.NullFloat64
			shares    sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&t.ID, &txType, &symbol, &price, &shares, &t.Fee, &t.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Type = TransactionType(txType)
		t.Symbol = symbol.String
		t.Price = price.Float64
		t.Shares = shares.Int64
		t.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// SumTransactionAmounts returns the signed sum of all transaction amounts.
// By the conservation law this must equal the cash total.
func (s *Store) SumTransactionAmounts() (float64, error) {
	var sum sql.NullFloat64
	if err := s.db.QueryRow(`SELECT SUM(amount) FROM transactions`).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum.Float64, nil
}

// Cash returns the CASH position
func (s *Store) Cash() (*Position, error) {
	row := s.db.QueryRow(`
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

// StockPosition returns the held position for a symbol, or nil if not held
func (s *Store) StockPosition(symbol string) (*Position, error) {
	symbol = normalizeSymbol(symbol)
	row := s.db.QueryRow(`
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

// StockPositions returns all held stock positions, ordered by symbol
func (s *Store) StockPositions() ([]Position, error) {
	rows, err := s.db.Query(`
		SELECT symbol, shares, avg_cost, total_value FROM portfolio
		WHERE asset_type = 'STOCK' ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos := Position{AssetType: AssetStock}
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &pos.AvgCost, &pos.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if pos.Shares < 0 {
			return nil, &ConsistencyError{Reason: fmt.Sprintf(
				"negative share count %d for %s", pos.Shares, pos.Symbol)}
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// CountStockPositions returns the number of distinct held stocks
func (s *Store) CountStockPositions() (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM portfolio WHERE asset_type = 'STOCK'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

// PortfolioValueHistory returns all valuation samples, oldest first
func (s *Store) PortfolioValueHistory() ([]ValueSample, error) {
	rows, err := s.db.Query(`SELECT date, value FROM portfolio_values ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio values: %w", err)
	}
	defer rows.Close()

	var samples []ValueSample
	for rows.Next() {
		var sample ValueSample
		if err := rows.Scan(&sample.Date, &sample.Value); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio value: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio values: %w", err)
	}
	return samples, nil
}
