package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBuyOrder reserves price x shares + fee from available cash and
// inserts a PENDING BUY order. The reservation never touches the cash total;
// it only shrinks the available balance until the order settles. The
// available-cash check runs inside the same transaction as the reservation,
// so a stale sizing estimate cannot overdraw the account.
func (s *Store) CreateBuyOrder(symbol string, price float64, shares int64, fee float64, at time.Time) (*Order, error) {
	if err := validateOrderInput(price, shares, fee); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	amount := price*float64(shares) + fee

	order := &Order{
		ID:        uuid.NewString(),
		Side:      SideBuy,
		Symbol:    symbol,
		Price:     price,
		Shares:    shares,
		Fee:       fee,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: at,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		cash, err := getCash(tx)
		if err != nil {
			return err
		}
		if cash.Available < amount {
			return fmt.Errorf("buy order for %s needs %.2f, available %.2f: %w",
				symbol, amount, cash.Available, ErrInsufficientCash)
		}

		cash.Available -= amount
		if err := saveCash(tx, cash); err != nil {
			return err
		}
		return insertOrder(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("symbol", symbol).
		Float64("price", price).
		Int64("shares", shares).
		Float64("amount", amount).
		Msg("Buy order created")
	return order, nil
}

// CreateSellOrder inserts a PENDING SELL order for already-held shares. No
// cash is reserved, but the held quantity is re-checked inside the
// transaction to guard against races with settlement.
func (s *Store) CreateSellOrder(symbol string, price float64, shares int64, fee float64, at time.Time) (*Order, error) {
	if err := validateOrderInput(price, shares, fee); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	amount := price*float64(shares) - fee

	order := &Order{
		ID:        uuid.NewString(),
		Side:      SideSell,
		Symbol:    symbol,
		Price:     price,
		Shares:    shares,
		Fee:       fee,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: at,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		stock, err := getStock(tx, symbol)
		if err != nil {
			return err
		}
		if stock == nil || stock.Shares < shares {
			held := int64(0)
			if stock != nil {
				held = stock.Shares
			}
			return fmt.Errorf("sell order for %d shares of %s, held %d: %w",
				shares, symbol, held, ErrInsufficientShares)
		}
		return insertOrder(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("symbol", symbol).
		Float64("price", price).
		Int64("shares", shares).
		Msg("Sell order created")
	return order, nil
}

// ExecuteOrder settles a PENDING order as EXECUTED. When override is non-nil
// the order executes at the override price and fee instead of its limit price
// (the open beat the limit), and the order's amount is recomputed.
//
// The whole settlement is one transaction: order status, stock position,
// cash balances and the BUY/SELL transaction either all apply or none do.
// Executing a non-PENDING order fails with ErrOrderNotPending and has no
// side effects.
func (s *Store) ExecuteOrder(orderID string, override *Execution, at time.Time) error {
	err := s.inTx(func(tx *sql.Tx) error {
		order, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return fmt.Errorf("execute order %s with status %s: %w",
				orderID, order.Status, ErrOrderNotPending)
		}

		switch order.Side {
		case SideBuy:
			if err := executeBuy(tx, order, override, at); err != nil {
				return err
			}
		case SideSell:
			if err := executeSell(tx, order, override, at); err != nil {
				return err
			}
		default:
			return &ConsistencyError{Reason: fmt.Sprintf("order %s has unknown side %q", orderID, order.Side)}
		}

		return finalizeOrder(tx, order, StatusExecuted, at)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("order_id", orderID).Msg("Order executed")
	return nil
}

// executeBuy releases the reservation, applies the (possibly overridden)
// execution amount to cash and position, and appends a BUY transaction.
func executeBuy(tx *sql.Tx, order *Order, override *Execution, at time.Time) error {
	cash, err := getCash(tx)
	if err != nil {
		return err
	}

	// Release the cash reserved at creation; the exact executed amount is
	// deducted below.
	cash.Available += order.Amount

	if override != nil {
		order.Price = override.Price
		order.Fee = override.Fee
	}
	order.Amount = order.Price*float64(order.Shares) + order.Fee

	if cash.TotalValue < order.Amount {
		return fmt.Errorf("buy execution needs %.2f, cash total %.2f: %w",
			order.Amount, cash.TotalValue, ErrInsufficientCash)
	}

	// Weighted-average cost on top-up buys; the position's value carries the
	// share cost only, the fee stays in the transaction.
	_, err = tx.Exec(`
		INSERT INTO portfolio (asset_type, symbol, shares, avg_cost, total_value)
		VALUES ('STOCK', ?, ?, ?, ?)
		ON CONFLICT(asset_type, symbol) DO UPDATE SET
			avg_cost = (portfolio.avg_cost * portfolio.shares + excluded.avg_cost * excluded.shares)
				/ (portfolio.shares + excluded.shares),
			shares = portfolio.shares + excluded.shares,
			total_value = portfolio.total_value + excluded.total_value
	`, order.Symbol, order.Shares, order.Price, order.Amount-order.Fee)
	if err != nil {
		return fmt.Errorf("failed to update position for %s: %w", order.Symbol, err)
	}

	cash.TotalValue -= order.Amount
	cash.Available -= order.Amount
	if err := saveCash(tx, cash); err != nil {
		return err
	}

	return insertTransaction(tx, Transaction{
		ID:        uuid.NewString(),
		Type:      TxBuy,
		Symbol:    order.Symbol,
		Price:     order.Price,
		Shares:    order.Shares,
		Fee:       order.Fee,
		Amount:    -order.Amount,
		CreatedAt: at,
	})
}

// executeSell reduces the position at average cost (deleting it at zero),
// credits cash with the proceeds and appends a SELL transaction.
func executeSell(tx *sql.Tx, order *Order, override *Execution, at time.Time) error {
	stock, err := getStock(tx, order.Symbol)
	if err != nil {
		return err
	}
	if stock == nil || stock.Shares < order.Shares {
		held := int64(0)
		if stock != nil {
			held = stock.Shares
		}
		return fmt.Errorf("sell execution for %d shares of %s, held %d: %w",
			order.Shares, order.Symbol, held, ErrInsufficientShares)
	}

	if override != nil {
		order.Price = override.Price
		order.Fee = override.Fee
	}
	order.Amount = order.Price*float64(order.Shares) - order.Fee

	stock.TotalValue -= float64(order.Shares) * stock.AvgCost
	stock.Shares -= order.Shares
	if stock.Shares <= 0 {
		// A zero position is deleted, never persisted.
		if _, err := tx.Exec(`
			DELETE FROM portfolio WHERE asset_type = 'STOCK' AND symbol = ?
		`, order.Symbol); err != nil {
			return fmt.Errorf("failed to delete position for %s: %w", order.Symbol, err)
		}
	} else {
		if _, err := tx.Exec(`
			UPDATE portfolio SET shares = ?, total_value = ?
			WHERE asset_type = 'STOCK' AND symbol = ?
		`, stock.Shares, stock.TotalValue, order.Symbol); err != nil {
			return fmt.Errorf("failed to update position for %s: %w", order.Symbol, err)
		}
	}

	cash, err := getCash(tx)
	if err != nil {
		return err
	}
	cash.TotalValue += order.Amount
	cash.Available += order.Amount
	if err := saveCash(tx, cash); err != nil {
		return err
	}

	return insertTransaction(tx, Transaction{
		ID:        uuid.NewString(),
		Type:      TxSell,
		Symbol:    order.Symbol,
		Price:     order.Price,
		Shares:    order.Shares,
		Fee:       order.Fee,
		Amount:    order.Amount,
		CreatedAt: at,
	})
}

// CancelOrder settles a PENDING order as CANCELED. For a BUY the reserved
// amount returns to available cash; the total was never touched. Canceling a
// non-PENDING order fails with ErrOrderNotPending and has no side effects.
func (s *Store) CancelOrder(orderID string, at time.Time) error {
	err := s.inTx(func(tx *sql.Tx) error {
		order, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return fmt.Errorf("cancel order %s with status %s: %w",
				orderID, order.Status, ErrOrderNotPending)
		}

		if order.Side == SideBuy {
			cash, err := getCash(tx)
			if err != nil {
				return err
			}
			cash.Available += order.Amount
			if err := saveCash(tx, cash); err != nil {
				return err
			}
		}

		return finalizeOrder(tx, order, StatusCanceled, at)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("order_id", orderID).Msg("Order canceled")
	return nil
}

func validateOrderInput(price float64, shares int64, fee float64) error {
	if price <= 0 {
		return fmt.Errorf("order price %.4f: %w", price, ErrAmountNotPositive)
	}
	if shares <= 0 {
		return fmt.Errorf("order quantity %d: %w", shares, ErrAmountNotPositive)
	}
	if fee < 0 {
		return fmt.Errorf("order fee %.4f must not be negative: %w", fee, ErrAmountNotPositive)
	}
	return nil
}

func insertOrder(tx *sql.Tx, o *Order) error {
	_, err := tx.Exec(`
		INSERT INTO orders (id, side, symbol, price, shares, fee, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID,
		string(o.Side),
		o.Symbol,
		o.Price,
		o.Shares,
		o.Fee,
		o.Amount,
		string(o.Status),
		o.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func getOrder(tx *sql.Tx, orderID string) (*Order, error) {
	row := tx.QueryRow(`
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

func finalizeOrder(tx *sql.Tx, order *Order, status OrderStatus, at time.Time) error {
	_, err := tx.Exec(`
		UPDATE orders SET price = ?, fee = ?, amount = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, order.Price, order.Fee, order.Amount, string(status), at.Format(timeLayout), order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	return nil
}
