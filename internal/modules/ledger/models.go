package ledger

import (
	"errors"
	"fmt"
	"time"
)

// AssetType distinguishes the single CASH row from per-symbol stock rows
type AssetType string

const (
	AssetCash  AssetType = "CASH"
	AssetStock AssetType = "STOCK"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of an order. PENDING is the only state
// that may transition; EXECUTED and CANCELED are terminal.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusExecuted OrderStatus = "EXECUTED"
	StatusCanceled OrderStatus = "CANCELED"
)

// TransactionType classifies ledger entries
type TransactionType string

const (
	TxDeposit  TransactionType = "DEPOSIT"
	TxWithdraw TransactionType = "WITHDRAW"
	TxBuy      TransactionType = "BUY"
	TxSell     TransactionType = "SELL"
	TxDividend TransactionType = "DIVIDEND"
)

// Position is one row of the portfolio table: either the CASH position
// (Symbol empty, Available meaningful) or a STOCK position.
type Position struct {
	AssetType  AssetType `json:"asset_type"`
	Symbol     string    `json:"symbol,omitempty"`
	Shares     int64     `json:"shares,omitempty"`
	AvgCost    float64   `json:"avg_cost,omitempty"`
	TotalValue float64   `json:"total_value"`

	// Available is the cash total minus amounts reserved by pending buy
	// orders. Only meaningful for the CASH position.
	Available float64 `json:"available,omitempty"`
}

// Order is a limit order against the simulated exchange. Amount is the
// fee-inclusive cost for a BUY and the fee-net proceeds for a SELL; for a
// pending BUY it equals the cash reserved at creation.
type Order struct {
	ID        string      `json:"id"`
	Side      OrderSide   `json:"side"`
	Symbol    string      `json:"symbol"`
	Price     float64     `json:"price"`
	Shares    int64       `json:"shares"`
	Fee       float64     `json:"fee"`
	Amount    float64     `json:"amount"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

// Transaction is an append-only ledger entry. Amount is signed: DEPOSIT,
// SELL and DIVIDEND are positive, WITHDRAW and BUY negative, so the sum of
// all amounts equals the cash total at any point in time.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Symbol    string          `json:"symbol,omitempty"`
	Price     float64         `json:"price,omitempty"`
	Shares    int64           `json:"shares,omitempty"`
	Fee       float64         `json:"fee,omitempty"`
	Amount    float64         `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// ValueSample is one row of the daily portfolio value history
type ValueSample struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// Execution overrides the price (and therefore fee) an order executes at,
// used when the day's open beats the limit price.
type Execution struct {
	Price float64
	Fee   float64
}

// Validation errors: surfaced to the caller, never leave partial state.
var (
	ErrInsufficientCash   = errors.New("insufficient available cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not in PENDING state")
	ErrAmountNotPositive  = errors.New("amount must be positive")
	ErrNoPosition         = errors.New("no position held for symbol")
)

// ConsistencyError signals ledger corruption (available cash exceeding total,
// negative share counts). Unlike validation errors it is fatal: the current
// trading pass must halt rather than keep mutating a broken ledger.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger consistency violation: %s", e.Reason)
}

// IsConsistencyError reports whether err (or anything it wraps) is a
// ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// epsilon for float comparisons in consistency checks
const epsilon = 1e-6
