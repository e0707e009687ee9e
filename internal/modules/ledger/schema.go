package ledger

import "database/sql"

// Schema for the ledger database. The portfolio table holds one CASH row
// (symbol '') plus one row per held stock; orders and transactions are the
// audit trail; portfolio_values is the daily valuation history.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolio (
    asset_type TEXT NOT NULL,
    symbol TEXT NOT NULL DEFAULT '',
    shares INTEGER,
    avg_cost REAL,
    total_value REAL NOT NULL DEFAULT 0,
    available REAL,
    PRIMARY KEY (asset_type, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    side TEXT NOT NULL,
    symbol TEXT NOT NULL,
    price REAL NOT NULL,
    shares INTEGER NOT NULL,
    fee REAL NOT NULL DEFAULT 0,
    amount REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    created_at TEXT NOT NULL,
    updated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    symbol TEXT,
    price REAL,
    shares INTEGER,
    fee REAL NOT NULL DEFAULT 0,
    amount REAL NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type);

CREATE TABLE IF NOT EXISTS portfolio_values (
    date TEXT PRIMARY KEY,
    value REAL NOT NULL
);
`

// InitSchema creates the ledger tables and seeds the CASH position
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}

	_, err := db.Exec(`
		INSERT INTO portfolio (asset_type, symbol, total_value, available)
		SELECT 'CASH', '', 0, 0
		WHERE NOT EXISTS (
			SELECT 1 FROM portfolio WHERE asset_type = 'CASH' AND symbol = ''
		)
	`)
	return err
}
