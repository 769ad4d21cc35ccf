// Package sqlite stores orders, shipping addresses and carts in SQLite.
//
// The pool is capped at one connection, so code running inside a
// transaction must only use the *sql.Tx and every result set must be
// closed before the next query is issued.
package sqlite

import (
	"database/sql"
	"fmt"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS shipping_addresses (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    receiver_name  TEXT    NOT NULL DEFAULT '',
    street         TEXT    NOT NULL,
    city           TEXT    NOT NULL,
    region         TEXT    NOT NULL DEFAULT '',
    postal_code    TEXT    NOT NULL,
    country        TEXT    NOT NULL DEFAULT 'Argentina',
    phone          TEXT    NOT NULL DEFAULT '',
    extra_info     TEXT    NOT NULL DEFAULT '',
    created_at     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id                           INTEGER PRIMARY KEY AUTOINCREMENT,
    -- NULL once the owning user is gone.
    user_id                      INTEGER,
    address_id                   INTEGER NOT NULL UNIQUE REFERENCES shipping_addresses(id),
    status                       TEXT    NOT NULL CHECK (status IN ('DRAFT', 'PENDING', 'CONFIRMED', 'CANCELLED')),
    transport_type               TEXT    NOT NULL DEFAULT '',
    -- Decimal as TEXT to keep exact cents.
    total                        TEXT    NOT NULL DEFAULT '0',
    shipment_reference           TEXT,
    stock_reservation_reference  TEXT,
    confirmed_at                 TEXT,
    created_at                   TEXT    NOT NULL,
    updated_at                   TEXT    NOT NULL,
    CHECK ((shipment_reference IS NULL) = (stock_reservation_reference IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, created_at);

CREATE TABLE IF NOT EXISTS order_lines (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id      INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id    INTEGER NOT NULL,
    product_name  TEXT    NOT NULL,
    quantity      INTEGER NOT NULL CHECK (quantity >= 1),
    unit_price    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_lines_order_id ON order_lines(order_id);

CREATE TABLE IF NOT EXISTS carts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     INTEGER NOT NULL UNIQUE,
    created_at  TEXT    NOT NULL,
    updated_at  TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS cart_items (
    cart_id     INTEGER NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
    product_id  INTEGER NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity >= 1),
    added_at    TEXT    NOT NULL,
    PRIMARY KEY (cart_id, product_id)
);
`

// Open opens (or creates) the database at path with WAL, foreign keys and
// a busy timeout, and applies the schema.
//
//	db, err := sqlite.Open("./data/checkout.db")
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return db, nil
}
