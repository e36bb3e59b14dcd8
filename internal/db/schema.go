package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    email             TEXT NOT NULL,
    password_hash     TEXT NOT NULL,
    role              TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('admin', 'manager', 'customer')),
    verified          INTEGER NOT NULL DEFAULT 0,
    verification_code TEXT,
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at        DATETIME
);

CREATE TABLE IF NOT EXISTS uploads (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name   TEXT NOT NULL,
    uploaded_by INTEGER REFERENCES users(id),
    uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS barcodes (
    code       TEXT PRIMARY KEY,
    issued_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stock (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    barcode          TEXT NOT NULL,
    name             TEXT NOT NULL,
    category         TEXT,
    quantity         INTEGER NOT NULL CHECK (quantity >= 0),
    price            TEXT,
    expiry_date      TEXT NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('warehouse', 'showcase', 'sold', 'deleted')),
    expired          INTEGER NOT NULL DEFAULT 0,
    upload_id        INTEGER REFERENCES uploads(id),
    added_at         DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL,
    last_notified_at DATETIME
);

CREATE TABLE IF NOT EXISTS movements (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    barcode     TEXT NOT NULL,
    source_id   INTEGER NOT NULL REFERENCES stock(id),
    target_id   INTEGER REFERENCES stock(id),
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity > 0),
    moved_at    DATETIME NOT NULL,
    moved_by    INTEGER REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: emails are unique among active users only, so a soft-deleted
	// address can register again.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
	     ON users(email) WHERE deleted_at IS NULL`,

	// Migration 2: at most one live bucket per barcode and status. Deleted
	// records are exempt because several lineages can end there.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_bucket
	     ON stock(barcode, status) WHERE status <> 'deleted'`,

	// Migration 3: lookup indexes for listing and the expiry sweep.
	`CREATE INDEX IF NOT EXISTS idx_stock_status ON stock(status, expiry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_upload ON stock(upload_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_source ON movements(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_target ON movements(target_id)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies the migrations in order.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
