package postgres

import (
	"context"
	"database/sql"

	"github.com/sheikh-saqib/token-ledger/internal/models"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		seq             BIGSERIAL UNIQUE,
		id              TEXT PRIMARY KEY,
		user_name       TEXT NOT NULL UNIQUE,
		password_hash   TEXT NOT NULL DEFAULT '',
		balance         BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		airdrop_granted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq        BIGSERIAL PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		sender     TEXT REFERENCES accounts (id),
		recipient  TEXT NOT NULL REFERENCES accounts (id),
		amount     BIGINT NOT NULL CHECK (amount > 0),
		kind       TEXT NOT NULL CHECK (kind IN ('transfer', 'airdrop')),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_sender_idx ON transactions (sender, seq)`,
	`CREATE INDEX IF NOT EXISTS transactions_recipient_idx ON transactions (recipient, seq)`,
}

// Migrate creates the ledger tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return models.Unavailable("migrate", err)
		}
	}
	return nil
}
