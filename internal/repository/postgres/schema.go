package postgres

import (
	"context"
	"fmt"
)

// schema creates the tables used by the ledger. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_intents (
		transaction_id        TEXT PRIMARY KEY,
		amount                BIGINT NOT NULL CHECK (amount > 0),
		state                 TEXT NOT NULL,
		reference_id          TEXT,
		gateway_amount        BIGINT NOT NULL DEFAULT 0,
		metadata              JSONB,
		failure_reason        TEXT,
		verification_attempts INTEGER NOT NULL DEFAULT 0,
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_intents_state_created
		ON payment_intents (state, created_at)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id         TEXT PRIMARY KEY,
		items      JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
