package storage

import (
	"context"
	"fmt"
)

// Schema is the subset of the record store the oracle reads. Times are
// Unix seconds and challenges.call_id holds the call's ledger id.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
	id                TEXT PRIMARY KEY,
	onchain_id        TEXT NOT NULL UNIQUE,
	caller_address    TEXT NOT NULL,
	category          TEXT NOT NULL,
	token_address     TEXT,
	target_price      DOUBLE PRECISION,
	creation_price    DOUBLE PRECISION,
	deadline          BIGINT NOT NULL,
	created_at        BIGINT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'Active',
	challengers_count INTEGER NOT NULL DEFAULT 0,
	resolution_tx     TEXT,
	resolved_at       BIGINT
);
CREATE INDEX IF NOT EXISTS calls_pending_idx ON calls (deadline) WHERE status = 'Active';

CREATE TABLE IF NOT EXISTS challenges (
	id                 TEXT PRIMARY KEY,
	onchain_id         TEXT NOT NULL UNIQUE,
	call_id            TEXT NOT NULL REFERENCES calls (onchain_id),
	challenger_address TEXT NOT NULL,
	stake              BIGINT NOT NULL,
	created_at         BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS challenges_call_idx ON challenges (call_id, created_at);

CREATE TABLE IF NOT EXISTS holder_snapshots (
	token_address TEXT NOT NULL,
	captured_at   BIGINT NOT NULL,
	top10_amount  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (token_address, captured_at)
);
`

// Migrate creates the tables if they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
