// Package postgres stores the call ledger in PostgreSQL.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.RecordTurn(ctx, ledger.TurnRecord{SessionID: id, Seq: 1, …})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    seq          INTEGER      NOT NULL,
    user_text    TEXT         NOT NULL,
    reply        TEXT         NOT NULL,
    stage_before TEXT         NOT NULL,
    stage_after  TEXT         NOT NULL,
    at           TIMESTAMPTZ  NOT NULL,
    latency_ns   BIGINT       NOT NULL DEFAULT 0,
    UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_turns_session_id
    ON turns (session_id, seq);
`

const ddlBookings = `
CREATE TABLE IF NOT EXISTS bookings (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    seq         INTEGER      NOT NULL,
    date        TEXT         NOT NULL DEFAULT '',
    start_time  TEXT         NOT NULL DEFAULT '',
    starts_at   TEXT         NOT NULL DEFAULT '',
    ends_at     TEXT         NOT NULL DEFAULT '',
    email       TEXT         NOT NULL DEFAULT '',
    link        TEXT         NOT NULL DEFAULT '',
    outcome     TEXT         NOT NULL,
    error       TEXT         NOT NULL DEFAULT '',
    at          TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookings_session_id
    ON bookings (session_id);

CREATE INDEX IF NOT EXISTS idx_bookings_outcome
    ON bookings (outcome);
`

// Migrate creates the ledger tables if they do not exist. It is idempotent
// and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlTurns, ddlBookings} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ledger migrate: %w", err)
		}
	}
	return nil
}
