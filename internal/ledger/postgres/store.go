package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/frontdesk/internal/ledger"
)

var _ ledger.Recorder = (*Store)(nil)

// Store is a PostgreSQL-backed [ledger.Recorder]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity. Used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ledger store: ping: %w", err)
	}
	return nil
}

// RecordTurn implements [ledger.Recorder].
func (s *Store) RecordTurn(ctx context.Context, rec ledger.TurnRecord) error {
	const q = `
		INSERT INTO turns
		    (session_id, seq, user_text, reply, stage_before, stage_after, at, latency_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, seq) DO NOTHING`

	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.Seq,
		rec.UserText,
		rec.Reply,
		rec.StageBefore,
		rec.StageAfter,
		rec.At,
		rec.Latency.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("ledger store: record turn: %w", err)
	}
	return nil
}

// RecordBooking implements [ledger.Recorder].
func (s *Store) RecordBooking(ctx context.Context, rec ledger.BookingRecord) error {
	const q = `
		INSERT INTO bookings
		    (session_id, seq, date, start_time, starts_at, ends_at, email, link, outcome, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.Seq,
		rec.Date,
		rec.StartTime,
		rec.Start,
		rec.End,
		rec.Email,
		rec.Link,
		rec.Outcome,
		rec.Error,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("ledger store: record booking: %w", err)
	}
	return nil
}

// Turns returns the turns of sessionID in order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]ledger.TurnRecord, error) {
	const q = `
		SELECT session_id, seq, user_text, reply, stage_before, stage_after, at, latency_ns
		FROM   turns
		WHERE  session_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger store: query turns: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.TurnRecord, error) {
		var (
			rec       ledger.TurnRecord
			latencyNs int64
		)
		err := row.Scan(&rec.SessionID, &rec.Seq, &rec.UserText, &rec.Reply,
			&rec.StageBefore, &rec.StageAfter, &rec.At, &latencyNs)
		rec.Latency = time.Duration(latencyNs)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger store: scan turns: %w", err)
	}
	return out, nil
}

// Bookings returns the booking attempts of sessionID, oldest first.
func (s *Store) Bookings(ctx context.Context, sessionID string) ([]ledger.BookingRecord, error) {
	const q = `
		SELECT session_id, seq, date, start_time, starts_at, ends_at, email, link, outcome, error, at
		FROM   bookings
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger store: query bookings: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.BookingRecord, error) {
		var rec ledger.BookingRecord
		err := row.Scan(&rec.SessionID, &rec.Seq, &rec.Date, &rec.StartTime, &rec.Start,
			&rec.End, &rec.Email, &rec.Link, &rec.Outcome, &rec.Error, &rec.At)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger store: scan bookings: %w", err)
	}
	return out, nil
}
