// Package ledger records what happened on a call: every turn, and every
// booking attempt that reached an outcome.
//
// Recording is best-effort. The turn loop logs a failed write and carries on;
// a ledger outage never interrupts the conversation.
package ledger

import (
	"context"
	"sync"
	"time"
)

// TurnRecord is one utterance-in, reply-out cycle.
type TurnRecord struct {
	SessionID   string
	Seq         int
	UserText    string
	Reply       string
	StageBefore string
	StageAfter  string
	At          time.Time
	Latency     time.Duration
}

// BookingRecord is the final state of a booking attempt.
type BookingRecord struct {
	SessionID string
	Seq       int
	Date      string
	StartTime string
	Start     string
	End       string
	Email     string
	Link      string
	Outcome   string
	Error     string
	At        time.Time
}

// Recorder persists turn and booking records. Implementations must be safe
// for concurrent use.
type Recorder interface {
	RecordTurn(ctx context.Context, rec TurnRecord) error
	RecordBooking(ctx context.Context, rec BookingRecord) error
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Memory)(nil)
)

// Nop discards every record.
type Nop struct{}

func (Nop) RecordTurn(context.Context, TurnRecord) error       { return nil }
func (Nop) RecordBooking(context.Context, BookingRecord) error { return nil }

// Memory keeps records in process. Useful for tests and for runs without a
// database where the records are only needed until exit.
type Memory struct {
	mu       sync.Mutex
	turns    []TurnRecord
	bookings []BookingRecord

	// Err, if non-nil, is returned from every Record call after the record is
	// stored.
	Err error
}

// RecordTurn implements Recorder.
func (m *Memory) RecordTurn(_ context.Context, rec TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, rec)
	return m.Err
}

// RecordBooking implements Recorder.
func (m *Memory) RecordBooking(_ context.Context, rec BookingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, rec)
	return m.Err
}

// Turns returns a copy of the recorded turns.
func (m *Memory) Turns() []TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TurnRecord(nil), m.turns...)
}

// Bookings returns a copy of the recorded bookings.
func (m *Memory) Bookings() []BookingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BookingRecord(nil), m.bookings...)
}
