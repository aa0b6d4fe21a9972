// Package turn runs the conversation: it takes one finalized utterance at a
// time from the segmenter, hands it to the booking machine, speaks the reply,
// and records the turn.
//
// Turns are strictly sequential. The next utterance is not read until the
// previous reply has finished playing, so audio captured meanwhile waits in
// the hand-off queue.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/frontdesk/internal/booking"
	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// Utterances yields finalized speech segments. [segment.Segmenter] is the
// production implementation.
type Utterances interface {
	Next(ctx context.Context) (types.Utterance, error)
}

// Dispatcher advances the dialogue. [booking.Machine] is the production
// implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) booking.Turn
}

// Option configures a [Loop].
type Option func(*Loop)

// WithRecorder persists turns and booking outcomes. Default: [ledger.Nop].
func WithRecorder(r ledger.Recorder) Option {
	return func(l *Loop) { l.rec = r }
}

// WithMetrics overrides the instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithSessionID fixes the session identifier. Default: a random UUID.
func WithSessionID(id string) Option {
	return func(l *Loop) { l.sessionID = id }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop is the single-goroutine driver of a call.
type Loop struct {
	in        Utterances
	machine   Dispatcher
	speaker   Speaker
	rec       ledger.Recorder
	metrics   *observe.Metrics
	sessionID string
	now       func() time.Time

	seq int
}

// New creates a Loop.
func New(in Utterances, machine Dispatcher, speaker Speaker, opts ...Option) (*Loop, error) {
	if in == nil || machine == nil || speaker == nil {
		return nil, errors.New("turn: utterance source, dispatcher and speaker are required")
	}
	l := &Loop{
		in:      in,
		machine: machine,
		speaker: speaker,
		rec:     ledger.Nop{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	if l.sessionID == "" {
		l.sessionID = uuid.NewString()
	}
	return l, nil
}

// SessionID identifies this call in logs and the ledger.
func (l *Loop) SessionID() string { return l.sessionID }

// Turns returns the number of turns that produced a reply so far. It must be
// read from the loop goroutine or after Run returns.
func (l *Loop) Turns() int { return l.seq }

// Run processes utterances until ctx is done or the audio queue is closed
// and drained; both return nil. Any other error from the utterance source
// ends the loop and is returned.
func (l *Loop) Run(ctx context.Context) error {
	ctx = observe.WithSession(ctx, l.sessionID)
	log := observe.Logger(ctx)
	log.Info("turn loop started")
	defer log.Info("turn loop stopped", "turns", l.seq)

	for {
		u, err := l.in.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrQueueClosed), ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("turn: next utterance: %w", err)
		}
		l.Handle(ctx, u)
	}
}

// Handle runs one turn. Exported for callers that drive the machine from a
// source other than the segmenter.
func (l *Loop) Handle(ctx context.Context, u types.Utterance) {
	start := l.now()
	ctx, span := observe.StartSpan(observe.WithSession(ctx, l.sessionID), "turn")
	defer span.End()
	log := observe.Logger(ctx)

	t := l.machine.Dispatch(ctx, u.Text)
	if t.Reply == "" {
		span.SetAttributes(attribute.Bool("dropped", true))
		return
	}
	l.seq++
	log.Info("user said", "seq", l.seq, "text", t.Utterance, "audio", u.Audio)

	span.SetAttributes(
		attribute.Int("seq", l.seq),
		attribute.String("stage.from", t.From.String()),
		attribute.String("stage.to", t.To.String()),
	)
	if t.From != t.To {
		l.metrics.RecordTransition(ctx, t.From.String(), t.To.String())
	}
	if t.Outcome != booking.OutcomeNone {
		l.metrics.RecordOutcome(ctx, string(t.Outcome))
		span.SetAttributes(attribute.String("booking.outcome", string(t.Outcome)))
	}

	log.Info("assistant said", "seq", l.seq, "text", t.Reply)
	if err := l.speaker.Speak(ctx, t.Reply); err != nil {
		observe.Fail(span, err)
		log.Warn("could not speak reply", "seq", l.seq, "err", err)
	}

	latency := l.now().Sub(start)
	l.metrics.TurnDuration.Record(ctx, latency.Seconds())
	l.record(ctx, log, start, latency, t)
}

func (l *Loop) record(ctx context.Context, log *slog.Logger, at time.Time, latency time.Duration, t booking.Turn) {
	err := l.rec.RecordTurn(ctx, ledger.TurnRecord{
		SessionID:   l.sessionID,
		Seq:         l.seq,
		UserText:    t.Utterance,
		Reply:       t.Reply,
		StageBefore: t.From.String(),
		StageAfter:  t.To.String(),
		At:          at,
		Latency:     latency,
	})
	if err != nil {
		log.Warn("ledger: record turn failed", "seq", l.seq, "err", err)
	}

	a := t.Attempt
	if a == nil {
		return
	}
	rec := ledger.BookingRecord{
		SessionID: l.sessionID,
		Seq:       l.seq,
		Date:      a.Date,
		StartTime: a.StartTime,
		Start:     a.Start,
		End:       a.End,
		Email:     a.Email,
		Link:      a.Link,
		Outcome:   string(a.Outcome),
		At:        at,
	}
	if a.Err != nil {
		rec.Error = a.Err.Error()
	}
	if err := l.rec.RecordBooking(ctx, rec); err != nil {
		log.Warn("ledger: record booking failed", "seq", l.seq, "err", err)
	}
}
