// Package segment turns the captured PCM stream into utterances.
//
// A [Segmenter] pops chunks from the capture hand-off queue, feeds them to a
// speech decoder one at a time, and returns the decoder's text whenever it
// finalizes a segment. Boundaries belong to the decoder; the segmenter never
// splits or merges its results. Empty results are recognition gaps and are
// dropped.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// Option is a functional option for New.
type Option func(*Segmenter)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.log = l }
}

// WithGapHook registers fn to be called for every dropped segment (empty
// text or a decoder error).
func WithGapHook(fn func()) Option {
	return func(s *Segmenter) { s.onGap = fn }
}

// OpenFunc opens a replacement decoder after the current one has closed.
type OpenFunc func(ctx context.Context) (stt.Decoder, error)

// WithReopen makes the segmenter replace a closed decoder with one from open
// instead of returning [stt.ErrClosed]. Failed opens are retried with
// exponential backoff until one succeeds or ctx is done.
func WithReopen(open OpenFunc) Option {
	return func(s *Segmenter) { s.open = open }
}

// WithBackoff sets the reopen backoff. The delay starts at initial and
// doubles up to limit. Defaults: 500ms and 30s.
func WithBackoff(initial, limit time.Duration) Option {
	return func(s *Segmenter) {
		if initial > 0 {
			s.backoff = initial
		}
		if limit > 0 {
			s.maxBackoff = limit
		}
	}
}

// WithClock overrides time.Now for utterance timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// Segmenter is owned by the processing goroutine; it is not safe for
// concurrent use.
type Segmenter struct {
	queue       *audio.ChunkQueue
	dec         stt.Decoder
	bytesPerSec int
	pending     int

	open       OpenFunc
	backoff    time.Duration
	maxBackoff time.Duration

	log   *slog.Logger
	onGap func()
	now   func() time.Time
}

// New returns a Segmenter reading from queue into dec. sampleRate describes
// the mono 16-bit PCM in the queue.
func New(queue *audio.ChunkQueue, dec stt.Decoder, sampleRate int, opts ...Option) (*Segmenter, error) {
	if queue == nil || dec == nil {
		return nil, errors.New("segment: queue and decoder are required")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("segment: sample rate must be positive, got %d", sampleRate)
	}
	s := &Segmenter{
		queue:       queue,
		dec:         dec,
		bytesPerSec: sampleRate * 2,
		backoff:     500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Next blocks until the decoder finalizes a non-empty segment and returns it.
// It returns [audio.ErrQueueClosed] once capture has stopped and the queue is
// drained and ctx.Err() on cancellation. A closed decoder is replaced when
// [WithReopen] is set; otherwise Next returns an error wrapping
// [stt.ErrClosed]. Any other decoder error drops the current segment and
// decoding continues.
func (s *Segmenter) Next(ctx context.Context) (types.Utterance, error) {
	for {
		chunk, err := s.queue.Pop(ctx)
		if err != nil {
			return types.Utterance{}, err
		}
		s.pending += len(chunk)

		final, err := s.dec.AcceptWaveform(ctx, chunk)
		if err != nil {
			if errors.Is(err, stt.ErrClosed) {
				if s.open == nil {
					return types.Utterance{}, fmt.Errorf("segment: decoder: %w", err)
				}
				s.gap()
				if err := s.reopen(ctx); err != nil {
					return types.Utterance{}, err
				}
				continue
			}
			if ctx.Err() != nil {
				return types.Utterance{}, ctx.Err()
			}
			s.log.Warn("segment: recognition failed, dropping segment", "err", err)
			s.gap()
			continue
		}
		if !final {
			continue
		}

		text := strings.TrimSpace(s.dec.Result())
		spoken := s.consumePending()
		if text == "" {
			s.log.Debug("segment: empty segment dropped", "audio", spoken)
			s.gap()
			continue
		}
		return types.Utterance{Text: text, At: s.now(), Audio: spoken}, nil
	}
}

// reopen swaps the closed decoder for a new one. It only fails when ctx is
// done.
func (s *Segmenter) reopen(ctx context.Context) error {
	_ = s.dec.Close()
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		dec, err := s.open(ctx)
		if err == nil {
			s.dec = dec
			s.log.Info("segment: recognizer reopened", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("segment: recognizer closed, retrying", "attempt", attempt, "backoff", delay, "err", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, s.maxBackoff)
	}
}

// Close closes the current decoder.
func (s *Segmenter) Close() error {
	return s.dec.Close()
}

func (s *Segmenter) consumePending() time.Duration {
	d := time.Duration(s.pending) * time.Second / time.Duration(s.bytesPerSec)
	s.pending = 0
	return d
}

func (s *Segmenter) gap() {
	s.pending = 0
	if s.onGap != nil {
		s.onGap()
	}
}
