// Package app wires the frontdesk subsystems into a running receptionist.
//
// New builds everything a call needs from the config and the already
// constructed providers: the hand-off queue, the decoder and segmenter, the
// booking machine, the ledger, and the turn loop. Run captures audio and
// drives the loop until the context ends or the capture stream finishes.
// Shutdown releases resources in reverse order.
//
// Tests inject doubles through [Providers] and the functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/frontdesk/internal/booking"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/internal/ledger/postgres"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/segment"
	"github.com/MrWong99/frontdesk/internal/turn"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// audioStaleAfter is how long the capture stream may stay silent before
// /readyz reports it.
const audioStaleAfter = 10 * time.Second

// Providers holds the collaborators of a call. All fields are required.
type Providers struct {
	LLM      llm.Provider
	STT      stt.Provider
	TTS      tts.Provider
	Calendar calendar.Scheduler
	Source   audio.Source
	Sink     audio.Sink

	// Checkers are extra readiness probes for the providers above.
	Checkers []health.Checker
}

func (p *Providers) validate() error {
	var errs []error
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if p.Calendar == nil {
		errs = append(errs, errors.New("calendar provider is required"))
	}
	if p.Source == nil {
		errs = append(errs, errors.New("audio source is required"))
	}
	if p.Sink == nil {
		errs = append(errs, errors.New("audio sink is required"))
	}
	return errors.Join(errs...)
}

// App owns the lifetime of one receptionist session.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	recorder  ledger.Recorder
	sessionID string

	queue    *audio.ChunkQueue
	loop     *turn.Loop
	machine  *booking.Machine
	checkers []health.Checker

	lastChunk atomic.Int64 // unix nanos of the most recent captured chunk

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecorder injects a ledger instead of connecting to ledger.postgres_dsn.
func WithRecorder(r ledger.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithMetrics overrides the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionID fixes the session identifier used in logs and the ledger.
func WithSessionID(id string) Option {
	return func(a *App) { a.sessionID = id }
}

// New initialises every subsystem synchronously. On error, anything already
// opened is released before returning.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{cfg: cfg, providers: providers}
	a.checkers = append(a.checkers, providers.Checkers...)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	if err := a.initLedger(ctx); err != nil {
		return nil, fmt.Errorf("app: init ledger: %w", err)
	}
	if err := a.initQueue(ctx); err != nil {
		return nil, fmt.Errorf("app: init audio queue: %w", err)
	}

	seg, err := a.initSegmenter(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init segmenter: %w", err)
	}

	mc, err := cfg.Machine()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.machine, err = booking.NewMachine(providers.LLM, providers.Calendar,
		booking.WithConfig(mc),
		booking.WithSystemPrompt(cfg.SystemPrompt()),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init booking machine: %w", err)
	}

	loopOpts := []turn.Option{turn.WithRecorder(a.recorder), turn.WithMetrics(a.metrics)}
	if a.sessionID != "" {
		loopOpts = append(loopOpts, turn.WithSessionID(a.sessionID))
	}
	a.loop, err = turn.New(seg, a.machine, &turn.Voice{TTS: providers.TTS, Sink: providers.Sink}, loopOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: init turn loop: %w", err)
	}
	a.sessionID = a.loop.SessionID()

	a.checkers = append(a.checkers, health.FreshnessCheck("audio", a.lastChunkAt, audioStaleAfter, audioStaleAfter))
	return a, nil
}

func (a *App) initLedger(ctx context.Context) error {
	if a.recorder != nil {
		return nil
	}
	dsn := a.cfg.Ledger.PostgresDSN
	if dsn == "" {
		a.recorder = ledger.Nop{}
		return nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.recorder = store
	a.checkers = append(a.checkers, health.PingCheck("ledger", store))
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	slog.Info("ledger connected", "backend", "postgres")
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	a.queue = audio.NewChunkQueue(
		audio.WithCapacity(a.cfg.Audio.QueueCapacity),
		audio.WithDropHook(func() { a.metrics.RecordChunkDropped(ctx) }),
	)
	reg, err := a.metrics.RegisterQueueDepth(func() int64 { return int64(a.queue.Len()) })
	if err != nil {
		return err
	}
	a.closers = append(a.closers, reg.Unregister)
	return nil
}

func (a *App) initSegmenter(ctx context.Context) (*segment.Segmenter, error) {
	open := func(ctx context.Context) (stt.Decoder, error) {
		return a.providers.STT.NewDecoder(ctx, stt.StreamConfig{
			SampleRate: a.cfg.Audio.SampleRate,
			Channels:   1,
			Language:   a.cfg.Audio.Language,
		})
	}
	dec, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	seg, err := segment.New(a.queue, dec, a.cfg.Audio.SampleRate,
		segment.WithGapHook(func() { a.metrics.RecordRecognitionGap(ctx) }),
		segment.WithReopen(open),
	)
	if err != nil {
		_ = dec.Close()
		return nil, err
	}
	a.closers = append(a.closers, seg.Close)
	return seg, nil
}

// SessionID identifies this call.
func (a *App) SessionID() string { return a.sessionID }

// Checkers returns the readiness probes for this session.
func (a *App) Checkers() []health.Checker { return a.checkers }

// Machine exposes the booking machine, mainly for tests.
func (a *App) Machine() *booking.Machine { return a.machine }

func (a *App) lastChunkAt() time.Time {
	n := a.lastChunk.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (a *App) push(chunk []byte) {
	a.lastChunk.Store(time.Now().UnixNano())
	a.queue.Push(chunk)
}

// Run captures audio and processes turns until ctx is done or the capture
// stream ends and every queued chunk has been handled. A capture failure is
// returned after the queue has drained.
func (a *App) Run(ctx context.Context) error {
	slog.Info("receptionist listening", "session_id", a.sessionID)

	var captureErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer a.queue.Close()
		if err := a.providers.Source.Run(gctx, a.push); err != nil {
			slog.Error("audio capture stopped", "err", err)
			captureErr = fmt.Errorf("app: capture: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.loop.Run(gctx)
	})
	loopErr := g.Wait()
	return errors.Join(captureErr, loopErr)
}

// Shutdown runs the closers in reverse init order. If ctx expires first, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Debug("shutdown complete", "session_id", a.sessionID)
	})
	return shutdownErr
}
