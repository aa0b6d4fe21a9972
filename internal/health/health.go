// Package health serves the liveness and readiness probes of a frontdesk
// process.
//
//   - GET /healthz reports the process is up, how long it has been running,
//     and which call session it is serving.
//   - GET /readyz runs every registered [Checker] concurrently and answers
//     200 only when all of them pass.
//
// Both respond with JSON carrying a top-level "status" of "ok" or "fail".
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe.
type Checker struct {
	// Name keys the check in the JSON response, e.g. "ledger" or "audio".
	Name string

	// Check returns nil when the dependency is usable. It must respect ctx.
	Check func(ctx context.Context) error
}

// Pinger is satisfied by stores with a connectivity probe, such as the
// Postgres ledger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a [Pinger] into a [Checker].
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// CatalogCheck adapts a listing call, such as a TTS voice catalogue, into a
// [Checker]. The listing itself is discarded.
func CatalogCheck[T any](name string, list func(ctx context.Context) ([]T, error)) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		_, err := list(ctx)
		return err
	}}
}

// ErrStale is reported by [FreshnessCheck] when the watched signal has not
// moved recently.
var ErrStale = errors.New("no recent activity")

// FreshnessCheck fails when last reports a time older than maxAge, or the
// zero time once grace has elapsed since the check was created. It is used to
// notice a capture device that stopped delivering audio.
func FreshnessCheck(name string, last func() time.Time, maxAge, grace time.Duration) Checker {
	created := time.Now()
	return Checker{Name: name, Check: func(context.Context) error {
		t := last()
		if t.IsZero() {
			if time.Since(created) < grace {
				return nil
			}
			return ErrStale
		}
		if time.Since(t) > maxAge {
			return ErrStale
		}
		return nil
	}}
}

type result struct {
	Status    string            `json:"status"`
	SessionID string            `json:"session_id,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithSessionID reports id on /healthz.
func WithSessionID(id string) Option {
	return func(h *Handler) { h.sessionID = id }
}

// WithStartTime overrides the process start used for the uptime figure.
func WithStartTime(t time.Time) Option {
	return func(h *Handler) { h.started = t }
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers  []Checker
	sessionID string
	started   time.Time
}

// New creates a [Handler] evaluating checkers on every /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{
		Status:    "ok",
		SessionID: h.sessionID,
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz runs all checkers in parallel, each with its own [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
