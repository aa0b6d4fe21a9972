package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(nil,
		WithSessionID("9b2f"),
		WithStartTime(time.Now().Add(-90*time.Second)),
	)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, rec)
	if body.Status != "ok" || body.SessionID != "9b2f" {
		t.Errorf("body = %+v", body)
	}
	if body.Uptime != "1m30s" {
		t.Errorf("uptime = %q, want 1m30s", body.Uptime)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name: "all pass",
			checkers: []Checker{
				PingCheck("ledger", fakePinger{}),
				{Name: "audio", Check: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ledger": "ok", "audio": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				PingCheck("ledger", fakePinger{err: errors.New("connection refused")}),
				{Name: "audio", Check: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ledger": "fail: connection refused", "audio": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tt.checkers).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode(t, rec)
			wantBody := "ok"
			if tt.wantStatus != http.StatusOK {
				wantBody = "fail"
			}
			if body.Status != wantBody {
				t.Errorf("body status = %q, want %q", body.Status, wantBody)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestFreshnessCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	never := func() time.Time { return time.Time{} }
	if err := FreshnessCheck("audio", never, time.Second, time.Hour).Check(ctx); err != nil {
		t.Errorf("within grace: %v", err)
	}
	if err := FreshnessCheck("audio", never, time.Second, 0).Check(ctx); !errors.Is(err, ErrStale) {
		t.Errorf("after grace: %v, want ErrStale", err)
	}

	recent := func() time.Time { return time.Now() }
	if err := FreshnessCheck("audio", recent, time.Second, 0).Check(ctx); err != nil {
		t.Errorf("recent: %v", err)
	}
	old := func() time.Time { return time.Now().Add(-time.Minute) }
	if err := FreshnessCheck("audio", old, time.Second, 0).Check(ctx); !errors.Is(err, ErrStale) {
		t.Errorf("old: %v, want ErrStale", err)
	}
}

func TestCatalogCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ok := CatalogCheck("tts", func(context.Context) ([]string, error) { return []string{"en_US/vctk_low"}, nil })
	if ok.Name != "tts" {
		t.Errorf("name = %q", ok.Name)
	}
	if err := ok.Check(ctx); err != nil {
		t.Errorf("listing ok: %v", err)
	}

	down := errors.New("GET /api/voices returned status 502")
	failing := CatalogCheck("tts", func(context.Context) ([]string, error) { return nil, down })
	if err := failing.Check(ctx); !errors.Is(err, down) {
		t.Errorf("listing failed: %v, want %v", err, down)
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(nil).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
