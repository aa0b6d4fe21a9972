package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
booking:
  duration_minutes: 30
`

const watcherUpdatedYAML = `
server:
  log_level: debug
booking:
  duration_minutes: 45
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeFile writes content and pushes the mtime forward so coarse filesystem
// timestamps still register a change.
func writeFile(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if bump > 0 {
		ts := time.Now().Add(bump)
		if err := os.Chtimes(path, ts, ts); err != nil {
			t.Fatalf("chtimes %q: %v", path, err)
		}
	}
}

func runWatcher(t *testing.T, w *config.Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	writeFile(t, path, watcherValidYAML, 0)

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Providers.TTS.Name != "mimic3" {
		t.Errorf("defaults not applied: tts = %q", cfg.Providers.TTS.Name)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	writeFile(t, path, watcherValidYAML, 0)

	var (
		mu       sync.Mutex
		gotDiff  config.ConfigDiff
		received = make(chan struct{}, 1)
	)
	w, err := config.NewWatcher(path, func(_ *config.Config, d config.ConfigDiff) {
		mu.Lock()
		gotDiff = d
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	runWatcher(t, w)

	writeFile(t, path, watcherUpdatedYAML, 2*time.Second)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotDiff.LogLevelChanged || gotDiff.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", gotDiff)
	}
	if len(gotDiff.RestartRequired) != 1 || gotDiff.RestartRequired[0] != "booking" {
		t.Errorf("RestartRequired = %v, want [booking]", gotDiff.RestartRequired)
	}
	if w.Current().Booking.DurationMinutes != 45 {
		t.Errorf("Current() not updated: %d", w.Current().Booking.DurationMinutes)
	}
}

func TestWatcher_IgnoresEditsWithoutEffect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{"invalid", watcherInvalidYAML},
		{"touch only", watcherValidYAML},
		{"comment only", watcherValidYAML + "# tuned for the evening shift\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "frontdesk.yaml")
			writeFile(t, path, watcherValidYAML, 0)

			var (
				mu    sync.Mutex
				calls int
			)
			w, err := config.NewWatcher(path, func(*config.Config, config.ConfigDiff) {
				mu.Lock()
				calls++
				mu.Unlock()
			}, config.WithInterval(20*time.Millisecond))
			if err != nil {
				t.Fatalf("NewWatcher: %v", err)
			}
			runWatcher(t, w)

			writeFile(t, path, tt.content, 2*time.Second)
			time.Sleep(200 * time.Millisecond)

			mu.Lock()
			defer mu.Unlock()
			if calls != 0 {
				t.Errorf("callback fired %d times, want 0", calls)
			}
			if w.Current().Server.LogLevel != config.LogInfo {
				t.Errorf("Current() log_level = %q, want info", w.Current().Server.LogLevel)
			}
		})
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/frontdesk.yaml", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	writeFile(t, path, watcherValidYAML, 0)
	w, err := config.NewWatcher(path, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
}
