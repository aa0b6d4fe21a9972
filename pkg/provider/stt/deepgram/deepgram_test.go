package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/frontdesk/pkg/provider/stt"
)

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	for key, want := range map[string]string{
		"model":            "nova-3",
		"language":         "en",
		"punctuate":        "true",
		"interim_results":  "true",
		"encoding":         "linear16",
		"sample_rate":      "16000",
		"channels":         "1",
		"endpointing":      "500",
		"utterance_end_ms": "1000",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestBuildURL_Overrides(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithModel("base"), WithLanguage("de"), WithEndpointingMs(0))
	rawURL, _ := p.buildURL(stt.StreamConfig{Language: "en-IN"})
	u, _ := url.Parse(rawURL)
	q := u.Query()

	if q.Get("model") != "base" {
		t.Errorf("model = %q", q.Get("model"))
	}
	if q.Get("language") != "en-IN" {
		t.Errorf("language = %q, want stream config to win", q.Get("language"))
	}
	if q.Has("endpointing") {
		t.Error("endpointing set although disabled")
	}
}

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want event
		ok   bool
	}{
		{
			name: "final with speech_final",
			raw:  `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":" d e v at gmail ","confidence":0.9}]}}`,
			want: event{Text: "d e v at gmail", IsFinal: true, SpeechFinal: true},
			ok:   true,
		},
		{
			name: "interim",
			raw:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"book"}]}}`,
			want: event{Text: "book"},
			ok:   true,
		},
		{name: "utterance end", raw: `{"type":"UtteranceEnd","last_word_end":2.1}`, want: event{End: true}, ok: true},
		{name: "metadata", raw: `{"type":"Metadata"}`},
		{name: "no alternatives", raw: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.ok || got != tt.want {
				t.Errorf("parse = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// newMockDeepgram answers the first binary frame with an is_final result and
// the second with a speech_final result.
func newMockDeepgram(t *testing.T, gotAuth *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		frames := 0
		for {
			typ, _, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			frames++
			var reply string
			switch frames {
			case 1:
				reply = `{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"I want to book"}]}}`
			case 2:
				reply = `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"a meeting"}]}}`
			default:
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDecoder_CollectsFinalsUntilSpeechFinal(t *testing.T) {
	t.Parallel()

	var gotAuth atomic.Value
	srv := newMockDeepgram(t, &gotAuth)

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := p.NewDecoder(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer d.Close()

	chunk := make([]byte, 320)
	final := false
	for range 200 {
		final, err = d.AcceptWaveform(ctx, chunk)
		if err != nil {
			t.Fatalf("AcceptWaveform: %v", err)
		}
		if final {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !final {
		t.Fatal("decoder never finalized a segment")
	}
	if got := d.Result(); got != "I want to book a meeting" {
		t.Errorf("Result = %q, want both finals joined", got)
	}
	if auth, _ := gotAuth.Load().(string); auth != "Token secret" {
		t.Errorf("Authorization = %q, want %q", auth, "Token secret")
	}
}

func TestDecoder_AcceptAfterClose(t *testing.T) {
	t.Parallel()

	var gotAuth atomic.Value
	srv := newMockDeepgram(t, &gotAuth)
	p, _ := New("k", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))

	d, err := p.NewDecoder(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = d.Close()
	if _, err := d.AcceptWaveform(context.Background(), []byte{0, 0}); err == nil {
		t.Fatal("expected error after Close")
	}
}
