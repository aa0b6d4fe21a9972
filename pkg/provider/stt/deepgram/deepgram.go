// Package deepgram provides a speech recognizer backed by the Deepgram
// streaming WebSocket API.
//
// Audio chunks are written to the socket as they arrive. Deepgram decides
// segment boundaries itself: is_final results are collected until a result
// with speech_final (or an UtteranceEnd event) arrives, and the collected
// text becomes the finalized segment. Results arrive asynchronously, so a
// boundary is reported on the first AcceptWaveform call after it is received.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/frontdesk/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultEndpointMs = 500
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the recognition language (e.g., "en", "en-IN").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpointingMs sets how much silence Deepgram waits for before marking
// speech_final. Defaults to 500 ms.
func WithEndpointingMs(ms int) Option {
	return func(p *Provider) {
		p.endpointMs = ms
	}
}

// WithEndpoint overrides the streaming URL (e.g., for a self-hosted Deepgram
// or a local test server).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	endpointMs int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		endpointMs: defaultEndpointMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDecoder dials Deepgram and returns a decoder bound to the connection.
func (p *Provider) NewDecoder(ctx context.Context, cfg stt.StreamConfig) (stt.Decoder, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	// The read loop outlives the dial context; it stops when the connection closes.
	readCtx, cancel := context.WithCancel(context.Background())
	d := &decoder{
		conn:   conn,
		events: make(chan event, 64),
		cancel: cancel,
	}
	d.wg.Add(1)
	go d.readLoop(readCtx)
	return d, nil
}

// buildURL constructs the streaming endpoint URL for cfg.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(ch))
	if p.endpointMs > 0 {
		q.Set("endpointing", strconv.Itoa(p.endpointMs))
		// utterance_end_ms has a floor of 1000 on Deepgram's side.
		q.Set("utterance_end_ms", strconv.Itoa(max(1000, p.endpointMs*2)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of a Results or UtteranceEnd message we use.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// event is one parsed server message.
type event struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
	End         bool // UtteranceEnd
}

// parseDeepgramResponse returns (event, true) for Results and UtteranceEnd
// messages and (zero, false) for anything else.
func parseDeepgramResponse(data []byte) (event, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return event{}, false
	}
	switch resp.Type {
	case "UtteranceEnd":
		return event{End: true}, true
	case "Results":
		if len(resp.Channel.Alternatives) == 0 {
			return event{}, false
		}
		return event{
			Text:        strings.TrimSpace(resp.Channel.Alternatives[0].Transcript),
			IsFinal:     resp.IsFinal,
			SpeechFinal: resp.SpeechFinal,
		}, true
	}
	return event{}, false
}

// decoder implements stt.Decoder over a live Deepgram socket.
type decoder struct {
	conn   *websocket.Conn
	events chan event
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	readErr error

	pending []string
	result  string
	closed  bool
	once    sync.Once
}

// AcceptWaveform implements stt.Decoder.
func (d *decoder) AcceptWaveform(ctx context.Context, chunk []byte) (bool, error) {
	if d.closed {
		return false, stt.ErrClosed
	}
	if err := d.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		return false, fmt.Errorf("deepgram: send audio: %w: %w", stt.ErrClosed, err)
	}
	return d.drain()
}

// drain consumes buffered events without blocking.
func (d *decoder) drain() (bool, error) {
	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				d.mu.Lock()
				err := d.readErr
				d.mu.Unlock()
				return false, fmt.Errorf("deepgram: connection lost: %w: %w", stt.ErrClosed, err)
			}
			if ev.IsFinal && ev.Text != "" {
				d.pending = append(d.pending, ev.Text)
			}
			if (ev.SpeechFinal || ev.End) && len(d.pending) > 0 {
				d.result = strings.Join(d.pending, " ")
				d.pending = nil
				return true, nil
			}
		default:
			return false, nil
		}
	}
}

// Result implements stt.Decoder.
func (d *decoder) Result() string { return d.result }

// Close asks Deepgram to flush, then closes the socket.
func (d *decoder) Close() error {
	d.once.Do(func() {
		d.closed = true
		_ = d.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		_ = d.conn.Close(websocket.StatusNormalClosure, "decoder closed")
		d.cancel()
		d.wg.Wait()
	})
	return nil
}

func (d *decoder) readLoop(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.events)

	for {
		_, msg, err := d.conn.Read(ctx)
		if err != nil {
			d.mu.Lock()
			d.readErr = err
			d.mu.Unlock()
			return
		}
		ev, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		select {
		case d.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
