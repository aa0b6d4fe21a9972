// Package whisper provides speech recognizers backed by whisper.cpp.
//
// whisper.cpp is a batch engine with no endpointing of its own, so both
// decoders in this package run the energy-based [stt.Endpointer] over incoming
// chunks and submit each completed segment for a single inference:
//
//   - [Provider] posts the segment as WAV to a running whisper-server at
//     POST /inference.
//   - [NativeProvider] runs inference in-process through the CGO bindings.
//
// Inference happens synchronously inside AcceptWaveform, on the processing
// goroutine. The capture goroutine is decoupled by the audio queue and never
// waits on it.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	dec, err := p.NewDecoder(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
//	final, err := dec.AcceptWaveform(ctx, chunk)
//	if final { text := dec.Result() }
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSilenceThresholdMs sets the trailing silence that closes a segment.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		p.silenceMs = ms
	}
}

// WithMaxBufferDurationMs caps a segment during continuous speech.
// Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		p.maxSegmentMs = ms
	}
}

// WithRMSThreshold sets the energy below which a chunk counts as silence.
func WithRMSThreshold(rms float64) Option {
	return func(p *Provider) {
		p.rmsThreshold = rms
	}
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL    string
	model        string
	language     string
	silenceMs    int
	maxSegmentMs int
	rmsThreshold float64
	httpClient   *http.Client
}

// New creates a Provider for the whisper-server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     defaultLanguage,
		silenceMs:    stt.DefaultSilenceMs,
		maxSegmentMs: stt.DefaultMaxSegmentMs,
		rmsThreshold: stt.DefaultRMSThreshold,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDecoder implements stt.Provider. No connection is made until the first
// segment is finalized.
func (p *Provider) NewDecoder(ctx context.Context, cfg stt.StreamConfig) (stt.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	cfg = withDefaults(cfg, p.language)

	ep := stt.NewEndpointer(cfg.SampleRate, cfg.Channels)
	ep.Threshold = p.rmsThreshold
	ep.SilenceMs = p.silenceMs
	ep.MaxSegmentMs = p.maxSegmentMs

	return &decoder{p: p, cfg: cfg, ep: ep}, nil
}

func withDefaults(cfg stt.StreamConfig, lang string) stt.StreamConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Language == "" {
		cfg.Language = lang
	}
	return cfg
}

// decoder implements stt.Decoder for the HTTP server.
type decoder struct {
	p      *Provider
	cfg    stt.StreamConfig
	ep     *stt.Endpointer
	result string
	closed bool
}

// AcceptWaveform implements stt.Decoder.
func (d *decoder) AcceptWaveform(ctx context.Context, chunk []byte) (bool, error) {
	if d.closed {
		return false, stt.ErrClosed
	}
	segment, done := d.ep.Push(chunk)
	if !done {
		return false, nil
	}
	d.result = ""
	text, err := d.infer(ctx, segment)
	if err != nil {
		return false, err
	}
	d.result = strings.TrimSpace(text)
	return true, nil
}

// Result implements stt.Decoder.
func (d *decoder) Result() string { return d.result }

// Close implements stt.Decoder. Buffered, unfinalized audio is discarded.
func (d *decoder) Close() error {
	d.closed = true
	d.ep.Reset()
	return nil
}

// infer encodes pcm as WAV and POSTs it to /inference as multipart/form-data.
func (d *decoder) infer(ctx context.Context, pcm []byte) (string, error) {
	wav := audio.EncodeWAV(pcm, d.cfg.SampleRate, d.cfg.Channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if d.cfg.Language != "" {
		if err := mw.WriteField("language", d.cfg.Language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if d.p.model != "" {
		if err := mw.WriteField("model", d.p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
