// Package mimic3 provides a TTS provider for a local Mycroft Mimic 3 server.
//
// Synthesis is a GET /api/tts request with the text and voice settings as
// query parameters; the server answers with a WAV file.
//
//	p, err := mimic3.New("http://localhost:59125", mimic3.WithVoice("en_US/vctk_low#p239"))
//	wav, err := p.Synthesize(ctx, "Hello from BuildABrand.")
package mimic3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	// DefaultURL is where mimic3-server listens out of the box.
	DefaultURL = "http://localhost:59125"

	apiTTSEndpoint    = "/api/tts"
	apiVoicesEndpoint = "/api/voices"
	defaultTimeout    = 30 * time.Second
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithVoice selects a voice key such as "en_US/vctk_low#p239". Empty uses the
// server default.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithLengthScale slows (>1) or speeds up (<1) speech.
func WithLengthScale(v float64) Option {
	return func(p *Provider) { p.lengthScale = v }
}

// WithNoiseScale sets the voice variability.
func WithNoiseScale(v float64) Option {
	return func(p *Provider) { p.noiseScale = v }
}

// WithTimeout sets the HTTP timeout per request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// Provider implements tts.Provider against a Mimic 3 server.
type Provider struct {
	serverURL   string
	voice       string
	lengthScale float64
	noiseScale  float64
	httpClient  *http.Client
}

// New returns a Provider for the server at serverURL. An empty URL uses [DefaultURL].
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("mimic3: invalid server URL %q: %w", serverURL, err)
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("mimic3: text must not be empty")
	}

	params := url.Values{}
	params.Set("text", text)
	if p.voice != "" {
		params.Set("voice", p.voice)
	}
	if p.lengthScale > 0 {
		params.Set("lengthScale", strconv.FormatFloat(p.lengthScale, 'f', -1, 64))
	}
	if p.noiseScale > 0 {
		params.Set("noiseScale", strconv.FormatFloat(p.noiseScale, 'f', -1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mimic3: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mimic3: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("mimic3: GET %s returned status %d: %s", apiTTSEndpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mimic3: read WAV response: %w", err)
	}
	if _, err := audio.ParseWAV(wav); err != nil {
		return nil, fmt.Errorf("mimic3: %w", err)
	}
	return wav, nil
}

// Voice describes one entry of the server's voice catalogue.
type Voice struct {
	Key      string `json:"key"`
	Language string `json:"language"`
	Name     string `json:"name"`
}

// ListVoices returns the server's voice catalogue. The ops server's /readyz
// calls it to check that the server is reachable.
func (p *Provider) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiVoicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("mimic3: create voices request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mimic3: GET %s: %w", apiVoicesEndpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mimic3: GET %s returned status %d", apiVoicesEndpoint, resp.StatusCode)
	}
	var voices []Voice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("mimic3: decode voices: %w", err)
	}
	return voices, nil
}
