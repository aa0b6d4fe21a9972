// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/frontdesk/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings.
// The model is loaded once and shared by every decoder; each decoder creates
// its own inference context per segment.
type NativeProvider struct {
	model        whisperlib.Model
	language     string
	silenceMs    int
	maxSegmentMs int
	rmsThreshold float64
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the transcription language. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSilenceThresholdMs sets the trailing silence that closes a segment.
func WithNativeSilenceThresholdMs(ms int) NativeOption {
	return func(p *NativeProvider) { p.silenceMs = ms }
}

// WithNativeMaxBufferDurationMs caps a segment during continuous speech.
func WithNativeMaxBufferDurationMs(ms int) NativeOption {
	return func(p *NativeProvider) { p.maxSegmentMs = ms }
}

// NewNative loads the ggml model at modelPath. The caller must Close the
// provider when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{
		model:        model,
		language:     defaultLanguage,
		silenceMs:    stt.DefaultSilenceMs,
		maxSegmentMs: stt.DefaultMaxSegmentMs,
		rmsThreshold: stt.DefaultRMSThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// NewDecoder implements stt.Provider.
func (p *NativeProvider) NewDecoder(ctx context.Context, cfg stt.StreamConfig) (stt.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	cfg = withDefaults(cfg, p.language)

	ep := stt.NewEndpointer(cfg.SampleRate, cfg.Channels)
	ep.Threshold = p.rmsThreshold
	ep.SilenceMs = p.silenceMs
	ep.MaxSegmentMs = p.maxSegmentMs

	return &nativeDecoder{model: p.model, cfg: cfg, ep: ep}, nil
}

type nativeDecoder struct {
	model  whisperlib.Model
	cfg    stt.StreamConfig
	ep     *stt.Endpointer
	result string
	closed bool
}

// AcceptWaveform implements stt.Decoder.
func (d *nativeDecoder) AcceptWaveform(ctx context.Context, chunk []byte) (bool, error) {
	if d.closed {
		return false, stt.ErrClosed
	}
	segment, done := d.ep.Push(chunk)
	if !done {
		return false, nil
	}
	d.result = ""
	if err := ctx.Err(); err != nil {
		return false, err
	}
	text, err := d.infer(segment)
	if err != nil {
		return false, err
	}
	d.result = text
	return true, nil
}

// Result implements stt.Decoder.
func (d *nativeDecoder) Result() string { return d.result }

// Close implements stt.Decoder.
func (d *nativeDecoder) Close() error {
	d.closed = true
	d.ep.Reset()
	return nil
}

// infer runs whisper.cpp over pcm with a fresh context and joins the segments.
func (d *nativeDecoder) infer(pcm []byte) (string, error) {
	samples := modelSamples(pcm, d.cfg.Channels, d.cfg.SampleRate)

	wctx, err := d.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(d.cfg.Language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", d.cfg.Language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
