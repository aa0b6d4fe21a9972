package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/frontdesk/internal/app"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/resilience"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
	"github.com/MrWong99/frontdesk/pkg/provider/calendar/google"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/anyllm"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/openai"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/provider/stt/deepgram"
	"github.com/MrWong99/frontdesk/pkg/provider/stt/whisper"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
	"github.com/MrWong99/frontdesk/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/frontdesk/pkg/provider/tts/mimic3"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm backend takes an optional APIKey and BaseURL. Local
	// servers (ollama, llamacpp) simply leave the key empty.
	for _, backend := range anyllm.Backends {
		reg.RegisterLLM(backend, func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// openai-compatible talks to any server implementing the chat completions
	// API through the official SDK.
	reg.RegisterLLM("openai-compatible", func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.String("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(_ context.Context, entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.String("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms, ok := entry.Int("silence_threshold_ms"); ok {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms, ok := entry.Int("max_buffer_duration_ms"); ok {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		if rms, ok := entry.Float("rms_threshold"); ok {
			opts = append(opts, whisper.WithRMSThreshold(rms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(_ context.Context, entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.String("model_path")
		if modelPath == "" {
			modelPath = entry.Model
		}
		var opts []whisper.NativeOption
		if lang := entry.String("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if ms, ok := entry.Int("silence_threshold_ms"); ok {
			opts = append(opts, whisper.WithNativeSilenceThresholdMs(ms))
		}
		if ms, ok := entry.Int("max_buffer_duration_ms"); ok {
			opts = append(opts, whisper.WithNativeMaxBufferDurationMs(ms))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(_ context.Context, entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.String("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms, ok := entry.Int("endpointing_ms"); ok {
			opts = append(opts, deepgram.WithEndpointingMs(ms))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("mimic3", func(_ context.Context, entry config.ProviderEntry) (tts.Provider, error) {
		var opts []mimic3.Option
		if voice := entry.String("voice"); voice != "" {
			opts = append(opts, mimic3.WithVoice(voice))
		}
		if v, ok := entry.Float("length_scale"); ok {
			opts = append(opts, mimic3.WithLengthScale(v))
		}
		if v, ok := entry.Float("noise_scale"); ok {
			opts = append(opts, mimic3.WithNoiseScale(v))
		}
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, mimic3.WithTimeout(d))
		}
		return mimic3.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(_ context.Context, entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := entry.String("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, entry.String("voice_id"), opts...)
	})

	// ── Calendar ──────────────────────────────────────────────────────────────

	reg.RegisterCalendar("google", func(ctx context.Context, entry config.ProviderEntry) (calendar.Scheduler, error) {
		var opts []google.Option
		if p := entry.String("credentials_file"); p != "" {
			opts = append(opts, google.WithCredentialsFile(p))
		}
		if p := entry.String("token_file"); p != "" {
			opts = append(opts, google.WithTokenFile(p))
		}
		if id := entry.String("calendar_id"); id != "" {
			opts = append(opts, google.WithCalendarID(id))
		}
		return google.New(ctx, opts...)
	})
}

// buildProviders instantiates the configured providers from the registry.
// The returned func releases providers that hold local resources.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, func(), error) {
	var closers []io.Closer
	cleanup := func() { closeAll(closers) }
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	p := &app.Providers{}
	var errs []error

	// LLM, with an optional fallback.
	primaryLLM, err := reg.CreateLLM(ctx, cfg.Providers.LLM)
	if err != nil {
		errs = append(errs, err)
	} else {
		primaryLLM = observe.InstrumentLLM(primaryLLM, cfg.Providers.LLM.Name, m)
		p.LLM = primaryLLM
		if fb := cfg.Providers.LLMFallback; fb != nil && fb.Name != "" {
			secondary, err := reg.CreateLLM(ctx, *fb)
			if err != nil {
				errs = append(errs, err)
			} else {
				group := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
				group.AddFallback(fb.Name, observe.InstrumentLLM(secondary, fb.Name, m))
				p.LLM = group
			}
		}
	}

	// STT. The language defaults to audio.language unless the entry sets one.
	sttEntry := cfg.Providers.STT
	if sttEntry.String("language") == "" && cfg.Audio.Language != "" {
		sttEntry.Options = maps.Clone(sttEntry.Options)
		if sttEntry.Options == nil {
			sttEntry.Options = map[string]any{}
		}
		sttEntry.Options["language"] = cfg.Audio.Language
	}
	if s, err := reg.CreateSTT(ctx, sttEntry); err != nil {
		errs = append(errs, err)
	} else {
		track(s)
		p.STT = s
	}

	// TTS, with an optional fallback.
	primaryTTS, err := reg.CreateTTS(ctx, cfg.Providers.TTS)
	if err != nil {
		errs = append(errs, err)
	} else {
		if c, ok := ttsCheck(primaryTTS); ok {
			p.Checkers = append(p.Checkers, c)
		}
		primaryTTS = observe.InstrumentTTS(primaryTTS, cfg.Providers.TTS.Name, m)
		p.TTS = primaryTTS
		if fb := cfg.Providers.TTSFallback; fb != nil && fb.Name != "" {
			secondary, err := reg.CreateTTS(ctx, *fb)
			if err != nil {
				errs = append(errs, err)
			} else {
				group := resilience.NewTTSFallback(primaryTTS, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
				group.AddFallback(fb.Name, observe.InstrumentTTS(secondary, fb.Name, m))
				p.TTS = group
			}
		}
	}

	if s, err := reg.CreateCalendar(ctx, cfg.Providers.Calendar); err != nil {
		errs = append(errs, err)
	} else {
		p.Calendar = observe.InstrumentScheduler(s, cfg.Providers.Calendar.Name, m)
	}

	if err := errors.Join(errs...); err != nil {
		cleanup()
		return nil, func() {}, err
	}

	switch cfg.Audio.Input {
	case config.InputStdin:
		p.Source = audio.NewReaderSource(os.Stdin, cfg.Audio.BlockSize)
	case config.InputFFmpeg:
		p.Source = &audio.FFmpegSource{
			Device:      cfg.Audio.Device,
			SampleRate:  cfg.Audio.SampleRate,
			BlockFrames: cfg.Audio.BlockSize,
		}
	default:
		cleanup()
		return nil, func() {}, fmt.Errorf("unsupported audio input %q", cfg.Audio.Input)
	}

	switch cfg.Audio.Player {
	case config.PlayerNone:
		p.Sink = audio.DiscardSink{}
	default:
		p.Sink = &audio.FFplaySink{}
	}

	slog.Info("providers ready",
		"llm", cfg.Providers.LLM.Name,
		"stt", cfg.Providers.STT.Name,
		"tts", cfg.Providers.TTS.Name,
		"calendar", cfg.Providers.Calendar.Name,
		"input", cfg.Audio.Input,
		"player", cfg.Audio.Player,
	)
	return p, cleanup, nil
}

// ttsCheck returns a readiness probe for TTS backends with a voice catalogue.
func ttsCheck(p tts.Provider) (health.Checker, bool) {
	switch v := p.(type) {
	case *mimic3.Provider:
		return health.CatalogCheck("tts", v.ListVoices), true
	case *elevenlabs.Provider:
		return health.CatalogCheck("tts", v.ListVoices), true
	}
	return health.Checker{}, false
}
