package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"
	_ "time/tzdata" // booking.timezone must resolve on hosts without a zoneinfo database

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/frontdesk/internal/booking"
)

// DefaultPath is the config file read when no -config flag is given.
const DefaultPath = "frontdesk.yaml"

// ValidProviderNames lists the built-in provider names per kind.
// [Validate] warns about names outside this list.
var ValidProviderNames = map[string][]string{
	"llm":      {"groq", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "llamacpp", "openai-compatible"},
	"stt":      {"whisper", "whisper-native", "deepgram"},
	"tts":      {"mimic3", "elevenlabs"},
	"calendar": {"google"},
}

// Load reads the YAML file at path, applies defaults, and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults, and validates the
// result. Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with the stock receptionist setup:
// Groq for replies, a local whisper server, Mimic 3, and Google Calendar.
func ApplyDefaults(cfg *Config) {
	def := booking.DefaultConfig()

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Business.Name == "" {
		cfg.Business.Name = booking.DefaultBusinessName
	}

	p := &cfg.Providers
	if p.LLM.Name == "" {
		p.LLM.Name = "groq"
	}
	if p.LLM.Name == "groq" && p.LLM.Model == "" {
		p.LLM.Model = "llama-3.3-70b-versatile"
	}
	if p.STT.Name == "" {
		p.STT.Name = "whisper"
	}
	if p.TTS.Name == "" {
		p.TTS.Name = "mimic3"
	}
	if p.Calendar.Name == "" {
		p.Calendar.Name = "google"
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = 16000
	}
	if a.BlockSize == 0 {
		a.BlockSize = 8000
	}
	if a.Input == "" {
		a.Input = InputFFmpeg
	}
	if a.Player == "" {
		a.Player = PlayerFFplay
	}

	b := &cfg.Booking
	if len(b.Keywords) == 0 {
		b.Keywords = def.Keywords
	}
	if b.DurationMinutes == 0 {
		b.DurationMinutes = def.DurationMinutes
	}
	if b.TimeZone == "" {
		b.TimeZone = def.TimeZone
	}
	if b.Summary == "" {
		b.Summary = "Meeting with " + cfg.Business.Name
	}
	if b.Rollover == "" {
		b.Rollover = def.Rollover.String()
	}
}

// Validate checks that cfg is coherent. All failures are joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for kind, entry := range map[string]*ProviderEntry{
		"llm": &cfg.Providers.LLM, "stt": &cfg.Providers.STT,
		"tts": &cfg.Providers.TTS, "calendar": &cfg.Providers.Calendar,
		"llm_fallback": cfg.Providers.LLMFallback, "tts_fallback": cfg.Providers.TTSFallback,
	} {
		if entry == nil {
			continue
		}
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
			continue
		}
		validateProviderName(kind, entry.Name)
	}

	a := cfg.Audio
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 48000]", a.SampleRate))
	}
	if a.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", a.BlockSize))
	}
	if a.Input != InputFFmpeg && a.Input != InputStdin {
		errs = append(errs, fmt.Errorf("audio.input %q is invalid; valid values: ffmpeg, stdin", a.Input))
	}
	if a.Player != PlayerFFplay && a.Player != PlayerNone {
		errs = append(errs, fmt.Errorf("audio.player %q is invalid; valid values: ffplay, none", a.Player))
	}
	if a.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_capacity %d must not be negative", a.QueueCapacity))
	}

	b := cfg.Booking
	if b.DurationMinutes <= 0 {
		errs = append(errs, fmt.Errorf("booking.duration_minutes %d must be positive", b.DurationMinutes))
	}
	if _, err := time.LoadLocation(b.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("booking.timezone %q: %w", b.TimeZone, err))
	}
	if _, err := booking.ParseRollover(b.Rollover); err != nil {
		errs = append(errs, fmt.Errorf("booking.rollover: %w", err))
	}
	if b.MaxDateTimeAttempts < 0 {
		errs = append(errs, fmt.Errorf("booking.max_datetime_attempts %d must not be negative", b.MaxDateTimeAttempts))
	}
	if b.MaxEmailAttempts < 0 {
		errs = append(errs, fmt.Errorf("booking.max_email_attempts %d must not be negative", b.MaxEmailAttempts))
	}
	for name, g := range map[string]GenConfig{"reply": b.Reply, "extraction": b.Extraction} {
		if g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
			errs = append(errs, fmt.Errorf("booking.%s.temperature %.2f is out of range [0, 2]", name, *g.Temperature))
		}
		if g.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("booking.%s.max_tokens %d must not be negative", name, g.MaxTokens))
		}
	}
	for i, kw := range b.Keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("booking.keywords[%d] must not be empty", i))
		}
	}

	if cfg.Ledger.PostgresDSN == "" {
		slog.Debug("ledger.postgres_dsn is empty; turns and bookings will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is not a built-in provider of kind.
func validateProviderName(kind, name string) {
	switch kind {
	case "llm_fallback":
		kind = "llm"
	case "tts_fallback":
		kind = "tts"
	}
	known := ValidProviderNames[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
