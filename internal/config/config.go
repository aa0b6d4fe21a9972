// Package config provides the configuration schema, loader, hot-reload
// watcher, and provider registry for the frontdesk receptionist.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrWong99/frontdesk/internal/booking"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Input selects the capture source.
type Input string

const (
	InputFFmpeg Input = "ffmpeg"
	InputStdin  Input = "stdin"
)

// Player selects the playback sink.
type Player string

const (
	PlayerFFplay Player = "ffplay"
	PlayerNone   Player = "none"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Business  BusinessConfig  `yaml:"business"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Booking   BookingConfig   `yaml:"booking"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

// ServerConfig holds the observability listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /metrics, /healthz and /readyz. Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// BusinessConfig names the business the receptionist answers for.
type BusinessConfig struct {
	Name string `yaml:"name"`

	// SystemPrompt seeds the chat history. Empty uses the stock receptionist
	// prompt for Name.
	SystemPrompt string `yaml:"system_prompt"`
}

// ProvidersConfig selects the collaborator implementations. Each entry names
// a factory registered in the [Registry].
type ProvidersConfig struct {
	LLM         ProviderEntry  `yaml:"llm"`
	LLMFallback *ProviderEntry `yaml:"llm_fallback"`
	STT         ProviderEntry  `yaml:"stt"`
	TTS         ProviderEntry  `yaml:"tts"`
	TTSFallback *ProviderEntry `yaml:"tts_fallback"`
	Calendar    ProviderEntry  `yaml:"calendar"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "groq", "mimic3").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// String returns the option key as a string, or "" when absent.
func (e ProviderEntry) String(key string) string {
	switch v := e.Options[key].(type) {
	case string:
		return v
	case int, float64, bool:
		return fmt.Sprint(v)
	}
	return ""
}

// Float returns the option key as a float64. ok is false when the key is
// absent or not numeric.
func (e ProviderEntry) Float(key string) (v float64, ok bool) {
	switch n := e.Options[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Int returns the option key as an int. ok is false when the key is absent or
// not an integer.
func (e ProviderEntry) Int(key string) (v int, ok bool) {
	switch n := e.Options[key].(type) {
	case int:
		return n, true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// Duration returns the option key parsed with time.ParseDuration.
func (e ProviderEntry) Duration(key string) (time.Duration, bool) {
	s := e.String(key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	return d, err == nil
}

// AudioConfig describes capture, playback, and the hand-off queue.
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	BlockSize  int    `yaml:"block_size"`
	Input      Input  `yaml:"input"`
	Device     string `yaml:"device"`
	Player     Player `yaml:"player"`
	Language   string `yaml:"language"`

	// QueueCapacity bounds the chunk queue. Zero means unbounded.
	QueueCapacity int `yaml:"queue_capacity"`
}

// GenConfig holds language-model sampling parameters.
type GenConfig struct {
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// BookingConfig tunes the booking dialogue.
type BookingConfig struct {
	Keywords            []string  `yaml:"keywords"`
	DurationMinutes     int       `yaml:"duration_minutes"`
	TimeZone            string    `yaml:"timezone"`
	Summary             string    `yaml:"summary"`
	Rollover            string    `yaml:"rollover"`
	MaxDateTimeAttempts int       `yaml:"max_datetime_attempts"`
	MaxEmailAttempts    int       `yaml:"max_email_attempts"`
	Reply               GenConfig `yaml:"reply"`
	Extraction          GenConfig `yaml:"extraction"`
}

// LedgerConfig configures optional persistence of turns and bookings.
type LedgerConfig struct {
	// PostgresDSN enables the PostgreSQL ledger. Empty disables persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Machine converts the booking section into a [booking.Config]. Call it
// after [ApplyDefaults].
func (c *Config) Machine() (booking.Config, error) {
	rollover, err := booking.ParseRollover(c.Booking.Rollover)
	if err != nil {
		return booking.Config{}, fmt.Errorf("config: booking.rollover: %w", err)
	}
	mc := booking.DefaultConfig()
	mc.Keywords = append([]string(nil), c.Booking.Keywords...)
	mc.DurationMinutes = c.Booking.DurationMinutes
	mc.TimeZone = c.Booking.TimeZone
	mc.Summary = c.Booking.Summary
	mc.Rollover = rollover
	mc.MaxDateTimeAttempts = c.Booking.MaxDateTimeAttempts
	mc.MaxEmailAttempts = c.Booking.MaxEmailAttempts
	mc.Reply = genParams(c.Booking.Reply, mc.Reply)
	mc.Extraction = genParams(c.Booking.Extraction, mc.Extraction)
	return mc, nil
}

// SystemPrompt returns the configured prompt or the stock one.
func (c *Config) SystemPrompt() string {
	if c.Business.SystemPrompt != "" {
		return c.Business.SystemPrompt
	}
	return booking.DefaultSystemPrompt(c.Business.Name)
}

func genParams(g GenConfig, def booking.GenParams) booking.GenParams {
	if g.Temperature != nil {
		def.Temperature = *g.Temperature
	}
	if g.MaxTokens > 0 {
		def.MaxTokens = g.MaxTokens
	}
	return def
}
