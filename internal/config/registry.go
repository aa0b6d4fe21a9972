package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its configuration entry.
type Factory[T any] func(ctx context.Context, entry ProviderEntry) (T, error)

// factories is one provider kind's name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(ctx context.Context, entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(ctx, entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s provider %q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	names := make([]string, 0, len(f.m))
	for n := range f.m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Registry maps provider names to their constructors for each provider kind.
// It is safe for concurrent use. Registering a name twice overwrites the
// earlier factory.
type Registry struct {
	mu       sync.RWMutex
	llm      factories[llm.Provider]
	stt      factories[stt.Provider]
	tts      factories[tts.Provider]
	calendar factories[calendar.Scheduler]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:      newFactories[llm.Provider]("llm"),
		stt:      newFactories[stt.Provider]("stt"),
		tts:      newFactories[tts.Provider]("tts"),
		calendar: newFactories[calendar.Scheduler]("calendar"),
	}
}

// RegisterLLM registers a language-model factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

// RegisterSTT registers a speech-recognizer factory under name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterTTS registers a speech-synthesis factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = f
}

// RegisterCalendar registers a scheduler factory under name.
func (r *Registry) RegisterCalendar(name string, f Factory[calendar.Scheduler]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calendar.m[name] = f
}

// CreateLLM instantiates the language model named by entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(ctx context.Context, entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(ctx, entry)
}

// CreateSTT instantiates the speech recognizer named by entry.Name.
func (r *Registry) CreateSTT(ctx context.Context, entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(ctx, entry)
}

// CreateTTS instantiates the speech synthesizer named by entry.Name.
func (r *Registry) CreateTTS(ctx context.Context, entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(ctx, entry)
}

// CreateCalendar instantiates the scheduler named by entry.Name.
func (r *Registry) CreateCalendar(ctx context.Context, entry ProviderEntry) (calendar.Scheduler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calendar.create(ctx, entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"llm":      r.llm.names(),
		"stt":      r.stt.names(),
		"tts":      r.tts.names(),
		"calendar": r.calendar.names(),
	}
}
