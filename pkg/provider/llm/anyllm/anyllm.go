// Package anyllm provides an LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-vendor client.
//
// Groq is the receptionist's default backend: its hosted Llama models answer
// short phone-call turns with low latency.
//
//	p, err := anyllm.NewGroq("", anyllmlib.WithAPIKey("gsk_..."))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// DefaultGroqModel is used when the groq backend is configured without a model.
const DefaultGroqModel = "llama-3.3-70b-versatile"

// ErrEmptyReply is returned when the backend answers without any text.
var ErrEmptyReply = errors.New("anyllm: empty reply")

type backendFunc func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

var backends = map[string]backendFunc{
	"groq":      wrap(groq.New),
	"openai":    wrap(anyllmoai.New),
	"anthropic": wrap(anthropic.New),
	"gemini":    wrap(gemini.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"llamacpp":  wrap(llamacpp.New),
}

// Backends lists the accepted backend names in sorted order.
var Backends = slices.Sorted(maps.Keys(backends))

var _ llm.Provider = (*Provider)(nil)

// Provider implements [llm.Provider] on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a Provider for the named backend. Without an API key option the
// backend falls back to its usual environment variable (GROQ_API_KEY,
// OPENAI_API_KEY and so on). An empty model is only accepted for groq.
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(backendName)
	newBackend, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)", backendName, strings.Join(Backends, ", "))
	}
	if model == "" {
		if name != "groq" {
			return nil, fmt.Errorf("anyllm: %s: model must not be empty", name)
		}
		model = DefaultGroqModel
	}

	backend, err := newBackend(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{backend: backend, name: name, model: model}, nil
}

// NewGroq creates a Provider backed by Groq.
func NewGroq(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, opts...)
}

// Name returns the backend name.
func (p *Provider) Name() string { return p.name }

// Model returns the model requests are sent to.
func (p *Provider) Model() string { return p.model }

// Complete implements [llm.Provider]. The reply text is trimmed; a reply with
// no text is reported as [ErrEmptyReply].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anyllm: no messages")
	}

	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", ErrEmptyReply, p.name)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if content == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyReply, p.name)
	}

	out := &llm.CompletionResponse{Content: content}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// params always sets Temperature so that extraction's 0.0 reaches the
// backend instead of its default.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, message(m))
	}

	temp := req.Temperature
	params := anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    msgs,
		Temperature: &temp,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

func message(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: string(m.Role), Content: m.Content}
}
