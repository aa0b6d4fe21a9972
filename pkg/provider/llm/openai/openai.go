// Package openai provides an [llm.Provider] for any server that implements
// the OpenAI chat completions API: the hosted OpenAI service, or a local
// llama.cpp, vLLM or LM Studio server selected with [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// ErrEmptyReply is returned when the server answers without any text.
var ErrEmptyReply = errors.New("openai: empty reply")

// localAPIKey is sent to compatible servers that were configured without a
// key. Most of them ignore the Authorization header.
const localAPIKey = "none"

var _ llm.Provider = (*Provider)(nil)

// Provider implements [llm.Provider] over chat completions.
type Provider struct {
	client oai.Client
	model  string
}

type settings struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the provider at a compatible server instead of the
// hosted API.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sets the OpenAI organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New returns a provider for model. apiKey may only be empty together with
// [WithBaseURL].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	var s settings
	for _, o := range opts {
		o(&s)
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	if apiKey == "" {
		if s.baseURL == "" {
			return nil, errors.New("openai: api key is required for the hosted API")
		}
		apiKey = localAPIKey
	}
	return &Provider{client: oai.NewClient(s.requestOptions(apiKey)...), model: model}, nil
}

func (s settings) requestOptions(apiKey string) []option.RequestOption {
	out := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		out = append(out, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		out = append(out, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		out = append(out, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}
	return out
}

// Complete implements [llm.Provider]. The reply text is trimmed; a reply with
// no text is reported as [ErrEmptyReply] together with the finish reason.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrEmptyReply)
	}
	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: finish reason %q", ErrEmptyReply, choice.FinishReason)
	}

	return &llm.CompletionResponse{
		Content: content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// params builds the request body. max_tokens is used rather than
// max_completion_tokens because compatible servers only understand the former.
func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: no messages")
	}

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := message(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    msgs,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func message(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case types.RoleUser:
		return oai.UserMessage(m.Content), nil
	case types.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}
