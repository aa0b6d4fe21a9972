// Package llm defines the Provider interface for language-model backends.
//
// The receptionist uses a model in two ways: free-form replies generated from
// the running chat history, and a constrained JSON-only extraction of booking
// slots. Both go through the single [Provider.Complete] call; the caller picks
// the temperature and token budget per request.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/frontdesk/pkg/types"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message drives
	// the response.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. It is
	// always forwarded to the backend, so 0.0 requests greedy decoding rather
	// than the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt, when set, is sent as a leading system message ahead of
	// Messages.
	SystemPrompt string
}

// CompletionResponse is the result of a [Provider.Complete] call.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Complete must propagate context cancellation promptly and return an error
// for transport, quota, and empty-response failures. Callers map every error
// to a spoken apology; providers never need to synthesise fallback text.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
