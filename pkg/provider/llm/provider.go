// Package llm defines the Provider interface for the generation collaborator.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// interface for the colloquy conversation engine to request utterances
// without coupling to any specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled a method must return as
// quickly as possible.
package llm

import (
	"context"

	"github.com/MrWong99/colloquy/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce an utterance.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message drives
	// the response.
	Messages []types.Message

	// SystemPrompt is a high-priority instruction injected before the
	// conversation history (the agent's personality, stance, and register).
	// Providers that lack a dedicated system field should prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is the full model reply for one request.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any generation backend. Latency is
// unbounded; callers must time-box every call with a context deadline.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives. Connection and model-not-found failures surface
	// here; the conversation engine owns the retry policy.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens the given message list would
	// consume in the model's context window. Used to bound the history window
	// before sending a request. The result need not be exact but should not
	// undercount.
	CountTokens(messages []types.Message) (int, error)
}
