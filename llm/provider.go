// Generation-service provider interface. Each implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider is the abstract interface for chat-completion backends.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (Response, error)

	// ChatWithFormat sends a chat completion request with a response format
	// hint. Providers without native format support fall back to Chat.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error)
}
