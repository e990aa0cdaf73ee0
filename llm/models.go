// Package llm provides the generation-service abstraction: a small set of
// chat-completion providers behind one interface, and a single-shot client
// used by every component that needs text or JSON synthesized.
package llm

// ChatMessage is a role-tagged message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// Response is a provider response.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// ResponseFormatType defines how the provider should shape its output.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
)

// ResponseFormat requests a specific output shape from providers that
// support it; providers without native support ignore it.
type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`
}
