// Package llm provides chat-completion clients that return strict JSON
// objects, plus an offline echo implementation for tests and keyless runs.
package llm

import (
	"context"
)

// Chat roles shared by all transports.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the transport-independent request shape.
type Prompt struct {
	Messages []Message `json:"messages"`
}

// Client defines the single operation the pipeline needs from a language
// model: send a chat prompt, receive one decoded JSON object.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// CompleteJSON sends the prompt and returns the reply as a JSON object.
	// Values in the returned map are canonical encoding/json types.
	CompleteJSON(ctx context.Context, prompt Prompt) (map[string]any, error)
}

// Ensure every transport implements Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*EchoClient)(nil)
	_ Client = (*MockClient)(nil)
)
