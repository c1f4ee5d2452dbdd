package llm

import (
	"context"
)

// MockClient is a configurable mock for testing LLM-backed components.
// Set the function field to control behavior in tests.
type MockClient struct {
	// CompleteJSONFunc is called when CompleteJSON is invoked.
	// If nil, returns an empty object and nil error.
	CompleteJSONFunc func(ctx context.Context, prompt Prompt) (map[string]any, error)

	// Call tracking for verification
	CompleteJSONCalls int
	LastPrompt        Prompt
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CompleteJSON implements Client.
func (m *MockClient) CompleteJSON(ctx context.Context, prompt Prompt) (map[string]any, error) {
	m.CompleteJSONCalls++
	m.LastPrompt = prompt
	if m.CompleteJSONFunc != nil {
		return m.CompleteJSONFunc(ctx, prompt)
	}
	return map[string]any{}, nil
}
