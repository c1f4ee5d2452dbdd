package llm

import (
	"context"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient talks to the Anthropic messages API. System turns are
// folded into the request's System field; the JSON object is extracted from
// the reply text, tolerating prose or code fences around it.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewAnthropicClient creates an Anthropic-backed client.
func NewAnthropicClient(apiKey, model string, temperature float64, maxTokens int, logger *zap.Logger) *AnthropicClient {
	return &AnthropicClient{
		client:      anthropic.NewClient(apiKey),
		model:       model,
		temperature: float32(temperature),
		maxTokens:   maxTokens,
		logger:      logger.Named("llm_anthropic"),
	}
}

// CompleteJSON implements Client.
func (c *AnthropicClient) CompleteJSON(ctx context.Context, prompt Prompt) (map[string]any, error) {
	var system string
	messages := make([]anthropic.Message, 0, len(prompt.Messages))

	for _, m := range prompt.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			text := m.Content
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
			})
		default:
			text := m.Content
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
			})
		}
	}

	temperature := c.temperature
	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      system,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	text := firstTextBlock(resp)
	if text == "" {
		return nil, NewError(ErrorTypeFormat, "no text content in response", true, nil)
	}

	c.logger.Debug("LLM request completed",
		zap.String("model", c.model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return decodeObject(text)
}

func firstTextBlock(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
