package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

// NewClient selects the transport for the configured provider. An empty API
// key selects the offline echo client so the service stays usable in local
// development and tests without credentials.
func NewClient(cfg config.LLMConfig, apiKey string, logger *zap.Logger) (Client, error) {
	if apiKey == "" {
		logger.Info("LLM_API_KEY not set, using echo client",
			zap.String("provider", cfg.Provider))
		return NewEchoClient(logger), nil
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClient(apiKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, logger), nil
	case "anthropic":
		return NewAnthropicClient(apiKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
