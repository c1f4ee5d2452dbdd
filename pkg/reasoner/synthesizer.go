package reasoner

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
	"github.com/isaqe-io/isaqe-engine/pkg/llm"
	"github.com/isaqe-io/isaqe-engine/pkg/logging"
	"github.com/isaqe-io/isaqe-engine/pkg/prompts"
	"github.com/isaqe-io/isaqe-engine/pkg/retry"
)

const synthesizerSystemPrompt = `You write short, human-friendly summaries of SQL query results. ` +
	`Use only the provided rows; never invent values that are not present in them. ` +
	`Respond with strict JSON only, no prose, of the shape ` +
	`{"response": string, "highlights": [string]}.`

// Synthesizer turns executed rows into a natural-language answer, retrying
// transient LLM failures within its configured budget.
type Synthesizer struct {
	client    llm.Client
	resources *prompts.Resources
	retryCfg  *retry.Config
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer with the given retry budget.
func NewSynthesizer(client llm.Client, resources *prompts.Resources, budget config.RetryConfig, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		client:    client,
		resources: resources,
		retryCfg:  retry.FromBudget(budget.Attempts, budget.BackoffSeconds),
		logger:    logger.Named("synthesizer"),
	}
}

// Synthesize produces the user-facing answer text for the executed query.
// The model reply must pass schema validation; a missing response field
// yields an empty answer rather than an error.
func (s *Synthesizer) Synthesize(ctx context.Context, query, sql string, rows []map[string]any, metadata any) (string, error) {
	prompt, err := s.buildPrompt(query, sql, rows, metadata)
	if err != nil {
		return "", err
	}

	raw, err := retry.DoWithResult(ctx, s.retryCfg, func() (map[string]any, error) {
		return s.client.CompleteJSON(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("synthesizer: %w", err)
	}

	if err := s.resources.SynthesizerValidator.Validate(raw); err != nil {
		if snippet, merr := json.Marshal(raw); merr == nil {
			s.logger.Debug("synthesizer reply failed schema validation",
				zap.String("reply", logging.TruncateString(string(snippet), 512)))
		}
		return "", fmt.Errorf("%w: %s", apperrors.ErrSynthesizerInvalidSchema, prompts.ValidationDetails(err))
	}

	response, _ := raw["response"].(string)
	s.logger.Debug("synthesizer output accepted", zap.Int("answer_len", len(response)))
	return response, nil
}

func (s *Synthesizer) buildPrompt(query, sql string, rows []map[string]any, metadata any) (llm.Prompt, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: synthesizerSystemPrompt}}

	for _, ex := range s.resources.Examples.SynthesizerExamples {
		user, err := json.Marshal(map[string]any{
			"query":    ex.UserQuery,
			"sql":      ex.SQL,
			"rows":     ex.Rows,
			"metadata": ex.Metadata,
		})
		if err != nil {
			return llm.Prompt{}, fmt.Errorf("encode synthesizer example: %w", err)
		}
		assistant, err := json.Marshal(map[string]any{
			"response":   ex.ExpectedOutput,
			"highlights": []string{},
		})
		if err != nil {
			return llm.Prompt{}, fmt.Errorf("encode synthesizer example output: %w", err)
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: string(user)},
			llm.Message{Role: llm.RoleAssistant, Content: string(assistant)},
		)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	user, err := json.Marshal(map[string]any{
		"query":    query,
		"sql":      sql,
		"rows":     rows,
		"metadata": metadata,
	})
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("encode synthesizer request: %w", err)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: string(user)})

	return llm.Prompt{Messages: messages}, nil
}
