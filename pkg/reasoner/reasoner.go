// Package reasoner drives the two LLM stages of the pipeline: schema
// reasoning over a slice, and result synthesis over executed rows. Both
// stages validate the model reply against a JSON schema before trusting it.
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
	"github.com/isaqe-io/isaqe-engine/pkg/schema"
)

const reasonerSystemPrompt = `You are a schema reasoning engine for a SQL analytics service. ` +
	`Given a user question and a schema slice, identify the relevant tables, the columns needed ` +
	`to answer the question, and the join path between them. ` +
	`Respond with strict JSON only, no prose, matching the reasoner output schema: ` +
	`{"query_intent": string, "relevant_tables": [string], "schema_context": {table: {"columns": [string]}}, ` +
	`"foreign_keys_map": [[table, column, foreign_table, foreign_column]], "performance_hints": [string]}. ` +
	`Never name a table or column that is not present in the schema slice.`

// TableContext lists the columns the reasoner selected for one table.
type TableContext struct {
	Columns []string `json:"columns"`
}

// Output is the validated reasoner reply.
type Output struct {
	QueryIntent      string                  `json:"query_intent"`
	RelevantTables   []string                `json:"relevant_tables"`
	SchemaContext    map[string]TableContext `json:"schema_context"`
	ForeignKeysMap   [][]string              `json:"foreign_keys_map"`
	PerformanceHints []string                `json:"performance_hints"`
}

// Reasoner turns a user query plus a schema slice into a structured query
// plan, retrying transient LLM failures within its configured budget.
type Reasoner struct {
	client    llm.Client
	resources *prompts.Resources
	retryCfg  *retry.Config
	logger    *zap.Logger
}

// NewReasoner creates a reasoner with the given retry budget.
func NewReasoner(client llm.Client, resources *prompts.Resources, budget config.RetryConfig, logger *zap.Logger) *Reasoner {
	return &Reasoner{
		client:    client,
		resources: resources,
		retryCfg:  retry.FromBudget(budget.Attempts, budget.BackoffSeconds),
		logger:    logger.Named("reasoner"),
	}
}

// Reason asks the model which parts of the slice answer the query. The reply
// must pass schema validation and stay within the bounds of the slice.
func (r *Reasoner) Reason(ctx context.Context, query string, slice *schema.Slice) (*Output, error) {
	prompt, err := r.buildPrompt(query, slice)
	if err != nil {
		return nil, err
	}

	raw, err := retry.DoWithResult(ctx, r.retryCfg, func() (map[string]any, error) {
		return r.client.CompleteJSON(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("reasoner: %w", err)
	}

	if err := r.resources.ReasonerValidator.Validate(raw); err != nil {
		if snippet, merr := json.Marshal(raw); merr == nil {
			r.logger.Debug("reasoner reply failed schema validation",
				zap.String("reply", logging.TruncateString(string(snippet), 512)))
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReasonerInvalidSchema, prompts.ValidationDetails(err))
	}

	out, err := decodeOutput(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrReasonerInvalidSchema, err)
	}

	if err := enforceBounds(out, slice); err != nil {
		return nil, err
	}

	r.logger.Debug("reasoner output accepted",
		zap.Int("relevant_tables", len(out.RelevantTables)),
		zap.Int("foreign_keys", len(out.ForeignKeysMap)))

	return out, nil
}

func (r *Reasoner) buildPrompt(query string, slice *schema.Slice) (llm.Prompt, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: reasonerSystemPrompt}}

	for _, ex := range r.resources.Examples.ReasonerExamples {
		user, err := json.Marshal(map[string]any{
			"query":        ex.UserQuery,
			"schema_slice": ex.SchemaSlice,
		})
		if err != nil {
			return llm.Prompt{}, fmt.Errorf("encode reasoner example: %w", err)
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: string(user)},
			llm.Message{Role: llm.RoleAssistant, Content: string(ex.ExpectedOutput)},
		)
	}

	user, err := json.Marshal(map[string]any{
		"query":        query,
		"schema_slice": slice,
	})
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("encode reasoner request: %w", err)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: string(user)})

	return llm.Prompt{Messages: messages}, nil
}

func decodeOutput(raw map[string]any) (*Output, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// enforceBounds runs after structural validation: every table the model named
// must be a slice table, and every column must belong to the table it was
// listed under.
func enforceBounds(out *Output, slice *schema.Slice) error {
	for _, table := range out.RelevantTables {
		if _, ok := slice.Tables[table]; !ok {
			return fmt.Errorf("%w: relevant table %q is not in the schema slice",
				apperrors.ErrReasonerOutOfBounds, table)
		}
	}

	for table, tctx := range out.SchemaContext {
		meta, ok := slice.Tables[table]
		if !ok {
			return fmt.Errorf("%w: schema_context table %q is not in the schema slice",
				apperrors.ErrReasonerOutOfBounds, table)
		}
		for _, col := range tctx.Columns {
			if !meta.Columns.Has(col) {
				return fmt.Errorf("%w: column %q is not part of table %q",
					apperrors.ErrReasonerOutOfBounds, col, table)
			}
		}
	}

	return nil
}
