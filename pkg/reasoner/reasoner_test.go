package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
	"github.com/isaqe-io/isaqe-engine/pkg/llm"
	"github.com/isaqe-io/isaqe-engine/pkg/prompts"
	"github.com/isaqe-io/isaqe-engine/pkg/schema"
)

const testReasonerSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["query_intent", "relevant_tables", "schema_context"],
	"properties": {
		"query_intent": {"type": "string"},
		"relevant_tables": {"type": "array", "items": {"type": "string"}},
		"schema_context": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["columns"],
				"properties": {"columns": {"type": "array", "items": {"type": "string"}}}
			}
		},
		"foreign_keys_map": {
			"type": "array",
			"items": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4}
		},
		"performance_hints": {"type": "array", "items": {"type": "string"}}
	}
}`

const testSynthesizerSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["response"],
	"properties": {
		"response": {"type": "string"},
		"highlights": {"type": "array", "items": {"type": "string"}}
	}
}`

const testExamples = `{
	"reasoner_examples": [
		{
			"user_query": "example question",
			"schema_slice": {"tables": {}, "foreign_keys": []},
			"expected_output": {"query_intent": "example", "relevant_tables": [], "schema_context": {}, "foreign_keys_map": [], "performance_hints": []}
		}
	],
	"synthesizer_examples": [
		{
			"user_query": "example question",
			"sql": "SELECT 1 FROM t LIMIT 1;",
			"rows": [{"n": 1}],
			"metadata": {"rows_returned": 1, "truncated": false},
			"expected_output": "There is one row."
		}
	]
}`

func testResources(t *testing.T) *prompts.Resources {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	res, err := prompts.Load(config.PromptsConfig{
		ExamplesPath:      write("examples.json", testExamples),
		ReasonerSchema:    write("reasoner_schema.json", testReasonerSchema),
		SynthesizerSchema: write("synthesizer_schema.json", testSynthesizerSchema),
	})
	require.NoError(t, err)
	return res
}

// obj decodes a JSON literal so mock replies carry canonical decoded types.
func obj(t *testing.T, literal string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(literal), &m))
	return m
}

func testSlice() *schema.Slice {
	claims := schema.NewColumns()
	claims.Set("claim_id", schema.ColumnMeta{DataType: "bigint", IsNotNull: true})
	claims.Set("customer_id", schema.ColumnMeta{DataType: "bigint", IsNotNull: true})
	claims.Set("status", schema.ColumnMeta{DataType: "text"})
	claims.Set("amount", schema.ColumnMeta{DataType: "numeric"})
	claims.Set("created_at", schema.ColumnMeta{DataType: "timestamptz"})
	claims.Set("notes", schema.ColumnMeta{DataType: "text"})

	customers := schema.NewColumns()
	customers.Set("customer_id", schema.ColumnMeta{DataType: "bigint", IsNotNull: true})
	customers.Set("name", schema.ColumnMeta{DataType: "text"})

	return &schema.Slice{
		Tables: map[string]*schema.TableMeta{
			"public.claims":    {Schema: "public", Name: "claims", Columns: claims},
			"public.customers": {Schema: "public", Name: "customers", Columns: customers},
		},
		ForeignKeys: [][]string{
			{"public.claims", "customer_id", "public.customers", "customer_id"},
		},
	}
}

func budget() config.RetryConfig {
	return config.RetryConfig{Attempts: 3, BackoffSeconds: 0.001}
}

func TestReasoner_EchoClientProducesBoundedOutput(t *testing.T) {
	r := NewReasoner(llm.NewEchoClient(zap.NewNop()), testResources(t), budget(), zap.NewNop())

	out, err := r.Reason(context.Background(), "claims from active customers", testSlice())
	require.NoError(t, err)

	assert.Equal(t, "claims from active customers", out.QueryIntent)
	assert.Equal(t, []string{"public.claims", "public.customers"}, out.RelevantTables)

	// First five columns of the slice table, in column order.
	require.Contains(t, out.SchemaContext, "public.claims")
	assert.Equal(t,
		[]string{"claim_id", "customer_id", "status", "amount", "created_at"},
		out.SchemaContext["public.claims"].Columns)

	require.Len(t, out.ForeignKeysMap, 1)
	assert.Equal(t,
		[]string{"public.claims", "customer_id", "public.customers", "customer_id"},
		out.ForeignKeysMap[0])
}

func TestReasoner_RejectsStructurallyInvalidReply(t *testing.T) {
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			return obj(t, `{"query_intent": 123}`), nil
		},
	}
	r := NewReasoner(mock, testResources(t), budget(), zap.NewNop())

	_, err := r.Reason(context.Background(), "q", testSlice())
	assert.ErrorIs(t, err, apperrors.ErrReasonerInvalidSchema)
}

func TestReasoner_RejectsUnknownTable(t *testing.T) {
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			return obj(t, `{
				"query_intent": "q",
				"relevant_tables": ["public.ghost"],
				"schema_context": {}
			}`), nil
		},
	}
	r := NewReasoner(mock, testResources(t), budget(), zap.NewNop())

	_, err := r.Reason(context.Background(), "q", testSlice())
	assert.ErrorIs(t, err, apperrors.ErrReasonerOutOfBounds)
}

func TestReasoner_RejectsUnknownColumn(t *testing.T) {
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			return obj(t, `{
				"query_intent": "q",
				"relevant_tables": ["public.claims"],
				"schema_context": {"public.claims": {"columns": ["no_such_column"]}}
			}`), nil
		},
	}
	r := NewReasoner(mock, testResources(t), budget(), zap.NewNop())

	_, err := r.Reason(context.Background(), "q", testSlice())
	assert.ErrorIs(t, err, apperrors.ErrReasonerOutOfBounds)
}

func TestReasoner_RetriesTransientErrors(t *testing.T) {
	calls := 0
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			calls++
			if calls == 1 {
				return nil, llm.NewError(llm.ErrorTypeEndpoint, "server error", true, errors.New("503"))
			}
			return obj(t, `{
				"query_intent": "q",
				"relevant_tables": ["public.claims"],
				"schema_context": {"public.claims": {"columns": ["claim_id"]}}
			}`), nil
		},
	}
	r := NewReasoner(mock, testResources(t), budget(), zap.NewNop())

	out, err := r.Reason(context.Background(), "q", testSlice())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"public.claims"}, out.RelevantTables)
}

func TestReasoner_DoesNotRetryPermanentErrors(t *testing.T) {
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			return nil, llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
		},
	}
	r := NewReasoner(mock, testResources(t), budget(), zap.NewNop())

	_, err := r.Reason(context.Background(), "q", testSlice())
	require.Error(t, err)
	assert.Equal(t, 1, mock.CompleteJSONCalls)
}

func TestReasoner_PromptCarriesExamplesAndQuery(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteJSONFunc = func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
		return obj(t, `{"query_intent": "q", "relevant_tables": [], "schema_context": {}}`), nil
	}
	r := NewReasoner(mock, testResources(t), budget(), zap.NewNop())

	_, err := r.Reason(context.Background(), "my question", testSlice())
	require.NoError(t, err)

	msgs := mock.LastPrompt.Messages
	// system + (user, assistant) per example + final user turn.
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)

	final := msgs[len(msgs)-1]
	assert.Equal(t, llm.RoleUser, final.Role)
	assert.Contains(t, final.Content, `"my question"`)
	assert.Contains(t, final.Content, `"schema_slice"`)
}
