package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoPrompt(t *testing.T, payload string) Prompt {
	t.Helper()
	require.True(t, json.Valid([]byte(payload)), "test payload must be valid JSON")
	return Prompt{Messages: []Message{
		{Role: RoleSystem, Content: "respond with strict JSON"},
		{Role: RoleUser, Content: payload},
	}}
}

func TestEchoClient_ReasonerReply(t *testing.T) {
	payload := `{
		"query": "claims from active customers",
		"schema_slice": {
			"tables": {
				"public.claims": {
					"columns": {"claim_id": {}, "customer_id": {}, "status": {}, "amount": {}, "created_at": {}, "notes": {}}
				},
				"public.customers": {
					"columns": {"customer_id": {}, "name": {}}
				}
			},
			"foreign_keys": [["public.claims", "customer_id", "public.customers", "customer_id"]]
		}
	}`

	c := NewEchoClient(zap.NewNop())
	reply, err := c.CompleteJSON(context.Background(), echoPrompt(t, payload))
	require.NoError(t, err)

	assert.Equal(t, "claims from active customers", reply["query_intent"])
	assert.Equal(t, []any{"public.claims", "public.customers"}, reply["relevant_tables"])

	sc, ok := reply["schema_context"].(map[string]any)
	require.True(t, ok)
	claims, ok := sc["public.claims"].(map[string]any)
	require.True(t, ok)

	// Only the first five columns, in document order.
	assert.Equal(t,
		[]any{"claim_id", "customer_id", "status", "amount", "created_at"},
		claims["columns"])

	fks, ok := reply["foreign_keys_map"].([]any)
	require.True(t, ok)
	require.Len(t, fks, 1)

	assert.Equal(t, []any{}, reply["performance_hints"])
}

func TestEchoClient_SynthesizerReply(t *testing.T) {
	payload := `{"query": "q", "sql": "SELECT 1", "rows": [{"a": 1}, {"a": 2}, {"a": 3}], "metadata": {}}`

	c := NewEchoClient(zap.NewNop())
	reply, err := c.CompleteJSON(context.Background(), echoPrompt(t, payload))
	require.NoError(t, err)

	assert.Equal(t, "Returned 3 rows.", reply["response"])
	assert.Equal(t, []any{}, reply["highlights"])
}

func TestEchoClient_UnparseableContentYieldsEmptyObject(t *testing.T) {
	c := NewEchoClient(zap.NewNop())

	reply, err := c.CompleteJSON(context.Background(), Prompt{Messages: []Message{
		{Role: RoleUser, Content: "this is not JSON"},
	}})
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestEchoClient_EchoesUnrecognizedPayload(t *testing.T) {
	c := NewEchoClient(zap.NewNop())

	reply, err := c.CompleteJSON(context.Background(), echoPrompt(t, `{"ping": "pong"}`))
	require.NoError(t, err)
	assert.Equal(t, "pong", reply["ping"])
}

func TestEchoClient_EmptySliceTables(t *testing.T) {
	c := NewEchoClient(zap.NewNop())

	reply, err := c.CompleteJSON(context.Background(),
		echoPrompt(t, `{"query": "q", "schema_slice": {"tables": {}, "foreign_keys": []}}`))
	require.NoError(t, err)

	assert.Equal(t, []any{}, reply["relevant_tables"])
	assert.Equal(t, []any{}, reply["foreign_keys_map"])
}
