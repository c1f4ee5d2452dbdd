package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// EchoClient is a deterministic offline collaborator used in tests and when
// no API key is configured. Instead of calling a model it reflects a
// structurally valid reply out of the prompt payload: a prompt carrying a
// schema slice yields a reasoner-shaped reply naming every slice table with
// its first five columns; a prompt carrying rows yields a one-line summary.
type EchoClient struct {
	logger *zap.Logger
}

// NewEchoClient creates an echo client.
func NewEchoClient(logger *zap.Logger) *EchoClient {
	return &EchoClient{logger: logger.Named("llm_echo")}
}

// CompleteJSON implements Client.
func (c *EchoClient) CompleteJSON(_ context.Context, prompt Prompt) (map[string]any, error) {
	if len(prompt.Messages) == 0 {
		return map[string]any{}, nil
	}
	content := []byte(prompt.Messages[len(prompt.Messages)-1].Content)

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(content, &payload); err != nil {
		return map[string]any{}, nil
	}

	if sliceRaw, ok := payload["schema_slice"]; ok {
		return c.reasonerReply(payload, sliceRaw)
	}
	if rowsRaw, ok := payload["rows"]; ok {
		return c.synthesizerReply(rowsRaw)
	}

	// Anything else is echoed back verbatim.
	var echoed map[string]any
	if err := json.Unmarshal(content, &echoed); err != nil {
		return map[string]any{}, nil
	}
	return echoed, nil
}

func (c *EchoClient) reasonerReply(payload map[string]json.RawMessage, sliceRaw json.RawMessage) (map[string]any, error) {
	var sliceObj map[string]json.RawMessage
	if err := json.Unmarshal(sliceRaw, &sliceObj); err != nil {
		return map[string]any{}, nil
	}

	// Tables and columns are read in serialized order so a given prompt
	// always produces the same reply.
	tableOrder := objectKeys(sliceObj["tables"])

	var tables map[string]json.RawMessage
	_ = json.Unmarshal(sliceObj["tables"], &tables)

	schemaContext := make(map[string]any, len(tables))
	for name, tableRaw := range tables {
		var tbl map[string]json.RawMessage
		_ = json.Unmarshal(tableRaw, &tbl)

		colNames := objectKeys(tbl["columns"])
		if len(colNames) > 5 {
			colNames = colNames[:5]
		}
		schemaContext[name] = map[string]any{"columns": colNames}
	}

	var query string
	if raw, ok := payload["query"]; ok {
		_ = json.Unmarshal(raw, &query)
	}

	foreignKeys := json.RawMessage(`[]`)
	if raw, ok := sliceObj["foreign_keys"]; ok && len(raw) > 0 {
		foreignKeys = raw
	}

	return canonicalize(map[string]any{
		"query_intent":      query,
		"relevant_tables":   tableOrder,
		"schema_context":    schemaContext,
		"foreign_keys_map":  foreignKeys,
		"performance_hints": []string{},
	})
}

func (c *EchoClient) synthesizerReply(rowsRaw json.RawMessage) (map[string]any, error) {
	var rows []json.RawMessage
	_ = json.Unmarshal(rowsRaw, &rows)

	return map[string]any{
		"response":   fmt.Sprintf("Returned %d rows.", len(rows)),
		"highlights": []any{},
	}, nil
}

// canonicalize round-trips a reply through encoding/json so every value uses
// the decoded types downstream schema validation expects.
func canonicalize(v map[string]any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewError(ErrorTypeFormat, "encode echo reply", false, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, NewError(ErrorTypeFormat, "decode echo reply", false, err)
	}
	return out, nil
}
