package reasoner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/llm"
)

func TestSynthesizer_EchoClientSummarizesRowCount(t *testing.T) {
	s := NewSynthesizer(llm.NewEchoClient(zap.NewNop()), testResources(t), budget(), zap.NewNop())

	rows := []map[string]any{
		{"claim_id": 1},
		{"claim_id": 2},
		{"claim_id": 3},
	}
	answer, err := s.Synthesize(context.Background(), "how many claims", "SELECT claim_id FROM claims LIMIT 10;", rows, map[string]any{"rows_returned": 3})
	require.NoError(t, err)
	assert.Equal(t, "Returned 3 rows.", answer)
}

func TestSynthesizer_NilRowsSummarizeAsZero(t *testing.T) {
	s := NewSynthesizer(llm.NewEchoClient(zap.NewNop()), testResources(t), budget(), zap.NewNop())

	answer, err := s.Synthesize(context.Background(), "q", "SELECT 1 FROM t LIMIT 1;", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Returned 0 rows.", answer)
}

func TestSynthesizer_RejectsReplyWithoutResponse(t *testing.T) {
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			return obj(t, `{"highlights": []}`), nil
		},
	}
	s := NewSynthesizer(mock, testResources(t), budget(), zap.NewNop())

	_, err := s.Synthesize(context.Background(), "q", "SELECT 1 FROM t;", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrSynthesizerInvalidSchema)
}

func TestSynthesizer_RejectsNonStringResponse(t *testing.T) {
	mock := &llm.MockClient{
		CompleteJSONFunc: func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
			return obj(t, `{"response": 42}`), nil
		},
	}
	s := NewSynthesizer(mock, testResources(t), budget(), zap.NewNop())

	_, err := s.Synthesize(context.Background(), "q", "SELECT 1 FROM t;", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrSynthesizerInvalidSchema)
}

func TestSynthesizer_PromptCarriesRowsAndSQL(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteJSONFunc = func(_ context.Context, _ llm.Prompt) (map[string]any, error) {
		return obj(t, `{"response": "done"}`), nil
	}
	s := NewSynthesizer(mock, testResources(t), budget(), zap.NewNop())

	rows := []map[string]any{{"status": "active"}}
	answer, err := s.Synthesize(context.Background(), "which are active", "SELECT status FROM claims LIMIT 5;", rows, map[string]any{"truncated": false})
	require.NoError(t, err)
	assert.Equal(t, "done", answer)

	msgs := mock.LastPrompt.Messages
	// system + (user, assistant) per example + final user turn.
	require.Len(t, msgs, 4)

	final := msgs[len(msgs)-1]
	assert.Equal(t, llm.RoleUser, final.Role)
	assert.Contains(t, final.Content, `"which are active"`)
	assert.Contains(t, final.Content, "SELECT status FROM claims LIMIT 5;")
	assert.Contains(t, final.Content, `"rows"`)
}
