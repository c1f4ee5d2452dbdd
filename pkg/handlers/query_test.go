package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/audit"
	"github.com/isaqe-io/isaqe-engine/pkg/executor"
	"github.com/isaqe-io/isaqe-engine/pkg/pipeline"
	"github.com/isaqe-io/isaqe-engine/pkg/security"
)

func newTestQueryHandler(pool ConnectionPool, pipe QueryPipeline) (*QueryHandler, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	auditor := audit.NewSecurityAuditor(logger)
	return NewQueryHandler(pool, pipe, security.NewScreener(auditor), auditor, logger), recorded
}

func postQuery(t *testing.T, h *QueryHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Query(rec, req)
	return rec
}

func errorDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["detail"]
}

func TestQuery_Success(t *testing.T) {
	pool := &mockPool{}
	pipe := &mockPipeline{resp: &pipeline.Response{
		Answer:   "Returned 2 rows.",
		SQL:      "SELECT claim_id FROM insurance.claims LIMIT 25",
		Rows:     []map[string]any{{"claim_id": 1}, {"claim_id": 2}},
		Metadata: executor.Metadata{RowsReturned: 2},
	}}
	h, _ := newTestQueryHandler(pool, pipe)

	rec := postQuery(t, h, `{"query": "show claims", "user_id": "analyst-7"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp pipeline.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Returned 2 rows.", resp.Answer)
	assert.Equal(t, "SELECT claim_id FROM insurance.claims LIMIT 25", resp.SQL)
	assert.Len(t, resp.Rows, 2)
	assert.Equal(t, 2, resp.Metadata.RowsReturned)

	assert.True(t, pipe.handled)
	assert.Equal(t, "show claims", pipe.gotReq.Query)
	assert.Equal(t, "analyst-7", pipe.gotReq.UserID)
	assert.Equal(t, pool.conn, pipe.gotConn, "pipeline must run on the acquired connection")
	assert.True(t, pool.conn.released)
}

func TestQuery_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated json", `{"query": "show`},
		{"empty body", ``},
		{"wrong type", `"just a string"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipe := &mockPipeline{}
			h, _ := newTestQueryHandler(&mockPool{}, pipe)

			rec := postQuery(t, h, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid request body", errorDetail(t, rec))
			assert.False(t, pipe.handled)
		})
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	pipe := &mockPipeline{}
	h, _ := newTestQueryHandler(&mockPool{}, pipe)

	rec := postQuery(t, h, `{"query": "   ", "user_id": "analyst-7"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query must not be empty", errorDetail(t, rec))
	assert.False(t, pipe.handled)
}

func TestQuery_RateLimited(t *testing.T) {
	pool := &mockPool{}
	pipe := &mockPipeline{err: apperrors.ErrRateLimitExceeded}
	h, recorded := newTestQueryHandler(pool, pipe)

	rec := postQuery(t, h, `{"query": "show claims", "user_id": "analyst-7"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", errorDetail(t, rec))
	assert.True(t, pool.conn.released)

	require.Equal(t, 1, recorded.FilterMessage("Request rate limit exceeded").Len())
	fields := recorded.FilterMessage("Request rate limit exceeded").All()[0].ContextMap()
	assert.Equal(t, "analyst-7", fields["user_id"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestQuery_PipelineFailure(t *testing.T) {
	pool := &mockPool{}
	pipe := &mockPipeline{err: errors.New("reasoner exploded")}
	h, _ := newTestQueryHandler(pool, pipe)

	rec := postQuery(t, h, `{"query": "show claims"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Query processing failed", errorDetail(t, rec))
	assert.NotContains(t, rec.Body.String(), "reasoner exploded", "internal errors must not leak")
	assert.True(t, pool.conn.released)
}

func TestQuery_AcquireFailure(t *testing.T) {
	pool := &mockPool{err: errors.New("pool exhausted")}
	pipe := &mockPipeline{}
	h, _ := newTestQueryHandler(pool, pipe)

	rec := postQuery(t, h, `{"query": "show claims"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Query processing failed", errorDetail(t, rec))
	assert.False(t, pipe.handled)
}

func TestQuery_ScreenerLogsButNeverBlocks(t *testing.T) {
	pool := &mockPool{}
	pipe := &mockPipeline{resp: &pipeline.Response{Answer: "ok"}}
	h, recorded := newTestQueryHandler(pool, pipe)

	rec := postQuery(t, h, `{"query": "' OR '1'='1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, pipe.handled, "flagged questions still reach the pipeline")
	assert.Equal(t, 1, recorded.FilterMessage("SQL injection patterns detected in question").Len())
}

func TestQuery_RouteRejectsWrongMethod(t *testing.T) {
	h, _ := newTestQueryHandler(&mockPool{}, &mockPipeline{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
