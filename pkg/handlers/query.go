// Package handlers exposes the engine's HTTP surface: the query endpoint plus
// health and ping.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/audit"
	"github.com/isaqe-io/isaqe-engine/pkg/database"
	"github.com/isaqe-io/isaqe-engine/pkg/logging"
	"github.com/isaqe-io/isaqe-engine/pkg/pipeline"
	"github.com/isaqe-io/isaqe-engine/pkg/security"
)

// ConnectionPool checks out one database connection per request.
type ConnectionPool interface {
	Acquire(ctx context.Context) (database.Conn, error)
}

// QueryPipeline runs one query request on a caller-supplied connection.
type QueryPipeline interface {
	Handle(ctx context.Context, conn database.Querier, req pipeline.Request) (*pipeline.Response, error)
}

// QueryHandler serves POST /query.
type QueryHandler struct {
	pool     ConnectionPool
	pipeline QueryPipeline
	screener *security.Screener
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewQueryHandler creates the query endpoint handler.
func NewQueryHandler(pool ConnectionPool, pipe QueryPipeline, screener *security.Screener, auditor *audit.SecurityAuditor, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		pool:     pool,
		pipeline: pipe,
		screener: screener,
		auditor:  auditor,
		logger:   logger.Named("query_handler"),
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /query", h.Query)
}

// Query handles POST /query: decode, screen, acquire a connection, run the
// pipeline, and map pipeline failures onto HTTP statuses. Rate limited
// requests get 429; every other failure is an opaque 500 so internals never
// leak to callers.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	requestID := uuid.New().String()
	clientIP := r.RemoteAddr
	h.screener.Screen(requestID, req.UserID, clientIP, req.Query)

	conn, err := h.pool.Acquire(r.Context())
	if err != nil {
		h.logger.Error("failed to acquire connection",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "Query processing failed")
		return
	}
	defer conn.Release()

	resp, err := h.pipeline.Handle(r.Context(), conn, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrRateLimitExceeded) {
			h.auditor.LogRateLimitExceeded(requestID, req.UserID, clientIP)
			_ = ErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		h.logger.Error("query processing failed",
			zap.String("request_id", requestID),
			zap.String("user_id", req.UserID),
			zap.String("query", logging.SanitizeQuery(req.Query)),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "Query processing failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to encode query response", zap.Error(err))
	}
}
