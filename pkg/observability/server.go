package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer serves /metrics on its own listener, separate from the query
// API. A port of 0 disables it.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer builds the sidecar metrics listener. Returns nil when the
// configured port disables metrics.
func NewMetricsServer(port int, metrics *Metrics, logger *zap.Logger) *MetricsServer {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("metrics"),
	}
}

// Start blocks serving /metrics until Shutdown is called.
func (s *MetricsServer) Start() error {
	s.logger.Info("metrics server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Shutdown drains the metrics listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
