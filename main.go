package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/audit"
	"github.com/isaqe-io/isaqe-engine/pkg/cache"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
	"github.com/isaqe-io/isaqe-engine/pkg/database"
	"github.com/isaqe-io/isaqe-engine/pkg/executor"
	"github.com/isaqe-io/isaqe-engine/pkg/guardrails"
	"github.com/isaqe-io/isaqe-engine/pkg/handlers"
	"github.com/isaqe-io/isaqe-engine/pkg/llm"
	"github.com/isaqe-io/isaqe-engine/pkg/logging"
	"github.com/isaqe-io/isaqe-engine/pkg/middleware"
	"github.com/isaqe-io/isaqe-engine/pkg/observability"
	"github.com/isaqe-io/isaqe-engine/pkg/pipeline"
	"github.com/isaqe-io/isaqe-engine/pkg/prompts"
	"github.com/isaqe-io/isaqe-engine/pkg/ratelimit"
	"github.com/isaqe-io/isaqe-engine/pkg/reasoner"
	"github.com/isaqe-io/isaqe-engine/pkg/schema"
	"github.com/isaqe-io/isaqe-engine/pkg/security"
	"github.com/isaqe-io/isaqe-engine/pkg/sqlgen"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Engine failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting isaqe-engine",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.String("postgres", logging.SanitizeConnectionString(cfg.Postgres.DSN)),
	)

	db, err := database.NewConnection(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	rdb, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	auditLog, err := audit.NewLogger(cfg.Observability.AuditLogPath, logger)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	resources, err := prompts.Load(cfg.Prompts)
	if err != nil {
		return fmt.Errorf("prompt resources: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM, cfg.LLMAPIKey, logger)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	metrics := observability.NewMetrics()

	stages := pipeline.Stages{
		Limiter:     ratelimit.NewLimiter(cfg.Security.EnableRateLimiting, cfg.Security.MaxRequestsPerMinute),
		Cache:       cache.New(rdb, logger),
		Extractor:   schema.NewExtractor(time.Duration(cfg.Schema.RefreshIntervalS)*time.Second, logger),
		Ranker:      schema.NewRanker(nil),
		Reasoner:    reasoner.NewReasoner(llmClient, resources, cfg.LLM.ReasonerRetryConfig, logger),
		Generator:   sqlgen.NewGenerator(cfg.Postgres),
		Validator:   sqlgen.NewValidator(cfg.Postgres, cfg.SQLGuardrails),
		Guardrails:  guardrails.NewEngine(cfg.SQLGuardrails, logger),
		Executor:    executor.NewExecutor(cfg.Postgres, logger),
		Synthesizer: reasoner.NewSynthesizer(llmClient, resources, cfg.LLM.SynthesizerRetryConfig, logger),
		Audit:       auditLog,
	}
	engine := pipeline.New(stages, cfg.Schema, metrics, logger)

	securityAuditor := audit.NewSecurityAuditor(logger)
	screener := security.NewScreener(securityAuditor)

	mux := http.NewServeMux()
	handlers.NewQueryHandler(db, engine, screener, securityAuditor, logger).RegisterRoutes(mux)
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	metricsSrv := observability.NewMetricsServer(cfg.Observability.MetricsPort, metrics, logger)
	if metricsSrv != nil {
		go func() {
			if err := metricsSrv.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.App.RequestTimeoutS)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics shutdown error", zap.Error(err))
		}
	}

	logger.Info("isaqe-engine stopped")
	return nil
}
