// Package pipeline orchestrates query processing from rate limiting through
// answer synthesis, recording per-stage latency and request outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/audit"
	"github.com/isaqe-io/isaqe-engine/pkg/cache"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
	"github.com/isaqe-io/isaqe-engine/pkg/database"
	"github.com/isaqe-io/isaqe-engine/pkg/executor"
	"github.com/isaqe-io/isaqe-engine/pkg/guardrails"
	"github.com/isaqe-io/isaqe-engine/pkg/observability"
	"github.com/isaqe-io/isaqe-engine/pkg/ratelimit"
	"github.com/isaqe-io/isaqe-engine/pkg/reasoner"
	"github.com/isaqe-io/isaqe-engine/pkg/schema"
	"github.com/isaqe-io/isaqe-engine/pkg/sqlgen"
)

// snapshotCacheKey is the shared cache key for the serialized schema snapshot.
const snapshotCacheKey = "schema_snapshot"

// Request is a natural-language question submitted by a user.
type Request struct {
	Query         string `json:"query"`
	UserID        string `json:"user_id,omitempty"`
	RefreshSchema bool   `json:"refresh_schema,omitempty"`
}

// Response carries the synthesized answer plus the SQL and rows behind it.
type Response struct {
	Answer   string            `json:"answer"`
	SQL      string            `json:"sql"`
	Rows     []map[string]any  `json:"rows"`
	Metadata executor.Metadata `json:"metadata"`
}

// Stages collects the pipeline's collaborators in processing order.
type Stages struct {
	Limiter     *ratelimit.Limiter
	Cache       *cache.Client
	Extractor   *schema.Extractor
	Ranker      *schema.Ranker
	Reasoner    *reasoner.Reasoner
	Generator   *sqlgen.Generator
	Validator   *sqlgen.Validator
	Guardrails  *guardrails.Engine
	Executor    *executor.Executor
	Synthesizer *reasoner.Synthesizer
	Audit       *audit.Logger
}

// Pipeline runs one query through every stage on a caller-supplied
// connection. It owns no connections itself.
type Pipeline struct {
	stages    Stages
	schemaCfg config.SchemaConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
	flight    singleflight.Group
}

// New assembles a pipeline from its stages.
func New(stages Stages, schemaCfg config.SchemaConfig, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		stages:    stages,
		schemaCfg: schemaCfg,
		metrics:   metrics,
		logger:    logger.Named("pipeline"),
	}
}

// Handle processes one request. Rate-limited requests fail with
// ErrRateLimitExceeded before any stage runs; every failure past that point
// counts against the failed outcome, except guardrail rejections which count
// as rejected. Successful requests are appended to the audit trail.
func (p *Pipeline) Handle(ctx context.Context, conn database.Querier, req Request) (*Response, error) {
	userKey := req.UserID
	if userKey == "" {
		userKey = "anonymous"
	}

	if !p.stages.Limiter.Allow(userKey) {
		p.metrics.RecordOutcome(observability.StatusRateLimited)
		return nil, apperrors.ErrRateLimitExceeded
	}

	resp, guardMetrics, err := p.process(ctx, conn, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrGuardrailRejected) {
			p.metrics.RecordOutcome(observability.StatusRejected)
		} else {
			p.metrics.RecordOutcome(observability.StatusFailed)
		}
		return nil, err
	}

	p.metrics.RecordOutcome(observability.StatusSuccess)

	if err := p.stages.Audit.Write(map[string]any{
		"user_id":       userKey,
		"query":         req.Query,
		"sql":           resp.SQL,
		"metadata":      resp.Metadata,
		"guard_metrics": guardMetrics,
	}); err != nil {
		// An unwritable audit trail must not fail a served query.
		p.logger.Error("audit write failed", zap.Error(err))
	}

	return resp, nil
}

// process runs the stages under the total latency timer. Stage timers stop
// before errors are inspected so failed stages still record their latency.
func (p *Pipeline) process(ctx context.Context, conn database.Querier, req Request) (*Response, *guardrails.Metrics, error) {
	stopTotal := p.metrics.StartStage(observability.StageTotal)
	defer stopTotal()

	snap, err := p.SchemaSnapshot(ctx, conn, req.RefreshSchema)
	if err != nil {
		return nil, nil, err
	}

	stopRanking := p.metrics.StartStage(observability.StageRanking)
	rankedTables := p.stages.Ranker.RankTables(req.Query, snap, p.schemaCfg.RankerTopN)
	stopRanking()

	slice, err := schema.SelectSchemaSlice(snap, rankedTables, p.schemaCfg.MaxSchemaSliceBytes)
	if err != nil {
		return nil, nil, err
	}

	stopReasoner := p.metrics.StartStage(observability.StageReasoner)
	plan, err := p.stages.Reasoner.Reason(ctx, req.Query, slice)
	stopReasoner()
	if err != nil {
		return nil, nil, err
	}

	intent := plan.QueryIntent
	if intent == "" {
		intent = req.Query
	}

	stopGeneration := p.metrics.StartStage(observability.StageSQLGeneration)
	plans, err := p.stages.Generator.Generate(intent, tableColumns(plan.SchemaContext), plan.RelevantTables, plan.ForeignKeysMap)
	stopGeneration()
	if err != nil {
		return nil, nil, err
	}
	if len(plans) == 0 {
		return nil, nil, fmt.Errorf("%w: generator returned no plans", apperrors.ErrGenerationEmpty)
	}

	stopValidation := p.metrics.StartStage(observability.StageValidation)
	sanitizedSQL, err := p.stages.Validator.ValidateAndSanitize(plans[0].SQL)
	stopValidation()
	if err != nil {
		return nil, nil, err
	}

	stopGuardrails := p.metrics.StartStage(observability.StageGuardrails)
	allowed, guardMetrics, err := p.stages.Guardrails.Check(ctx, conn, sanitizedSQL, snap.TableStats)
	stopGuardrails()
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, guardMetrics, apperrors.ErrGuardrailRejected
	}

	stopExecution := p.metrics.StartStage(observability.StageExecution)
	result, err := p.stages.Executor.ExecuteSQL(ctx, conn, sanitizedSQL)
	stopExecution()
	if err != nil {
		return nil, guardMetrics, err
	}

	stopSynthesis := p.metrics.StartStage(observability.StageSynthesis)
	answer, err := p.stages.Synthesizer.Synthesize(ctx, req.Query, sanitizedSQL, result.Data, result.Metadata)
	stopSynthesis()
	if err != nil {
		return nil, guardMetrics, err
	}

	return &Response{
		Answer:   answer,
		SQL:      sanitizedSQL,
		Rows:     result.Data,
		Metadata: result.Metadata,
	}, guardMetrics, nil
}

// SchemaSnapshot returns the shared schema snapshot, serving from the cache
// unless refresh is set. Callers that need a catalog collect are collapsed
// into one in-flight collect; forced refreshes collapse separately from plain
// cache misses so a refresh never shares a possibly stale result.
func (p *Pipeline) SchemaSnapshot(ctx context.Context, q database.Querier, refresh bool) (*schema.Snapshot, error) {
	if !refresh {
		var cached schema.Snapshot
		ok, err := p.stages.Cache.GetJSON(ctx, snapshotCacheKey, &cached)
		if err != nil {
			p.logger.Warn("schema snapshot cache read failed", zap.Error(err))
		} else if ok {
			return &cached, nil
		}
	}

	flightKey := snapshotCacheKey
	if refresh {
		flightKey += ":refresh"
	}

	v, err, _ := p.flight.Do(flightKey, func() (any, error) {
		snap, err := p.stages.Extractor.GetSchemaSnapshot(ctx, q, refresh)
		if err != nil {
			return nil, err
		}

		ttl := time.Duration(p.schemaCfg.RefreshIntervalS) * time.Second
		if err := p.stages.Cache.SetJSON(ctx, snapshotCacheKey, snap, ttl); err != nil {
			p.logger.Warn("schema snapshot cache write failed", zap.Error(err))
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Snapshot), nil
}

func tableColumns(contexts map[string]reasoner.TableContext) map[string][]string {
	columns := make(map[string][]string, len(contexts))
	for table, tc := range contexts {
		columns[table] = tc.Columns
	}
	return columns
}
