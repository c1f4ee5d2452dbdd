package guardrails

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/config"
	"github.com/isaqe-io/isaqe-engine/pkg/database"
	"github.com/isaqe-io/isaqe-engine/pkg/schema"
)

// Metrics are the planner estimates pulled from the root node of an
// EXPLAIN (FORMAT JSON) plan. Missing fields stay at their zero value.
type Metrics struct {
	PlanRows  int64   `json:"plan_rows"`
	PlanWidth int     `json:"plan_width"`
	TotalCost float64 `json:"total_cost"`
	NodeType  string  `json:"node_type"`
}

// Engine EXPLAINs every candidate query before it may run and rejects plans
// whose estimates exceed the configured thresholds.
type Engine struct {
	cfg    config.GuardrailConfig
	logger *zap.Logger
}

// NewEngine creates a guardrail engine with the given thresholds.
func NewEngine(cfg config.GuardrailConfig, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.Named("guardrails")}
}

// Check runs EXPLAIN (FORMAT JSON) for sql on q and applies the threshold
// rules to the root plan node. Metrics are returned whenever EXPLAIN
// succeeded, including for rejected queries, so callers can log and audit the
// decision. The error return covers EXPLAIN failures only.
func (e *Engine) Check(ctx context.Context, q database.Querier, sql string, tableStats map[string]schema.TableStats) (bool, *Metrics, error) {
	metrics, err := e.runExplain(ctx, q, sql)
	if err != nil {
		return false, nil, err
	}

	allowed := e.applyRules(metrics, tableStats)
	e.logger.Info("guardrail decision",
		zap.Bool("allowed", allowed),
		zap.Int64("plan_rows", metrics.PlanRows),
		zap.Float64("total_cost", metrics.TotalCost),
		zap.String("node_type", metrics.NodeType))
	return allowed, metrics, nil
}

func (e *Engine) runExplain(ctx context.Context, q database.Querier, sql string) (*Metrics, error) {
	rows, err := q.Query(ctx, "EXPLAIN (FORMAT JSON) "+sql)
	if err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("explain query: %w", err)
		}
		return nil, fmt.Errorf("explain query returned no rows")
	}

	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("scan explain output: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}

	return parseExplainOutput(raw)
}

// parseExplainOutput decodes EXPLAIN (FORMAT JSON) output, which arrives as a
// one-element JSON array whose element holds the root under "Plan". Output
// that comes back JSON-encoded inside a string decodes the same way.
func parseExplainOutput(raw []byte) (*Metrics, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode explain output: %w", err)
	}
	if s, ok := decoded.(string); ok {
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("decode explain output: %w", err)
		}
	}

	arr, ok := decoded.([]any)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("explain output is not a plan array")
	}
	root, ok := arr[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("explain output is not a plan array")
	}

	plan, _ := root["Plan"].(map[string]any)
	return &Metrics{
		PlanRows:  int64(planNumber(plan, "Plan Rows")),
		PlanWidth: int(planNumber(plan, "Plan Width")),
		TotalCost: planNumber(plan, "Total Cost"),
		NodeType:  planString(plan, "Node Type"),
	}, nil
}

// applyRules rejects a plan when its row estimate or total cost exceeds the
// thresholds. Sequential scans are held to a tenth of the row threshold.
func (e *Engine) applyRules(m *Metrics, _ map[string]schema.TableStats) bool {
	if m.PlanRows > e.cfg.RowThreshold {
		return false
	}
	if m.TotalCost > e.cfg.CostThreshold {
		return false
	}
	if strings.EqualFold(m.NodeType, "seq scan") && m.PlanRows > e.cfg.RowThreshold/10 {
		return false
	}
	return true
}

func planNumber(plan map[string]any, key string) float64 {
	v, _ := plan[key].(float64)
	return v
}

func planString(plan map[string]any, key string) string {
	v, _ := plan[key].(string)
	return v
}
