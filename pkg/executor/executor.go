package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
	"github.com/isaqe-io/isaqe-engine/pkg/database"
)

// Metadata describes how much of the result set the caller received.
type Metadata struct {
	RowsReturned int  `json:"rows_returned"`
	Truncated    bool `json:"truncated"`
}

// Result is one bounded execution: sampled rows plus how they were bounded.
type Result struct {
	Status   string           `json:"status"`
	Data     []map[string]any `json:"data"`
	Metadata Metadata         `json:"metadata"`
}

// Executor runs sanitized SELECTs under the configured statement timeout and
// samples results down to sample_limit rows.
type Executor struct {
	cfg    config.PostgresConfig
	logger *zap.Logger
}

// NewExecutor creates an executor bound to the Postgres limits in cfg.
func NewExecutor(cfg config.PostgresConfig, logger *zap.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logger.Named("executor")}
}

// ExecuteSQL runs sql on q and returns up to sample_limit rows as column
// name to value maps. A query that outlives statement_timeout_ms fails with
// ErrExecutionTimeout.
func (e *Executor) ExecuteSQL(ctx context.Context, q database.Querier, sql string) (*Result, error) {
	timeout := time.Duration(e.cfg.StatementTimeoutMS) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Info("executing sql", zap.String("sql", sql))

	rows, err := q.Query(execCtx, sql)
	if err != nil {
		return nil, wrapTimeout(execCtx, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	collected := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			if i < len(values) {
				row[string(fd.Name)] = values[i]
			}
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTimeout(execCtx, err)
	}

	data := collected
	truncated := false
	if len(collected) > e.cfg.SampleLimit {
		data = collected[:e.cfg.SampleLimit]
		truncated = true
	}

	return &Result{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			RowsReturned: len(data),
			Truncated:    truncated,
		},
	}, nil
}

// wrapTimeout maps deadline expiry onto ErrExecutionTimeout. The context is
// consulted as well as the error chain: a connection torn down by the
// deadline can surface as a plain network error.
func wrapTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrExecutionTimeout, err)
	}
	return fmt.Errorf("execute query: %w", err)
}
