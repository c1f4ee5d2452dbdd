package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/database"
)

const tablesSQL = `
SELECT n.nspname AS table_schema,
       c.relname AS table_name,
       obj_description(c.oid, 'pg_class') AS table_description,
       c.reltuples::bigint AS row_estimate,
       pg_total_relation_size(c.oid) AS size_bytes
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')`

const columnsSQL = `
SELECT n.nspname AS table_schema,
       c.relname AS table_name,
       a.attname AS column_name,
       format_type(a.atttypid, a.atttypmod) AS data_type,
       pg_get_expr(d.adbin, d.adrelid) AS default_value,
       a.attnotnull AS is_not_null,
       col_description(c.oid, a.attnum) AS column_description
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE a.attnum > 0
  AND NOT a.attisdropped
  AND c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY n.nspname, c.relname, a.attnum`

const foreignKeysSQL = `
SELECT conname AS constraint_name,
       pg_get_constraintdef(oid) AS definition,
       conrelid::regclass::text AS table_name,
       confrelid::regclass::text AS foreign_table
FROM pg_constraint
WHERE contype = 'f'`

const indexesSQL = `
SELECT n.nspname AS table_schema,
       c.relname AS table_name,
       i.relname AS index_name,
       pg_get_indexdef(x.indexrelid) AS definition,
       x.indisunique AS is_unique
FROM pg_index x
JOIN pg_class c ON c.oid = x.indrelid
JOIN pg_class i ON i.oid = x.indexrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')`

// Extractor introspects the database catalog and memoizes the resulting
// snapshot until it goes stale. A mutex with a double-checked staleness test
// keeps concurrent refreshes down to one in-flight collect per process.
type Extractor struct {
	refreshInterval time.Duration
	logger          *zap.Logger

	mu        sync.RWMutex
	snapshot  *Snapshot
	fetchedAt time.Time
}

// NewExtractor creates an extractor whose memoized snapshot expires after
// refreshInterval.
func NewExtractor(refreshInterval time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{
		refreshInterval: refreshInterval,
		logger:          logger.Named("schema_extractor"),
	}
}

// GetSchemaSnapshot returns the memoized snapshot when it is fresh, otherwise
// collects a new one. refresh forces a collect regardless of staleness.
func (e *Extractor) GetSchemaSnapshot(ctx context.Context, q database.Querier, refresh bool) (*Snapshot, error) {
	if !refresh {
		if snap := e.cached(); snap != nil {
			return snap, nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Recheck under the lock: another caller may have refreshed while this
	// one waited.
	if !refresh && e.snapshot != nil && time.Since(e.fetchedAt) < e.refreshInterval {
		return e.snapshot, nil
	}

	snap, err := e.collect(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSchemaUnavailable, err)
	}

	e.snapshot = snap
	e.fetchedAt = time.Now()
	return snap, nil
}

func (e *Extractor) cached() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot != nil && time.Since(e.fetchedAt) < e.refreshInterval {
		return e.snapshot
	}
	return nil
}

func (e *Extractor) collect(ctx context.Context, q database.Querier) (*Snapshot, error) {
	start := time.Now()

	snap := &Snapshot{
		GeneratedAt: start.UTC(),
		Tables:      make(map[string]*TableMeta),
		ForeignKeys: make([]ForeignKey, 0),
		Indexes:     make(map[string][]IndexMeta),
		TableStats:  make(map[string]TableStats),
	}

	if err := e.collectTables(ctx, q, snap); err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}
	if err := e.collectColumns(ctx, q, snap); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if err := e.collectForeignKeys(ctx, q, snap); err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	if err := e.collectIndexes(ctx, q, snap); err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}

	e.logger.Info("schema snapshot collected",
		zap.Int("tables", len(snap.Tables)),
		zap.Int("foreign_keys", len(snap.ForeignKeys)),
		zap.Duration("elapsed", time.Since(start)))

	return snap, nil
}

func (e *Extractor) collectTables(ctx context.Context, q database.Querier, snap *Snapshot) error {
	rows, err := q.Query(ctx, tablesSQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schemaName, tableName string
			description           *string
			rowEstimate, size     int64
		)
		if err := rows.Scan(&schemaName, &tableName, &description, &rowEstimate, &size); err != nil {
			return err
		}

		meta := &TableMeta{
			Schema:      schemaName,
			Name:        tableName,
			Description: description,
			RowEstimate: rowEstimate,
			SizeBytes:   size,
			Columns:     NewColumns(),
		}
		snap.Tables[meta.Key()] = meta
		snap.TableStats[meta.Key()] = TableStats{RowEstimate: rowEstimate, SizeBytes: size}
	}
	return rows.Err()
}

func (e *Extractor) collectColumns(ctx context.Context, q database.Querier, snap *Snapshot) error {
	rows, err := q.Query(ctx, columnsSQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schemaName, tableName, columnName, dataType string
			defaultValue, description                   *string
			isNotNull                                   bool
		)
		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType, &defaultValue, &isNotNull, &description); err != nil {
			return err
		}

		// Column rows for tables missed by the first pass are skipped.
		meta, ok := snap.Tables[schemaName+"."+tableName]
		if !ok {
			continue
		}
		meta.Columns.Set(columnName, ColumnMeta{
			DataType:     dataType,
			DefaultValue: defaultValue,
			IsNotNull:    isNotNull,
			Description:  description,
		})
	}
	return rows.Err()
}

func (e *Extractor) collectForeignKeys(ctx context.Context, q database.Querier, snap *Snapshot) error {
	rows, err := q.Query(ctx, foreignKeysSQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Constraint, &fk.Definition, &fk.Table, &fk.ForeignTable); err != nil {
			return err
		}
		snap.ForeignKeys = append(snap.ForeignKeys, fk)
	}
	return rows.Err()
}

func (e *Extractor) collectIndexes(ctx context.Context, q database.Querier, snap *Snapshot) error {
	rows, err := q.Query(ctx, indexesSQL)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schemaName, tableName string
			idx                   IndexMeta
		)
		if err := rows.Scan(&schemaName, &tableName, &idx.Index, &idx.Definition, &idx.IsUnique); err != nil {
			return err
		}
		key := schemaName + "." + tableName
		snap.Indexes[key] = append(snap.Indexes[key], idx)
	}
	return rows.Err()
}
