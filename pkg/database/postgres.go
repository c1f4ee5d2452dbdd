package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

// DB wraps the pgxpool pool for the queried database. Requests acquire one
// connection for their whole pipeline pass and release it on every exit path.
type DB struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewConnection creates the connection pool for the planner database. Pool
// bounds come from configuration; the acquisition timeout mirrors the
// statement timeout so a saturated pool fails a request instead of queueing it
// indefinitely.
func NewConnection(ctx context.Context, cfg config.PostgresConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	poolConfig.MinConns = cfg.MinPoolSize
	poolConfig.MaxConns = cfg.MaxPoolSize
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.ConnConfig.Host = config.ResolveHostForDocker(poolConfig.ConnConfig.Host)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		pool:           pool,
		acquireTimeout: time.Duration(cfg.StatementTimeoutMS) * time.Millisecond,
	}, nil
}

// Acquire checks out one connection under the pool acquisition timeout. The
// caller must Release it.
func (db *DB) Acquire(ctx context.Context) (Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, db.acquireTimeout)
	defer cancel()

	conn, err := db.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// Pool exposes the underlying pool for helpers that manage their own
// connections (tests, health checks).
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
