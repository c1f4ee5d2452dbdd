package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of a pgx connection used by read-only components.
// *pgxpool.Pool, *pgxpool.Conn and *pgx.Conn all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Conn is one pooled connection checked out for a request. Release returns
// it to the pool; releasing twice is a no-op. *pgxpool.Conn satisfies it.
type Conn interface {
	Querier
	Release()
}
