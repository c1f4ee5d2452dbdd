package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

// TestDB holds the shared PostgreSQL container and connection pool used by
// integration tests.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a PostgreSQL container seeded with the insurance demo
// schema (insurance.claims, insurance.customers). The container starts once
// and is shared across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})
	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}
	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "isaqe_test",
			"POSTGRES_USER":     "isaqe",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://isaqe:test_password@%s:%s/isaqe_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := seedSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed test schema: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// seedSchema creates the insurance demo schema the engine tests introspect
// and query. Tables live in a dedicated schema rather than public so foreign
// key endpoints come back schema-qualified from the catalog.
func seedSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE SCHEMA insurance`,
		`CREATE TABLE insurance.customers (
			customer_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name        TEXT NOT NULL,
			region      TEXT NOT NULL,
			signup_date DATE NOT NULL DEFAULT CURRENT_DATE
		)`,
		`COMMENT ON TABLE insurance.customers IS 'Customer master records'`,
		`COMMENT ON COLUMN insurance.customers.region IS 'Sales region code'`,
		`CREATE TABLE insurance.claims (
			claim_id    BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			customer_id BIGINT NOT NULL REFERENCES insurance.customers (customer_id),
			status      TEXT NOT NULL DEFAULT 'open',
			amount      NUMERIC(12,2) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`COMMENT ON TABLE insurance.claims IS 'Insurance claims filed by customers'`,
		`COMMENT ON COLUMN insurance.claims.status IS 'Claim lifecycle status: open, active, closed'`,
		`CREATE INDEX claims_status_idx ON insurance.claims (status)`,
		`INSERT INTO insurance.customers (name, region) VALUES
			('Ada Lovelace', 'emea'),
			('Grace Hopper', 'amer'),
			('Alan Turing', 'emea')`,
		`INSERT INTO insurance.claims (customer_id, status, amount, created_at)
		 SELECT (i % 3) + 1,
		        CASE WHEN i % 2 = 0 THEN 'active' ELSE 'closed' END,
		        (100 + i * 25)::numeric(12,2),
		        now() - (i || ' days')::interval
		 FROM generate_series(0, 19) AS i`,
		`ANALYZE insurance.customers`,
		`ANALYZE insurance.claims`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("seed statement failed: %w", err)
		}
	}
	return nil
}
