package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns a migrated database for one test run: a container, a shared
// DSN or a local server, in that order of preference.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness reuses DATABASE_URL when set and otherwise boots a container.
// Migrations run in an isolated schema.
func NewHarness(ctx context.Context) (*Harness, error) {
	dsn := os.Getenv("DATABASE_URL")
	container := &PGContainer{}
	if dsn == "" {
		var err error
		container, dsn, err = StartPostgres(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, true)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Harness{container: container, pool: pool, dsn: dsn, teardown: teardown}, nil
}

// ForTest builds a harness or skips t when no database can be reached.
func ForTest(t *testing.T) *Harness {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" && os.Getenv("DOCKETFLOW_TEST_DSN") == "" && !DockerAvailable(context.Background()) {
		t.Skip("no DATABASE_URL and no docker; skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h, err := NewHarness(ctx)
	if err != nil {
		t.Fatalf("harness: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

func (h *Harness) DSN() string {
	return h.dsn
}

func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates mutable tables to provide a clean slate between cases.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"outbox",
		"disposition_tasks",
		"decisions",
		"distributed_cases",
		"distributions",
		"blocking_conditions",
		"appeals",
		"judges",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
