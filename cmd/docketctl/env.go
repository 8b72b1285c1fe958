package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"docketflow/appeal"
	"docketflow/config"
	"docketflow/db"
	"docketflow/distribution"
	"docketflow/docket"
	"docketflow/judge"
)

// environment is the shared state a command runs against.
type environment struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
	pool   *pgxpool.Pool
}

func (e *environment) open(ctx context.Context) error {
	pool, err := db.NewPool(ctx, e.cfg.Database.URL, e.cfg.Database.PoolOptions())
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	e.pool = pool
	return nil
}

func (e *environment) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func (e *environment) judges() *judge.Service {
	return judge.NewService(judge.NewRepository(e.pool))
}

func (e *environment) engine(judges *judge.Service) *distribution.Engine {
	appeals := appeal.NewRepository(e.pool)
	dockets := docket.NewService(appeals).
		WithChecker(appeal.NewPGChecker(e.pool)).
		WithDecisions(docket.NewDecisionRepository(e.pool)).
		WithLogger(e.logger.With("component", "docket"))
	return distribution.NewEngine(e.pool, dockets, appeals, distribution.NewLedger(e.pool), judges).
		WithLocation(e.cfg.Distribution.Location()).
		WithLogger(e.logger.With("component", "distribution"))
}
