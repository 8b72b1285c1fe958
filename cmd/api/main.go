package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"docketflow/appeal"
	"docketflow/auth"
	"docketflow/config"
	"docketflow/db"
	"docketflow/disposition"
	"docketflow/distribution"
	"docketflow/docket"
	"docketflow/integrity"
	"docketflow/judge"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	migrate := pflag.Bool("migrate", false, "apply migrations before serving")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.PoolOptions())
	if err != nil {
		log.Fatalf("bootstrap database: %v", err)
	}
	defer pool.Close()

	if *migrate {
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	verifier, err := auth.NewService(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL())
	if err != nil {
		log.Fatalf("bootstrap auth: %v", err)
	}

	appeals := appeal.NewRepository(pool)
	judges := judge.NewService(judge.NewRepository(pool))
	dockets := docket.NewService(appeals).
		WithChecker(appeal.NewPGChecker(pool)).
		WithDecisions(docket.NewDecisionRepository(pool)).
		WithLogger(logger.With("component", "docket"))
	ledger := distribution.NewLedger(pool)
	engine := distribution.NewEngine(pool, dockets, appeals, ledger, judges).
		WithLocation(cfg.Distribution.Location()).
		WithLogger(logger.With("component", "distribution"))
	sweeper := disposition.NewSweeper(disposition.NewRepository(pool)).
		WithGrace(cfg.Sweeper.Grace()).
		WithMinAge(cfg.Sweeper.MinAge()).
		WithWorkers(cfg.Sweeper.Workers).
		WithLogger(logger.With("component", "disposition"))

	server := &Server{
		distributor:  engine,
		runs:         ledger,
		stats:        docket.NewDashboard(dockets),
		judges:       judges,
		sweeper:      sweeper,
		integrity:    integrity.NewChecker(pool),
		verifier:     verifier,
		defaultLimit: cfg.Distribution.DefaultLimit,
		logger:       logger,
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("api listening", "addr", cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
}
