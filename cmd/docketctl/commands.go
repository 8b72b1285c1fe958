package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"docketflow/appeal"
	"docketflow/auth"
	"docketflow/config"
	"docketflow/db"
	"docketflow/disposition"
	"docketflow/distribution"
	"docketflow/integrity"
	"docketflow/judge"
	"docketflow/outbox"
)

type distributeOptions struct {
	docket   string
	judges   []string
	limit    int
	priority string
	actor    string
	parallel int
	fs       *pflag.FlagSet
}

// resolve fills unset flags from the config. An explicit --limit is kept
// as given so the engine can reject a non-positive value.
func (o *distributeOptions) resolve(cfg config.DistributionConfig) {
	if !o.fs.Changed("limit") {
		o.limit = cfg.DefaultLimit
	}
	if o.parallel <= 0 {
		o.parallel = cfg.ParallelJudges
	}
}

func distributeCommand() command {
	return command{
		name:    "distribute",
		summary: "distribute ready appeals to one or every active judge",
		needsDB: true,
		flags: func(fs *pflag.FlagSet) any {
			o := &distributeOptions{fs: fs}
			fs.StringVar(&o.docket, "docket", "", "docket to distribute from (required)")
			fs.StringSliceVar(&o.judges, "judge", nil, "judge id; repeat or comma separate (default: all active judges)")
			fs.IntVar(&o.limit, "limit", 0, "maximum appeals per judge (default: distribution.default_limit)")
			fs.StringVar(&o.priority, "priority", "any", "priority filter: any, true or false")
			fs.StringVar(&o.actor, "actor", "docketctl", "actor id recorded on each run")
			fs.IntVar(&o.parallel, "parallel", 0, "judges distributed concurrently (default: distribution.parallel_judges)")
			return o
		},
		run: func(ctx context.Context, env *environment, raw any) error {
			o := raw.(*distributeOptions)
			priority, err := parsePriority(o.priority)
			if err != nil {
				return err
			}
			o.resolve(env.cfg.Distribution)

			judges := env.judges()
			ids := o.judges
			if len(ids) == 0 {
				ids, err = activeJudgeIDs(ctx, judge.NewRepository(env.pool))
				if err != nil {
					return err
				}
			}

			base := distribution.Request{
				Docket:   appeal.DocketType(o.docket),
				ActorID:  o.actor,
				Priority: priority,
				Limit:    o.limit,
			}
			outcomes := distributeAll(ctx, env.engine(judges), ids, base, o.parallel, env.logger)
			if err := writeJSON(env.stdout, outcomes); err != nil {
				return err
			}
			for _, oc := range outcomes {
				if oc.Error != "" && !oc.Rejected {
					return exitError{code: 2}
				}
			}
			return nil
		},
	}
}

func parsePriority(s string) (*bool, error) {
	switch s {
	case "", "any":
		return nil, nil
	case "true":
		v := true
		return &v, nil
	case "false":
		v := false
		return &v, nil
	default:
		return nil, fmt.Errorf("--priority must be any, true or false, got %q", s)
	}
}

type activeJudgePager interface {
	ActiveIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error)
}

const judgePageSize = 200

// activeJudgeIDs pages through every active judge id.
func activeJudgeIDs(ctx context.Context, judges activeJudgePager) ([]string, error) {
	var ids []string
	after := ""
	for {
		page, err := judges.ActiveIDsAfter(ctx, after, judgePageSize)
		if err != nil {
			return nil, fmt.Errorf("list active judges: %w", err)
		}
		ids = append(ids, page...)
		if len(page) < judgePageSize {
			return ids, nil
		}
		after = page[len(page)-1]
	}
}

type batchDistributor interface {
	Distribute(ctx context.Context, req distribution.Request) (distribution.Result, error)
}

// batchOutcome is one judge's line in the distribute report.
type batchOutcome struct {
	JudgeID     string `json:"judge_id"`
	RunID       string `json:"run_id,omitempty"`
	Distributed int    `json:"distributed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
	Rejected    bool   `json:"rejected,omitempty"`
}

// distributeAll runs one engine invocation per judge, at most parallel at a
// time. Outcomes keep the order of judgeIDs. A failing judge does not stop
// the others.
func distributeAll(ctx context.Context, d batchDistributor, judgeIDs []string, base distribution.Request, parallel int, logger *slog.Logger) []batchOutcome {
	outcomes := make([]batchOutcome, len(judgeIDs))
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for i, id := range judgeIDs {
		g.Go(func() error {
			req := base
			req.JudgeID = id
			oc := batchOutcome{JudgeID: id}

			res, err := d.Distribute(gctx, req)
			switch {
			case err == nil:
			case distribution.Rejected(err):
				oc.Rejected = true
				logger.Warn("distribution rejected", "judge", id, "err", err)
			default:
				logger.Error("distribution failed", "judge", id, "err", err)
			}
			if err != nil {
				oc.Error = err.Error()
			}
			oc.RunID = res.Run.ID
			oc.Distributed = len(res.Entries)
			oc.Skipped = len(res.Skipped)
			oc.Failed = len(res.Failed)
			outcomes[i] = oc
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

type sweepOptions struct {
	workers int
}

func sweepCommand() command {
	return command{
		name:    "sweep",
		summary: "classify stale hearing disposition tasks and apply transitions",
		needsDB: true,
		flags: func(fs *pflag.FlagSet) any {
			o := &sweepOptions{}
			fs.IntVar(&o.workers, "workers", 0, "concurrent task transitions (default: sweeper.workers)")
			return o
		},
		run: func(ctx context.Context, env *environment, raw any) error {
			o := raw.(*sweepOptions)
			workers := env.cfg.Sweeper.Workers
			if o.workers > 0 {
				workers = o.workers
			}
			sweeper := disposition.NewSweeper(disposition.NewRepository(env.pool)).
				WithGrace(env.cfg.Sweeper.Grace()).
				WithMinAge(env.cfg.Sweeper.MinAge()).
				WithWorkers(workers).
				WithLogger(env.logger.With("component", "disposition"))

			report, err := sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			return writeJSON(env.stdout, report)
		},
	}
}

type relayOptions struct {
	once bool
}

func relayCommand() command {
	return command{
		name:    "relay",
		summary: "publish pending outbox events to Kafka",
		needsDB: true,
		flags: func(fs *pflag.FlagSet) any {
			o := &relayOptions{}
			fs.BoolVar(&o.once, "once", false, "relay one batch and exit")
			return o
		},
		run: func(ctx context.Context, env *environment, raw any) error {
			o := raw.(*relayOptions)
			publisher := outbox.NewKafkaPublisher(env.cfg.Kafka.Brokers, env.cfg.Kafka.Topic)
			defer publisher.Close()

			relay := outbox.NewRelay(env.pool, nil, publisher).
				WithBatchSize(env.cfg.Relay.BatchSize).
				WithMaxAttempts(env.cfg.Relay.MaxAttempts).
				WithLogger(env.logger.With("component", "outbox"))

			if o.once {
				res, err := relay.RunOnce(ctx)
				if err != nil {
					return err
				}
				return writeJSON(env.stdout, res)
			}
			err := relay.Run(ctx, env.cfg.Relay.Interval())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func integrityCommand() command {
	return command{
		name:    "integrity",
		summary: "run the ledger and store consistency checks",
		needsDB: true,
		flags:   func(*pflag.FlagSet) any { return nil },
		run: func(ctx context.Context, env *environment, _ any) error {
			report, err := integrity.NewChecker(env.pool).Check(ctx)
			if err != nil {
				return err
			}
			if err := writeJSON(env.stdout, report); err != nil {
				return err
			}
			if !report.OK() {
				return exitError{code: 3}
			}
			return nil
		},
	}
}

func migrateCommand() command {
	return command{
		name:    "migrate",
		summary: "apply the embedded schema migrations",
		needsDB: true,
		flags:   func(*pflag.FlagSet) any { return nil },
		run: func(ctx context.Context, env *environment, _ any) error {
			if err := db.ApplyMigrations(ctx, env.pool); err != nil {
				return err
			}
			env.logger.Info("migrations applied")
			return nil
		},
	}
}

type tokenOptions struct {
	actor string
	role  string
}

func tokenCommand() command {
	return command{
		name:    "token",
		summary: "issue a bearer token for the operator API",
		flags: func(fs *pflag.FlagSet) any {
			o := &tokenOptions{}
			fs.StringVar(&o.actor, "actor", "", "actor id carried by the token (required)")
			fs.StringVar(&o.role, "role", string(auth.RoleOperator), "operator, judge or system")
			return o
		},
		run: func(_ context.Context, env *environment, raw any) error {
			o := raw.(*tokenOptions)
			svc, err := auth.NewService(env.cfg.Auth.TokenSecret, env.cfg.Auth.Issuer, env.cfg.Auth.TokenTTL())
			if err != nil {
				return err
			}
			token, err := svc.Issue(o.actor, auth.Role(o.role))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(env.stdout, token)
			return err
		},
	}
}
