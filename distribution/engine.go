package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"docketflow/appeal"
	"docketflow/docket"
	"docketflow/judge"
	"docketflow/outbox"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Selector returns eligible appeals in distribution order.
type Selector interface {
	RankedItems(ctx context.Context, q docket.Query) ([]appeal.Appeal, error)
}

// ClaimStore is the part of the appeal store written inside an item
// transaction.
type ClaimStore interface {
	LockForClaim(ctx context.Context, tx pgx.Tx, externalID string) (appeal.Appeal, error)
	AssignToJudge(ctx context.Context, tx pgx.Tx, appealID int64, judgeID string) error
}

type JudgeResolver interface {
	ResolveActive(ctx context.Context, id string) (judge.Profile, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error
}

// Engine distributes ready appeals to judges, one transaction per appeal.
type Engine struct {
	pool     TxBeginner
	selector Selector
	appeals  ClaimStore
	ledger   Ledger
	judges   JudgeResolver
	outbox   Enqueuer
	now      func() time.Time
	loc      *time.Location
	logger   *slog.Logger
}

func NewEngine(pool TxBeginner, selector Selector, appeals ClaimStore, ledger Ledger, judges JudgeResolver) *Engine {
	return &Engine{
		pool:     pool,
		selector: selector,
		appeals:  appeals,
		ledger:   ledger,
		judges:   judges,
		outbox:   outbox.NewRepository(),
		now:      time.Now,
		loc:      time.UTC,
		logger:   slog.New(slog.DiscardHandler),
	}
}

func (e *Engine) WithOutbox(o Enqueuer) *Engine {
	e.outbox = o
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithLocation sets the zone whose calendar dates stamp redistributed case
// ids.
func (e *Engine) WithLocation(loc *time.Location) *Engine {
	if loc != nil {
		e.loc = loc
	}
	return e
}

func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Distribute opens a run for req.JudgeID, distributes up to req.Limit
// appeals into it and closes it.
func (e *Engine) Distribute(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	if err := e.resolveJudge(ctx, req.JudgeID); err != nil {
		return Result{}, err
	}

	run, err := e.ledger.StartRun(ctx, req.JudgeID, req.ActorID)
	if err != nil {
		if errors.Is(err, ErrRunInFlight) {
			return Result{}, &PreconditionError{Field: "judge_id", Reason: "a run is already in flight", Err: ErrRunInFlight}
		}
		return Result{}, err
	}
	return e.fill(ctx, run, req)
}

// DistributeRun fills an existing open run. The judge and actor recorded on
// the run take precedence over the request.
func (e *Engine) DistributeRun(ctx context.Context, runID string, req Request) (Result, error) {
	run, err := e.ledger.GetRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if !run.Open() {
		return Result{}, &PreconditionError{Field: "run_id", Reason: fmt.Sprintf("run is %s", run.Status), Err: ErrRunClosed}
	}
	req.JudgeID = run.JudgeID
	req.ActorID = run.ActorID
	if err := validate(req); err != nil {
		return Result{}, err
	}
	if err := e.resolveJudge(ctx, run.JudgeID); err != nil {
		return Result{}, err
	}
	return e.fill(ctx, run, req)
}

func validate(req Request) error {
	if req.Limit <= 0 {
		return &PreconditionError{Field: "limit", Reason: fmt.Sprintf("got %d", req.Limit), Err: ErrInvalidLimit}
	}
	if req.ActorID == "" {
		return &PreconditionError{Field: "actor_id", Reason: "missing", Err: ErrMissingActor}
	}
	return docket.Query{Docket: req.Docket, Priority: req.Priority, Ready: req.Ready}.Validate()
}

func (e *Engine) resolveJudge(ctx context.Context, judgeID string) error {
	_, err := e.judges.ResolveActive(ctx, judgeID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, judge.ErrNotFound), errors.Is(err, judge.ErrInactive):
		return &PreconditionError{Field: "judge_id", Reason: err.Error(), Err: ErrJudgeInactive}
	default:
		return fmt.Errorf("distribution: resolve judge: %w", err)
	}
}

// fill walks the ranked candidates until Limit entries are written or the
// candidates run out. A failing item is rolled back and omitted.
func (e *Engine) fill(ctx context.Context, run Run, req Request) (Result, error) {
	log := e.logger.With("run", run.ID, "judge", run.JudgeID, "docket", req.Docket)
	res := Result{Run: run, Entries: []Entry{}, Skipped: []string{}, Failed: []ItemFailure{}}

	candidates, err := e.selector.RankedItems(ctx, docket.Query{
		Docket:   req.Docket,
		Priority: req.Priority,
		Ready:    req.Ready,
		JudgeID:  run.JudgeID,
	})
	if err != nil {
		e.closeRun(ctx, run.ID, RunError, log)
		return Result{}, fmt.Errorf("distribution: select candidates: %w", err)
	}

	for _, item := range candidates {
		if len(res.Entries) >= req.Limit {
			break
		}
		entry, err := e.claim(ctx, run, item)
		switch {
		case err == nil:
			res.Entries = append(res.Entries, entry)
		case errors.Is(err, ErrAlreadyClaimed):
			log.Debug("work item claimed elsewhere", "work_item", item.ExternalID)
			res.Skipped = append(res.Skipped, item.ExternalID)
		case errors.Is(err, ErrRunClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if closed, ok := e.closeRun(ctx, run.ID, RunError, log); ok {
				res.Run = closed
			}
			return res, fmt.Errorf("distribution: run %s aborted: %w", run.ID, err)
		default:
			log.Warn("work item rolled back", "work_item", item.ExternalID, "err", err)
			res.Failed = append(res.Failed, ItemFailure{WorkItemID: item.ExternalID, Err: err, Reason: err.Error()})
		}
	}

	if closed, ok := e.closeRun(ctx, run.ID, RunCompleted, log); ok {
		res.Run = closed
	}
	log.Info("distribution run finished",
		"distributed", len(res.Entries), "skipped", len(res.Skipped), "failed", len(res.Failed), "limit", req.Limit)
	return res, nil
}

func (e *Engine) closeRun(ctx context.Context, runID string, status RunStatus, log *slog.Logger) (Run, bool) {
	run, err := e.ledger.FinishRun(context.WithoutCancel(ctx), runID, status)
	if err != nil {
		log.Error("close run failed", "status", status, "err", err)
		return Run{}, false
	}
	return run, true
}

// claim runs one item transaction: lock and re-validate the appeal,
// supersede and insert ledger entries, assign the judge, enqueue the event.
func (e *Engine) claim(ctx context.Context, run Run, item appeal.Appeal) (Entry, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("distribution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := e.appeals.LockForClaim(ctx, tx, item.ExternalID)
	if err != nil {
		return Entry{}, err
	}
	if !locked.ReadyForDistribution() {
		return Entry{}, ErrAlreadyClaimed
	}

	now := e.now()
	entry, superseded, err := e.ledger.Claim(ctx, tx, ClaimParams{
		RunID:            run.ID,
		WorkItemID:       locked.ExternalID,
		Docket:           locked.Docket,
		Priority:         locked.Priority,
		ReadyAt:          *locked.ReadyAt,
		At:               now,
		SupersededCaseID: RedistributedCaseID(locked.ExternalID, now, e.loc),
	})
	if err != nil {
		return Entry{}, err
	}

	if err := e.appeals.AssignToJudge(ctx, tx, locked.ID, run.JudgeID); err != nil {
		return Entry{}, err
	}

	event := CaseDistributedEvent{
		RunID:          run.ID,
		JudgeID:        run.JudgeID,
		ActorID:        run.ActorID,
		WorkItemID:     entry.WorkItemID,
		CaseID:         entry.CaseID,
		Docket:         entry.Docket,
		Priority:       entry.Priority,
		ReadyAt:        entry.ReadyAt.UTC(),
		Redistribution: superseded,
	}
	if err := e.outbox.Enqueue(ctx, tx, outbox.TopicCaseDistributed, event); err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("distribution: commit tx: %w", err)
	}
	return entry, nil
}
