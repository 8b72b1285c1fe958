package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger records runs and their append-only entries.
type Ledger interface {
	StartRun(ctx context.Context, judgeID, actorID string) (Run, error)
	GetRun(ctx context.Context, runID string) (Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus) (Run, error)
	// Claim supersedes the work item's active entry, if any, and inserts a
	// new active entry under the run. The returned bool reports whether an
	// entry was superseded.
	Claim(ctx context.Context, tx pgx.Tx, params ClaimParams) (Entry, bool, error)
}

type PGLedger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

const runColumns = `id::text, judge_id, actor_id, status, created_at, completed_at`

const entryColumns = `id, distribution_id::text, work_item_id, case_id, docket, priority, ready_at,
       superseded_at, created_at`

func (l *PGLedger) StartRun(ctx context.Context, judgeID, actorID string) (Run, error) {
	query := fmt.Sprintf(`INSERT INTO distributions (judge_id, actor_id) VALUES ($1, $2) RETURNING %s`, runColumns)
	run, err := scanRun(l.pool.QueryRow(ctx, query, judgeID, actorID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Run{}, ErrRunInFlight
		}
		return Run{}, fmt.Errorf("distribution: start run: %w", err)
	}
	return run, nil
}

func (l *PGLedger) GetRun(ctx context.Context, runID string) (Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM distributions WHERE id = $1`, runColumns)
	run, err := scanRun(l.pool.QueryRow(ctx, query, runID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "22P02") {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("distribution: get run: %w", err)
	}
	return run, nil
}

// FinishRun closes an open run. Closing a run that is already closed returns
// ErrRunClosed.
func (l *PGLedger) FinishRun(ctx context.Context, runID string, status RunStatus) (Run, error) {
	if status != RunCompleted && status != RunError {
		return Run{}, fmt.Errorf("distribution: finish run: invalid status %q", status)
	}
	query := fmt.Sprintf(`
UPDATE distributions
SET status = $2, completed_at = now()
WHERE id = $1 AND status = 'started'
RETURNING %s`, runColumns)
	run, err := scanRun(l.pool.QueryRow(ctx, query, runID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := l.GetRun(ctx, runID); getErr != nil {
				return Run{}, getErr
			}
			return Run{}, ErrRunClosed
		}
		return Run{}, fmt.Errorf("distribution: finish run: %w", err)
	}
	return run, nil
}

func (l *PGLedger) Claim(ctx context.Context, tx pgx.Tx, p ClaimParams) (Entry, bool, error) {
	var status RunStatus
	err := tx.QueryRow(ctx, `SELECT status FROM distributions WHERE id = $1 FOR SHARE`, p.RunID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, ErrRunNotFound
		}
		return Entry{}, false, fmt.Errorf("distribution: lock run: %w", err)
	}
	if status != RunStarted {
		return Entry{}, false, ErrRunClosed
	}

	tag, err := tx.Exec(ctx, `
UPDATE distributed_cases
SET superseded_at = $2, case_id = $3
WHERE work_item_id = $1 AND superseded_at IS NULL`, p.WorkItemID, p.At, p.SupersededCaseID)
	if err != nil {
		return Entry{}, false, fmt.Errorf("distribution: supersede entry: %w", err)
	}
	superseded := tag.RowsAffected() > 0

	query := fmt.Sprintf(`
INSERT INTO distributed_cases (distribution_id, work_item_id, case_id, docket, priority, ready_at)
VALUES ($1, $2, $2, $3, $4, $5)
RETURNING %s`, entryColumns)
	entry, err := scanEntry(tx.QueryRow(ctx, query, p.RunID, p.WorkItemID, p.Docket, p.Priority, p.ReadyAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, false, ErrAlreadyClaimed
		}
		return Entry{}, false, fmt.Errorf("distribution: insert entry: %w", err)
	}
	return entry, superseded, nil
}

// EntriesForRun lists a run's entries in insertion order.
func (l *PGLedger) EntriesForRun(ctx context.Context, runID string) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM distributed_cases WHERE distribution_id = $1 ORDER BY id ASC`, entryColumns)
	return l.queryEntries(ctx, query, runID)
}

// ActiveEntry returns the single non-superseded entry for a work item.
func (l *PGLedger) ActiveEntry(ctx context.Context, workItemID string) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM distributed_cases WHERE work_item_id = $1 AND superseded_at IS NULL`, entryColumns)
	entry, err := scanEntry(l.pool.QueryRow(ctx, query, workItemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("distribution: active entry: %w", err)
	}
	return entry, nil
}

// History lists every entry ever written for a work item, oldest first.
func (l *PGLedger) History(ctx context.Context, workItemID string) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM distributed_cases WHERE work_item_id = $1 ORDER BY id ASC`, entryColumns)
	return l.queryEntries(ctx, query, workItemID)
}

func (l *PGLedger) queryEntries(ctx context.Context, query string, arg any) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("distribution: query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 16)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("distribution: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distribution: iterate entries: %w", err)
	}
	return entries, nil
}

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.JudgeID, &r.ActorID, &r.Status, &r.CreatedAt, &r.CompletedAt)
	return r, err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.RunID, &e.WorkItemID, &e.CaseID, &e.Docket, &e.Priority, &e.ReadyAt,
		&e.SupersededAt, &e.CreatedAt)
	return e, err
}
