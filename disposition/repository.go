package disposition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTaskNotFound = errors.New("disposition: task not found")
	ErrTaskClosed   = errors.New("disposition: task already closed")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReadyForAction lists open tasks whose hearing was scheduled before cutoff.
func (r *Repository) ReadyForAction(ctx context.Context, cutoff time.Time) ([]Task, error) {
	const query = `
		SELECT id, appeal_id, hearing_id, scheduled_for, disposition, status, updated_at
		FROM disposition_tasks
		WHERE status IN ('assigned', 'on_hold') AND scheduled_for < $1
		ORDER BY scheduled_for ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("disposition: list ready tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0, 32)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.AppealID, &t.HearingID, &t.ScheduledFor, &t.Disposition, &t.Status, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("disposition: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("disposition: iterate tasks: %w", err)
	}
	return tasks, nil
}

// Transition closes an open task with the given status.
func (r *Repository) Transition(ctx context.Context, taskID int64, to Status) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("disposition: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM disposition_tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("disposition: lock task: %w", err)
	}
	if !current.Open() {
		return ErrTaskClosed
	}

	if _, err := tx.Exec(ctx, `UPDATE disposition_tasks SET status = $2, updated_at = now() WHERE id = $1`, taskID, to); err != nil {
		return fmt.Errorf("disposition: update task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("disposition: commit tx: %w", err)
	}
	return nil
}

// CreateParams is used by fixtures and the hearing intake path.
type CreateParams struct {
	AppealID     int64
	HearingID    int64
	ScheduledFor time.Time
	Disposition  *string
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Task, error) {
	const query = `
		INSERT INTO disposition_tasks (appeal_id, hearing_id, scheduled_for, disposition)
		VALUES ($1, $2, $3, $4)
		RETURNING id, appeal_id, hearing_id, scheduled_for, disposition, status, updated_at
	`
	var t Task
	err := r.pool.QueryRow(ctx, query, p.AppealID, p.HearingID, p.ScheduledFor, p.Disposition).
		Scan(&t.ID, &t.AppealID, &t.HearingID, &t.ScheduledFor, &t.Disposition, &t.Status, &t.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("disposition: create task: %w", err)
	}
	return t, nil
}
