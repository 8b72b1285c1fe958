package docket

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DecisionRepository struct {
	pool *pgxpool.Pool
}

func NewDecisionRepository(pool *pgxpool.Pool) *DecisionRepository {
	return &DecisionRepository{pool: pool}
}

// CountNonpriorityDecisions counts decisions dated in (from, to] whose
// appeal is not advanced on the docket.
func (r *DecisionRepository) CountNonpriorityDecisions(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
SELECT count(*)
FROM decisions d
JOIN appeals a ON a.id = d.appeal_id
WHERE NOT a.aod
  AND d.decision_date > $1::date
  AND d.decision_date <= $2::date`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("docket: count nonpriority decisions: %w", err)
	}
	return n, nil
}

// RecordDecision stores a decision date for an appeal.
func (r *DecisionRepository) RecordDecision(ctx context.Context, appealID int64, decided time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO decisions (appeal_id, decision_date) VALUES ($1, $2::date)`,
		appealID, dateOf(decided))
	if err != nil {
		return fmt.Errorf("docket: record decision: %w", err)
	}
	return nil
}
