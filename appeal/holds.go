package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrConditionNotFound = errors.New("appeal: blocking condition not found")
	ErrAlreadyResolved   = errors.New("appeal: blocking condition already resolved")
	ErrUnknownKind       = errors.New("appeal: unknown condition kind")
)

// HoldRepository manages the lifecycle of administrative holds. Conditions
// are resolved, never deleted.
type HoldRepository struct {
	pool *pgxpool.Pool
}

func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{pool: pool}
}

func (r *HoldRepository) List(ctx context.Context, appealID int64) ([]Condition, error) {
	return queryConditions(ctx, r.pool, []int64{appealID})
}

func (r *HoldRepository) Create(ctx context.Context, externalID string, kind ConditionKind, actorID string) (Condition, error) {
	if !kind.Known() {
		return Condition{}, ErrUnknownKind
	}

	const query = `
		INSERT INTO blocking_conditions (appeal_id, kind, created_by)
		SELECT a.id, $2, NULLIF($3, '')
		FROM appeals a
		WHERE a.external_id = $1
		RETURNING id, appeal_id, kind, resolved_at, created_by, created_at
	`
	c, err := scanCondition(r.pool.QueryRow(ctx, query, externalID, kind, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Condition{}, ErrNotFound
		}
		return Condition{}, fmt.Errorf("appeal: create condition: %w", err)
	}
	return c, nil
}

// Resolve stamps the resolution time. Cancelling a hold resolves it too.
func (r *HoldRepository) Resolve(ctx context.Context, conditionID int64, at time.Time) (Condition, error) {
	const query = `
		UPDATE blocking_conditions
		SET resolved_at = $2
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING id, appeal_id, kind, resolved_at, created_by, created_at
	`
	c, err := scanCondition(r.pool.QueryRow(ctx, query, conditionID, at))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Condition{}, fmt.Errorf("appeal: resolve condition: %w", err)
	}

	var resolvedAt *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT resolved_at FROM blocking_conditions WHERE id = $1`, conditionID).Scan(&resolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Condition{}, ErrConditionNotFound
		}
		return Condition{}, fmt.Errorf("appeal: resolve fetch: %w", err)
	}
	return Condition{}, ErrAlreadyResolved
}
