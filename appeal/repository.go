package appeal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("appeal: not found")
)

// Store is the read and write surface the docket and engine need from the
// work-item store.
type Store interface {
	ListCandidates(ctx context.Context, filters Filters) ([]Appeal, error)
	LockForClaim(ctx context.Context, tx pgx.Tx, externalID string) (Appeal, error)
	AssignToJudge(ctx context.Context, tx pgx.Tx, appealID int64, judgeID string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const appealColumns = `id, external_id, docket_type, aod, ready_at, distribution_status, active,
       assigned_judge_id, tied_judge_id, created_at, updated_at`

// ListCandidates returns appeals and their blocking conditions from a single
// repeatable-read snapshot, ordered by ready_at then id.
func (r *PGRepository) ListCandidates(ctx context.Context, filters Filters) ([]Appeal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("appeal: begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	where := []string{"1=1"}
	args := []any{}
	if filters.Docket != "" {
		where = append(where, fmt.Sprintf("docket_type=$%d", len(args)+1))
		args = append(args, filters.Docket)
	}
	if filters.Priority != nil {
		where = append(where, fmt.Sprintf("aod=$%d", len(args)+1))
		args = append(args, *filters.Priority)
	}
	if filters.ReadyOnly {
		where = append(where, "active", "distribution_status='assigned'", "ready_at IS NOT NULL")
	}

	query := fmt.Sprintf(`SELECT %s FROM appeals WHERE %s ORDER BY ready_at ASC NULLS LAST, id ASC`,
		appealColumns, strings.Join(where, " AND "))
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appeal: query candidates: %w", err)
	}
	defer rows.Close()

	list := []Appeal{}
	index := map[int64]int{}
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, fmt.Errorf("appeal: scan candidate: %w", err)
		}
		index[a.ID] = len(list)
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appeal: iterate candidates: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]int64, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	conds, err := queryConditions(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range conds {
		i := index[c.AppealID]
		list[i].Conditions = append(list[i].Conditions, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appeal: close snapshot: %w", err)
	}
	return list, nil
}

// GetByExternalID loads one appeal with its conditions.
func (r *PGRepository) GetByExternalID(ctx context.Context, externalID string) (Appeal, error) {
	query := fmt.Sprintf(`SELECT %s FROM appeals WHERE external_id = $1`, appealColumns)
	a, err := scanAppeal(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appeal{}, ErrNotFound
		}
		return Appeal{}, fmt.Errorf("appeal: get: %w", err)
	}
	conds, err := queryConditions(ctx, r.pool, []int64{a.ID})
	if err != nil {
		return Appeal{}, err
	}
	a.Conditions = conds
	return a, nil
}

// LockForClaim takes the row lock that serialises concurrent claims on one
// appeal for the rest of tx.
func (r *PGRepository) LockForClaim(ctx context.Context, tx pgx.Tx, externalID string) (Appeal, error) {
	query := fmt.Sprintf(`SELECT %s FROM appeals WHERE external_id = $1 FOR UPDATE`, appealColumns)
	a, err := scanAppeal(tx.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appeal{}, ErrNotFound
		}
		return Appeal{}, fmt.Errorf("appeal: lock for claim: %w", err)
	}
	return a, nil
}

// AssignToJudge moves the appeal out of the holding state and onto the
// judge's queue.
func (r *PGRepository) AssignToJudge(ctx context.Context, tx pgx.Tx, appealID int64, judgeID string) error {
	const query = `
		UPDATE appeals
		SET distribution_status = 'completed',
		    assigned_judge_id = $2,
		    updated_at = now()
		WHERE id = $1 AND distribution_status = 'assigned'
	`
	tag, err := tx.Exec(ctx, query, appealID, judgeID)
	if err != nil {
		return fmt.Errorf("appeal: assign to judge: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("appeal: assign to judge: appeal %d left the holding state", appealID)
	}
	return nil
}

// Reopen cancels the current judge assignment and puts the appeal back in
// the holding state, which makes it eligible for redistribution.
func (r *PGRepository) Reopen(ctx context.Context, externalID string, readyAt time.Time) error {
	const query = `
		UPDATE appeals
		SET distribution_status = 'assigned',
		    assigned_judge_id = NULL,
		    ready_at = $2,
		    updated_at = now()
		WHERE external_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, externalID, readyAt)
	if err != nil {
		return fmt.Errorf("appeal: reopen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateParams enumerates the columns set when an appeal enters the store.
type CreateParams struct {
	ExternalID  string
	Docket      DocketType
	Priority    bool
	ReadyAt     *time.Time
	Status      DistributionStatus
	TiedJudgeID *string
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Appeal, error) {
	if params.ExternalID == "" {
		return Appeal{}, fmt.Errorf("appeal: external id required")
	}
	if !params.Docket.Valid() {
		return Appeal{}, fmt.Errorf("appeal: unknown docket %q", params.Docket)
	}
	if params.Status == "" {
		params.Status = StatusAssigned
	}

	query := fmt.Sprintf(`
		INSERT INTO appeals (external_id, docket_type, aod, ready_at, distribution_status, tied_judge_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, appealColumns)
	a, err := scanAppeal(r.pool.QueryRow(ctx, query,
		params.ExternalID,
		params.Docket,
		params.Priority,
		params.ReadyAt,
		params.Status,
		params.TiedJudgeID,
	))
	if err != nil {
		return Appeal{}, fmt.Errorf("appeal: create: %w", err)
	}
	return a, nil
}

// PGChecker answers the blocking question straight from the store.
type PGChecker struct {
	pool *pgxpool.Pool
}

func NewPGChecker(pool *pgxpool.Pool) *PGChecker {
	return &PGChecker{pool: pool}
}

func (c *PGChecker) HasBlockingCondition(ctx context.Context, a Appeal) (bool, error) {
	conds, err := queryConditions(ctx, c.pool, []int64{a.ID})
	if err != nil {
		return false, err
	}
	return Blocked(conds), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryConditions(ctx context.Context, q querier, appealIDs []int64) ([]Condition, error) {
	const query = `
		SELECT id, appeal_id, kind, resolved_at, created_by, created_at
		FROM blocking_conditions
		WHERE appeal_id = ANY($1)
		ORDER BY id ASC
	`
	rows, err := q.Query(ctx, query, appealIDs)
	if err != nil {
		return nil, fmt.Errorf("appeal: query conditions: %w", err)
	}
	defer rows.Close()

	out := make([]Condition, 0, len(appealIDs))
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("appeal: scan condition: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appeal: iterate conditions: %w", err)
	}
	return out, nil
}

func scanAppeal(row pgx.Row) (Appeal, error) {
	var a Appeal
	err := row.Scan(
		&a.ID,
		&a.ExternalID,
		&a.Docket,
		&a.Priority,
		&a.ReadyAt,
		&a.DistributionStatus,
		&a.Active,
		&a.AssignedJudgeID,
		&a.TiedJudgeID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func scanCondition(row pgx.Row) (Condition, error) {
	var c Condition
	err := row.Scan(&c.ID, &c.AppealID, &c.Kind, &c.ResolvedAt, &c.CreatedBy, &c.CreatedAt)
	return c, err
}
