package judge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested judge does not exist.
var ErrNotFound = errors.New("judge: not found")

// Repository provides read access to judge profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a judge profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id, css_id, full_name, active, created_at
		FROM judges
		WHERE id = $1
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.CSSID,
		&profile.FullName,
		&profile.Active,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("judge: query by id: %w", err)
	}

	return profile, nil
}

// List fetches up to limit judge profiles ordered by name. When activeOnly is
// set, inactive judges are left out.
func (r *Repository) List(ctx context.Context, limit int, activeOnly bool) ([]Profile, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	const query = `
		SELECT id, css_id, full_name, active, created_at
		FROM judges
		WHERE active OR NOT $2
		ORDER BY full_name ASC, id ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("judge: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, 16)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.CSSID, &profile.FullName, &profile.Active, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("judge: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("judge: iterate profiles: %w", err)
	}

	return profiles, nil
}

// ActiveIDsAfter returns up to limit active judge ids greater than afterID,
// in id order. An empty afterID starts from the beginning.
func (r *Repository) ActiveIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	const query = `
		SELECT id
		FROM judges
		WHERE active AND id > $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("judge: page active ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("judge: scan active ids: %w", err)
	}
	return ids, nil
}

// Create inserts a judge. Used by seeding and tests.
func (r *Repository) Create(ctx context.Context, profile Profile) (Profile, error) {
	const query = `
		INSERT INTO judges (id, css_id, full_name, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, css_id, full_name, active, created_at
	`
	var out Profile
	if err := r.pool.QueryRow(ctx, query, profile.ID, profile.CSSID, profile.FullName, profile.Active).
		Scan(&out.ID, &out.CSSID, &out.FullName, &out.Active, &out.CreatedAt); err != nil {
		return Profile{}, fmt.Errorf("judge: create: %w", err)
	}
	return out, nil
}
