package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrEmptyTopic = errors.New("outbox: empty topic")

// Repository reads and writes outbox rows inside caller-owned transactions.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Enqueue writes a pending message in tx so it commits or rolls back with the
// change it describes.
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (topic, payload)
VALUES ($1, $2);
`
	if _, err := tx.Exec(ctx, insertSQL, topic, b); err != nil {
		return fmt.Errorf("outbox: insert message: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit pending messages, oldest first. Rows locked
// by another relay are skipped.
func (r *Repository) ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const query = `
SELECT id::text, topic, payload, status, attempts, last_attempt, created_at
FROM outbox
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED;
`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim pending: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.LastAttempt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate messages: %w", err)
	}
	return msgs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1, last_attempt=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("outbox: mark processed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The message goes dead once
// maxAttempts is reached.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) error {
	_, err := tx.Exec(ctx, `
UPDATE outbox
SET attempts = attempts + 1,
    last_attempt = now(),
    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END
WHERE id = $1`, id, maxAttempts)
	if err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}
