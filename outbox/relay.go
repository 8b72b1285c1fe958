package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Store is the relay's view of the outbox table.
type Store interface {
	ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) error
}

// Relay moves pending outbox rows to a Publisher.
type Relay struct {
	pool        TxBeginner
	store       Store
	publisher   Publisher
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
}

func NewRelay(pool TxBeginner, store Store, publisher Publisher) *Relay {
	if store == nil {
		store = NewRepository()
	}
	return &Relay{
		pool:        pool,
		store:       store,
		publisher:   publisher,
		batchSize:   50,
		maxAttempts: 5,
		logger:      slog.New(slog.DiscardHandler),
	}
}

func (r *Relay) WithBatchSize(n int) *Relay {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Relay) WithMaxAttempts(n int) *Relay {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *Relay) WithLogger(logger *slog.Logger) *Relay {
	r.logger = logger
	return r
}

// RelayResult counts the outcome of one batch.
type RelayResult struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// RunOnce publishes one batch. Publish failures are recorded on the row and
// do not fail the batch.
func (r *Relay) RunOnce(ctx context.Context) (RelayResult, error) {
	var res RelayResult

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := r.store.ClaimPending(ctx, tx, r.batchSize)
	if err != nil {
		return res, err
	}

	for _, m := range msgs {
		if err := r.publisher.Publish(ctx, m); err != nil {
			r.logger.Warn("outbox publish failed", "id", m.ID, "topic", m.Topic, "attempt", m.Attempts+1, "err", err)
			if err := r.store.MarkFailed(ctx, tx, m.ID, r.maxAttempts); err != nil {
				return RelayResult{}, err
			}
			res.Failed++
			continue
		}
		if err := r.store.MarkProcessed(ctx, tx, m.ID); err != nil {
			return RelayResult{}, err
		}
		res.Published++
	}

	if err := tx.Commit(ctx); err != nil {
		return RelayResult{}, fmt.Errorf("outbox: commit tx: %w", err)
	}
	return res, nil
}

// Run calls RunOnce every interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("outbox relay batch failed", "err", err)
		} else if res.Published+res.Failed > 0 {
			r.logger.Info("outbox relay batch", "published", res.Published, "failed", res.Failed)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
