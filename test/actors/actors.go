package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docketflow/appeal"
	"docketflow/distribution"
	"docketflow/outbox"
)

// Stats counts what an actor did; chaos makes individual failures expected.
type Stats struct {
	Ops    int
	Errors int
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Distributor repeatedly distributes a random docket to one judge.
func Distributor(ctx context.Context, engine *distribution.Engine, judgeID string, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		req := distribution.Request{
			Docket:  appeal.DocketTypes[rand.Intn(len(appeal.DocketTypes))],
			JudgeID: judgeID,
			ActorID: "stress-" + judgeID,
			Limit:   1 + rand.Intn(5),
		}
		if rand.Intn(3) == 0 {
			priority := rand.Intn(2) == 0
			req.Priority = &priority
		}
		_, err := engine.Distribute(ctx, req)
		stats.Ops++
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if distribution.Rejected(err) && !errors.Is(err, distribution.ErrRunInFlight) {
				return fmt.Errorf("distributor %s: %w", judgeID, err)
			}
			stats.Errors++
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Returner puts distributed appeals back into the holding state so they are
// redistributed.
func Returner(ctx context.Context, pool *pgxpool.Pool, appeals *appeal.PGRepository, stats *Stats, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var externalID string
		err := pool.QueryRow(ctx, `SELECT external_id FROM appeals WHERE distribution_status='completed' ORDER BY random() LIMIT 1`).Scan(&externalID)
		if err == nil {
			err = appeals.Reopen(ctx, externalID, time.Now())
		}
		stats.Ops++
		if err != nil {
			stats.Errors++
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Holder places and resolves blocking conditions on random appeals.
func Holder(ctx context.Context, pool *pgxpool.Pool, holds *appeal.HoldRepository, stats *Stats, stop <-chan struct{}) error {
	kinds := []appeal.ConditionKind{appeal.KindFOIARequest, appeal.KindCongressionalInquiry, appeal.KindAddressChange}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var err error
		if rand.Intn(2) == 0 {
			var externalID string
			err = pool.QueryRow(ctx, `SELECT external_id FROM appeals WHERE distribution_status='assigned' ORDER BY random() LIMIT 1`).Scan(&externalID)
			if err == nil {
				_, err = holds.Create(ctx, externalID, kinds[rand.Intn(len(kinds))], "stress-holder")
			}
		} else {
			var conditionID int64
			err = pool.QueryRow(ctx, `SELECT id FROM blocking_conditions WHERE resolved_at IS NULL ORDER BY random() LIMIT 1`).Scan(&conditionID)
			if err == nil {
				_, err = holds.Resolve(ctx, conditionID, time.Now())
			}
		}
		stats.Ops++
		if err != nil {
			stats.Errors++
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, outbox.Message) error { return nil }

// OutboxWorker drains the outbox with a publisher that drops every message.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stats *Stats, stop <-chan struct{}) error {
	relay := outbox.NewRelay(pool, nil, discardPublisher{})
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, err := relay.RunOnce(ctx)
		stats.Ops++
		if err != nil {
			stats.Errors++
		}
		time.Sleep(100 * time.Millisecond)
	}
}
