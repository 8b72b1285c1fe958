// Package chaos injects connection failures while the stress actors run.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const terminateOne = `
SELECT pg_terminate_backend(pid)
FROM pg_stat_activity
WHERE datname = current_database()
  AND pid <> pg_backend_pid()
  AND ($1 = '' OR application_name = $1)
ORDER BY random()
LIMIT 1`

// BackendKiller terminates one random backend of the current database with
// probability 1/OneIn on every tick. Backends are limited to AppName when it
// is set.
type BackendKiller struct {
	Pool    *pgxpool.Pool
	AppName string
	Every   time.Duration
	OneIn   int
	Rand    *rand.Rand
}

// Run blocks until ctx is done or stop is closed and returns the number of
// terminate attempts.
func (k BackendKiller) Run(ctx context.Context, stop <-chan struct{}) int {
	every, oneIn, rng := k.Every, k.OneIn, k.Rand
	if every <= 0 {
		every = 2 * time.Second
	}
	if oneIn <= 0 {
		oneIn = 5
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return attempts
		case <-stop:
			return attempts
		case <-ticker.C:
			if rng.Intn(oneIn) != 0 {
				continue
			}
			attempts++
			_, _ = k.Pool.Exec(ctx, terminateOne, k.AppName)
		}
	}
}
