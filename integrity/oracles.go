package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that returns no rows while its invariant holds.
type Oracle struct {
	Name        string
	Description string
	SQL         string
}

func All() []Oracle {
	return []Oracle{
		{
			Name:        "single_active_entry",
			Description: "work items with more than one active ledger entry",
			SQL: `SELECT work_item_id, COUNT(*) FROM distributed_cases
                  WHERE superseded_at IS NULL
                  GROUP BY work_item_id HAVING COUNT(*) > 1`,
		},
		{
			Name:        "case_id_shape",
			Description: "active entries not carrying the plain id, or superseded entries missing the dated suffix",
			SQL: `SELECT id, work_item_id, case_id FROM distributed_cases
                  WHERE (superseded_at IS NULL AND case_id <> work_item_id)
                     OR (superseded_at IS NOT NULL
                         AND (left(case_id, length(work_item_id)) <> work_item_id
                              OR substr(case_id, length(work_item_id) + 1)
                                 !~ '^-redistributed-[0-9]{4}-[0-9]{2}-[0-9]{2}$'))`,
		},
		{
			Name:        "assignment_matches_ledger",
			Description: "distributed appeals whose judge differs from the run holding their active entry",
			SQL: `SELECT a.external_id, a.assigned_judge_id, d.judge_id
                  FROM appeals a
                  JOIN distributed_cases c ON c.work_item_id = a.external_id AND c.superseded_at IS NULL
                  JOIN distributions d ON d.id = c.distribution_id
                  WHERE a.distribution_status = 'completed'
                    AND a.assigned_judge_id IS DISTINCT FROM d.judge_id`,
		},
		{
			Name:        "entry_after_run_closed",
			Description: "ledger entries written after their run was closed",
			SQL: `SELECT c.id, c.distribution_id, c.created_at, d.completed_at
                  FROM distributed_cases c
                  JOIN distributions d ON d.id = c.distribution_id
                  WHERE d.completed_at IS NOT NULL AND c.created_at > d.completed_at`,
		},
		{
			Name:        "ledger_delete_guard",
			Description: "append-only trigger missing from the ledger table",
			SQL: `SELECT 'missing_no_delete_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_delete_distributed_cases')`,
		},
		{
			Name:        "stale_outbox",
			Description: "outbox messages pending for more than five minutes",
			SQL: `SELECT id::text, topic, attempts, created_at FROM outbox
                  WHERE status = 'pending'
                    AND now()-created_at > interval '5 minutes'`,
		},
		{
			Name:        "closed_task_without_outcome",
			Description: "disposition tasks closed by a sweep without a recorded hearing outcome",
			SQL: `SELECT id, hearing_id, status FROM disposition_tasks
                  WHERE status IN ('held','cancelled','no_show') AND disposition IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		sample, _, err := probe(ctx, pool, o, 1)
		if err != nil {
			return o.Name, "", err
		}
		if len(sample) > 0 {
			return o.Name, sample[0], nil
		}
	}
	return "", "", nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// probe returns up to limit formatted rows and the total row count.
func probe(ctx context.Context, q querier, o Oracle, limit int) ([]string, int, error) {
	rows, err := q.Query(ctx, o.SQL)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle %s: %w", o.Name, err)
	}
	defer rows.Close()

	var (
		sample []string
		total  int
	)
	for rows.Next() {
		total++
		if len(sample) >= limit {
			continue
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, 0, fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		sample = append(sample, fmt.Sprintf("%v", vals))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("oracle %s: %w", o.Name, err)
	}
	return sample, total, nil
}

// Finding is one violated oracle.
type Finding struct {
	Oracle      string   `json:"oracle"`
	Description string   `json:"description"`
	Count       int      `json:"count"`
	Sample      []string `json:"sample"`
}

type Report struct {
	CheckedAt time.Time `json:"checked_at"`
	Findings  []Finding `json:"findings"`
}

func (r Report) OK() bool { return len(r.Findings) == 0 }

// Checker runs every oracle and reports all violations.
type Checker struct {
	q          querier
	oracles    []Oracle
	sampleSize int
	now        func() time.Time
}

func NewChecker(pool *pgxpool.Pool) *Checker {
	return newChecker(pool)
}

func newChecker(q querier) *Checker {
	return &Checker{q: q, oracles: All(), sampleSize: 5, now: time.Now}
}

func (c *Checker) Check(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: c.now().UTC(), Findings: []Finding{}}
	for _, o := range c.oracles {
		sample, total, err := probe(ctx, c.q, o, c.sampleSize)
		if err != nil {
			return Report{}, err
		}
		if total == 0 {
			continue
		}
		report.Findings = append(report.Findings, Finding{
			Oracle:      o.Name,
			Description: o.Description,
			Count:       total,
			Sample:      sample,
		})
	}
	return report, nil
}
