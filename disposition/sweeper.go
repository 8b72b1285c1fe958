package disposition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultGrace is how long hearing staff have to record an outcome before a
// task is reported stale.
const DefaultGrace = 48 * time.Hour

// Store is what a sweep reads and writes.
type Store interface {
	ReadyForAction(ctx context.Context, cutoff time.Time) ([]Task, error)
	Transition(ctx context.Context, taskID int64, to Status) error
}

// Sweeper classifies hearing disposition tasks and applies the matching
// transition. It is meant to run on a schedule; each pass is one-shot.
type Sweeper struct {
	store   Store
	grace   time.Duration
	minAge  time.Duration
	workers int
	now     func() time.Time
	logger  *slog.Logger
}

func NewSweeper(store Store) *Sweeper {
	return &Sweeper{
		store:   store,
		grace:   DefaultGrace,
		minAge:  24 * time.Hour,
		workers: 4,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
}

func (s *Sweeper) WithGrace(d time.Duration) *Sweeper {
	if d > 0 {
		s.grace = d
	}
	return s
}

// WithMinAge sets how old a hearing must be before its task is swept.
func (s *Sweeper) WithMinAge(d time.Duration) *Sweeper {
	if d >= 0 {
		s.minAge = d
	}
	return s
}

func (s *Sweeper) WithWorkers(n int) *Sweeper {
	if n > 0 {
		s.workers = n
	}
	return s
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) WithLogger(logger *slog.Logger) *Sweeper {
	s.logger = logger
	return s
}

// Classify returns the label for task as of now and the status it should
// move to. A zero status means no transition.
func Classify(task Task, now time.Time, grace time.Duration) (Label, Status) {
	if task.Disposition == nil {
		if task.ScheduledFor.Before(now.Add(-grace)) {
			return LabelStale, ""
		}
		return LabelBetweenOneAndTwoDaysOld, ""
	}
	switch *task.Disposition {
	case OutcomeHeld:
		return LabelHeld, StatusHeld
	case OutcomeCancelled:
		return LabelCancelled, StatusCancelled
	case OutcomePostponed:
		return LabelPostponed, ""
	case OutcomeNoShow:
		return LabelNoShow, StatusNoShow
	default:
		return LabelUnknown, ""
	}
}

// Sweep processes every task ready for action. Only a failure to list the
// tasks fails the sweep; per-task errors are counted in the report.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	start := s.now()
	report := Report{
		Counts:     make(map[Label]int, len(Labels)),
		Failures:   []TaskFailure{},
		HearingIDs: []int64{},
		StartedAt:  start,
	}
	for _, l := range Labels {
		report.Counts[l] = 0
	}

	tasks, err := s.store.ReadyForAction(ctx, start.Add(-s.minAge))
	if err != nil {
		report.Duration = s.now().Sub(start)
		s.logSummary(report, err)
		return report, fmt.Errorf("disposition: enumerate tasks: %w", err)
	}
	for _, t := range tasks {
		report.HearingIDs = append(report.HearingIDs, t.HearingID)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)
	for _, task := range tasks {
		g.Go(func() error {
			label, err := s.process(ctx, task, start)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				report.Failures = append(report.Failures, TaskFailure{TaskID: task.ID, HearingID: task.HearingID, Reason: err.Error()})
				s.logger.Warn("disposition task failed", "task", task.ID, "hearing", task.HearingID, "err", err)
				return nil
			}
			report.Counts[label]++
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = s.now().Sub(start)
	s.logSummary(report, nil)
	return report, nil
}

func (s *Sweeper) process(ctx context.Context, task Task, now time.Time) (label Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disposition: task %d panicked: %v", task.ID, r)
		}
	}()

	label, to := Classify(task, now, s.grace)
	if to == "" {
		return label, nil
	}
	if err := s.store.Transition(ctx, task.ID, to); err != nil {
		return "", err
	}
	return label, nil
}

func (s *Sweeper) logSummary(r Report, fatal error) {
	attrs := []any{
		"result", "completed",
		"duration", r.Duration.String(),
		"errors", r.Errors,
		"hearing_ids", r.HearingIDs,
	}
	for _, l := range Labels {
		attrs = append(attrs, string(l), r.Counts[l])
	}
	if fatal != nil {
		attrs[1] = "failed"
		attrs = append(attrs, "fatal", fatal.Error())
		s.logger.Error("hearing disposition sweep", attrs...)
		return
	}
	s.logger.Info("hearing disposition sweep", attrs...)
}
