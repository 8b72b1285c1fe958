package docket

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"docketflow/appeal"
)

// DecisionCounter counts decisions issued on non-priority appeals.
type DecisionCounter interface {
	CountNonpriorityDecisions(ctx context.Context, from, to time.Time) (int, error)
}

// Count returns the number of eligible appeals in d. A nil priority counts
// both classes.
func (s *Service) Count(ctx context.Context, d appeal.DocketType, priority *bool) (int, error) {
	items, err := s.EligibleItems(ctx, Query{Docket: d, Priority: priority})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// ReadyPriorityIDs returns the external ids of eligible priority appeals in
// distribution order.
func (s *Service) ReadyPriorityIDs(ctx context.Context, d appeal.DocketType) ([]string, error) {
	items, err := s.RankedItems(ctx, Query{Docket: d, Priority: boolPtr(true)})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, a := range items {
		ids = append(ids, a.ExternalID)
	}
	return ids, nil
}

// GenpopPriorityCount counts eligible priority appeals not tied to a judge.
func (s *Service) GenpopPriorityCount(ctx context.Context, d appeal.DocketType) (int, error) {
	items, err := s.genpopPriority(ctx, d)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// AgeOfNOldestGenpopPriority returns the ready timestamps of the n oldest
// untied priority appeals, oldest first.
func (s *Service) AgeOfNOldestGenpopPriority(ctx context.Context, d appeal.DocketType, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := s.genpopPriority(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(items) > n {
		items = items[:n]
	}
	out := make([]time.Time, 0, len(items))
	for _, a := range items {
		out = append(out, readyOf(a))
	}
	return out, nil
}

// AgeOfOldestPriority returns the ready timestamp of the oldest eligible
// priority appeal, or nil when there is none.
func (s *Service) AgeOfOldestPriority(ctx context.Context, d appeal.DocketType) (*time.Time, error) {
	items, err := s.RankedItems(ctx, Query{Docket: d, Priority: boolPtr(true)})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	t := readyOf(items[0])
	return &t, nil
}

// OldestPriorityWaitDays is the number of whole calendar days, in UTC,
// between the oldest eligible priority appeal becoming ready and asOf.
func (s *Service) OldestPriorityWaitDays(ctx context.Context, d appeal.DocketType, asOf time.Time) (*int, error) {
	oldest, err := s.AgeOfOldestPriority(ctx, d)
	if err != nil || oldest == nil {
		return nil, err
	}
	days := CalendarDays(*oldest, asOf)
	return &days, nil
}

// NonpriorityDecisionsPerYear counts non-priority decisions across every
// docket with a decision date in the year ending on asOf.
func (s *Service) NonpriorityDecisionsPerYear(ctx context.Context, asOf time.Time) (int, error) {
	if s.decisions == nil {
		return 0, fmt.Errorf("docket: decision counter not configured")
	}
	to := dateOf(asOf)
	from := to.AddDate(0, 0, -365)
	n, err := s.decisions.CountNonpriorityDecisions(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("docket: count decisions: %w", err)
	}
	return n, nil
}

func (s *Service) genpopPriority(ctx context.Context, d appeal.DocketType) ([]appeal.Appeal, error) {
	items, err := s.RankedItems(ctx, Query{Docket: d, Priority: boolPtr(true)})
	if err != nil {
		return nil, err
	}
	return appeal.Filter(items, func(a appeal.Appeal) bool { return a.Genpop() }), nil
}

// Snapshot is the dashboard view of one docket.
type Snapshot struct {
	Docket                      appeal.DocketType `json:"docket"`
	AsOf                        time.Time         `json:"as_of"`
	Priority                    int               `json:"priority"`
	Nonpriority                 int               `json:"nonpriority"`
	GenpopPriority              int               `json:"genpop_priority"`
	OldestPriorityWaitDays      *int              `json:"oldest_priority_wait_days"`
	NonpriorityDecisionsPerYear int               `json:"nonpriority_decisions_per_year"`
}

// Dashboard builds docket snapshots. Concurrent requests for the same docket
// and day share one computation.
type Dashboard struct {
	svc   *Service
	group singleflight.Group
}

func NewDashboard(svc *Service) *Dashboard {
	return &Dashboard{svc: svc}
}

func (d *Dashboard) Snapshot(ctx context.Context, docket appeal.DocketType) (Snapshot, error) {
	if !docket.Valid() {
		return Snapshot{}, &PreconditionError{Field: "docket", Reason: fmt.Sprintf("unknown docket %q", docket), Err: ErrUnknownDocket}
	}
	asOf := d.svc.now().UTC()
	key := string(docket) + "|" + asOf.Format(time.DateOnly)

	// The shared build outlives any one caller; each caller still stops
	// waiting when its own context ends.
	ch := d.group.DoChan(key, func() (any, error) {
		return d.build(context.WithoutCancel(ctx), docket, asOf)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (d *Dashboard) build(ctx context.Context, docket appeal.DocketType, asOf time.Time) (Snapshot, error) {
	snap := Snapshot{Docket: docket, AsOf: asOf}

	items, err := d.svc.EligibleItems(ctx, Query{Docket: docket})
	if err != nil {
		return Snapshot{}, err
	}
	var oldest *time.Time
	for _, a := range items {
		if !a.Priority {
			snap.Nonpriority++
			continue
		}
		snap.Priority++
		if a.Genpop() {
			snap.GenpopPriority++
		}
		if t := readyOf(a); oldest == nil || t.Before(*oldest) {
			oldest = &t
		}
	}
	if oldest != nil {
		days := CalendarDays(*oldest, asOf)
		snap.OldestPriorityWaitDays = &days
	}

	if d.svc.decisions != nil {
		n, err := d.svc.NonpriorityDecisionsPerYear(ctx, asOf)
		if err != nil {
			return Snapshot{}, err
		}
		snap.NonpriorityDecisionsPerYear = n
	}
	return snap, nil
}

// CalendarDays is the difference in UTC calendar dates from a to b.
func CalendarDays(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func readyOf(a appeal.Appeal) time.Time {
	if a.ReadyAt == nil {
		return time.Time{}
	}
	return *a.ReadyAt
}

func boolPtr(v bool) *bool { return &v }
