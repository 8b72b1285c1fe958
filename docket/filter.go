package docket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docketflow/appeal"
)

// Query selects eligible appeals from one docket.
type Query struct {
	Docket appeal.DocketType
	// Priority restricts the class. Nil returns both classes.
	Priority *bool
	// Ready is a default-true criterion. Passing false is rejected.
	Ready *bool
	// JudgeID, when set, drops appeals tied to other judges.
	JudgeID string
}

// Validate rejects malformed queries before any store access.
func (q Query) Validate() error {
	if q.Ready != nil && !*q.Ready {
		return &PreconditionError{Field: "ready", Reason: "'ready for distribution' value cannot be false", Err: ErrInvalidFilter}
	}
	if !q.Docket.Valid() {
		return &PreconditionError{Field: "docket", Reason: fmt.Sprintf("unknown docket %q", q.Docket), Err: ErrUnknownDocket}
	}
	return nil
}

// CandidateLister reads appeals and their conditions from one snapshot.
type CandidateLister interface {
	ListCandidates(ctx context.Context, filters appeal.Filters) ([]appeal.Appeal, error)
}

// Service answers readiness, ranking and dashboard questions for every
// docket.
type Service struct {
	store      CandidateLister
	checker    appeal.Checker
	decisions  DecisionCounter
	strategies map[appeal.DocketType]Strategy
	now        func() time.Time
	logger     *slog.Logger
}

func NewService(store CandidateLister) *Service {
	return &Service{
		store:      store,
		checker:    appeal.SnapshotChecker{},
		strategies: DefaultStrategies(),
		now:        time.Now,
		logger:     slog.New(slog.DiscardHandler),
	}
}

func (s *Service) WithChecker(c appeal.Checker) *Service {
	s.checker = c
	return s
}

func (s *Service) WithDecisions(d DecisionCounter) *Service {
	s.decisions = d
	return s
}

func (s *Service) WithStrategy(strategy Strategy) *Service {
	s.strategies[strategy.Docket] = strategy
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Strategy returns the strategy configured for d.
func (s *Service) Strategy(d appeal.DocketType) Strategy {
	if st, ok := s.strategies[d]; ok {
		return st
	}
	return Strategy{Docket: d}
}

// EligibleItems returns the appeals of q.Docket that are ready, unblocked and
// in the requested class. The result is in store order; use Rank or
// RankedItems for distribution order.
func (s *Service) EligibleItems(ctx context.Context, q Query) ([]appeal.Appeal, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	candidates, err := s.store.ListCandidates(ctx, appeal.Filters{
		Docket:    q.Docket,
		Priority:  q.Priority,
		ReadyOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("docket: list candidates: %w", err)
	}

	pred := appeal.All(
		appeal.InDocket(q.Docket),
		appeal.Ready(),
		appeal.PriorityIs(q.Priority),
		s.Strategy(q.Docket).readiness(q),
	)

	out := make([]appeal.Appeal, 0, len(candidates))
	for _, a := range candidates {
		if !pred(a) {
			continue
		}
		blocked, err := s.checker.HasBlockingCondition(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("docket: check blocking conditions: %w", err)
		}
		if blocked {
			s.logger.Debug("appeal held back by blocking condition",
				"docket", q.Docket, "appeal", a.ExternalID)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// RankedItems is EligibleItems followed by Rank with the docket's strategy.
func (s *Service) RankedItems(ctx context.Context, q Query) ([]appeal.Appeal, error) {
	items, err := s.EligibleItems(ctx, q)
	if err != nil {
		return nil, err
	}
	return Rank(items, s.Strategy(q.Docket)), nil
}
