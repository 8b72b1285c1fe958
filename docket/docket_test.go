package docket

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docketflow/appeal"
)

type stubLister struct {
	appeals []appeal.Appeal
	calls   int
	err     error
}

func (s *stubLister) ListCandidates(_ context.Context, f appeal.Filters) ([]appeal.Appeal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := []appeal.Appeal{}
	for _, a := range s.appeals {
		if f.Docket != "" && a.Docket != f.Docket {
			continue
		}
		if f.Priority != nil && a.Priority != *f.Priority {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type stubDecisions struct {
	from, to time.Time
	n        int
}

func (s *stubDecisions) CountNonpriorityDecisions(_ context.Context, from, to time.Time) (int, error) {
	s.from, s.to = from, to
	return s.n, nil
}

var now = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func readyAppeal(id string, d appeal.DocketType, priority bool, age time.Duration) appeal.Appeal {
	t := now.Add(-age)
	return appeal.Appeal{
		ExternalID:         id,
		Docket:             d,
		Priority:           priority,
		ReadyAt:            &t,
		DistributionStatus: appeal.StatusAssigned,
		Active:             true,
	}
}

func ids(items []appeal.Appeal) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ExternalID)
	}
	return out
}

const day = 24 * time.Hour

func TestEligibleItemsPriorityPartition(t *testing.T) {
	lister := &stubLister{appeals: []appeal.Appeal{
		readyAppeal("p1", appeal.DocketDirectReview, true, 5*day),
		readyAppeal("n1", appeal.DocketDirectReview, false, 9*day),
		readyAppeal("p2", appeal.DocketDirectReview, true, 1*day),
		readyAppeal("other", appeal.DocketHearing, true, 3*day),
	}}
	svc := NewService(lister)

	pri, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketDirectReview, Priority: boolPtr(true)})
	require.NoError(t, err)
	non, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketDirectReview, Priority: boolPtr(false)})
	require.NoError(t, err)
	all, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketDirectReview})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"p1", "p2"}, ids(pri))
	assert.ElementsMatch(t, []string{"n1"}, ids(non))
	assert.ElementsMatch(t, append(ids(pri), ids(non)...), ids(all))
}

func TestEligibleItemsDropsBlockedAndUnready(t *testing.T) {
	resolved := now.Add(-time.Hour)
	blocked := readyAppeal("blocked", appeal.DocketEvidenceSubmission, false, day)
	blocked.Conditions = []appeal.Condition{{Kind: appeal.KindFOIARequest}}
	unblocked := readyAppeal("resolved", appeal.DocketEvidenceSubmission, false, day)
	unblocked.Conditions = []appeal.Condition{{Kind: appeal.KindFOIARequest, ResolvedAt: &resolved}}
	harmless := readyAppeal("harmless", appeal.DocketEvidenceSubmission, false, day)
	harmless.Conditions = []appeal.Condition{{Kind: appeal.KindAddressChange}}
	closed := readyAppeal("closed", appeal.DocketEvidenceSubmission, false, day)
	closed.Active = false
	onHold := readyAppeal("on-hold", appeal.DocketEvidenceSubmission, false, day)
	onHold.DistributionStatus = appeal.StatusOnHold

	svc := NewService(&stubLister{appeals: []appeal.Appeal{blocked, unblocked, harmless, closed, onHold}})
	items, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketEvidenceSubmission})
	require.NoError(t, err)
	assert.Equal(t, []string{"resolved", "harmless"}, ids(items))
}

func TestEligibleItemsRejectsReadyFalseWithoutQuerying(t *testing.T) {
	lister := &stubLister{}
	svc := NewService(lister)

	_, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketHearing, Ready: boolPtr(false)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
	assert.True(t, Rejected(err))
	assert.Zero(t, lister.calls)
}

func TestEligibleItemsRejectsUnknownDocket(t *testing.T) {
	lister := &stubLister{}
	_, err := NewService(lister).EligibleItems(context.Background(), Query{Docket: "legacy"})
	assert.ErrorIs(t, err, ErrUnknownDocket)
	assert.Zero(t, lister.calls)
}

func TestEligibleItemsStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewService(&stubLister{err: boom}).EligibleItems(context.Background(), Query{Docket: appeal.DocketHearing})
	assert.ErrorIs(t, err, boom)
}

func TestHearingDocketRespectsTiedJudge(t *testing.T) {
	judgeA, judgeB := "judge-a", "judge-b"
	tiedA := readyAppeal("tied-a", appeal.DocketHearing, false, 2*day)
	tiedA.TiedJudgeID = &judgeA
	tiedB := readyAppeal("tied-b", appeal.DocketHearing, false, 2*day)
	tiedB.TiedJudgeID = &judgeB
	genpop := readyAppeal("genpop", appeal.DocketHearing, false, 2*day)

	svc := NewService(&stubLister{appeals: []appeal.Appeal{tiedA, tiedB, genpop}})

	forA, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketHearing, JudgeID: judgeA})
	require.NoError(t, err)
	assert.Equal(t, []string{"tied-a", "genpop"}, ids(forA))

	anyJudge, err := svc.EligibleItems(context.Background(), Query{Docket: appeal.DocketHearing})
	require.NoError(t, err)
	assert.Len(t, anyJudge, 3)
}

func TestRankOrdersPriorityThenAge(t *testing.T) {
	items := []appeal.Appeal{
		readyAppeal("n-old", appeal.DocketDirectReview, false, 30*day),
		readyAppeal("p-1d", appeal.DocketDirectReview, true, 1*day),
		readyAppeal("p-5d", appeal.DocketDirectReview, true, 5*day),
		readyAppeal("n-new", appeal.DocketDirectReview, false, 2*day),
		readyAppeal("p-2d", appeal.DocketDirectReview, true, 2*day),
	}
	ranked := Rank(items, Strategy{})
	assert.Equal(t, []string{"p-5d", "p-2d", "p-1d", "n-old", "n-new"}, ids(ranked))
	assert.Equal(t, "n-old", items[0].ExternalID, "input must not be reordered")
}

func TestRankKeepsInputOrderOnTies(t *testing.T) {
	items := []appeal.Appeal{
		readyAppeal("b", appeal.DocketCAVCRemand, false, day),
		readyAppeal("a", appeal.DocketCAVCRemand, false, day),
		readyAppeal("c", appeal.DocketCAVCRemand, false, day),
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{"b", "a", "c"}, ids(Rank(items, Strategy{})))
	}

	byID := Strategy{Less: func(a, b appeal.Appeal) bool { return a.ExternalID < b.ExternalID }}
	assert.Equal(t, []string{"a", "b", "c"}, ids(Rank(items, byID)))
}

func TestRankPutsPriorityFirstThenOldestReady(t *testing.T) {
	lister := &stubLister{appeals: []appeal.Appeal{
		readyAppeal("n1", appeal.DocketDirectReview, false, 10*day),
		readyAppeal("p-1d", appeal.DocketDirectReview, true, 1*day),
		readyAppeal("n2", appeal.DocketDirectReview, false, 8*day),
		readyAppeal("p-5d", appeal.DocketDirectReview, true, 5*day),
		readyAppeal("n3", appeal.DocketDirectReview, false, 7*day),
		readyAppeal("p-2d", appeal.DocketDirectReview, true, 2*day),
	}}
	svc := NewService(lister)

	ranked, err := svc.RankedItems(context.Background(), Query{Docket: appeal.DocketDirectReview, Priority: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-5d", "p-2d", "p-1d"}, ids(ranked))
}

func TestOldestPriorityWaitDays(t *testing.T) {
	// Ready late in the evening four days before now: five calendar dates apart.
	late := time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC)
	a := readyAppeal("p", appeal.DocketDirectReview, true, 0)
	a.ReadyAt = &late
	svc := NewService(&stubLister{appeals: []appeal.Appeal{a, readyAppeal("n", appeal.DocketDirectReview, false, 40*day)}})

	days, err := svc.OldestPriorityWaitDays(context.Background(), appeal.DocketDirectReview, now)
	require.NoError(t, err)
	require.NotNil(t, days)
	assert.Equal(t, 5, *days)

	none, err := svc.OldestPriorityWaitDays(context.Background(), appeal.DocketHearing, now)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNonpriorityDecisionsPerYearWindow(t *testing.T) {
	counter := &stubDecisions{n: 42}
	svc := NewService(&stubLister{}).WithDecisions(counter)

	n, err := svc.NonpriorityDecisionsPerYear(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), counter.to)
	assert.Equal(t, time.Date(2023, 3, 11, 0, 0, 0, 0, time.UTC), counter.from)
}

func TestGenpopHelpers(t *testing.T) {
	judge := "judge-a"
	tied := readyAppeal("tied", appeal.DocketHearing, true, 9*day)
	tied.TiedJudgeID = &judge
	svc := NewService(&stubLister{appeals: []appeal.Appeal{
		tied,
		readyAppeal("g-3d", appeal.DocketHearing, true, 3*day),
		readyAppeal("g-6d", appeal.DocketHearing, true, 6*day),
		readyAppeal("g-1d", appeal.DocketHearing, true, 1*day),
		readyAppeal("non", appeal.DocketHearing, false, 20*day),
	}})
	ctx := context.Background()

	n, err := svc.GenpopPriorityCount(ctx, appeal.DocketHearing)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ages, err := svc.AgeOfNOldestGenpopPriority(ctx, appeal.DocketHearing, 2)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{now.Add(-6 * day), now.Add(-3 * day)}, ages)

	readyIDs, err := svc.ReadyPriorityIDs(ctx, appeal.DocketHearing)
	require.NoError(t, err)
	assert.Equal(t, []string{"tied", "g-6d", "g-3d", "g-1d"}, readyIDs)

	count, err := svc.Count(ctx, appeal.DocketHearing, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestDashboardSnapshot(t *testing.T) {
	svc := NewService(&stubLister{appeals: []appeal.Appeal{
		readyAppeal("p", appeal.DocketCAVCRemand, true, 3*day),
		readyAppeal("n1", appeal.DocketCAVCRemand, false, day),
		readyAppeal("n2", appeal.DocketCAVCRemand, false, day),
	}}).WithDecisions(&stubDecisions{n: 7}).WithClock(func() time.Time { return now })

	snap, err := NewDashboard(svc).Snapshot(context.Background(), appeal.DocketCAVCRemand)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Priority)
	assert.Equal(t, 2, snap.Nonpriority)
	assert.Equal(t, 1, snap.GenpopPriority)
	require.NotNil(t, snap.OldestPriorityWaitDays)
	assert.Equal(t, 3, *snap.OldestPriorityWaitDays)
	assert.Equal(t, 7, snap.NonpriorityDecisionsPerYear)

	_, err = NewDashboard(svc).Snapshot(context.Background(), "nope")
	assert.True(t, Rejected(err))
}

// blockingLister holds every listing until release is closed, or until the
// caller's context ends.
type blockingLister struct {
	stubLister
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingLister) ListCandidates(ctx context.Context, f appeal.Filters) ([]appeal.Appeal, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
	}
	return b.stubLister.ListCandidates(ctx, f)
}

func TestDashboardSnapshot_CancelledCallerDoesNotFailOthers(t *testing.T) {
	lister := &blockingLister{
		stubLister: stubLister{appeals: []appeal.Appeal{readyAppeal("p", appeal.DocketDirectReview, true, 2*day)}},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	dash := NewDashboard(NewService(lister).WithClock(func() time.Time { return now }))

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := dash.Snapshot(ctx1, appeal.DocketDirectReview)
		first <- err
	}()
	<-lister.entered

	type outcome struct {
		snap Snapshot
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		snap, err := dash.Snapshot(context.Background(), appeal.DocketDirectReview)
		second <- outcome{snap, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel1()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(lister.release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, 1, got.snap.Priority)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), lister.calls.Load())
}
