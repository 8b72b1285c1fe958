package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"docketflow/appeal"
	"docketflow/judge"
)

// world is an in-memory appeal store, ledger and outbox sharing one set of
// row locks, so item transactions behave like the Postgres ones.
type world struct {
	mu      sync.Mutex
	appeals map[string]*appeal.Appeal
	order   []string
	locks   map[string]*sync.Mutex

	runs    map[string]*Run
	entries []Entry
	nextID  int64
	events  []CaseDistributedEvent

	listCalls  int
	listErr    error
	failAssign map[string]bool
	beforeLock func(w *world, externalID string)
}

func newWorld() *world {
	return &world{
		appeals:    map[string]*appeal.Appeal{},
		locks:      map[string]*sync.Mutex{},
		runs:       map[string]*Run{},
		failAssign: map[string]bool{},
	}
}

func (w *world) add(id string, d appeal.DocketType, priority bool, readyAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := readyAt
	w.appeals[id] = &appeal.Appeal{
		ID:                 int64(len(w.order) + 1),
		ExternalID:         id,
		Docket:             d,
		Priority:           priority,
		ReadyAt:            &t,
		DistributionStatus: appeal.StatusAssigned,
		Active:             true,
	}
	w.order = append(w.order, id)
	w.locks[id] = &sync.Mutex{}
}

func (w *world) get(id string) appeal.Appeal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.appeals[id]
}

func (w *world) reopen(id string, readyAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.appeals[id]
	a.DistributionStatus = appeal.StatusAssigned
	a.AssignedJudgeID = nil
	a.ReadyAt = &readyAt
}

func (w *world) entriesFor(workItemID string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []Entry{}
	for _, e := range w.entries {
		if e.WorkItemID == workItemID {
			out = append(out, e)
		}
	}
	return out
}

func (w *world) activeCounts() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	counts := map[string]int{}
	for _, e := range w.entries {
		if e.Active() {
			counts[e.WorkItemID]++
		}
	}
	return counts
}

// appeal store

func (w *world) ListCandidates(_ context.Context, f appeal.Filters) ([]appeal.Appeal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listCalls++
	if w.listErr != nil {
		return nil, w.listErr
	}
	out := []appeal.Appeal{}
	for _, id := range w.order {
		a := *w.appeals[id]
		if f.Docket != "" && a.Docket != f.Docket {
			continue
		}
		if f.Priority != nil && a.Priority != *f.Priority {
			continue
		}
		if f.ReadyOnly && !a.ReadyForDistribution() {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReadyAt.Before(*out[j].ReadyAt) })
	return out, nil
}

func (w *world) LockForClaim(ctx context.Context, tx pgx.Tx, externalID string) (appeal.Appeal, error) {
	if w.beforeLock != nil {
		w.beforeLock(w, externalID)
	}
	if err := ctx.Err(); err != nil {
		return appeal.Appeal{}, err
	}
	lock, ok := w.locks[externalID]
	if !ok {
		return appeal.Appeal{}, appeal.ErrNotFound
	}
	lock.Lock()
	tx.(*memTx).onRelease(lock.Unlock)
	return w.get(externalID), nil
}

func (w *world) AssignToJudge(_ context.Context, tx pgx.Tx, appealID int64, judgeID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.appeals {
		if a.ID != appealID {
			continue
		}
		if w.failAssign[a.ExternalID] {
			return fmt.Errorf("appeal: assign to judge: appeal %d left the holding state", appealID)
		}
		prevStatus, prevJudge := a.DistributionStatus, a.AssignedJudgeID
		a.DistributionStatus = appeal.StatusCompleted
		j := judgeID
		a.AssignedJudgeID = &j
		tx.(*memTx).onUndo(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			a.DistributionStatus, a.AssignedJudgeID = prevStatus, prevJudge
		})
		return nil
	}
	return appeal.ErrNotFound
}

// ledger

func (w *world) StartRun(_ context.Context, judgeID, actorID string) (Run, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.runs {
		if r.JudgeID == judgeID && r.Open() {
			return Run{}, ErrRunInFlight
		}
	}
	r := &Run{ID: uuid.NewString(), JudgeID: judgeID, ActorID: actorID, Status: RunStarted, CreatedAt: time.Now()}
	w.runs[r.ID] = r
	return *r, nil
}

func (w *world) GetRun(_ context.Context, runID string) (Run, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *r, nil
}

func (w *world) FinishRun(_ context.Context, runID string, status RunStatus) (Run, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	if !r.Open() {
		return Run{}, ErrRunClosed
	}
	now := time.Now()
	r.Status, r.CompletedAt = status, &now
	return *r, nil
}

func (w *world) Claim(_ context.Context, tx pgx.Tx, p ClaimParams) (Entry, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.runs[p.RunID]
	if !ok {
		return Entry{}, false, ErrRunNotFound
	}
	if !r.Open() {
		return Entry{}, false, ErrRunClosed
	}

	superseded := false
	for i := range w.entries {
		e := &w.entries[i]
		if e.WorkItemID != p.WorkItemID || !e.Active() {
			continue
		}
		prevCase := e.CaseID
		at := p.At
		e.SupersededAt, e.CaseID = &at, p.SupersededCaseID
		superseded = true
		id := e.ID
		tx.(*memTx).onUndo(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			for j := range w.entries {
				if w.entries[j].ID == id {
					w.entries[j].SupersededAt, w.entries[j].CaseID = nil, prevCase
				}
			}
		})
	}

	w.nextID++
	entry := Entry{
		ID:         w.nextID,
		RunID:      p.RunID,
		WorkItemID: p.WorkItemID,
		CaseID:     p.WorkItemID,
		Docket:     p.Docket,
		Priority:   p.Priority,
		ReadyAt:    p.ReadyAt,
		CreatedAt:  p.At,
	}
	w.entries = append(w.entries, entry)
	tx.(*memTx).onUndo(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		kept := w.entries[:0]
		for _, e := range w.entries {
			if e.ID != entry.ID {
				kept = append(kept, e)
			}
		}
		w.entries = kept
	})
	return entry, superseded, nil
}

// outbox

func (w *world) Enqueue(_ context.Context, tx pgx.Tx, topic string, payload any) error {
	ev, ok := payload.(CaseDistributedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", payload)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	tx.(*memTx).onUndo(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		kept := w.events[:0]
		for _, e := range w.events {
			if e.RunID != ev.RunID || e.WorkItemID != ev.WorkItemID {
				kept = append(kept, e)
			}
		}
		w.events = kept
	})
	return nil
}

func (w *world) eventFor(workItemID string) (CaseDistributedEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ev := range w.events {
		if ev.WorkItemID == workItemID {
			return ev, true
		}
	}
	return CaseDistributedEvent{}, false
}

// judges

type fakeJudges map[string]judge.Profile

func (f fakeJudges) ResolveActive(_ context.Context, id string) (judge.Profile, error) {
	p, ok := f[id]
	if !ok {
		return judge.Profile{}, judge.ErrNotFound
	}
	if !p.Active {
		return judge.Profile{}, judge.ErrInactive
	}
	return p, nil
}

// transactions

type memPool struct {
	mu     sync.Mutex
	begun  int
	txs    []*memTx
	failAt int
}

func (p *memPool) Begin(context.Context) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.begun++
	if p.failAt > 0 && p.begun == p.failAt {
		return nil, errors.New("connection reset")
	}
	tx := &memTx{}
	p.txs = append(p.txs, tx)
	return tx, nil
}

type memTx struct {
	undo      []func()
	release   []func()
	rolled    bool
	committed bool
}

func (f *memTx) onUndo(fn func())    { f.undo = append(f.undo, fn) }
func (f *memTx) onRelease(fn func()) { f.release = append(f.release, fn) }

func (f *memTx) finish() {
	for _, fn := range f.release {
		fn()
	}
	f.release = nil
}

func (f *memTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("memTx does not support nested transactions")
}

func (f *memTx) Commit(context.Context) error {
	f.committed = true
	f.undo = nil
	f.finish()
	return nil
}

func (f *memTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolled = true
	for i := len(f.undo) - 1; i >= 0; i-- {
		f.undo[i]()
	}
	f.undo = nil
	f.finish()
	return nil
}

func (f *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *memTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *memTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *memTx) Conn() *pgx.Conn {
	return nil
}
