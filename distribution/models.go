package distribution

import (
	"errors"
	"time"

	"docketflow/appeal"
	"docketflow/docket"
)

type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

var (
	ErrInvalidLimit   = errors.New("distribution: limit must be positive")
	ErrMissingActor   = errors.New("distribution: actor required")
	ErrJudgeInactive  = errors.New("distribution: judge not active")
	ErrRunClosed      = errors.New("distribution: run is not open")
	ErrRunInFlight    = errors.New("distribution: judge already has an open run")
	ErrRunNotFound    = errors.New("distribution: run not found")
	ErrEntryNotFound  = errors.New("distribution: ledger entry not found")
	ErrAlreadyClaimed = errors.New("distribution: work item already claimed")
)

// PreconditionError is the batch-level rejection shared with the docket
// filter.
type PreconditionError = docket.PreconditionError

// Rejected reports whether err rejected the request before any work item
// was touched.
func Rejected(err error) bool { return docket.Rejected(err) }

// Run groups the ledger entries written by one engine invocation.
type Run struct {
	ID          string     `json:"id"`
	JudgeID     string     `json:"judge_id"`
	ActorID     string     `json:"actor_id"`
	Status      RunStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Run) Open() bool { return r.Status == RunStarted }

// Entry is one append-only ledger row.
type Entry struct {
	ID           int64             `json:"id"`
	RunID        string            `json:"run_id"`
	WorkItemID   string            `json:"work_item_id"`
	CaseID       string            `json:"case_id"`
	Docket       appeal.DocketType `json:"docket"`
	Priority     bool              `json:"priority"`
	ReadyAt      time.Time         `json:"ready_at"`
	SupersededAt *time.Time        `json:"superseded_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (e Entry) Active() bool { return e.SupersededAt == nil }

// RedistributedCaseID is the case id a superseded entry carries after the
// work item is distributed again on the given day, taken as a calendar date
// in loc. A nil loc means UTC.
func RedistributedCaseID(workItemID string, on time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return workItemID + "-redistributed-" + on.In(loc).Format(time.DateOnly)
}

// ClaimParams describes one ledger write.
type ClaimParams struct {
	RunID      string
	WorkItemID string
	Docket     appeal.DocketType
	Priority   bool
	ReadyAt    time.Time
	// At stamps superseded_at on the prior active entry.
	At time.Time
	// SupersededCaseID replaces the prior active entry's case id.
	SupersededCaseID string
}

// Request asks the engine to distribute up to Limit appeals from one docket
// to one judge on behalf of ActorID.
type Request struct {
	Docket   appeal.DocketType `json:"docket"`
	JudgeID  string            `json:"judge_id"`
	ActorID  string            `json:"actor_id"`
	Priority *bool             `json:"priority,omitempty"`
	Ready    *bool             `json:"ready,omitempty"`
	Limit    int               `json:"limit"`
}

// ItemFailure is a work item whose transaction was rolled back.
type ItemFailure struct {
	WorkItemID string `json:"work_item_id"`
	Err        error  `json:"-"`
	Reason     string `json:"reason"`
}

type Result struct {
	Run     Run           `json:"run"`
	Entries []Entry       `json:"entries"`
	Skipped []string      `json:"skipped"`
	Failed  []ItemFailure `json:"failed"`
}

// CaseDistributedEvent is the outbox payload for a new ledger entry.
type CaseDistributedEvent struct {
	RunID          string            `json:"run_id"`
	JudgeID        string            `json:"judge_id"`
	ActorID        string            `json:"actor_id"`
	WorkItemID     string            `json:"work_item_id"`
	CaseID         string            `json:"case_id"`
	Docket         appeal.DocketType `json:"docket"`
	Priority       bool              `json:"priority"`
	ReadyAt        time.Time         `json:"ready_at"`
	Redistribution bool              `json:"redistribution"`
}
