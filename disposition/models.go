package disposition

import "time"

// Outcome codes recorded on a hearing.
const (
	OutcomeHeld      = "held"
	OutcomeCancelled = "cancelled"
	OutcomePostponed = "postponed"
	OutcomeNoShow    = "no_show"
)

type Status string

const (
	StatusAssigned  Status = "assigned"
	StatusOnHold    Status = "on_hold"
	StatusHeld      Status = "held"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
	StatusCompleted Status = "completed"
)

func (s Status) Open() bool { return s == StatusAssigned || s == StatusOnHold }

// Task waits for the outcome of a scheduled hearing.
type Task struct {
	ID           int64
	AppealID     int64
	HearingID    int64
	ScheduledFor time.Time
	Disposition  *string
	Status       Status
	UpdatedAt    time.Time
}

// Label is the classification a sweep assigns to one task.
type Label string

const (
	LabelHeld                    Label = "held"
	LabelCancelled               Label = "cancelled"
	LabelPostponed               Label = "postponed"
	LabelNoShow                  Label = "no_show"
	LabelStale                   Label = "stale"
	LabelBetweenOneAndTwoDaysOld Label = "between_one_and_two_days_old"
	LabelUnknown                 Label = "unknown"
)

// Labels lists every label in report order.
var Labels = []Label{
	LabelHeld,
	LabelCancelled,
	LabelPostponed,
	LabelNoShow,
	LabelBetweenOneAndTwoDaysOld,
	LabelStale,
	LabelUnknown,
}

type TaskFailure struct {
	TaskID    int64  `json:"task_id"`
	HearingID int64  `json:"hearing_id"`
	Reason    string `json:"reason"`
}

// Report summarises one sweep.
type Report struct {
	Counts     map[Label]int `json:"counts"`
	Errors     int           `json:"errors"`
	Failures   []TaskFailure `json:"failures"`
	HearingIDs []int64       `json:"hearing_ids"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
