package outbox

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDead      Status = "dead"
)

// TopicCaseDistributed carries one event per ledger entry written by the
// distribution engine.
const TopicCaseDistributed = "distribution.case_distributed"

type Message struct {
	ID          string
	Topic       string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}
