package appeal

import (
	"context"
	"time"
)

// ConditionKind classifies an administrative hold.
type ConditionKind string

const (
	KindAODMotion            ConditionKind = "aod_motion"
	KindAddressChange        ConditionKind = "address_change"
	KindStatusInquiry        ConditionKind = "status_inquiry"
	KindCongressionalInquiry ConditionKind = "congressional_interest"
	KindFOIARequest          ConditionKind = "foia_request"
	KindPrivacyAct           ConditionKind = "privacy_act"
	KindDeathCertificate     ConditionKind = "death_certificate"
	KindEvidenceOrArgument   ConditionKind = "evidence_or_argument"
	KindOtherMotion          ConditionKind = "other_motion"
)

var blockingKinds = map[ConditionKind]bool{
	KindAODMotion:            false,
	KindAddressChange:        false,
	KindStatusInquiry:        false,
	KindCongressionalInquiry: true,
	KindFOIARequest:          true,
	KindPrivacyAct:           true,
	KindDeathCertificate:     true,
	KindEvidenceOrArgument:   true,
	KindOtherMotion:          true,
}

// Known reports whether k is part of the closed kind set.
func (k ConditionKind) Known() bool {
	_, ok := blockingKinds[k]
	return ok
}

// Blocking reports whether an unresolved condition of this kind prevents
// distribution. Unknown kinds block.
func (k ConditionKind) Blocking() bool {
	blocks, ok := blockingKinds[k]
	if !ok {
		return true
	}
	return blocks
}

// Condition is one administrative hold attached to an appeal.
type Condition struct {
	ID         int64
	AppealID   int64
	Kind       ConditionKind
	ResolvedAt *time.Time
	CreatedBy  *string
	CreatedAt  time.Time
}

// Active reports whether the condition currently blocks distribution. A
// resolution timestamp always unblocks, whatever the kind.
func (c Condition) Active() bool {
	return c.ResolvedAt == nil && c.Kind.Blocking()
}

// Checker decides whether an appeal has unresolved blocking conditions.
type Checker interface {
	HasBlockingCondition(ctx context.Context, a Appeal) (bool, error)
}

// Blocked evaluates a loaded condition list.
func Blocked(conditions []Condition) bool {
	for _, c := range conditions {
		if c.Active() {
			return true
		}
	}
	return false
}

// SnapshotChecker evaluates the conditions loaded together with the appeal,
// so the answer matches the read the appeal itself came from.
type SnapshotChecker struct{}

func (SnapshotChecker) HasBlockingCondition(_ context.Context, a Appeal) (bool, error) {
	return Blocked(a.Conditions), nil
}
