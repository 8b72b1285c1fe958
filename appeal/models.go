package appeal

import "time"

// DocketType is the routing pool an appeal is distributed from.
type DocketType string

const (
	DocketDirectReview       DocketType = "direct_review"
	DocketHearing            DocketType = "hearing"
	DocketEvidenceSubmission DocketType = "evidence_submission"
	DocketCAVCRemand         DocketType = "cavc_remand"
)

// DocketTypes lists every known docket in a stable order.
var DocketTypes = []DocketType{
	DocketDirectReview,
	DocketHearing,
	DocketEvidenceSubmission,
	DocketCAVCRemand,
}

// Valid reports whether d is one of the known dockets.
func (d DocketType) Valid() bool {
	for _, known := range DocketTypes {
		if d == known {
			return true
		}
	}
	return false
}

// DistributionStatus is the state of the appeal's distribution marker.
type DistributionStatus string

const (
	// StatusAssigned means the marker is active and unstarted: the appeal is
	// waiting in the pre-distribution holding state.
	StatusAssigned   DistributionStatus = "assigned"
	StatusOnHold     DistributionStatus = "on_hold"
	StatusInProgress DistributionStatus = "in_progress"
	StatusCompleted  DistributionStatus = "completed"
	StatusCancelled  DistributionStatus = "cancelled"
)

// Appeal mirrors the appeals table together with the blocking conditions read
// in the same snapshot.
type Appeal struct {
	ID                 int64
	ExternalID         string
	Docket             DocketType
	Priority           bool
	ReadyAt            *time.Time
	DistributionStatus DistributionStatus
	Active             bool
	AssignedJudgeID    *string
	TiedJudgeID        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Conditions         []Condition
}

// ReadyForDistribution reports whether the appeal sits in the holding state
// with its structural prerequisites satisfied. Blocking conditions are checked
// separately.
func (a Appeal) ReadyForDistribution() bool {
	return a.Active && a.DistributionStatus == StatusAssigned && a.ReadyAt != nil
}

// Genpop reports whether the appeal may go to any judge.
func (a Appeal) Genpop() bool {
	return a.TiedJudgeID == nil || *a.TiedJudgeID == ""
}

// Filters narrows candidate listing at the store level.
type Filters struct {
	Docket   DocketType
	Priority *bool
	// ReadyOnly restricts the listing to appeals whose marker is active.
	ReadyOnly bool
}
