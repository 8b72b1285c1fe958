package docket

import "docketflow/appeal"

// Strategy holds what differs between dockets. The engine itself is shared.
type Strategy struct {
	Docket appeal.DocketType
	// Readiness adds a docket-specific eligibility predicate for the query.
	// Nil adds nothing.
	Readiness func(q Query) appeal.Predicate
	// Less orders appeals whose ready timestamps are equal. Nil keeps the
	// input order.
	Less func(a, b appeal.Appeal) bool
}

func (s Strategy) readiness(q Query) appeal.Predicate {
	if s.Readiness == nil {
		return nil
	}
	return s.Readiness(q)
}

// DefaultStrategies returns one strategy per known docket. Hearing appeals
// stay with the judge who held the hearing.
func DefaultStrategies() map[appeal.DocketType]Strategy {
	return map[appeal.DocketType]Strategy{
		appeal.DocketDirectReview:       {Docket: appeal.DocketDirectReview},
		appeal.DocketEvidenceSubmission: {Docket: appeal.DocketEvidenceSubmission},
		appeal.DocketCAVCRemand:         {Docket: appeal.DocketCAVCRemand},
		appeal.DocketHearing: {
			Docket: appeal.DocketHearing,
			Readiness: func(q Query) appeal.Predicate {
				return appeal.AvailableTo(q.JudgeID)
			},
		},
	}
}
