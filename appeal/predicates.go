package appeal

// Predicate reports whether an appeal satisfies one eligibility criterion.
type Predicate func(Appeal) bool

// All combines predicates with logical AND. An empty list accepts everything.
func All(preds ...Predicate) Predicate {
	return func(a Appeal) bool {
		for _, p := range preds {
			if p != nil && !p(a) {
				return false
			}
		}
		return true
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(a Appeal) bool { return !p(a) }
}

// InDocket matches appeals routed to d.
func InDocket(d DocketType) Predicate {
	return func(a Appeal) bool { return a.Docket == d }
}

// Ready matches appeals in the distribution holding state.
func Ready() Predicate {
	return Appeal.ReadyForDistribution
}

// Unblocked matches appeals without an active blocking condition in the
// loaded snapshot.
func Unblocked() Predicate {
	return func(a Appeal) bool { return !Blocked(a.Conditions) }
}

// PriorityIs matches the requested priority class. A nil class matches both.
func PriorityIs(priority *bool) Predicate {
	if priority == nil {
		return nil
	}
	want := *priority
	return func(a Appeal) bool { return a.Priority == want }
}

// AvailableTo matches genpop appeals and appeals tied to judgeID. An empty
// judgeID accepts every appeal.
func AvailableTo(judgeID string) Predicate {
	if judgeID == "" {
		return nil
	}
	return func(a Appeal) bool {
		return a.Genpop() || *a.TiedJudgeID == judgeID
	}
}

// Filter returns the appeals matching p, preserving input order.
func Filter(appeals []Appeal, p Predicate) []Appeal {
	out := make([]Appeal, 0, len(appeals))
	for _, a := range appeals {
		if p == nil || p(a) {
			out = append(out, a)
		}
	}
	return out
}
