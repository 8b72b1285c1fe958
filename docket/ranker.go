package docket

import (
	"sort"

	"docketflow/appeal"
)

// Rank orders eligible appeals: priority before non-priority, then oldest
// ready timestamp first. The sort is stable so equal timestamps keep their
// input order unless the strategy supplies a tie-break.
func Rank(items []appeal.Appeal, strategy Strategy) []appeal.Appeal {
	out := make([]appeal.Appeal, len(items))
	copy(out, items)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority
		}
		ai, bi := readyOf(a), readyOf(b)
		if !ai.Equal(bi) {
			return ai.Before(bi)
		}
		if strategy.Less != nil {
			return strategy.Less(a, b)
		}
		return false
	})
	return out
}
