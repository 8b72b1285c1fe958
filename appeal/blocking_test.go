package appeal

import (
	"context"
	"testing"
	"time"
)

func TestConditionActive(t *testing.T) {
	resolved := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"open blocking kind", Condition{Kind: KindCongressionalInquiry}, true},
		{"open nonblocking kind", Condition{Kind: KindAODMotion}, false},
		{"resolved blocking kind", Condition{Kind: KindFOIARequest, ResolvedAt: &resolved}, false},
		{"resolved nonblocking kind", Condition{Kind: KindAddressChange, ResolvedAt: &resolved}, false},
		{"open unknown kind", Condition{Kind: ConditionKind("mystery")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Active(); got != tc.want {
				t.Fatalf("Active() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSnapshotChecker(t *testing.T) {
	resolved := time.Now()
	checker := SnapshotChecker{}

	blocked := Appeal{Conditions: []Condition{
		{Kind: KindAODMotion},
		{Kind: KindPrivacyAct},
	}}
	got, err := checker.HasBlockingCondition(context.Background(), blocked)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatal("expected open privacy act hold to block")
	}

	clear := Appeal{Conditions: []Condition{
		{Kind: KindPrivacyAct, ResolvedAt: &resolved},
	}}
	got, err = checker.HasBlockingCondition(context.Background(), clear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatal("expected resolved hold not to block")
	}

	if got, _ := checker.HasBlockingCondition(context.Background(), Appeal{}); got {
		t.Fatal("expected appeal without conditions not to block")
	}
}
