package docket_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docketflow/appeal"
	"docketflow/docket"
	"docketflow/test/infra"
)

func TestDecisionRepository_TrailingYearWindow(t *testing.T) {
	h := infra.ForTest(t)
	pool := h.Pool()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	appeals := appeal.NewRepository(pool)
	create := func(priority bool) appeal.Appeal {
		a, err := appeals.Create(ctx, appeal.CreateParams{
			ExternalID: uuid.NewString(),
			Docket:     appeal.DocketDirectReview,
			Priority:   priority,
			Status:     appeal.StatusCompleted,
		})
		require.NoError(t, err)
		return a
	}
	standard, advanced := create(false), create(true)

	asOf := time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)
	decisions := docket.NewDecisionRepository(pool)
	for _, d := range []struct {
		appeal int64
		on     time.Time
	}{
		{standard.ID, asOf},
		{standard.ID, asOf.AddDate(0, 0, -364)},
		{standard.ID, asOf.AddDate(0, 0, -365)},
		{standard.ID, asOf.AddDate(0, 0, 1)},
		{advanced.ID, asOf.AddDate(0, 0, -10)},
	} {
		require.NoError(t, decisions.RecordDecision(ctx, d.appeal, d.on))
	}

	svc := docket.NewService(appeals).WithDecisions(decisions)
	n, err := svc.NonpriorityDecisionsPerYear(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
