package service

import (
	"context"
	"testing"
	"time"

	"github.com/storelytics/tally/internal/reconcile/domain"
	sourcedomain "github.com/storelytics/tally/internal/source/domain"
	"github.com/storelytics/tally/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPendingHonorsClaimLimit(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	var runs []*domain.ReconciliationRun
	for i := 0; i < 3; i++ {
		run, err := env.svc.EnqueueRun(ctx, domain.TriggerScheduler)
		require.NoError(t, err)
		runs = append(runs, run)
		env.clk.Advance(time.Minute)
	}

	processed, err := env.svc.ProcessPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	var pending int64
	require.NoError(t, env.db.Model(&domain.ReconciliationRun{}).
		Where("status = ?", domain.RunStatusPending).
		Count(&pending).Error)
	assert.EqualValues(t, 1, pending)

	processed, err = env.svc.ProcessPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	for _, run := range runs {
		got, err := env.svc.GetRun(ctx, run.ID.String())
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, got.Status)
	}
}

func TestRunFailureIsRecorded(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	// Losing a source table makes the snapshot load fail mid-run.
	require.NoError(t, env.db.Migrator().DropTable(&sourcedomain.Order{}))

	run, err := env.svc.EnqueueRun(ctx, domain.TriggerAPI)
	require.NoError(t, err)

	processed, err := env.svc.ProcessPending(ctx, 5)
	assert.Equal(t, 1, processed)
	require.Error(t, err)

	failed, err := env.svc.GetRun(ctx, run.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
	require.NotNil(t, failed.CompletedAt)

	_, err = env.svc.LatestCompletedRun(ctx)
	assert.ErrorIs(t, err, domain.ErrNoCompletedRun)
}

func TestGetRunErrors(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	_, err := env.svc.GetRun(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidRunID)

	_, err = env.svc.GetRun(ctx, "1234567890123456789")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestGetOrderFactsErrors(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	_, err := env.svc.GetOrderFacts(ctx, "bogus")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderID)

	_, err = env.svc.GetOrderFacts(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrOrderFactNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	first, err := env.svc.EnqueueRun(ctx, domain.TriggerAPI)
	require.NoError(t, err)
	env.clk.Advance(time.Minute)
	second, err := env.svc.EnqueueRun(ctx, domain.TriggerAPI)
	require.NoError(t, err)

	runs, err := env.svc.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestListFindingsFiltersAndPaginates(t *testing.T) {
	env := newEngineFixture(t)
	seedWorld(t, env.db)
	ctx := context.Background()

	run := runOnce(t, env, domain.TriggerAPI)

	page, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{
		RunID:      run.ID.String(),
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Findings, 2)
	require.NotNil(t, page.PageInfo)
	assert.True(t, page.PageInfo.HasMore)
	require.NotEmpty(t, page.PageInfo.NextPageToken)

	rest, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{
		RunID:      run.ID.String(),
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest.Findings, 1)
	assert.False(t, rest.PageInfo.HasMore)

	// Severity and code filters narrow the log.
	errorsOnly, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{
		RunID:    run.ID.String(),
		Severity: domain.SeverityError,
	})
	require.NoError(t, err)
	assert.Len(t, errorsOnly.Findings, 3)

	orphanLines, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{
		RunID: run.ID.String(),
		Code:  domain.FindingOrphanLine,
	})
	require.NoError(t, err)
	require.Len(t, orphanLines.Findings, 1)
	assert.EqualValues(t, 999, orphanLines.Findings[0].EntityID)

	_, err = env.svc.ListFindings(ctx, domain.ListFindingsRequest{RunID: "junk"})
	assert.ErrorIs(t, err, domain.ErrInvalidRunID)
}

func TestEnqueueRunDefaultsTrigger(t *testing.T) {
	env := newEngineFixture(t)

	run, err := env.svc.EnqueueRun(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerAPI, run.TriggeredBy)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.False(t, run.RequestedAt.IsZero())
}

func TestRecoverStuckRunsRependsOldProcessing(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	stuck, err := env.svc.EnqueueRun(ctx, domain.TriggerScheduler)
	require.NoError(t, err)
	fresh, err := env.svc.EnqueueRun(ctx, domain.TriggerScheduler)
	require.NoError(t, err)

	// Simulate two workers that claimed a run each; one then dies.
	started := env.clk.Now()
	require.NoError(t, env.db.Exec(
		`UPDATE reconciliation_runs SET status = ?, started_at = ? WHERE id IN (?, ?)`,
		domain.RunStatusProcessing, started, stuck.ID, fresh.ID,
	).Error)

	env.clk.Advance(10 * time.Minute)
	require.NoError(t, env.db.Exec(
		`UPDATE reconciliation_runs SET started_at = ? WHERE id = ?`,
		env.clk.Now(), fresh.ID,
	).Error)

	recovered, err := env.svc.RecoverStuckRuns(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := env.svc.GetRun(ctx, stuck.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)

	got, err = env.svc.GetRun(ctx, fresh.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusProcessing, got.Status)

	// Zero threshold disables the sweep.
	recovered, err = env.svc.RecoverStuckRuns(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}
