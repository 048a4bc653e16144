package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/storelytics/tally/internal/reconcile/domain"
	sourcedomain "github.com/storelytics/tally/internal/source/domain"
	"github.com/storelytics/tally/pkg/db"
	"github.com/storelytics/tally/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const defaultClaimLimit = 5

// EnqueueRun records a pending run. Execution happens later through
// ProcessPending, so callers get an id back immediately no matter how large
// the source tables are.
func (s *Service) EnqueueRun(ctx context.Context, triggeredBy string) (*domain.ReconciliationRun, error) {
	if triggeredBy == "" {
		triggeredBy = domain.TriggerAPI
	}
	now := s.clk.Now()
	run := &domain.ReconciliationRun{
		ID:            s.genID.Generate(),
		Status:        domain.RunStatusPending,
		TriggeredBy:   triggeredBy,
		CorrelationID: correlation.ExtractCorrelationID(ctx),
		RequestedAt:   now,
		Stats:         datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}

	s.log.Info("reconciliation run queued",
		zap.String("run_id", run.ID.String()),
		zap.String("triggered_by", triggeredBy),
	)
	s.obsMetrics.RecordRunEnqueued(ctx, triggeredBy)
	s.refreshPendingGauge(ctx)
	return run, nil
}

// ProcessPending claims up to limit pending runs, oldest first, and executes
// them serially. A claim is a compare-and-set on the status column, so
// concurrent workers never execute the same run twice.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultClaimLimit
	}

	var rows []domain.ReconciliationRun
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM reconciliation_runs
		 WHERE status = ?
		 ORDER BY requested_at ASC
		 LIMIT ?`,
		domain.RunStatusPending,
		limit,
	).Scan(&rows).Error; err != nil {
		return 0, err
	}

	processed := 0
	var jobErr error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return processed, errors.Join(jobErr, err)
		}
		processed++
		if err := s.executeRun(ctx, row.ID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("reconciliation run failed",
				zap.Error(err),
				zap.String("run_id", row.ID.String()),
			)
		}
	}

	s.refreshPendingGauge(ctx)
	return processed, jobErr
}

// RecoverStuckRuns re-pends runs whose worker died mid-flight. A run is
// considered stuck once it has sat in processing beyond olderThan.
func (s *Service) RecoverStuckRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.clk.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Exec(
		`UPDATE reconciliation_runs
		 SET status = ?, started_at = NULL, updated_at = ?
		 WHERE status = ? AND started_at <= ?`,
		domain.RunStatusPending,
		s.clk.Now(),
		domain.RunStatusProcessing,
		cutoff,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Warn("recovered stuck reconciliation runs",
			zap.Int64("count", res.RowsAffected),
			zap.Duration("older_than", olderThan),
		)
		s.refreshPendingGauge(ctx)
	}
	return int(res.RowsAffected), nil
}

func (s *Service) executeRun(ctx context.Context, runID snowflake.ID) error {
	started := s.clk.Now()
	claim := s.db.WithContext(ctx).Exec(
		`UPDATE reconciliation_runs
		 SET status = ?, started_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.RunStatusProcessing,
		started,
		started,
		runID,
		domain.RunStatusPending,
	)
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		// Another worker holds the run.
		return nil
	}

	timer := time.Now()
	result, err := s.runReconciliation(ctx, runID)
	if err != nil {
		s.metrics.ObserveRun(string(domain.RunStatusFailed), time.Since(timer))
		s.obsMetrics.RecordRunFinished(ctx, string(domain.RunStatusFailed))
		if markErr := s.markFailed(ctx, runID, err); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}

	if err := s.markCompleted(ctx, runID, result); err != nil {
		return err
	}

	s.metrics.ObserveRun(string(domain.RunStatusCompleted), time.Since(timer))
	s.metrics.AddOrdersReconciled(len(result.orderFacts))
	s.metrics.AddLineFacts(len(result.lineFacts))
	s.metrics.SetMonthsProduced(float64(len(result.summaries)))
	s.obsMetrics.RecordRunFinished(ctx, string(domain.RunStatusCompleted))
	s.obsMetrics.AddFactsPublished(ctx, "order", len(result.orderFacts))
	s.obsMetrics.AddFactsPublished(ctx, "line", len(result.lineFacts))
	s.obsMetrics.AddFactsPublished(ctx, "monthly_summary", len(result.summaries))
	for _, finding := range result.findings {
		s.metrics.RecordFinding(finding.Code, finding.Severity)
		s.obsMetrics.RecordFinding(ctx, finding.Code, finding.Severity)
	}

	s.log.Info("reconciliation run completed",
		zap.String("run_id", runID.String()),
		zap.Int("orders", len(result.orderFacts)),
		zap.Int("order_lines", len(result.lineFacts)),
		zap.Int("months", len(result.summaries)),
		zap.Int("findings", len(result.findings)),
		zap.Duration("took", time.Since(timer)),
	)
	return nil
}

// runReconciliation produces and persists the full derived dataset for one
// claimed run.
func (s *Service) runReconciliation(ctx context.Context, runID snowflake.ID) (*runResult, error) {
	snap, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.observeSnapshot(snap)

	result, err := s.computeRun(ctx, runID, snap)
	if err != nil {
		return nil, err
	}

	if err := s.persistRun(ctx, result); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Warn("concurrent reconciliation detected, discarding run output",
				zap.String("run_id", runID.String()))
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) markCompleted(ctx context.Context, runID snowflake.ID, result *runResult) error {
	now := s.clk.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE reconciliation_runs
		 SET status = ?, completed_at = ?, updated_at = ?, stats = ?
		 WHERE id = ?`,
		domain.RunStatusCompleted,
		now,
		now,
		result.statsMap(),
		runID,
	).Error
}

func (s *Service) markFailed(ctx context.Context, runID snowflake.ID, runErr error) error {
	now := s.clk.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE reconciliation_runs
		 SET status = ?, error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.RunStatusFailed,
		errorSummary(runErr),
		now,
		now,
		runID,
	).Error
}

func (s *Service) refreshPendingGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.runRepo.Count(ctx, &domain.ReconciliationRun{Status: domain.RunStatusPending})
	if err != nil {
		return
	}
	s.metrics.SetPendingRuns(float64(count))
}

func (s *Service) observeSnapshot(snap *sourcedomain.Snapshot) {
	s.metrics.SetSnapshotRows("orders", float64(len(snap.Orders)))
	s.metrics.SetSnapshotRows("order_items", float64(len(snap.Lines)))
	s.metrics.SetSnapshotRows("payments", float64(len(snap.Attempts)))
	s.metrics.SetSnapshotRows("product_returns", float64(len(snap.Returns)))
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	value := strings.TrimSpace(err.Error())
	if value == "" {
		return "unknown_error"
	}
	if len(value) > 256 {
		return value[:256]
	}
	return value
}
