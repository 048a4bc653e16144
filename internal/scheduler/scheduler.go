package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storelytics/tally/internal/clock"
	"github.com/storelytics/tally/internal/config"
	obsmetrics "github.com/storelytics/tally/internal/observability/metrics"
	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const (
	JobProcessPendingRuns      = "process_pending_runs"
	JobScheduledReconciliation = "scheduled_reconciliation"
	JobRecoverStuckRuns        = "recover_stuck_runs"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	ReconcileSvc reconciledomain.Service
	Holder       *config.EngineConfigHolder
	Clock        clock.Clock
	Config       Config `optional:"true"`
}

// Scheduler drives the reconciliation queue: it re-pends abandoned runs,
// enqueues periodic runs when configured, and drains pending runs.
type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	reconcileSvc reconciledomain.Service
	holder       *config.EngineConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.ReconcileSvc == nil || p.Holder == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		reconcileSvc: p.ReconcileSvc,
		holder:       p.Holder,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	processed, err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	schedMetrics.AddBatchProcessed(name, processed)

	log := s.log.With(zap.String("job", name))
	if err == nil {
		if processed > 0 {
			log.Info("job finished",
				zap.Int("processed", processed),
				zap.Duration("took", time.Since(start)),
			)
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one scheduler tick. Recovery runs first so abandoned work
// re-enters the queue, the periodic enqueue runs next so a due run is drained
// in the same tick.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) (int, error)
	}{
		{JobRecoverStuckRuns, 30 * time.Second, s.RecoverStuckRunsJob},
		{JobScheduledReconciliation, 30 * time.Second, s.ScheduledReconciliationJob},
		{JobProcessPendingRuns, 30 * time.Minute, s.ProcessPendingRunsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ProcessPendingRunsJob drains the pending run queue up to the claim limit
// from the hot-reloadable engine config.
func (s *Scheduler) ProcessPendingRunsJob(ctx context.Context) (int, error) {
	return s.reconcileSvc.ProcessPending(ctx, s.holder.Get().RunClaimLimit)
}

// RecoverStuckRunsJob re-pends runs abandoned by a dead worker.
func (s *Scheduler) RecoverStuckRunsJob(ctx context.Context) (int, error) {
	return s.reconcileSvc.RecoverStuckRuns(ctx, s.cfg.RecoveryThreshold)
}

// ScheduledReconciliationJob keeps facts fresh: when no run has been
// requested within the configured interval, it enqueues one. Runs triggered
// through the API count, so busy deployments never double up.
func (s *Scheduler) ScheduledReconciliationJob(ctx context.Context) (int, error) {
	interval := s.reconcileInterval()
	if interval <= 0 {
		return 0, nil
	}

	runs, err := s.reconcileSvc.ListRuns(ctx, 1)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	if len(runs) > 0 && now.Sub(runs[0].RequestedAt) < interval {
		return 0, nil
	}

	run, err := s.reconcileSvc.EnqueueRun(ctx, reconciledomain.TriggerScheduler)
	if err != nil {
		return 0, err
	}
	s.log.Info("scheduled reconciliation queued",
		zap.String("run_id", run.ID.String()),
		zap.Duration("interval", interval),
	)
	return 1, nil
}

func (s *Scheduler) reconcileInterval() time.Duration {
	if iv := s.holder.Get().ScheduleInterval; iv > 0 {
		return iv
	}
	return s.cfg.ReconcileInterval
}
