// Package scheduler runs the periodic reconciliation and analytics jobs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/InverskProperty/propsk-sub012/internal/config"
	"github.com/InverskProperty/propsk-sub012/internal/lock"
	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/metrics"
	"github.com/InverskProperty/propsk-sub012/internal/services"
)

// Job names, used as lock keys and metric labels.
const (
	JobSync      = "sync"
	JobAnalytics = "analytics"
)

// Reconciler replays pending and failed tag syncs.
type Reconciler interface {
	SyncAllNeedingSync(ctx context.Context, actor int64) (*services.SyncResult, error)
}

// AnalyticsRecalculator refreshes per-portfolio statistics.
type AnalyticsRecalculator interface {
	RecalculateAnalytics(ctx context.Context) (int, error)
}

// Scheduler drives both jobs on their own tickers. A run is skipped when
// another instance holds the job's lock.
type Scheduler struct {
	reconciler Reconciler
	analytics  AnalyticsRecalculator
	locker     lock.Locker
	cfg        config.SchedulerConfig
	lockTTL    time.Duration
	log        *logger.Logger
}

// New creates a Scheduler.
func New(cfg config.SchedulerConfig, lockTTL time.Duration, reconciler Reconciler, analytics AnalyticsRecalculator, locker lock.Locker, log *logger.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		analytics:  analytics,
		locker:     locker,
		cfg:        cfg,
		lockTTL:    lockTTL,
		log:        log.WithComponent("scheduler"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("Scheduler disabled", nil)
		return nil
	}

	s.log.Info("Scheduler started", map[string]interface{}{
		"sync_interval":      s.cfg.SyncInterval.String(),
		"analytics_interval": s.cfg.AnalyticsInterval.String(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, JobSync, s.cfg.SyncInterval)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, JobAnalytics, s.cfg.AnalyticsInterval)
	}()
	wg.Wait()

	s.log.Info("Scheduler stopped", nil)
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, job string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.RunOnce(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.log.Warn("Scheduled run failed", map[string]interface{}{
				"job":   job,
				"error": err.Error(),
			})
		}
	}
}

// RunOnce executes job now under its lock. It returns nil when the lock is
// held elsewhere.
func (s *Scheduler) RunOnce(ctx context.Context, job string) error {
	lease, ok, err := s.locker.TryAcquire(ctx, job, s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		metrics.SkipReconcileRun(job)
		s.log.Debug("Run skipped, lock held elsewhere", map[string]interface{}{
			"job": job,
		})
		return nil
	}
	defer func() {
		// A cancelled run must still free the lock.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release run lock", map[string]interface{}{
				"job":   job,
				"error": err.Error(),
			})
		}
	}()

	start := time.Now()
	switch job {
	case JobSync:
		err = s.runSync(ctx)
	case JobAnalytics:
		err = s.runAnalytics(ctx)
	default:
		return errors.New("unknown job " + job)
	}
	metrics.ObserveReconcileRun(job, err, time.Since(start))
	return err
}

func (s *Scheduler) runSync(ctx context.Context) error {
	result, err := s.reconciler.SyncAllNeedingSync(ctx, s.cfg.SystemActorID)
	if result != nil {
		metrics.SetNeedingSync(JobSync, result.Synced+result.Failed+result.Skipped)
		for _, msg := range result.Errors {
			s.log.Warn("Sync item failed", map[string]interface{}{
				"job":   JobSync,
				"error": msg,
			})
		}
		s.log.Info("Sync run complete", map[string]interface{}{
			"message":       result.Message(),
			"tags_resolved": result.TagsResolved,
		})
	}
	return err
}

func (s *Scheduler) runAnalytics(ctx context.Context) error {
	saved, err := s.analytics.RecalculateAnalytics(ctx)
	s.log.Info("Analytics run complete", map[string]interface{}{
		"saved": saved,
	})
	return err
}
