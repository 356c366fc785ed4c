// Package jobs queues feed reconciliation requests and runs them on a small
// worker pool, so API callers get a job id instead of waiting for the sync.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vulnforge/reportformats/pkg/reportformat"
)

// Syncer runs one feed reconciliation. It is satisfied by
// reportformat.FeedWatcher, which takes the feed lock.
type Syncer interface {
	SyncOnce(ctx context.Context) (*reportformat.SyncReport, error)
}

// WorkerPool processes queued sync jobs using a pool of goroutines.
type WorkerPool struct {
	store     *JobStore
	syncer    Syncer
	cfg       *JobConfig
	logger    *slog.Logger
	onSuccess func(*reportformat.SyncReport)
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, syncer Syncer, cfg *JobConfig, logger *slog.Logger) *WorkerPool {
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		store:  store,
		syncer: syncer,
		cfg:    cfg,
		logger: logger,
	}
}

// OnSuccess registers fn to run after each successful sync, e.g. to drop
// cached API responses.
func (wp *WorkerPool) OnSuccess(fn func(*reportformat.SyncReport)) {
	wp.onSuccess = fn
}

// Run starts cfg.Concurrency workers plus the cleanup loop and blocks until
// ctx is cancelled and every worker has returned.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || wp.syncer == nil || !wp.cfg.Enabled {
		wp.logger.Info("sync job worker pool disabled")
		return
	}

	wp.logger.Info("sync job worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("sync job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("sync job worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.processOne(ctx, workerID)
		}
	}
}

// processOne claims and runs at most one job.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) {
	job, err := wp.store.Claim(wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim job", "workerID", workerID, "error", err)
		return
	}
	if job == nil {
		return
	}

	wp.logger.Info("processing sync job",
		"workerID", workerID,
		"jobID", job.ID,
		"requestedBy", job.RequestedBy,
		"attempt", job.AttemptCount)

	start := time.Now()
	report, err := wp.syncer.SyncOnce(ctx)
	if err != nil {
		wp.logger.Error("sync job failed", "workerID", workerID, "jobID", job.ID, "error", err)
		if failErr := wp.store.Fail(job.ID, err.Error(), wp.cfg.MaxRetries); failErr != nil {
			wp.logger.Error("failed to mark job as failed", "jobID", job.ID, "error", failErr)
		}
		return
	}

	duration := time.Since(start)
	wp.logger.Info("sync job completed",
		"workerID", workerID,
		"jobID", job.ID,
		"created", report.Created,
		"updated", report.Updated,
		"removed", report.Removed,
		"duration", duration.String())

	if err := wp.store.Complete(job.ID, report.Created, report.Updated, report.Removed, duration.Milliseconds()); err != nil {
		wp.logger.Error("failed to mark job as complete", "jobID", job.ID, "error", err)
	}
	if wp.onSuccess != nil {
		wp.onSuccess(report)
	}
}

// cleanupLoop periodically requeues stuck jobs and deletes old finished ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup()
		}
	}
}

func (wp *WorkerPool) cleanup() {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.CleanupStuckJobs(wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck jobs", "error", err)
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck jobs", "count", recovered)
		}
	}
	if wp.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old jobs", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old jobs", "count", deleted)
		}
	}
}
