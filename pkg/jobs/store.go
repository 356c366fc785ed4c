package jobs

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrJobNotFound is returned when no job has the given id.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotCancelable is returned when a job has already been claimed.
	ErrNotCancelable = errors.New("only queued jobs can be canceled")
)

// JobStore provides database operations for feed sync jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the feed_sync_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncJob{})
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	State       string
	RequestedBy string
}

var pending = []JobState{JobStateQueued, JobStateRunning}

// Enqueue creates a new queued job. If idempotencyKey is non-empty and a
// non-terminal job with the same key exists, the existing job is returned
// instead of creating a duplicate.
func (s *JobStore) Enqueue(job *SyncJob) (*SyncJob, error) {
	if job.State == "" {
		job.State = JobStateQueued
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}

	if job.IdempotencyKey == nil {
		if err := s.db.Create(job).Error; err != nil {
			return nil, fmt.Errorf("enqueue job: %w", err)
		}
		return job, nil
	}

	var result *SyncJob
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing SyncJob
		err := tx.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, pending).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Terminal jobs give up the key so the unique index admits the new one.
		err = tx.Model(&SyncJob{}).
			Where("idempotency_key = ? AND state NOT IN ?", *job.IdempotencyKey, pending).
			Update("idempotency_key", nil).Error
		if err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		// Another replica may have won the race for the key.
		var raced SyncJob
		if lookupErr := s.db.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, pending).
			First(&raced).Error; lookupErr == nil {
			return &raced, nil
		}
		return nil, err
	}
	return result, nil
}

// Claim atomically picks the oldest queued job and transitions it to
// running. PostgreSQL claims with FOR UPDATE SKIP LOCKED. Returns nil if no
// jobs are available.
func (s *JobStore) Claim(maxRetries int) (*SyncJob, error) {
	var job SyncJob

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if tx.Dialector.Name() == "postgres" {
			err = tx.Raw(`
				SELECT * FROM feed_sync_jobs
				WHERE state = ? AND attempt_count <= ?
				ORDER BY requested_at ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			`, JobStateQueued, maxRetries).Scan(&job).Error
		} else {
			err = tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
				Order("requested_at ASC").
				Limit(1).
				Find(&job).Error
		}
		if err != nil || job.ID == "" {
			return err
		}

		return tx.Model(&SyncJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    time.Now(),
				"attempt_count": gorm.Expr("attempt_count + 1"),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Complete marks a job as succeeded with the reconciliation counts.
func (s *JobStore) Complete(jobID string, created, updated, removed int, durationMs int64) error {
	err := s.db.Model(&SyncJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":       JobStateSucceeded,
		"finished_at": time.Now(),
		"created":     created,
		"updated":     updated,
		"removed":     removed,
		"duration_ms": durationMs,
		"message":     fmt.Sprintf("Created %d, updated %d, removed %d report formats", created, updated, removed),
	}).Error
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records errMsg on a job. Within maxRetries attempts the job goes
// back to the queue, otherwise it fails for good.
func (s *JobStore) Fail(jobID string, errMsg string, maxRetries int) error {
	var job SyncJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": time.Now(),
	}
	if job.AttemptCount < maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Max retries exceeded: " + errMsg
	}

	if err := s.db.Model(&SyncJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel marks a queued job as canceled.
func (s *JobStore) Cancel(jobID string) error {
	result := s.db.Model(&SyncJob{}).
		Where("id = ? AND state = ?", jobID, JobStateQueued).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": time.Now(),
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel job: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	job, err := s.Get(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	return fmt.Errorf("%w: job %s is %s", ErrNotCancelable, jobID, job.State)
}

// Get retrieves a job by ID. It returns nil, nil when there is none.
func (s *JobStore) Get(jobID string) (*SyncJob, error) {
	var job SyncJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching filter, newest first. The page token is the
// requested_at of the last job of the previous page.
func (s *JobStore) List(filter JobListFilter, pageSize int, pageToken string) ([]SyncJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&SyncJob{})
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.RequestedBy != "" {
			q = q.Where("requested_by = ?", filter.RequestedBy)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	query := buildQuery(s.db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []SyncJob
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// CleanupStuckJobs puts running jobs that started before claimTimeout ago
// back on the queue.
func (s *JobStore) CleanupStuckJobs(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	result := s.db.Model(&SyncJob{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "Timed out (stuck job recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs that finished before cutoff.
func (s *JobStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}, cutoff).
		Delete(&SyncJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
