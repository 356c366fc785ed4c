package jobs

import (
	"time"
)

// JobState is the lifecycle state of a feed sync job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// FeedSyncIdempotencyKey collapses concurrent sync requests into one
// pending job.
const FeedSyncIdempotencyKey = "feed-sync"

// SyncJob is the GORM model for a requested feed reconciliation.
type SyncJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          JobState   `gorm:"column:state;index:idx_sync_job_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey *string    `gorm:"column:idempotency_key;uniqueIndex:idx_sync_job_idemp_key"`
	Created        int        `gorm:"column:created"`
	Updated        int        `gorm:"column:updated"`
	Removed        int        `gorm:"column:removed"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// NewFeedSyncJob returns a queued sync job requested by actor that shares
// FeedSyncIdempotencyKey with every other pending request.
func NewFeedSyncJob(id, actor string) *SyncJob {
	key := FeedSyncIdempotencyKey
	return &SyncJob{
		ID:             id,
		RequestedBy:    actor,
		State:          JobStateQueued,
		IdempotencyKey: &key,
	}
}

// TableName returns the GORM table name.
func (SyncJob) TableName() string { return "feed_sync_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *SyncJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}
