package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnforge/reportformats/pkg/reportformat"
)

// fakeSyncer fails the first failures calls, then reports report.
type fakeSyncer struct {
	mu       sync.Mutex
	failures int
	report   reportformat.SyncReport
	calls    int
}

func (f *fakeSyncer) SyncOnce(context.Context) (*reportformat.SyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("feed unavailable")
	}
	r := f.report
	return &r, nil
}

func (f *fakeSyncer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastJobConfig() *JobConfig {
	cfg := DefaultJobConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.ClaimTimeout = 0
	cfg.RetentionDays = 0
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runPool(t *testing.T, wp *WorkerPool) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		wp.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestWorkerProcessesJob(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	syncer := &fakeSyncer{report: reportformat.SyncReport{Created: 4, Updated: 1, Removed: 2}}
	wp := NewWorkerPool(store, syncer, fastJobConfig(), quietLogger())

	var mu sync.Mutex
	var seen *reportformat.SyncReport
	wp.OnSuccess(func(r *reportformat.SyncReport) {
		mu.Lock()
		seen = r
		mu.Unlock()
	})

	job, err := store.Enqueue(NewFeedSyncJob(uuid.NewString(), "admin"))
	require.NoError(t, err)
	runPool(t, wp)

	require.Eventually(t, func() bool {
		j, _ := store.Get(job.ID)
		return j != nil && j.State == JobStateSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Created)
	assert.Equal(t, 1, got.Updated)
	assert.Equal(t, 2, got.Removed)
	assert.Equal(t, 1, got.AttemptCount)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, seen)
	assert.Equal(t, 4, seen.Created)
}

func TestWorkerRetriesOnFailure(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	syncer := &fakeSyncer{failures: 1, report: reportformat.SyncReport{Updated: 1}}
	wp := NewWorkerPool(store, syncer, fastJobConfig(), quietLogger())

	job, err := store.Enqueue(NewFeedSyncJob(uuid.NewString(), "admin"))
	require.NoError(t, err)
	runPool(t, wp)

	require.Eventually(t, func() bool {
		j, _ := store.Get(job.ID)
		return j != nil && j.State == JobStateSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Equal(t, "feed unavailable", got.LastError)
}

func TestWorkerFailsAfterMaxRetries(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	syncer := &fakeSyncer{failures: 100}
	cfg := fastJobConfig()
	cfg.MaxRetries = 2
	wp := NewWorkerPool(store, syncer, cfg, quietLogger())

	job, err := store.Enqueue(NewFeedSyncJob(uuid.NewString(), "admin"))
	require.NoError(t, err)
	runPool(t, wp)

	require.Eventually(t, func() bool {
		j, _ := store.Get(job.ID)
		return j != nil && j.State == JobStateFailed
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, syncer.Calls())
}

func TestWorkerDisabled(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	syncer := &fakeSyncer{}
	cfg := fastJobConfig()
	cfg.Enabled = false

	done := make(chan struct{})
	go func() {
		NewWorkerPool(store, syncer, cfg, quietLogger()).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled pool should return immediately")
	}
	assert.Zero(t, syncer.Calls())
}
