package audit

import (
	"context"
	"log/slog"
	"time"
)

const pruneInterval = 6 * time.Hour

// RetentionWorker prunes report-format audit events older than the
// configured number of days.
type RetentionWorker struct {
	store  *Store
	keep   time.Duration
	every  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRetentionWorker keeps retentionDays of events; zero or less disables
// pruning.
func NewRetentionWorker(store *Store, retentionDays int, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionWorker{
		store:  store,
		keep:   time.Duration(retentionDays) * 24 * time.Hour,
		every:  pruneInterval,
		now:    time.Now,
		logger: logger.With("component", "audit-retention"),
	}
}

func (w *RetentionWorker) enabled() bool {
	return w.store != nil && w.keep > 0
}

// Prune removes events older than the retention window once.
func (w *RetentionWorker) Prune() (int64, error) {
	if !w.enabled() {
		return 0, nil
	}
	return w.store.DeleteOlderThan(w.now().Add(-w.keep))
}

// Run prunes at startup and then every few hours until ctx is done.
func (w *RetentionWorker) Run(ctx context.Context) {
	if !w.enabled() {
		w.logger.Debug("pruning disabled")
		return
	}

	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		switch n, err := w.Prune(); {
		case err != nil:
			w.logger.Error("failed to prune audit events", "error", err)
		case n > 0:
			w.logger.Info("pruned audit events", "deleted", n, "keep", w.keep)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
