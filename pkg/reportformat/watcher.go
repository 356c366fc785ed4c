package reportformat

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// Locker serialises feed reconciliation across service instances.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(context.Context) error) error
}

// DefaultFeedLockName is the lock held around a feed sync.
const DefaultFeedLockName = "feed-sync"

// WatcherOptions configures a FeedWatcher.
type WatcherOptions struct {
	Locker   Locker
	LockName string
	// Debounce collapses bursts of file events into one sync.
	Debounce time.Duration
	// Interval triggers a sync periodically; zero disables it.
	Interval time.Duration
	// Watch enables file system notifications on the predefined root.
	Watch  bool
	Logger *slog.Logger
}

// FeedWatcher re-runs feed reconciliation when the predefined root changes
// and, optionally, on a fixed interval.
type FeedWatcher struct {
	manager  *Manager
	locker   Locker
	lockName string
	debounce time.Duration
	interval time.Duration
	watch    bool
	logger   *slog.Logger
}

// NewFeedWatcher creates a FeedWatcher for m.
func NewFeedWatcher(m *Manager, opts WatcherOptions) *FeedWatcher {
	w := &FeedWatcher{
		manager:  m,
		locker:   opts.Locker,
		lockName: opts.LockName,
		debounce: opts.Debounce,
		interval: opts.Interval,
		watch:    opts.Watch,
		logger:   opts.Logger,
	}
	if w.lockName == "" {
		w.lockName = DefaultFeedLockName
	}
	if w.debounce <= 0 {
		w.debounce = 2 * time.Second
	}
	if w.logger == nil {
		w.logger = m.logger
	}
	return w
}

// SyncOnce runs one reconciliation as the system user under the feed lock.
func (w *FeedWatcher) SyncOnce(ctx context.Context) (*SyncReport, error) {
	var report *SyncReport
	run := func(ctx context.Context) error {
		var err error
		report, err = w.manager.SyncFeed(authz.WithSession(ctx, authz.SystemSession()))
		return err
	}
	var err error
	if w.locker == nil {
		err = run(ctx)
	} else {
		err = w.locker.WithLock(ctx, w.lockName, run)
	}
	return report, err
}

// Run syncs once, then on every debounced change and interval tick, until
// ctx is cancelled. Sync failures are logged and do not stop the loop.
func (w *FeedWatcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	var fw *fsnotify.Watcher
	if w.watch {
		var err error
		fw, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create feed watcher: %w", err)
		}
		defer fw.Close()
		if err := addTree(fw, w.manager.layout.PredefinedDir); err != nil {
			return fmt.Errorf("watch predefined report formats: %w", err)
		}
		events, errs = fw.Events, fw.Errors
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Info("feed watcher started", "dir", w.manager.layout.PredefinedDir,
		"watch", w.watch, "interval", w.interval)
	w.syncLogged(ctx)

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("feed watcher stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			if debounce == nil {
				debounce = time.NewTimer(w.debounce)
			} else {
				debounce.Reset(w.debounce)
			}
			fire = debounce.C
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("feed watcher error", "error", err)
		case <-fire:
			fire = nil
			w.syncLogged(ctx)
		case <-tick:
			w.syncLogged(ctx)
		}
	}
}

func (w *FeedWatcher) syncLogged(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("feed sync failed", "error", err)
	}
}

// addTree watches root and every directory below it.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
}
