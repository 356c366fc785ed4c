package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// Lock names used by the service.
const (
	LockMigration = "migration"
	LockFeedSync  = "feed-sync"
)

// Locker serialises named critical sections across replicas sharing one
// database.
type Locker interface {
	// WithLock runs fn while holding the lock called name. It blocks until
	// the lock is acquired and releases it after fn returns.
	WithLock(ctx context.Context, name string, fn func(context.Context) error) error
}

// NewLocker returns a Locker for the database dialect. PostgreSQL uses
// session advisory locks; other databases use a lock table, created here.
// A nil db or a disabled config yields a Locker that only runs fn.
func NewLocker(db *gorm.DB, cfg *LockConfig) Locker {
	if cfg == nil {
		cfg = DefaultLockConfig()
	}
	if db == nil || !cfg.Enabled {
		return NoopLocker{}
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{db: db, prefix: cfg.Prefix}
	}
	// Create the table now so concurrent first callers never see it missing.
	_ = db.AutoMigrate(&lockRecord{})
	return &tableLock{db: db, cfg: cfg}
}

// NoopLocker runs fn without locking.
type NoopLocker struct{}

// WithLock runs fn.
func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func advisoryKey(prefix, name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(prefix + name)))
}

type pgAdvisoryLock struct {
	db     *gorm.DB
	prefix string
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	key := advisoryKey(l.prefix, name)
	// Advisory locks belong to a session, so lock and unlock on one connection.
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", key).Error; err != nil {
			return fmt.Errorf("acquire advisory lock %s: %w", name, err)
		}
		defer func() {
			_ = conn.Session(&gorm.Session{Context: context.Background()}).
				Exec("SELECT pg_advisory_unlock(?)", key).Error
		}()
		return fn(ctx)
	})
}

// lockRecord is one held lock of the table strategy.
type lockRecord struct {
	ID       string    `gorm:"primaryKey;column:id;type:varchar(128)"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by;type:varchar(255)"`
}

func (lockRecord) TableName() string { return "service_locks" }

// tableLock inserts a row per held lock and fails while the row exists.
// Rows older than StaleAfter are taken over, for holders that crashed.
type tableLock struct {
	db  *gorm.DB
	cfg *LockConfig
}

func (l *tableLock) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	id := l.cfg.Prefix + name
	row := lockRecord{ID: id, LockedBy: l.cfg.Identity}

	var lastErr error
	acquired := false
	for i := 0; i < l.cfg.MaxRetries; i++ {
		l.db.WithContext(ctx).Where("id = ? AND locked_at < ?", id, time.Now().Add(-l.cfg.StaleAfter)).Delete(&lockRecord{})

		row.LockedAt = time.Now()
		if lastErr = l.db.WithContext(ctx).Create(&row).Error; lastErr == nil {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
	if !acquired {
		return fmt.Errorf("acquire lock %s after %d attempts: %w", name, l.cfg.MaxRetries, lastErr)
	}

	defer func() {
		l.db.Where("id = ? AND locked_by = ?", id, l.cfg.Identity).Delete(&lockRecord{})
	}()
	return fn(ctx)
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}
