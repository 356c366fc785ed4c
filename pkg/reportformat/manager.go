package reportformat

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/sandbox"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// Options configures a Manager. Zero values select the defaults noted per
// field.
type Options struct {
	Layout     assetstore.Layout
	Verifier   signature.Verifier
	Authorizer authz.Authorizer // default authz.NoopAuthorizer
	Runner     sandbox.Runner   // default sandbox.NewUnprivilegedRunner("")
	Recorder   audit.Recorder   // default audit.NopRecorder
	Logger     *slog.Logger
	// GeneratorTimeout bounds one generator run; zero means no limit.
	GeneratorTimeout time.Duration
}

// Manager runs report format lifecycle operations. Every mutating operation
// runs in one transaction; disk changes happen at the tail of it and are
// undone on failure.
type Manager struct {
	db               *gorm.DB
	layout           assetstore.Layout
	verifier         signature.Verifier
	locator          *signature.Locator
	authz            authz.Authorizer
	runner           sandbox.Runner
	recorder         audit.Recorder
	logger           *slog.Logger
	generatorTimeout time.Duration
	now              func() time.Time
}

// NewManager creates a Manager over db.
func NewManager(db *gorm.DB, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		db:               db,
		layout:           opts.Layout,
		verifier:         opts.Verifier,
		locator:          signature.NewLocator(opts.Layout),
		authz:            opts.Authorizer,
		runner:           opts.Runner,
		recorder:         opts.Recorder,
		logger:           logger,
		generatorTimeout: opts.GeneratorTimeout,
		now:              time.Now,
	}
	if m.authz == nil {
		m.authz = &authz.NoopAuthorizer{}
	}
	if m.runner == nil {
		m.runner = sandbox.NewUnprivilegedRunner("", logger)
	}
	if m.recorder == nil {
		m.recorder = audit.NopRecorder{}
	}
	return m
}

// AutoMigrate creates the report format and permission tables.
func (m *Manager) AutoMigrate() error {
	if err := NewStore(m.db).AutoMigrate(); err != nil {
		return err
	}
	return acl.NewStore(m.db).AutoMigrate()
}

// Layout returns the directory layout the manager works on.
func (m *Manager) Layout() assetstore.Layout { return m.layout }

func (m *Manager) session(ctx context.Context) (*authz.Session, error) {
	s, ok := authz.SessionFromContext(ctx)
	if !ok {
		return nil, ErrPermissionDenied
	}
	return s, nil
}

// mayAccess reports whether s may perform action on a format owned by owner.
func (m *Manager) mayAccess(ctx context.Context, s *authz.Session, owner *string, formatUUID, action string) (bool, error) {
	if m.authz.CanEverything(ctx, s) {
		return true, nil
	}
	if owner != nil && s.UserUUID != "" && *owner == s.UserUUID {
		return true, nil
	}
	return m.authz.HasAccess(ctx, s, authz.ResourceReportFormat, formatUUID, action)
}

// ownsTrash reports whether s may act on a trashed format of owner. Trash
// carries no grants.
func (m *Manager) ownsTrash(ctx context.Context, s *authz.Session, owner *string) bool {
	if m.authz.CanEverything(ctx, s) {
		return true
	}
	return owner != nil && s.UserUUID != "" && *owner == s.UserUUID
}

// find returns the active format uuid when s may perform action on it.
func (m *Manager) find(ctx context.Context, store *Store, s *authz.Session, formatUUID, action string) (*ReportFormatRecord, error) {
	record, err := store.Get(formatUUID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	ok, err := m.mayAccess(ctx, s, record.Owner, record.UUID, action)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// isPredefined reports whether record is feed-supplied or global.
func isPredefined(store *Store, record *ReportFormatRecord) (bool, error) {
	if record.Owner == nil {
		return true, nil
	}
	return store.IsPredefined(record.ID)
}

func (m *Manager) dirOf(record *ReportFormatRecord, predefined bool) string {
	return m.layout.FormatDir(ownerString(record.Owner), record.UUID, predefined)
}

func actorOf(s *authz.Session) string {
	if s.UserUUID != "" {
		return s.UserUUID
	}
	return s.Name
}

func (m *Manager) recordEvent(ctx context.Context, s *authz.Session, action, formatUUID string, metadata audit.Metadata) {
	m.recorder.Record(ctx, actorOf(s), action, formatUUID, metadata)
}

// removeQuietly removes dir and logs a failure.
func (m *Manager) removeQuietly(dir string) {
	if err := assetstore.RemoveTree(dir); err != nil {
		m.logger.Warn("failed to remove report format directory", "dir", dir, "error", err)
	}
}
