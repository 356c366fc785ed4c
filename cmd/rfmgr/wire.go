package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/config"
	"github.com/vulnforge/reportformats/pkg/db"
	"github.com/vulnforge/reportformats/pkg/ha"
	"github.com/vulnforge/reportformats/pkg/jobs"
	"github.com/vulnforge/reportformats/pkg/reportformat"
	"github.com/vulnforge/reportformats/pkg/sandbox"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// services are the components shared by serve and the maintenance commands.
type services struct {
	db         *gorm.DB
	locker     ha.Locker
	authorizer authz.Authorizer
	auditStore *audit.Store
	jobStore   *jobs.JobStore
	manager    *reportformat.Manager
}

// openServices connects to the database, builds the manager and migrates the
// schema under the migration lock.
func (a *app) openServices(ctx context.Context) (*services, error) {
	cfg := a.cfg
	gdb, err := db.Open(cfg.Database, a.logger)
	if err != nil {
		return nil, err
	}

	s := &services{
		db:         gdb,
		locker:     ha.NewLocker(gdb, &cfg.Lock),
		authorizer: cfg.Authz.NewAuthorizer(acl.NewStore(gdb)),
		auditStore: audit.NewStore(gdb),
		jobStore:   jobs.NewJobStore(gdb),
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		recorder = audit.NewStoreRecorder(s.auditStore, a.logger)
	}
	s.manager = reportformat.NewManager(gdb, reportformat.Options{
		Layout:           cfg.Layout(),
		Verifier:         newVerifier(cfg, a),
		Authorizer:       s.authorizer,
		Runner:           sandbox.NewUnprivilegedRunner(cfg.Generator.UnprivilegedUser, a.logger),
		Recorder:         recorder,
		Logger:           a.logger,
		GeneratorTimeout: cfg.Generator.Timeout,
	})

	err = s.locker.WithLock(ctx, ha.LockMigration, func(context.Context) error {
		if err := s.manager.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate report formats: %w", err)
		}
		if err := s.auditStore.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate audit events: %w", err)
		}
		if err := s.jobStore.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate sync jobs: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	layout := cfg.Layout()
	for _, dir := range []string{layout.UsersRoot(), layout.TrashRoot(), layout.SignatureLinkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = db.Close(gdb)
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *services) Close() error {
	return db.Close(s.db)
}

// feedWatcher runs reconciliation under the feed lock.
func (s *services) feedWatcher(cfg *config.Config, a *app) *reportformat.FeedWatcher {
	return reportformat.NewFeedWatcher(s.manager, reportformat.WatcherOptions{
		Locker:   s.locker,
		LockName: ha.LockFeedSync,
		Debounce: cfg.Feed.Debounce,
		Interval: cfg.Feed.Interval,
		Watch:    cfg.Feed.Watch,
		Logger:   a.logger,
	})
}

func newVerifier(cfg *config.Config, a *app) signature.Verifier {
	if cfg.Verifier == config.VerifierKeyring {
		return signature.NewKeyringVerifier(cfg.GPGHome, a.logger)
	}
	return signature.NewGPGVVerifier(cfg.GPGVPath, cfg.GPGHome, a.logger)
}

// asUser is the session of a CLI call made on behalf of user; an empty user
// gets the system session.
func asUser(ctx context.Context, user string) context.Context {
	if user == "" {
		return authz.WithSession(ctx, authz.SystemSession())
	}
	return authz.WithSession(ctx, &authz.Session{UserUUID: user, Name: user, Roles: []string{authz.RoleUser}})
}

func (a *app) print(w io.Writer, v any) error {
	if a.output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
