package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/vulnforge/reportformats/pkg/api"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/cache"
	"github.com/vulnforge/reportformats/pkg/jobs"
	"github.com/vulnforge/reportformats/pkg/reportformat"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the feed watcher and the background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.serve()
			return nil
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on (default from config, :8080)")
	a.bindFlags(cmd.Flags(), map[string]string{"listen": "listen"})
	return cmd
}

// serve runs until SIGINT or SIGTERM. Startup failures are fatal.
func (a *app) serve() {
	cfg := a.cfg
	logger := a.logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	svc, err := a.openServices(ctx)
	if err != nil {
		glog.Fatalf("Failed to initialize services: %v", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	var identity func(http.Handler) http.Handler
	switch {
	case cfg.Authz.JWTPublicKeyPath != "":
		identity, err = authz.JWTMiddleware(authz.JWTConfig{
			PublicKeyPath: cfg.Authz.JWTPublicKeyPath,
			Issuer:        cfg.Authz.JWTIssuer,
			Audience:      cfg.Authz.JWTAudience,
			Logger:        logger,
		})
		if err != nil {
			glog.Fatalf("Failed to configure JWT identity: %v", err)
		}
	case cfg.Authz.TrustedProxy:
		identity = authz.IdentityMiddleware()
	default:
		glog.Fatalf("No identity source: set authz.jwt_public_key_path or authz.trusted_proxy")
	}

	responses := cache.NewResponseCache(&cfg.Cache)
	watcher := svc.feedWatcher(cfg, a)

	if cfg.Feed.SyncOnStart {
		if report, err := watcher.SyncOnce(ctx); err != nil {
			logger.Error("initial feed sync failed", "error", err)
		} else {
			logger.Info("initial feed sync done", "created", report.Created, "updated", report.Updated, "removed", report.Removed)
		}
	}

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			logger.Debug("background task stopped", "task", name)
		}()
	}

	if cfg.Audit.Enabled {
		retention := audit.NewRetentionWorker(svc.auditStore, cfg.Audit.RetentionDays, logger)
		goRun("audit-retention", retention.Run)
	}
	if cfg.Feed.Watch || cfg.Feed.Interval > 0 {
		goRun("feed-watcher", func(ctx context.Context) {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("feed watcher stopped", "error", err)
			}
		})
	}
	if cfg.Jobs.Enabled {
		pool := jobs.NewWorkerPool(svc.jobStore, watcher, &cfg.Jobs, logger)
		pool.OnSuccess(func(*reportformat.SyncReport) { responses.InvalidateAll() })
		goRun("sync-jobs", pool.Run)
	}

	router := api.NewRouter(api.Options{
		Formats:        svc.manager,
		Authorizer:     svc.authorizer,
		Identity:       identity,
		AuditStore:     svc.auditStore,
		AuditConfig:    &cfg.Audit,
		JobStore:       svc.jobStore,
		Cache:          responses,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Ping: func(ctx context.Context) error {
			sqlDB, err := svc.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Listen, "stateDir", cfg.StateDir, "predefinedDir", cfg.PredefinedDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	wg.Wait()
	logger.Info("server stopped")
}
