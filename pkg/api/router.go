// Package api serves the report format lifecycle over HTTP/JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/cache"
	"github.com/vulnforge/reportformats/pkg/jobs"
)

// Mount points outside the report format API.
const (
	AuditPrefix = "/api/audit/v1"
	JobsPrefix  = "/api/jobs/v1"
)

// Options wires the router. Formats and Authorizer are required; the rest
// are optional.
type Options struct {
	Formats    Formats
	Authorizer authz.Authorizer
	// Identity builds the session. Default authz.IdentityMiddleware.
	Identity func(http.Handler) http.Handler

	AuditStore  *audit.Store
	AuditConfig *audit.Config
	JobStore    *jobs.JobStore
	Cache       *cache.ResponseCache

	AllowedOrigins []string
	// Ping backs /healthz; nil reports healthy.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter builds the complete HTTP surface.
func NewRouter(opts Options) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identity := opts.Identity
	if identity == nil {
		identity = authz.IdentityMiddleware()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link", "Location", "X-Cache"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler(opts.Ping))
	r.Get("/livez", healthHandler(nil))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity)

		r.Route(authz.APIPrefix, func(r chi.Router) {
			r.Use(audit.Middleware(opts.AuditStore, opts.AuditConfig, logger))
			r.Use(authz.AuthzMiddleware(opts.Authorizer))
			r.Use(opts.Cache.Middleware())

			f := opts.Formats
			r.Route("/report_formats", func(r chi.Router) {
				r.Get("/", listFormatsHandler(f, logger))
				r.Post("/", createFormatHandler(f, logger))
				r.Get("/{id}", getFormatHandler(f, logger))
				r.Patch("/{id}", modifyFormatHandler(f, logger))
				r.Delete("/{id}", deleteFormatHandler(f, logger))
				r.Post("/{id}/clone", cloneFormatHandler(f, logger))
				r.Post("/{id}/verify", verifyFormatHandler(f, logger))
				r.Get("/{id}/params", listParamsHandler(f, logger))
				r.Post("/{id}/render", renderFormatHandler(f, logger))
			})
			r.Route("/trash", func(r chi.Router) {
				r.Get("/", listTrashHandler(f, logger))
				r.Delete("/", emptyTrashHandler(f, logger))
				r.Delete("/{id}", deleteTrashedHandler(f, logger))
				r.Post("/{id}/restore", restoreHandler(f, logger))
			})
		})

		if opts.AuditStore != nil {
			r.Mount(AuditPrefix, audit.Router(opts.AuditStore, opts.Authorizer))
		}
		if opts.JobStore != nil {
			r.Mount(JobsPrefix, jobs.Router(opts.JobStore, opts.Authorizer))
		}
	})

	return r
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
