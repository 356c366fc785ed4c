package jobs

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// Router creates a chi.Router for the sync job API. Only sessions that can
// do everything may request or inspect syncs; a nil authorizer leaves the
// API open.
func Router(store *JobStore, authorizer authz.Authorizer) chi.Router {
	r := chi.NewRouter()
	if authorizer != nil {
		r.Use(requireEverything(authorizer))
	}
	r.Post("/feed_sync", EnqueueSyncHandler(store))
	r.Get("/feed_sync", ListJobsHandler(store))
	r.Get("/feed_sync/{jobId}", GetJobHandler(store))
	r.Post("/feed_sync/{jobId}:cancel", CancelJobHandler(store))
	return r
}

func requireEverything(authorizer authz.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := authz.SessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !authorizer.CanEverything(r.Context(), s) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
