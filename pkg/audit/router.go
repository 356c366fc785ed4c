package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// Router creates a chi.Router for the audit API. Only sessions that can do
// everything may read the audit trail; a nil authorizer leaves it open.
func Router(store *Store, authorizer authz.Authorizer) chi.Router {
	r := chi.NewRouter()
	if authorizer != nil {
		r.Use(requireEverything(authorizer))
	}
	r.Get("/events", ListEventsHandler(store))
	r.Get("/events/{eventId}", GetEventHandler(store))
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
