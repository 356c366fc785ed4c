package authz

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthzMiddleware returns middleware that maps the request to an action and
// checks it with authorizer.May. Requests without a session get 401, unknown
// routes and denied actions get 403.
func AuthzMiddleware(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				writeDenied(w, http.StatusUnauthorized, "unauthenticated", "no session")
				return
			}

			action := MapRequest(r.Method, r.URL.Path)
			if action == "" {
				writeDenied(w, http.StatusForbidden, "forbidden", "unknown endpoint, access denied")
				return
			}

			if !authorizer.May(r.Context(), s, action) {
				writeDenied(w, http.StatusForbidden, "forbidden", fmt.Sprintf("insufficient permissions for %s", action))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
