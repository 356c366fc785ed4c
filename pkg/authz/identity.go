package authz

import (
	"context"
	"net/http"
	"strings"
)

// sessionCtxKey is an unexported type used as the context key for Session.
type sessionCtxKey struct{}

// Session is the caller of a lifecycle operation.
type Session struct {
	UserUUID string
	Name     string
	Roles    []string
	// System marks internal callers such as the feed reconciler and the CLI
	// override path. System sessions may modify predefined formats.
	System bool
}

// SystemSession returns the session used for internal operations.
func SystemSession() *Session {
	return &Session{Name: "system", System: true}
}

// HasRole reports whether s carries role.
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Subjects lists the user and role UUIDs grants are matched against.
func (s *Session) Subjects() []string {
	if s == nil {
		return nil
	}
	subjects := make([]string, 0, len(s.Roles)+1)
	if s.UserUUID != "" {
		subjects = append(subjects, s.UserUUID)
	}
	for _, r := range s.Roles {
		subjects = append(subjects, RoleUUID(r))
	}
	return subjects
}

// WithSession returns a new context with s attached.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext retrieves the Session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return s, ok && s != nil
}

// IdentityMiddleware returns HTTP middleware that builds a Session from the
// X-Remote-User (user UUID), X-Remote-Name and X-Remote-Role headers set by a
// trusted proxy. Requests without X-Remote-User carry no session. Roles are
// comma-separated and default to User.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				next.ServeHTTP(w, r)
				return
			}

			s := &Session{
				UserUUID: user,
				Name:     strings.TrimSpace(r.Header.Get("X-Remote-Name")),
				Roles:    splitRoles(r.Header.Get("X-Remote-Role")),
			}
			if s.Name == "" {
				s.Name = user
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

func splitRoles(header string) []string {
	var roles []string
	for _, role := range strings.Split(header, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return roles
}
