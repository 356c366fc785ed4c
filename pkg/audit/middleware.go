package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// Middleware records one request event for every mutating report format
// request. Reads are not recorded.
func Middleware(store *Store, cfg *Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			action := authz.MapRequest(r.Method, r.URL.Path)
			if r.Method == http.MethodGet || action == "" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if outcomeFromStatus(status) == OutcomeDenied && !cfg.LogDenied {
				return
			}
			event := requestEvent(r, action, status, start)
			if err := store.Append(event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", event.RequestID)
			}
		})
	}
}

func requestEvent(r *http.Request, action string, status int, start time.Time) *EventRecord {
	actor := "anonymous"
	if s, ok := authz.SessionFromContext(r.Context()); ok {
		actor = s.UserUUID
		if actor == "" {
			actor = s.Name
		}
	}
	return &EventRecord{
		ID:           uuid.NewString(),
		EventType:    EventRequest,
		Actor:        actor,
		ResourceType: authz.ResourceReportFormat,
		ResourceUUID: resourceFromPath(r.URL.Path),
		Action:       action,
		Outcome:      outcomeFromStatus(status),
		RequestID:    middleware.GetReqID(r.Context()),
		StatusCode:   status,
		CreatedAt:    start,
		Metadata: Metadata{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		},
	}
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
