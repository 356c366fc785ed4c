package cache

import (
	"bytes"
	"net/http"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// ResponseCache caches GET responses per session. A nil *ResponseCache is
// valid and caches nothing.
type ResponseCache struct {
	lru *LRUCache
}

// NewResponseCache returns nil when cfg is nil or disabled.
func NewResponseCache(cfg *CacheConfig) *ResponseCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &ResponseCache{lru: NewLRUCache(cfg.MaxSize, cfg.TTL)}
}

// InvalidateAll drops every cached response.
func (rc *ResponseCache) InvalidateAll() {
	if rc == nil {
		return
	}
	rc.lru.InvalidateAll()
}

type captureWriter struct {
	http.ResponseWriter
	statusCode int
	keep       bool
	body       bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.statusCode == 0 {
		w.statusCode = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	if w.keep {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Middleware serves repeated GETs of the same caller from the cache and
// clears the cache after any other request that succeeds. Only 200
// responses are stored. Requests without a session pass through.
func (rc *ResponseCache) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rc == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := authz.SessionFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			if r.Method != http.MethodGet {
				next.ServeHTTP(cw, r)
				if cw.statusCode >= 200 && cw.statusCode < 300 {
					rc.InvalidateAll()
				}
				return
			}

			key := sessionKey(s) + " " + r.URL.RequestURI()
			if body, contentType, ok := rc.lru.Get(key); ok {
				w.Header().Set("Content-Type", contentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			cw.keep = true
			next.ServeHTTP(cw, r)
			if cw.statusCode == http.StatusOK {
				rc.lru.Set(key, bytes.Clone(cw.body.Bytes()), w.Header().Get("Content-Type"))
			}
		})
	}
}

// sessionKey identifies what a session may see: the user plus its roles.
func sessionKey(s *authz.Session) string {
	if s.System {
		return "system"
	}
	var b bytes.Buffer
	b.WriteString(s.UserUUID)
	for _, role := range s.Roles {
		b.WriteByte('|')
		b.WriteString(role)
	}
	return b.String()
}
