package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is the default time-to-live for cached access results.
const DefaultCacheTTL = 10 * time.Second

// cacheEntry stores a cached access result with its expiration time.
type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// CachedAuthorizer wraps another Authorizer with a short-lived in-memory
// cache of HasAccess results, which hit the grant tables.
type CachedAuthorizer struct {
	inner Authorizer
	ttl   time.Duration
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewCachedAuthorizer creates a CachedAuthorizer that wraps inner with the given TTL.
func NewCachedAuthorizer(inner Authorizer, ttl time.Duration) *CachedAuthorizer {
	return &CachedAuthorizer{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// May delegates to the inner Authorizer.
func (c *CachedAuthorizer) May(ctx context.Context, s *Session, action string) bool {
	return c.inner.May(ctx, s, action)
}

// CanEverything delegates to the inner Authorizer.
func (c *CachedAuthorizer) CanEverything(ctx context.Context, s *Session) bool {
	return c.inner.CanEverything(ctx, s)
}

// HasAccess checks the cache first and delegates to the inner Authorizer on miss.
func (c *CachedAuthorizer) HasAccess(ctx context.Context, s *Session, resourceType, resourceUUID, action string) (bool, error) {
	if s == nil {
		return false, nil
	}
	key := cacheKey(s, resourceType, resourceUUID, action)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.allowed, nil
	}

	allowed, err := c.inner.HasAccess(ctx, s, resourceType, resourceUUID, action)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{
		allowed:   allowed,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	return allowed, nil
}

// Invalidate drops every cached result, e.g. after grants change.
func (c *CachedAuthorizer) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// cacheKey builds a deterministic cache key from a session and a resource.
func cacheKey(s *Session, resourceType, resourceUUID, action string) string {
	return fmt.Sprintf("%s:%t:%s:%s:%s:%s",
		s.UserUUID,
		s.System,
		strings.Join(s.Roles, ","),
		resourceType,
		resourceUUID,
		action,
	)
}
