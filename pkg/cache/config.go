package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the API response cache.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, NewResponseCache
	// returns nil and every request reaches the handlers.
	Enabled bool `yaml:"enabled"`

	// TTL bounds how long a cached response is served. Changes made outside
	// the API (alerts referencing a format, feed files) show up after it.
	TTL time.Duration `yaml:"ttl"`

	// MaxSize is the maximum number of cached responses.
	MaxSize int `yaml:"max_size"`
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled: true,
		TTL:     10 * time.Second,
		MaxSize: 1000,
	}
}

// ApplyEnv overrides cfg from the environment.
//
// Environment variables:
//   - RFMGR_CACHE_ENABLED: "true" or "false"
//   - RFMGR_CACHE_TTL: duration in seconds
//   - RFMGR_CACHE_MAX_SIZE: max cached responses
func (cfg *CacheConfig) ApplyEnv() {
	if v := os.Getenv("RFMGR_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RFMGR_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("RFMGR_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}
}
