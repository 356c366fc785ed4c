// Package ha provides the cross-replica lock that serialises database
// migrations and feed reconciliation when several service instances share one
// database.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LockConfig configures the Locker.
type LockConfig struct {
	// Enabled controls whether locking is used at all. Single-instance
	// deployments may turn it off.
	Enabled bool `yaml:"enabled"`

	// Prefix namespaces lock names, so services sharing a database do not
	// block each other.
	Prefix string `yaml:"prefix"`

	// Identity is written into table locks. Defaults to POD_NAME or the
	// hostname.
	Identity string `yaml:"identity"`

	// RetryInterval is the pause between table lock attempts.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// MaxRetries bounds table lock attempts.
	MaxRetries int `yaml:"max_retries"`

	// StaleAfter is the age after which a table lock is considered abandoned.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DefaultLockConfig returns a LockConfig with sensible defaults.
func DefaultLockConfig() *LockConfig {
	return &LockConfig{
		Enabled:       true,
		Prefix:        "rfmgr-",
		Identity:      defaultIdentity(),
		RetryInterval: time.Second,
		MaxRetries:    30,
		StaleAfter:    5 * time.Minute,
	}
}

// ApplyEnv overrides fields from environment variables:
//   - RFMGR_LOCK_ENABLED: "true" or "false"
//   - RFMGR_LOCK_PREFIX
//   - RFMGR_LOCK_RETRY_INTERVAL: seconds
//   - RFMGR_LOCK_MAX_RETRIES
//   - RFMGR_LOCK_STALE_AFTER: seconds
//   - POD_NAME: lock holder identity
func (c *LockConfig) ApplyEnv() {
	if v := os.Getenv("RFMGR_LOCK_ENABLED"); v != "" {
		c.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RFMGR_LOCK_PREFIX"); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv("RFMGR_LOCK_RETRY_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.RetryInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("RFMGR_LOCK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("RFMGR_LOCK_STALE_AFTER"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.StaleAfter = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("POD_NAME"); v != "" {
		c.Identity = v
	}
}
