package audit

import (
	"os"
	"strconv"
)

// Config controls audit behavior.
type Config struct {
	RetentionDays int  `yaml:"retention_days"` // Default 90
	LogDenied     bool `yaml:"log_denied"`     // Whether to log denied (401/403) requests
	Enabled       bool `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 90,
		LogDenied:     true,
		Enabled:       true,
	}
}

// ApplyEnv overlays RFMGR_AUDIT_RETENTION_DAYS, RFMGR_AUDIT_LOG_DENIED and
// RFMGR_AUDIT_ENABLED.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RFMGR_AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			c.RetentionDays = days
		}
	}
	if v := os.Getenv("RFMGR_AUDIT_LOG_DENIED"); v != "" {
		c.LogDenied, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("RFMGR_AUDIT_ENABLED"); v != "" {
		c.Enabled, _ = strconv.ParseBool(v)
	}
}
