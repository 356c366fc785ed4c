package jobs

import (
	"os"
	"strconv"
	"time"
)

// JobConfig controls the feed sync queue and its workers.
type JobConfig struct {
	Concurrency   int           `yaml:"concurrency"`    // Default 1; syncs serialize on the feed lock anyway.
	MaxRetries    int           `yaml:"max_retries"`    // Default 3.
	PollInterval  time.Duration `yaml:"poll_interval"`  // Default 2s.
	ClaimTimeout  time.Duration `yaml:"claim_timeout"`  // Running longer than this counts as stuck. Default 10m.
	RetentionDays int           `yaml:"retention_days"` // Default 7.
	Enabled       bool          `yaml:"enabled"`        // Default true.
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency:   1,
		MaxRetries:    3,
		PollInterval:  2 * time.Second,
		ClaimTimeout:  10 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}
}

// ApplyEnv overrides cfg from RFMGR_JOB_CONCURRENCY, RFMGR_JOB_MAX_RETRIES,
// RFMGR_JOB_POLL_INTERVAL_SECONDS, RFMGR_JOB_CLAIM_TIMEOUT_MINUTES,
// RFMGR_JOB_RETENTION_DAYS and RFMGR_JOB_ENABLED. Invalid values are ignored.
func (cfg *JobConfig) ApplyEnv() {
	if v := os.Getenv("RFMGR_JOB_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("RFMGR_JOB_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("RFMGR_JOB_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("RFMGR_JOB_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClaimTimeout = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("RFMGR_JOB_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}
	if v := os.Getenv("RFMGR_JOB_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}
}
