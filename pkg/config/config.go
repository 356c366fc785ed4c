// Package config loads the service configuration: defaults, then an optional
// YAML file, then RFMGR_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/cache"
	"github.com/vulnforge/reportformats/pkg/db"
	"github.com/vulnforge/reportformats/pkg/ha"
	"github.com/vulnforge/reportformats/pkg/jobs"
)

// Signature verifier backends.
const (
	VerifierGPGV    = "gpgv"
	VerifierKeyring = "keyring"
)

// GeneratorConfig controls report generator runs.
type GeneratorConfig struct {
	// UnprivilegedUser runs generators when the service is root. Default "nobody".
	UnprivilegedUser string `yaml:"unprivileged_user"`
	// Timeout bounds one generator run; zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// FeedConfig controls reconciliation of predefined formats.
type FeedConfig struct {
	// SyncOnStart runs one reconciliation pass before serving.
	SyncOnStart bool          `yaml:"sync_on_start"`
	Watch       bool          `yaml:"watch"`
	Interval    time.Duration `yaml:"interval"`
	Debounce    time.Duration `yaml:"debounce"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is the complete service configuration.
type Config struct {
	StateDir         string `yaml:"state_dir"`
	PredefinedDir    string `yaml:"predefined_dir"`
	FeedSignatureDir string `yaml:"feed_signature_dir"`
	GPGHome          string `yaml:"gpg_home"`
	Verifier         string `yaml:"verifier"`
	GPGVPath         string `yaml:"gpgv_path"`
	Listen           string `yaml:"listen"`

	Database  db.Config         `yaml:"database"`
	Generator GeneratorConfig   `yaml:"generator"`
	Feed      FeedConfig        `yaml:"feed"`
	CORS      CORSConfig        `yaml:"cors"`
	Log       LogConfig         `yaml:"log"`
	Audit     audit.Config      `yaml:"audit"`
	Authz     authz.Config      `yaml:"authz"`
	Lock      ha.LockConfig     `yaml:"lock"`
	Jobs      jobs.JobConfig    `yaml:"jobs"`
	Cache     cache.CacheConfig `yaml:"cache"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		StateDir:         "/var/lib/rfmgr",
		PredefinedDir:    "/var/lib/rfmgr/data-objects/report_formats",
		FeedSignatureDir: "/var/lib/rfmgr/data-objects/signatures/report_formats",
		GPGHome:          "/etc/rfmgr/gnupg",
		Verifier:         VerifierGPGV,
		GPGVPath:         "gpgv",
		Listen:           ":8080",
		Database:         db.DefaultConfig(),
		Generator: GeneratorConfig{
			UnprivilegedUser: "nobody",
		},
		Feed: FeedConfig{
			SyncOnStart: true,
			Watch:       true,
			Interval:    time.Hour,
			Debounce:    2 * time.Second,
		},
		Log:   LogConfig{Level: "info", Format: "text"},
		Audit: audit.DefaultConfig(),
		Authz: authz.DefaultConfig(),
		Lock:  *ha.DefaultLockConfig(),
		Jobs:  *jobs.DefaultJobConfig(),
		Cache: *cache.DefaultCacheConfig(),
	}
}

// Load reads path over the defaults and applies the environment. A missing
// file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays RFMGR_* variables, including those of the embedded
// sections.
func (c *Config) ApplyEnv() {
	setString(&c.StateDir, "RFMGR_STATE_DIR")
	setString(&c.PredefinedDir, "RFMGR_PREDEFINED_DIR")
	setString(&c.FeedSignatureDir, "RFMGR_FEED_SIGNATURE_DIR")
	setString(&c.GPGHome, "RFMGR_GPG_HOME")
	setString(&c.GPGVPath, "RFMGR_GPGV_PATH")
	setString(&c.Listen, "RFMGR_LISTEN")
	if v := os.Getenv("RFMGR_VERIFIER"); v != "" {
		c.Verifier = strings.ToLower(v)
	}

	setString(&c.Generator.UnprivilegedUser, "RFMGR_GENERATOR_USER")
	setSeconds(&c.Generator.Timeout, "RFMGR_GENERATOR_TIMEOUT")

	if v := os.Getenv("RFMGR_FEED_WATCH"); v != "" {
		c.Feed.Watch, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("RFMGR_FEED_SYNC_ON_START"); v != "" {
		c.Feed.SyncOnStart, _ = strconv.ParseBool(v)
	}
	setSeconds(&c.Feed.Interval, "RFMGR_FEED_INTERVAL")

	if v := os.Getenv("RFMGR_CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, o)
			}
		}
	}
	setString(&c.Log.Level, "RFMGR_LOG_LEVEL")
	setString(&c.Log.Format, "RFMGR_LOG_FORMAT")

	c.Database.ApplyEnv()
	c.Audit.ApplyEnv()
	c.Authz.ApplyEnv()
	c.Lock.ApplyEnv()
	c.Jobs.ApplyEnv()
	c.Cache.ApplyEnv()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.PredefinedDir == "" {
		return fmt.Errorf("predefined_dir is required")
	}
	switch c.Verifier {
	case VerifierGPGV, VerifierKeyring:
	default:
		return fmt.Errorf("unknown verifier %q (expected %s or %s)", c.Verifier, VerifierGPGV, VerifierKeyring)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	switch c.Authz.Mode {
	case authz.AuthzModeNone, authz.AuthzModeRoles:
	default:
		return fmt.Errorf("unknown authz mode %q", c.Authz.Mode)
	}
	if c.Generator.Timeout < 0 {
		return fmt.Errorf("generator.timeout must not be negative")
	}
	return nil
}

// Layout returns the asset directory layout.
func (c *Config) Layout() assetstore.Layout {
	return assetstore.NewLayout(c.StateDir, c.PredefinedDir, c.FeedSignatureDir)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setSeconds accepts a Go duration ("90s") or a plain number of seconds.
func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		*dst = time.Duration(n) * time.Second
	}
}
