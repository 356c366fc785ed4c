// Package db opens the gorm connection backing the report format tables.
package db

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config selects and tunes the database connection.
type Config struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Debug logs every statement.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a sqlite configuration under the working directory.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "rfmgr.db",
		MaxOpenConns:    10,
		MaxIdleConns:    10,
		ConnMaxLifetime: 3 * time.Minute,
	}
}

// ApplyEnv overlays RFMGR_DB_DRIVER and RFMGR_DB_DSN, falling back to
// DATABASE_TYPE and DATABASE_DSN.
func (c *Config) ApplyEnv() {
	if v := firstEnv("RFMGR_DB_DRIVER", "DATABASE_TYPE"); v != "" {
		c.Driver = strings.ToLower(v)
	}
	if v := firstEnv("RFMGR_DB_DSN", "DATABASE_DSN"); v != "" {
		c.DSN = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeDSN rewrites dsn into the form the gorm dialector expects.
// Postgres URLs become key=value strings and MySQL DSNs always parse times.
func NormalizeDSN(driver, dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("database DSN is required for driver %q", driver)
	}
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
		return dsn, nil
	case DriverPostgres:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			conn, err := pq.ParseURL(dsn)
			if err != nil {
				return "", fmt.Errorf("parse postgres URL: %w", err)
			}
			return conn, nil
		}
		return dsn, nil
	case DriverMySQL:
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		if cfg.Loc == nil {
			cfg.Loc = time.UTC
		}
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (expected sqlite, postgres or mysql)", driver)
	}
}

// Open connects to the configured database.
func Open(cfg Config, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn, err := NormalizeDSN(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverMySQL:
		dialector = mysql.New(mysql.Config{DSN: dsn})
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info("database connected", "driver", cfg.Driver)
	return gdb, nil
}

// Close closes the pool behind gdb.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
