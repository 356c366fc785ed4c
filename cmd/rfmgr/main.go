// Package main provides rfmgr, the report format manager: the HTTP service
// and the maintenance commands that run against the same database and asset
// directories.
package main

import (
	goflag "flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vulnforge/reportformats/pkg/config"
)

var version = "dev"

// app carries what every subcommand needs once the root command has loaded
// the configuration.
type app struct {
	configPath string
	output     string
	flags      *viper.Viper
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	// glog writes to stderr; its own flags ride along on the cobra flag set.
	_ = goflag.Set("logtostderr", "true")

	if err := newRootCmd(newApp()).Execute(); err != nil {
		glog.Fatalf("rfmgr: %v", err)
	}
}

func newApp() *app {
	return &app{flags: viper.New()}
}

func newRootCmd(a *app) *cobra.Command {

	root := &cobra.Command{
		Use:   "rfmgr",
		Short: "Report format lifecycle manager",
		Long: `rfmgr manages report formats: the signed generator bundles that turn a
scan report into PDF, CSV, XML and other documents.

"rfmgr serve" runs the HTTP API, the feed watcher and the background
workers. The other commands perform one maintenance operation against the
configured database and asset directories and exit.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", envOrDefault("RFMGR_CONFIG", "/etc/rfmgr/rfmgr.yaml"), "Path to the YAML configuration file")
	pf.StringVarP(&a.output, "output", "o", "json", "Output format: json or yaml")
	pf.String("state-dir", "", "State directory holding user formats and the trash")
	pf.String("predefined-dir", "", "Directory of feed-supplied report formats")
	pf.String("feed-signature-dir", "", "Directory of feed-supplied format signatures")
	pf.String("db-driver", "", "Database driver: sqlite, postgres or mysql")
	pf.String("db-dsn", "", "Database connection string")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("log-format", "", "Log format: text or json")
	pf.AddGoFlagSet(goflag.CommandLine)
	a.bindFlags(pf, overrideFlags)

	root.AddCommand(
		newServeCmd(a),
		newSyncCmd(a),
		newVerifyCmd(a),
		newModifyCmd(a),
		newEmptyTrashCmd(a),
		newRenderCmd(a),
		newDeleteUserCmd(a),
		newHealthcheckCmd(a),
	)
	return root
}

// overrideFlags maps configuration keys to the flags that override them.
var overrideFlags = map[string]string{
	"state_dir":          "state-dir",
	"predefined_dir":     "predefined-dir",
	"feed_signature_dir": "feed-signature-dir",
	"database.driver":    "db-driver",
	"database.dsn":       "db-dsn",
	"log.level":          "log-level",
	"log.format":         "log-format",
}

// load reads the configuration file and environment, then applies flags the
// caller set explicitly.
func (a *app) load() error {
	switch a.output {
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q (supported: json, yaml)", a.output)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}

func (a *app) bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = a.flags.BindPFlag(key, f)
		}
	}
}

func (a *app) applyFlags(cfg *config.Config) {
	set := func(key string, dst *string) {
		if a.flags.IsSet(key) {
			*dst = a.flags.GetString(key)
		}
	}
	set("state_dir", &cfg.StateDir)
	set("predefined_dir", &cfg.PredefinedDir)
	set("feed_signature_dir", &cfg.FeedSignatureDir)
	set("database.driver", &cfg.Database.Driver)
	set("database.dsn", &cfg.Database.DSN)
	set("log.level", &cfg.Log.Level)
	set("log.format", &cfg.Log.Format)
	set("listen", &cfg.Listen)
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
