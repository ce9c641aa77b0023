// Command tapeview serves the TapeStation filter dashboard and loads peak and
// region exports into its record store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tapeview/internal/config"
)

type rootOptions struct {
	configPath    string
	logLevel      string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tapeview",
		Short:         "Interactive filter dashboard over TapeStation peak and region results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.storageDriver, "storage-driver", "", "record store driver (sqlite|postgres|memory)")
	flags.StringVar(&opts.sqlitePath, "sqlite-path", "", "sqlite database file")
	flags.StringVar(&opts.postgresDSN, "postgres-dsn", "", "postgres connection string")

	cmd.AddCommand(newServeCmd(opts), newImportCmd(opts))
	return cmd
}

// load resolves configuration: defaults, file, environment, then flags.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.storageDriver != "" {
		cfg.Storage.Driver = o.storageDriver
	}
	if o.sqlitePath != "" {
		cfg.Storage.SQLitePath = o.sqlitePath
	}
	if o.postgresDSN != "" {
		cfg.Storage.PostgresDSN = o.postgresDSN
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tapeview:", err)
		os.Exit(1)
	}
}
