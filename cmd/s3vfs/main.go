// Command s3vfs browses and mounts S3 buckets and S3 Tables catalogs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/s3vfs/internal/adapter"
	"github.com/objectfs/s3vfs/internal/config"
	"github.com/objectfs/s3vfs/internal/metrics"
	"github.com/objectfs/s3vfs/internal/profiles"
	"github.com/objectfs/s3vfs/pkg/retry"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

var version = "dev"

type globalFlags struct {
	configFile string
	mode       string
	logLevel   string
	noPrompt   bool
}

// app holds what every subcommand needs once flags are parsed.
type app struct {
	flags     globalFlags
	cfg       *config.Configuration
	logger    *slog.Logger
	logCloser io.Closer
	collector *metrics.Collector
	store     *profiles.Store
	adapter   *adapter.Adapter
	retrier   *retry.Retryer
	stdout    io.Writer
	stderr    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&app{stdout: os.Stdout, stderr: os.Stderr}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "s3vfs",
		Short:         "Browse S3 buckets and S3 Tables catalogs as a filesystem",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configFile, "config", "c", "", "configuration file (YAML)")
	pf.StringVarP(&a.flags.mode, "mode", "m", "s3", "backend family: s3 or s3tables")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	pf.BoolVar(&a.flags.noPrompt, "no-prompt", false, "never prompt for connection secrets")

	root.AddCommand(
		newListCommand(a),
		newStatCommand(a),
		newCatCommand(a),
		newPutCommand(a),
		newRemoveCommand(a),
		newMkdirCommand(a),
		newDiskUsageCommand(a),
		newCapabilitiesCommand(a),
		newInfoCommand(a),
		newMountCommand(a),
		newProfileCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg := config.NewDefault()
	if a.flags.configFile != "" {
		if err := cfg.LoadFromFile(a.flags.configFile); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		cfg.Global.LogLevel = a.flags.logLevel
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger, closer, err := utils.SetupLogging(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.LogFile)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logCloser = closer

	mode, err := types.ParseMode(a.flags.mode)
	if err != nil {
		return err
	}

	var opts []profiles.Option
	if a.flags.noPrompt || !cfg.Profiles.AllowPrompt {
		opts = append(opts, profiles.WithoutPrompt())
	}
	store, err := profiles.NewStore(cfg.Profiles.Directory, logger, opts...)
	if err != nil {
		return err
	}
	a.store = store

	metricsConfig := metrics.DefaultConfig()
	metricsConfig.Port = cfg.Global.MetricsPort
	collector, err := metrics.NewCollector(metricsConfig, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	a.collector = collector

	ad, err := adapter.New(cfg, mode, store, collector, logger)
	if err != nil {
		return err
	}
	a.adapter = ad
	collector.SetBackendStats(func() any { return ad.Stats() })

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = cfg.Retry.MaxAttempts
	retryConfig.InitialDelay = cfg.Retry.InitialDelay
	retryConfig.MaxDelay = cfg.Retry.MaxDelay
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying after transient failure", "attempt", attempt, "delay", delay, "error", err)
	}
	a.retrier = retry.New(retryConfig)
	logger.Debug("s3vfs ready", "mode", mode.String(), "version", version)
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Stop(ctx); err != nil {
			a.logger.Warn("metrics shutdown failed", "error", err)
		}
	}
	if a.logCloser != nil {
		return a.logCloser.Close()
	}
	return nil
}

// retry runs an idempotent adapter call under the configured retry policy.
func (a *app) retry(ctx context.Context, fn func(context.Context) error) error {
	return a.retrier.Do(ctx, fn)
}
