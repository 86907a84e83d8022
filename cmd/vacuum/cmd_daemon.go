package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vacuum/internal/daemon"
	"github.com/yairfalse/vacuum/internal/plugin"
	"github.com/yairfalse/vacuum/internal/telemetry"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
	daemonSweeps      []string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run sweeps continuously on an interval",
	Long: `Run vacuum as a long-lived process.

The configured sweeps run once at startup and then on every interval.
A failing sweep is logged and retried on the next cycle.

Features:
- Prometheus metrics on /metrics
- Health checks on /health, /healthz, /-/healthy, /readyz, /-/ready
- Journal retention applied after every cycle
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  vacuum daemon                                   # Daily, dry run
  vacuum daemon --interval 6h --dry-run=false
  vacuum daemon --sweeps taskdefs,inactive,functions
  vacuum daemon --metrics-addr :2112`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 24*time.Hour, "Sweep interval")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", ":9090", "Metrics HTTP server address")
	daemonCmd.Flags().StringSliceVar(&daemonSweeps, "sweeps", nil, "Sweeps to run (taskdefs, functions, inactive)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("interval") {
		cfg.Daemon.Interval = daemonInterval
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Daemon.MetricsAddr = daemonMetricsAddr
	}
	if cmd.Flags().Changed("sweeps") {
		cfg.Daemon.Sweeps = daemonSweeps
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, telemetry.WithPrometheus())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sweeps, err := a.register(cfg.Daemon.Sweeps)
	if err != nil {
		return err
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval:         cfg.Daemon.Interval,
		MetricsAddr:      cfg.Daemon.MetricsAddr,
		Sweeps:           sweeps,
		Handler:          a.telemetry.Handler(),
		Meter:            a.telemetry.Meter(),
		Journal:          a.journal,
		JournalDir:       cfg.Journal.Dir,
		JournalRetention: cfg.Journal.Retention,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	log.Info().
		Str("region", a.aws.Region()).
		Strs("sweeps", cfg.Daemon.Sweeps).
		Strs("registered", plugin.Names()).
		Dur("interval", cfg.Daemon.Interval).
		Str("metrics_addr", cfg.Daemon.MetricsAddr).
		Bool("dry_run", cfg.IsDryRun()).
		Msg("vacuum daemon starting")

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	log.Info().Int64("cycles", d.CycleCount()).Msg("vacuum daemon stopped")
	return nil
}
