package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vacuum/internal/config"
	"github.com/yairfalse/vacuum/internal/telemetry"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "vacuum",
		Short: "Garbage collector for ECS task definitions and Lambda versions",
		Long: `Vacuum - revision garbage collector

Vacuum deletes old ECS task definition revisions and Lambda function
versions that nothing uses any more. Revisions referenced by a running
task, a service deployment or an alias are never deleted, except in
whitelisted task definition families. Unreferenced task definition
revisions are deleted regardless of age unless --keep-recent is set.

Runs are dry by default. Pass --dry-run=false to delete.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	cfgFile string
	cfg     *config.Config
	flags   globalFlags
)

// globalFlags override config file values when set explicitly.
type globalFlags struct {
	region      string
	profile     string
	maxAttempts int
	logLevel    string
	dryRun      bool
	strict      bool
	workers     int
	journalDir  string
	include     []string
	exclude     []string
	output      string
}

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Vacuum {{.Version}} - revision garbage collector
`)

	addGlobalFlags(rootCmd)
}

// addGlobalFlags registers the flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Path to YAML config file")
	pf.StringVar(&flags.region, "region", "", "AWS region")
	pf.StringVar(&flags.profile, "profile", "", "AWS shared config profile (SSO profiles included)")
	pf.IntVar(&flags.maxAttempts, "max-attempts", 0, "Maximum AWS API attempts per call")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.dryRun, "dry-run", true, "Only plan deletions")
	pf.BoolVar(&flags.strict, "strict", false, "Exit non-zero when any deletion fails")
	pf.IntVar(&flags.workers, "workers", 0, "Concurrent listing and describe calls")
	pf.StringVar(&flags.journalDir, "journal-dir", "", "Directory for the deletion journal")
	pf.StringSliceVar(&flags.include, "include", nil, "Only sweep families containing one of these substrings")
	pf.StringSliceVar(&flags.exclude, "exclude", nil, "Never sweep families containing one of these substrings")
	pf.StringVarP(&flags.output, "output", "o", "text", "Summary format (text, json)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if flags.output != "text" && flags.output != "json" {
		return fmt.Errorf("unknown output format %q", flags.output)
	}

	return telemetry.SetupLogging(os.Stderr, cfg.Log.Level)
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	set := cmd.Flags().Changed

	if set("region") {
		c.AWS.Region = flags.region
	}
	if set("profile") {
		c.AWS.Profile = flags.profile
	}
	if set("max-attempts") {
		c.AWS.MaxAttempts = flags.maxAttempts
	}
	if set("log-level") {
		c.Log.Level = flags.logLevel
	}
	if set("dry-run") {
		c.SetDryRun(flags.dryRun)
	}
	if set("strict") {
		c.Strict = flags.strict
	}
	if set("workers") {
		c.Workers = flags.workers
	}
	if set("journal-dir") {
		c.Journal.Dir = flags.journalDir
	}
	if set("include") {
		c.Filter.IncludeFamilies = flags.include
	}
	if set("exclude") {
		c.Filter.ExcludeFamilies = flags.exclude
	}
}
