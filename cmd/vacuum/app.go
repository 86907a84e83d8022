package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vacuum/internal/config"
	"github.com/yairfalse/vacuum/internal/filter"
	"github.com/yairfalse/vacuum/internal/plugin"
	"github.com/yairfalse/vacuum/internal/plugin/aws"
	"github.com/yairfalse/vacuum/internal/telemetry"
	"github.com/yairfalse/vacuum/orchestrator"
	"github.com/yairfalse/vacuum/retention"
	"github.com/yairfalse/vacuum/wal"
)

// app holds everything a command needs to build and run sweeps.
type app struct {
	cfg       *config.Config
	aws       *aws.Plugin
	journal   *wal.WAL
	telemetry *telemetry.Provider
}

func newApp(ctx context.Context, c *config.Config, opts ...telemetry.Option) (*app, error) {
	tp, err := telemetry.NewProvider(ctx, c.OTEL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	p, err := aws.New(ctx, aws.Config{
		Region:      c.AWS.Region,
		Profile:     c.AWS.Profile,
		MaxAttempts: c.AWS.MaxAttempts,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create aws plugin: %w", err)
	}

	a := &app{cfg: c, aws: p, telemetry: tp}

	if c.Journal.Dir != "" {
		a.journal, err = wal.Open(c.Journal.Dir)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		log.Info().Str("path", a.journal.Path()).Msg("journal opened")
	}

	return a, nil
}

// Close releases the journal and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close journal")
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to shut down telemetry")
	}
}

// register builds the named sweeps and adds them to the registry,
// returning them in the order given.
func (a *app) register(names []string) ([]plugin.Sweep, error) {
	opts := sweepOptions(a.cfg, a.journal, a.telemetry)

	sweeps := make([]plugin.Sweep, 0, len(names))
	for _, name := range names {
		s, err := buildSweep(name, a.aws, a.aws, a.cfg, opts)
		if err != nil {
			return nil, err
		}
		plugin.Register(s)
		sweeps = append(sweeps, s)
	}
	return sweeps, nil
}

func sweepOptions(c *config.Config, journal *wal.WAL, tp *telemetry.Provider) orchestrator.Options {
	return orchestrator.Options{
		Filter:    filter.New(c.Filter.IncludeFamilies, c.Filter.ExcludeFamilies),
		Workers:   c.Workers,
		DryRun:    c.IsDryRun(),
		Strict:    c.Strict,
		Journal:   journal,
		Telemetry: tp,
	}
}

// buildSweep creates the named sweep with its retention policy from config.
func buildSweep(name string, ecs orchestrator.ECSClient, fns orchestrator.FunctionClient, c *config.Config, opts orchestrator.Options) (plugin.Sweep, error) {
	var (
		s   *orchestrator.Orchestrator
		err error
	)

	switch name {
	case config.SweepTaskDefinitions:
		opts.Policy = retention.Policy{
			KeepCount:  c.TaskDefinitions.KeepCount,
			KeepRecent: c.TaskDefinitions.KeepRecent,
			Whitelist:  c.TaskDefinitions.Whitelist,
		}
		s, err = orchestrator.NewTaskDefinitionSweep(ecs, opts)
	case config.SweepInactive:
		opts.Policy = retention.Policy{
			KeepCount:  c.TaskDefinitions.KeepCount,
			KeepRecent: c.TaskDefinitions.KeepRecent,
		}
		s, err = orchestrator.NewInactiveSweep(ecs, opts)
	case config.SweepFunctions:
		opts.Policy = retention.Policy{KeepCount: c.Functions.KeepCount}
		s, err = orchestrator.NewFunctionSweep(fns, opts)
	default:
		return nil, fmt.Errorf("unknown sweep %q", name)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build %s sweep: %w", name, err)
	}
	return s, nil
}

// runSweeps runs the named sweeps once and prints a summary of each.
func runSweeps(cmd *cobra.Command, names ...string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if _, err := a.register(names); err != nil {
		return err
	}

	log.Info().
		Str("region", a.aws.Region()).
		Strs("sweeps", names).
		Bool("dry_run", cfg.IsDryRun()).
		Bool("strict", cfg.Strict).
		Msg("vacuum starting")

	var errs []error
	for _, name := range names {
		s, ok := plugin.Get(name)
		if !ok {
			errs = append(errs, fmt.Errorf("sweep %q not registered", name))
			continue
		}
		res, err := s.Run(ctx)
		if res != nil {
			if perr := printSummary(cmd.OutOrStdout(), res, flags.output); perr != nil {
				errs = append(errs, perr)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	if cfg.Journal.Dir != "" {
		if _, err := wal.Cleanup(cfg.Journal.Dir, cfg.Journal.Retention, a.journal); err != nil {
			log.Warn().Err(err).Msg("journal cleanup failed")
		}
	}

	return errors.Join(errs...)
}

func printSummary(w io.Writer, res *orchestrator.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	mode := ""
	if res.Execution != nil && res.Execution.DryRun {
		mode = " (dry run)"
	}

	_, _ = fmt.Fprintf(w, "%s%s\n", res.Sweep, mode)
	_, _ = fmt.Fprintf(w, "  families %d, revisions %d, consumers %d, referenced %d, unresolved %d\n",
		res.Families, res.Revisions, res.Consumers, res.Referenced, len(res.Unresolved))
	_, _ = fmt.Fprintf(w, "  keep %d, delete %d\n", res.KeepCount, res.DeleteCount)

	if ex := res.Execution; ex != nil && !ex.DryRun {
		_, _ = fmt.Fprintf(w, "  deleted %d, absent %d, failed %d, skipped %d\n",
			ex.SuccessfulCount, ex.AbsentCount, ex.FailedCount, ex.SkippedCount)
	}
	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(w, "  error: %s\n", e)
	}
	return nil
}
