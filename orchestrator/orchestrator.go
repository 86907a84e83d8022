// Package orchestrator runs sweeps: collect → resolve → decide → delete.
// Every phase completes before the next begins, and no delete call is
// issued until the whole plan has been computed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yairfalse/vacuum/executor"
	"github.com/yairfalse/vacuum/internal/inventory"
	"github.com/yairfalse/vacuum/internal/telemetry"
	"github.com/yairfalse/vacuum/pkg/revision"
	"github.com/yairfalse/vacuum/retention"
)

// ErrDeletionsFailed is returned by strict sweeps when at least one
// deletion failed. The result is still returned alongside it.
var ErrDeletionsFailed = errors.New("one or more deletions failed")

// Config wires the phases of a sweep.
type Config struct {
	Name      string
	Collect   CollectFunc
	Resolver  Resolver
	Policy    retention.Policy
	Executor  executor.Executor
	Telemetry *telemetry.Provider
	Strict    bool
}

// Orchestrator coordinates one kind of sweep
type Orchestrator struct {
	name      string
	collect   CollectFunc
	resolver  Resolver
	policy    retention.Policy
	executor  executor.Executor
	telemetry *telemetry.Provider
	strict    bool
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Collect == nil || cfg.Resolver == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("sweep %q: collector, resolver and executor are required", cfg.Name)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("sweep %q: invalid policy: %w", cfg.Name, err)
	}

	return &Orchestrator{
		name:      cfg.Name,
		collect:   cfg.Collect,
		resolver:  cfg.Resolver,
		policy:    cfg.Policy,
		executor:  cfg.Executor,
		telemetry: cfg.Telemetry,
		strict:    cfg.Strict,
	}, nil
}

// Name returns the sweep name
func (o *Orchestrator) Name() string {
	return o.name
}

// Run performs one sweep. A collection error aborts before anything is
// deleted; resolution and deletion problems are reported in the result.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		Sweep:     o.name,
		StartTime: time.Now(),
		Success:   true,
	}

	ctx, span := o.telemetry.StartSpan(ctx, "sweep", attribute.String("sweep", o.name))
	defer span.End()

	log.Info().Ctx(ctx).Str("sweep", o.name).Msg("starting sweep")

	fail := func(err error) (*Result, error) {
		result.Errors = append(result.Errors, err.Error())
		result.Success = false
		span.SetStatus(codes.Error, err.Error())
		return o.finish(ctx, result), err
	}

	// 1. Collect
	snapshot, err := o.runCollect(ctx)
	if err != nil {
		return fail(err)
	}
	result.Families = snapshot.Inventory.FamilyCount()
	result.Revisions = snapshot.Inventory.Len()
	result.Consumers = len(snapshot.Consumers)
	o.telemetry.RecordInventory(ctx, o.name, result.Revisions)

	// 2. Resolve
	refs, err := o.runResolve(ctx, snapshot.Consumers)
	if err != nil {
		return fail(err)
	}
	result.Referenced = refs.Len()
	result.Unresolved = refs.Unresolved()
	o.telemetry.RecordReferences(ctx, o.name, result.Referenced, len(result.Unresolved))

	// 3. Decide
	result.Plan = o.runDecide(ctx, snapshot.Inventory, refs)
	result.KeepCount, result.DeleteCount = result.Plan.Counts()

	// 4. Delete
	execution, err := o.runExecute(ctx, result.Plan.Deletions())
	if err != nil {
		return fail(err)
	}
	result.Execution = execution

	for _, f := range execution.Failures() {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", f.Target.ARN, f.Error))
	}

	if execution.FailedCount > 0 {
		result.Success = false
		span.SetStatus(codes.Error, ErrDeletionsFailed.Error())
		if o.strict {
			return o.finish(ctx, result), fmt.Errorf("sweep %s: %d of %d: %w",
				o.name, execution.FailedCount, execution.TotalTargets, ErrDeletionsFailed)
		}
	}

	return o.finish(ctx, result), nil
}

func (o *Orchestrator) runCollect(ctx context.Context) (*inventory.Snapshot, error) {
	ctx, span := o.telemetry.StartSpan(ctx, "collect")
	defer span.End()

	snapshot, err := o.collect(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sweep %s: %w", o.name, err)
	}

	span.SetAttributes(
		attribute.Int("revisions", snapshot.Inventory.Len()),
		attribute.Int("consumers", len(snapshot.Consumers)),
	)
	return snapshot, nil
}

func (o *Orchestrator) runResolve(ctx context.Context, consumers []revision.Consumer) (revision.ReferenceSet, error) {
	ctx, span := o.telemetry.StartSpan(ctx, "resolve")
	defer span.End()

	refs, err := o.resolver.Resolve(ctx, consumers)
	if err != nil {
		span.RecordError(err)
		return revision.ReferenceSet{}, fmt.Errorf("sweep %s: %w", o.name, err)
	}

	span.SetAttributes(
		attribute.Int("referenced", refs.Len()),
		attribute.Int("unresolved", len(refs.Unresolved())),
	)
	return refs, nil
}

func (o *Orchestrator) runDecide(ctx context.Context, inv revision.Inventory, refs revision.ReferenceSet) revision.Plan {
	ctx, span := o.telemetry.StartSpan(ctx, "decide")
	defer span.End()

	plan := retention.Decide(inv, refs, o.policy)

	for _, d := range plan.Decisions {
		o.logReferenced(ctx, d, refs)
		if len(d.Delete) == 0 && !hasReason(d, revision.ReasonUncertain) {
			continue
		}
		event := log.Debug()
		if hasReason(d, revision.ReasonUncertain) {
			event = log.Warn()
		}
		event.Ctx(ctx).
			Str("sweep", o.name).
			Str("family", d.Name).
			Str("rule", string(d.Rule)).
			Int("keep", len(d.Keep)).
			Int("delete", len(d.Delete)).
			Bool("unresolved_consumer", hasReason(d, revision.ReasonUncertain)).
			Msg("family decided")
	}

	keep, del := plan.Counts()
	span.SetAttributes(attribute.Int("keep", keep), attribute.Int("delete", del))

	log.Info().Ctx(ctx).
		Str("sweep", o.name).
		Int("families", len(plan.Decisions)).
		Int("keep", keep).
		Int("candidates", del).
		Msg("start")

	return plan
}

func (o *Orchestrator) runExecute(ctx context.Context, targets []revision.Identifier) (*executor.ExecutionResult, error) {
	ctx, span := o.telemetry.StartSpan(ctx, "delete")
	defer span.End()

	execution, err := o.executor.Execute(ctx, targets)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sweep %s: %w", o.name, err)
	}

	o.telemetry.RecordDeletions(ctx, o.name, string(executor.StatusSuccess), execution.SuccessfulCount)
	o.telemetry.RecordDeletions(ctx, o.name, string(executor.StatusAbsent), execution.AbsentCount)
	o.telemetry.RecordDeletions(ctx, o.name, string(executor.StatusFailed), execution.FailedCount)
	o.telemetry.RecordDeletions(ctx, o.name, string(executor.StatusSkipped), execution.SkippedCount)

	span.SetAttributes(
		attribute.Int("deleted", execution.SuccessfulCount),
		attribute.Int("failed", execution.FailedCount),
	)
	return execution, nil
}

func (o *Orchestrator) finish(ctx context.Context, result *Result) *Result {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	status := "ok"
	if !result.Success {
		status = "error"
	}
	o.telemetry.RecordSweepDuration(ctx, o.name, status, result.Duration)

	event := log.Info()
	if !result.Success {
		event = log.Warn()
	}
	event.Ctx(ctx).
		Str("sweep", o.name).
		Int("families", result.Families).
		Int("revisions", result.Revisions).
		Int("referenced", result.Referenced).
		Int("unresolved", len(result.Unresolved)).
		Int("keep", result.KeepCount).
		Int("delete", result.DeleteCount).
		Dur("duration", result.Duration).
		Bool("success", result.Success).
		Msg("sweep complete")

	return result
}

// logReferenced names the consumers holding each referenced version.
func (o *Orchestrator) logReferenced(ctx context.Context, d revision.Decision, refs revision.ReferenceSet) {
	for _, id := range d.Keep {
		if reason, _ := d.KeepReason(id); reason != revision.ReasonReferenced {
			continue
		}
		holders := refs.ReferencedBy(id)
		consumers := make([]string, 0, len(holders))
		for _, r := range holders {
			consumers = append(consumers, r.Consumer)
		}
		log.Debug().Ctx(ctx).
			Str("sweep", o.name).
			Str("family", d.Name).
			Str("version", id.Version).
			Strs("consumers", consumers).
			Msg("version in use")
	}
}

func hasReason(d revision.Decision, reason revision.Reason) bool {
	for _, r := range d.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}
