package orchestrator

import (
	"context"

	"github.com/yairfalse/vacuum/executor"
	"github.com/yairfalse/vacuum/internal/filter"
	"github.com/yairfalse/vacuum/internal/inventory"
	"github.com/yairfalse/vacuum/internal/resolver"
	"github.com/yairfalse/vacuum/internal/telemetry"
	"github.com/yairfalse/vacuum/pkg/revision"
	"github.com/yairfalse/vacuum/retention"
	"github.com/yairfalse/vacuum/wal"
)

// Sweep names
const (
	SweepTaskDefinitions = "taskdefs"
	SweepFunctions       = "functions"
	SweepInactive        = "inactive"
)

// Task definition statuses accepted by ListTaskDefinitions.
const (
	statusActive   = "ACTIVE"
	statusInactive = "INACTIVE"
)

// ECSClient is everything the task definition sweeps need from ECS.
type ECSClient interface {
	inventory.ECSLister
	resolver.ECSDescriber
	DeregisterTaskDefinition(ctx context.Context, id revision.Identifier) error
	DeleteTaskDefinition(ctx context.Context, id revision.Identifier) error
}

// FunctionClient is everything the function sweep needs from Lambda.
type FunctionClient interface {
	inventory.FunctionLister
	resolver.AliasLister
	DeleteFunctionVersion(ctx context.Context, id revision.Identifier) error
}

// Options are shared by every sweep.
type Options struct {
	Policy    retention.Policy
	Filter    *filter.Filter
	Workers   int
	DryRun    bool
	Strict    bool
	Journal   *wal.WAL
	Telemetry *telemetry.Provider
}

// NewTaskDefinitionSweep deregisters ACTIVE task definition revisions that
// no running task or service uses. Whitelisted families keep only their
// newest revisions.
func NewTaskDefinitionSweep(client ECSClient, opts Options) (*Orchestrator, error) {
	opts.Policy.Rule = revision.RuleUnused
	return newECSSweep(SweepTaskDefinitions, statusActive, client, client.DeregisterTaskDefinition, opts)
}

// NewInactiveSweep permanently deletes INACTIVE task definition revisions
// that nothing references any more. The whitelist does not apply.
func NewInactiveSweep(client ECSClient, opts Options) (*Orchestrator, error) {
	opts.Policy.Rule = revision.RuleUnused
	opts.Policy.Whitelist = nil
	return newECSSweep(SweepInactive, statusInactive, client, client.DeleteTaskDefinition, opts)
}

func newECSSweep(name, status string, client ECSClient, del executor.DeleteFunc, opts Options) (*Orchestrator, error) {
	collector := inventory.New(inventory.Config{
		ECS:     client,
		Filter:  opts.Filter,
		Workers: opts.Workers,
	})

	return New(Config{
		Name: name,
		Collect: func(ctx context.Context) (*inventory.Snapshot, error) {
			return collector.CollectTaskDefinitions(ctx, status)
		},
		Resolver:  resolver.New(resolver.Config{ECS: client, Workers: opts.Workers}),
		Policy:    opts.Policy,
		Executor:  newEngine(name, del, opts),
		Telemetry: opts.Telemetry,
		Strict:    opts.Strict,
	})
}

// NewFunctionSweep deletes function versions that no alias routes to,
// keeping the newest unaliased ones.
func NewFunctionSweep(client FunctionClient, opts Options) (*Orchestrator, error) {
	opts.Policy.Rule = revision.RuleVersions
	opts.Policy.Whitelist = nil

	collector := inventory.New(inventory.Config{
		Functions: client,
		Filter:    opts.Filter,
		Workers:   opts.Workers,
	})

	return New(Config{
		Name:      SweepFunctions,
		Collect:   collector.CollectFunctions,
		Resolver:  resolver.New(resolver.Config{Aliases: client, Workers: opts.Workers}),
		Policy:    opts.Policy,
		Executor:  newEngine(SweepFunctions, client.DeleteFunctionVersion, opts),
		Telemetry: opts.Telemetry,
		Strict:    opts.Strict,
	})
}

func newEngine(name string, del executor.DeleteFunc, opts Options) *executor.Engine {
	return executor.NewEngine(del, opts.Journal, executor.ExecutorOptions{
		Sweep:  name,
		DryRun: opts.DryRun,
	})
}
