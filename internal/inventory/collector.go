// Package inventory enumerates versioned definitions and the live
// consumers that may reference them.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/yairfalse/vacuum/internal/filter"
	"github.com/yairfalse/vacuum/pkg/revision"
)

// ErrCollection marks a failure to enumerate the inventory or its
// consumers. It is always fatal: no decision is made on a partial view.
var ErrCollection = errors.New("inventory collection failed")

// DefaultWorkers bounds concurrent per-cluster and per-function listing.
const DefaultWorkers = 8

// ECSLister lists task definitions and their consumers.
type ECSLister interface {
	ListTaskDefinitions(ctx context.Context, status string) ([]string, error)
	ListClusters(ctx context.Context) ([]string, error)
	ListTasks(ctx context.Context, cluster string) ([]string, error)
	ListServices(ctx context.Context, cluster string) ([]string, error)
}

// FunctionLister lists functions and their published versions.
type FunctionLister interface {
	ListFunctions(ctx context.Context) ([]string, error)
	ListFunctionVersions(ctx context.Context, functionArn string) ([]revision.Identifier, error)
}

// Snapshot is the collector's output: the inventory plus every consumer
// that must be resolved before deciding.
type Snapshot struct {
	Inventory revision.Inventory
	Consumers []revision.Consumer
}

// Config configures a Collector.
type Config struct {
	ECS       ECSLister
	Functions FunctionLister
	Filter    *filter.Filter
	Workers   int
}

// Collector enumerates inventories through exhaustive pagination.
type Collector struct {
	ecs       ECSLister
	functions FunctionLister
	filter    *filter.Filter
	workers   int
}

// New creates a collector.
func New(cfg Config) *Collector {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Collector{
		ecs:       cfg.ECS,
		functions: cfg.Functions,
		filter:    cfg.Filter,
		workers:   workers,
	}
}

// CollectTaskDefinitions lists every task definition with the given status,
// then every cluster and, per cluster, its running tasks and services.
func (c *Collector) CollectTaskDefinitions(ctx context.Context, status string) (*Snapshot, error) {
	if c.ecs == nil {
		return nil, fmt.Errorf("%w: no ECS lister configured", ErrCollection)
	}

	arns, err := c.ecs.ListTaskDefinitions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollection, err)
	}

	ids := make([]revision.Identifier, 0, len(arns))
	for _, raw := range arns {
		id, err := revision.Parse(raw)
		if err != nil {
			log.Warn().Err(err).Str("arn", raw).Msg("skipping unparseable task definition")
			continue
		}
		ids = append(ids, id)
	}
	inv := c.filter.Apply(revision.NewInventory(ids...))

	clusters, err := c.ecs.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollection, err)
	}

	p := pool.NewWithResults[[]revision.Consumer]().
		WithContext(ctx).
		WithMaxGoroutines(c.workers).
		WithCancelOnError()

	for _, cluster := range clusters {
		cluster := cluster
		p.Go(func(ctx context.Context) ([]revision.Consumer, error) {
			return c.clusterConsumers(ctx, cluster)
		})
	}

	perCluster, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollection, err)
	}

	var consumers []revision.Consumer
	for _, cs := range perCluster {
		consumers = append(consumers, cs...)
	}
	sortConsumers(consumers)

	log.Info().
		Str("status", status).
		Int("definitions", inv.Len()).
		Int("families", inv.FamilyCount()).
		Int("clusters", len(clusters)).
		Int("consumers", len(consumers)).
		Msg("task definition inventory collected")

	return &Snapshot{Inventory: inv, Consumers: consumers}, nil
}

func (c *Collector) clusterConsumers(ctx context.Context, cluster string) ([]revision.Consumer, error) {
	tasks, err := c.ecs.ListTasks(ctx, cluster)
	if err != nil {
		return nil, err
	}

	services, err := c.ecs.ListServices(ctx, cluster)
	if err != nil {
		return nil, err
	}

	consumers := make([]revision.Consumer, 0, len(tasks)+len(services))
	for _, t := range tasks {
		consumers = append(consumers, revision.Consumer{Kind: revision.KindRunningTask, ARN: t, Cluster: cluster})
	}
	for _, s := range services {
		consumers = append(consumers, revision.Consumer{Kind: revision.KindService, ARN: s, Cluster: cluster})
	}
	return consumers, nil
}

// CollectFunctions lists every function and all of its versions. Each
// function contributes one alias consumer.
func (c *Collector) CollectFunctions(ctx context.Context) (*Snapshot, error) {
	if c.functions == nil {
		return nil, fmt.Errorf("%w: no function lister configured", ErrCollection)
	}

	functions, err := c.functions.ListFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollection, err)
	}

	p := pool.NewWithResults[[]revision.Identifier]().
		WithContext(ctx).
		WithMaxGoroutines(c.workers).
		WithCancelOnError()

	var consumers []revision.Consumer
	for _, fn := range functions {
		fn := fn
		if !c.filter.ShouldIncludeFamily(revision.FamilyName(fn)) {
			continue
		}
		consumers = append(consumers, revision.Consumer{Kind: revision.KindAlias, ARN: fn, Family: fn})

		p.Go(func(ctx context.Context) ([]revision.Identifier, error) {
			return c.functions.ListFunctionVersions(ctx, fn)
		})
	}

	perFunction, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollection, err)
	}

	var ids []revision.Identifier
	for _, vs := range perFunction {
		ids = append(ids, vs...)
	}
	inv := revision.NewInventory(ids...)
	sortConsumers(consumers)

	log.Info().
		Int("versions", inv.Len()).
		Int("functions", inv.FamilyCount()).
		Msg("function inventory collected")

	return &Snapshot{Inventory: inv, Consumers: consumers}, nil
}

func sortConsumers(cs []revision.Consumer) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Cluster != cs[j].Cluster {
			return cs[i].Cluster < cs[j].Cluster
		}
		if cs[i].Kind != cs[j].Kind {
			return cs[i].Kind < cs[j].Kind
		}
		return cs[i].ARN < cs[j].ARN
	})
}
