// Package resolver turns live consumers into the set of versions they
// reference. A consumer that cannot be described is never dropped: it is
// reported as unresolved so retention can assume it references anything.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// Describe limits imposed by the ECS API.
const (
	TaskBatchSize    = 100
	ServiceBatchSize = 10
	DefaultWorkers   = 8
)

// ECSDescriber describes tasks and services in batches.
type ECSDescriber interface {
	DescribeTasks(ctx context.Context, cluster string, taskArns []string) ([]revision.Reference, []revision.Consumer, error)
	DescribeServices(ctx context.Context, cluster string, serviceArns []string) ([]revision.Reference, []revision.Consumer, error)
}

// AliasLister lists the versions pinned by a function's aliases.
type AliasLister interface {
	ListAliasReferences(ctx context.Context, functionArn string) ([]revision.Reference, error)
}

// Config configures a Resolver.
type Config struct {
	ECS     ECSDescriber
	Aliases AliasLister
	Workers int
}

// Resolver describes consumers with bounded concurrency.
type Resolver struct {
	ecs     ECSDescriber
	aliases AliasLister
	workers int
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Resolver{ecs: cfg.ECS, aliases: cfg.Aliases, workers: workers}
}

// batch is one describe call.
type batch struct {
	kind      revision.ConsumerKind
	cluster   string
	consumers []revision.Consumer
}

type outcome struct {
	refs       []revision.Reference
	unresolved []revision.Consumer
}

// Resolve describes every consumer and returns an immutable reference set.
// Describe failures never fail the run; the affected consumers are marked
// unresolved instead.
func (r *Resolver) Resolve(ctx context.Context, consumers []revision.Consumer) (revision.ReferenceSet, error) {
	batches := plan(consumers)

	p := pool.NewWithResults[outcome]().WithMaxGoroutines(r.workers)
	for _, b := range batches {
		b := b
		p.Go(func() outcome {
			return r.describe(ctx, b)
		})
	}
	outcomes := p.Wait()

	if err := ctx.Err(); err != nil {
		return revision.ReferenceSet{}, fmt.Errorf("resolve references: %w", err)
	}

	var refs []revision.Reference
	var unresolved []revision.Consumer
	for _, o := range outcomes {
		refs = append(refs, o.refs...)
		unresolved = append(unresolved, o.unresolved...)
	}

	set := revision.NewReferenceSet(refs, unresolved)

	log.Info().
		Int("consumers", len(consumers)).
		Int("batches", len(batches)).
		Int("referenced_versions", set.Len()).
		Int("unresolved", len(unresolved)).
		Msg("references resolved")

	return set, nil
}

func (r *Resolver) describe(ctx context.Context, b batch) outcome {
	arns := make([]string, len(b.consumers))
	for i, c := range b.consumers {
		arns[i] = c.ARN
	}

	var (
		refs       []revision.Reference
		unresolved []revision.Consumer
		err        error
	)

	switch b.kind {
	case revision.KindRunningTask:
		if r.ecs == nil {
			err = fmt.Errorf("no ECS describer configured")
			break
		}
		refs, unresolved, err = r.ecs.DescribeTasks(ctx, b.cluster, arns)
	case revision.KindService:
		if r.ecs == nil {
			err = fmt.Errorf("no ECS describer configured")
			break
		}
		refs, unresolved, err = r.ecs.DescribeServices(ctx, b.cluster, arns)
	case revision.KindAlias:
		if r.aliases == nil {
			err = fmt.Errorf("no alias lister configured")
			break
		}
		refs, err = r.aliases.ListAliasReferences(ctx, b.consumers[0].ARN)
	default:
		err = fmt.Errorf("unknown consumer kind %q", b.kind)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("kind", string(b.kind)).
			Str("cluster", b.cluster).
			Int("consumers", len(b.consumers)).
			Msg("describe failed, treating consumers as referencing everything")
		return outcome{unresolved: b.consumers}
	}

	for _, c := range unresolved {
		log.Warn().
			Str("kind", string(c.Kind)).
			Str("consumer", c.ARN).
			Str("cluster", c.Cluster).
			Msg("consumer could not be resolved")
	}

	return outcome{refs: refs, unresolved: unresolved}
}

// plan groups consumers into describe calls: tasks and services per
// cluster within the API batch limits, and one call per function.
func plan(consumers []revision.Consumer) []batch {
	type key struct {
		kind    revision.ConsumerKind
		cluster string
	}
	groups := make(map[key][]revision.Consumer)
	var keys []key

	var batches []batch
	for _, c := range consumers {
		if c.Kind == revision.KindAlias {
			batches = append(batches, batch{kind: c.Kind, consumers: []revision.Consumer{c}})
			continue
		}
		k := key{kind: c.Kind, cluster: c.Cluster}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], c)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cluster != keys[j].cluster {
			return keys[i].cluster < keys[j].cluster
		}
		return keys[i].kind < keys[j].kind
	})

	for _, k := range keys {
		size := TaskBatchSize
		if k.kind == revision.KindService {
			size = ServiceBatchSize
		}
		group := groups[k]
		for start := 0; start < len(group); start += size {
			end := min(start+size, len(group))
			batches = append(batches, batch{kind: k.kind, cluster: k.cluster, consumers: group[start:end]})
		}
	}

	return batches
}
