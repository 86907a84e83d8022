package orchestrator

import (
	"context"
	"time"

	"github.com/yairfalse/vacuum/executor"
	"github.com/yairfalse/vacuum/internal/inventory"
	"github.com/yairfalse/vacuum/pkg/revision"
)

// Result contains the outcome of one sweep
type Result struct {
	Sweep       string                    `json:"sweep"`
	StartTime   time.Time                 `json:"start_time"`
	EndTime     time.Time                 `json:"end_time"`
	Duration    time.Duration             `json:"duration"`
	Families    int                       `json:"families"`
	Revisions   int                       `json:"revisions"`
	Consumers   int                       `json:"consumers"`
	Referenced  int                       `json:"referenced"`
	Unresolved  []revision.Consumer       `json:"unresolved,omitempty"`
	KeepCount   int                       `json:"keep_count"`
	DeleteCount int                       `json:"delete_count"`
	Plan        revision.Plan             `json:"plan"`
	Execution   *executor.ExecutionResult `json:"execution,omitempty"`
	Errors      []string                  `json:"errors,omitempty"`
	Success     bool                      `json:"success"`
}

// CollectFunc produces the inventory and consumer snapshot for a sweep.
type CollectFunc func(ctx context.Context) (*inventory.Snapshot, error)

// Resolver turns consumers into references.
type Resolver interface {
	Resolve(ctx context.Context, consumers []revision.Consumer) (revision.ReferenceSet, error)
}
