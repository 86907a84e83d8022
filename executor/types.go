package executor

import (
	"context"
	"time"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// Executor deletes planned revisions
type Executor interface {
	Execute(ctx context.Context, targets []revision.Identifier) (*ExecutionResult, error)
	DryRun(ctx context.Context, targets []revision.Identifier) (*ExecutionResult, error)
}

// Deleter issues the provider delete call for one revision. Implementations
// wrap revision.ErrNotFound when the revision is already gone.
type Deleter interface {
	Delete(ctx context.Context, id revision.Identifier) error
}

// DeleteFunc adapts a function to the Deleter interface.
type DeleteFunc func(ctx context.Context, id revision.Identifier) error

// Delete calls f(ctx, id).
func (f DeleteFunc) Delete(ctx context.Context, id revision.Identifier) error {
	return f(ctx, id)
}

// ExecutionResult contains the outcome of executing a deletion plan
type ExecutionResult struct {
	Sweep           string                  `json:"sweep"`
	DryRun          bool                    `json:"dry_run"`
	StartTime       time.Time               `json:"start_time"`
	EndTime         time.Time               `json:"end_time"`
	Duration        time.Duration           `json:"duration"`
	TotalTargets    int                     `json:"total_targets"`
	SuccessfulCount int                     `json:"successful_count"`
	AbsentCount     int                     `json:"absent_count"`
	FailedCount     int                     `json:"failed_count"`
	SkippedCount    int                     `json:"skipped_count"`
	Results         []SingleExecutionResult `json:"results"`
	PartialFailure  bool                    `json:"partial_failure"`
}

// Failures returns the results that failed.
func (r *ExecutionResult) Failures() []SingleExecutionResult {
	var out []SingleExecutionResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// SingleExecutionResult contains the outcome of deleting one revision
type SingleExecutionResult struct {
	Target     revision.Identifier `json:"target"`
	Status     ExecutionStatus     `json:"status"`
	StartTime  time.Time           `json:"start_time"`
	EndTime    time.Time           `json:"end_time"`
	Duration   time.Duration       `json:"duration"`
	Error      string              `json:"error,omitempty"`
	SkipReason string              `json:"skip_reason,omitempty"`
}

// ExecutionStatus tracks the status of one deletion
type ExecutionStatus string

const (
	StatusPending ExecutionStatus = "pending"
	StatusSuccess ExecutionStatus = "success"
	// StatusAbsent means the revision was already gone; it counts as success.
	StatusAbsent  ExecutionStatus = "absent"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
	// StatusPlanned marks a deletion a dry run would have issued.
	StatusPlanned ExecutionStatus = "planned"
)

// ExecutorOptions configure executor behavior
type ExecutorOptions struct {
	Sweep  string `json:"sweep"`
	DryRun bool   `json:"dry_run"`
}

// ExecutionStart is journaled before the first deletion of a batch
type ExecutionStart struct {
	TargetCount int             `json:"target_count"`
	StartTime   time.Time       `json:"start_time"`
	Options     ExecutorOptions `json:"options"`
}
