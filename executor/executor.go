package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vacuum/pkg/revision"
	"github.com/yairfalse/vacuum/wal"
)

// Engine deletes revisions one at a time. A failed deletion never stops
// the remaining ones.
type Engine struct {
	deleter Deleter
	wal     *wal.WAL
	options ExecutorOptions
}

// NewEngine creates a new executor engine. walInstance may be nil.
func NewEngine(deleter Deleter, walInstance *wal.WAL, options ExecutorOptions) *Engine {
	return &Engine{
		deleter: deleter,
		wal:     walInstance,
		options: options,
	}
}

// Execute deletes every target in order. It returns an error only when
// the journal cannot be written before starting; per-target failures are
// reported in the result.
func (e *Engine) Execute(ctx context.Context, targets []revision.Identifier) (*ExecutionResult, error) {
	if e.options.DryRun {
		return e.DryRun(ctx, targets)
	}

	result := e.newResult(targets)

	if err := e.journal(wal.EntryPlanned, "", ExecutionStart{
		TargetCount: len(targets),
		StartTime:   result.StartTime,
		Options:     e.options,
	}, nil); err != nil {
		return nil, fmt.Errorf("failed to journal execution start: %w", err)
	}

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			for _, rest := range targets[i:] {
				single := e.skipResult(rest, err)
				result.Results = append(result.Results, single)
				e.updateResultCounts(result, single)
			}
			break
		}

		single := e.ExecuteSingle(ctx, target)
		result.Results = append(result.Results, single)
		e.updateResultCounts(result, single)
	}

	e.finish(result)

	log.Info().
		Str("sweep", e.options.Sweep).
		Int("deleted", result.SuccessfulCount).
		Int("absent", result.AbsentCount).
		Int("failed", result.FailedCount).
		Int("skipped", result.SkippedCount).
		Dur("duration", result.Duration).
		Msg("end")

	return result, nil
}

// ExecuteSingle issues one delete call and classifies its outcome.
func (e *Engine) ExecuteSingle(ctx context.Context, target revision.Identifier) SingleExecutionResult {
	result := SingleExecutionResult{
		Target:    target,
		Status:    StatusPending,
		StartTime: time.Now(),
	}

	e.journalBestEffort(wal.EntryDeleting, target, nil)

	err := e.deleter.Delete(ctx, target)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	switch {
	case err == nil:
		result.Status = StatusSuccess
		e.journalBestEffort(wal.EntryDeleted, target, nil)
		log.Info().
			Str("sweep", e.options.Sweep).
			Str("family", target.Name).
			Str("arn", target.ARN).
			Str("status", string(result.Status)).
			Msg("deleted")

	case errors.Is(err, revision.ErrNotFound):
		result.Status = StatusAbsent
		e.journalBestEffort(wal.EntryAbsent, target, err)
		log.Info().
			Str("sweep", e.options.Sweep).
			Str("family", target.Name).
			Str("arn", target.ARN).
			Str("status", string(result.Status)).
			Msg("already deleted")

	default:
		result.Status = StatusFailed
		result.Error = err.Error()
		e.journalBestEffort(wal.EntryFailed, target, err)
		log.Error().
			Err(err).
			Str("sweep", e.options.Sweep).
			Str("family", target.Name).
			Str("arn", target.ARN).
			Str("status", string(result.Status)).
			Msg("delete failed")
	}

	return result
}

// DryRun reports every target as planned without calling the provider.
func (e *Engine) DryRun(ctx context.Context, targets []revision.Identifier) (*ExecutionResult, error) {
	result := e.newResult(targets)
	result.DryRun = true

	for _, target := range targets {
		now := time.Now()
		result.Results = append(result.Results, SingleExecutionResult{
			Target:    target,
			Status:    StatusPlanned,
			StartTime: now,
			EndTime:   now,
		})
		e.journalBestEffort(wal.EntryPlanned, target, nil)
		log.Info().
			Str("sweep", e.options.Sweep).
			Str("family", target.Name).
			Str("arn", target.ARN).
			Msg("would delete")
	}

	e.finish(result)
	return result, nil
}

// Helper methods

func (e *Engine) newResult(targets []revision.Identifier) *ExecutionResult {
	return &ExecutionResult{
		Sweep:        e.options.Sweep,
		StartTime:    time.Now(),
		TotalTargets: len(targets),
		Results:      make([]SingleExecutionResult, 0, len(targets)),
	}
}

func (e *Engine) finish(result *ExecutionResult) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.PartialFailure = result.FailedCount > 0
}

func (e *Engine) updateResultCounts(result *ExecutionResult, single SingleExecutionResult) {
	switch single.Status {
	case StatusSuccess:
		result.SuccessfulCount++
	case StatusAbsent:
		result.AbsentCount++
	case StatusFailed:
		result.FailedCount++
	case StatusSkipped:
		result.SkippedCount++
	}
}

func (e *Engine) skipResult(target revision.Identifier, cause error) SingleExecutionResult {
	now := time.Now()
	e.journalBestEffort(wal.EntrySkipped, target, cause)
	return SingleExecutionResult{
		Target:     target,
		Status:     StatusSkipped,
		StartTime:  now,
		EndTime:    now,
		SkipReason: cause.Error(),
	}
}

func (e *Engine) journal(entryType wal.EntryType, target string, data interface{}, cause error) error {
	if e.wal == nil {
		return nil
	}
	if cause != nil {
		return e.wal.AppendError(entryType, e.options.Sweep, target, data, cause)
	}
	return e.wal.Append(entryType, e.options.Sweep, target, data)
}

// journalBestEffort never fails a deletion because the journal did.
func (e *Engine) journalBestEffort(entryType wal.EntryType, target revision.Identifier, cause error) {
	if err := e.journal(entryType, target.ARN, target, cause); err != nil {
		log.Warn().Err(err).Str("arn", target.ARN).Str("entry", string(entryType)).Msg("journal write failed")
	}
}
