package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/yairfalse/vacuum/pkg/revision"
	"github.com/yairfalse/vacuum/wal"
)

const webTD = "arn:aws:ecs:us-west-2:123456789012:task-definition/web"

// MockDeleter records delete calls and fails the ARNs it is told to
type MockDeleter struct {
	deleteCalls []string
	failures    map[string]error
	onDelete    func(id revision.Identifier)
}

func (m *MockDeleter) Delete(ctx context.Context, id revision.Identifier) error {
	m.deleteCalls = append(m.deleteCalls, id.ARN)
	if m.onDelete != nil {
		m.onDelete(id)
	}
	return m.failures[id.ARN]
}

func targets(versions ...string) []revision.Identifier {
	ids := make([]revision.Identifier, len(versions))
	for i, v := range versions {
		ids[i] = revision.New(webTD, v)
	}
	return ids
}

func TestEngine_Execute_AllSucceed(t *testing.T) {
	deleter := &MockDeleter{}
	engine := NewEngine(deleter, nil, ExecutorOptions{Sweep: "taskdefs"})

	result, err := engine.Execute(context.Background(), targets("3", "2", "1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.SuccessfulCount != 3 {
		t.Errorf("SuccessfulCount = %d, want 3", result.SuccessfulCount)
	}
	if result.PartialFailure {
		t.Error("PartialFailure should be false")
	}

	want := []string{webTD + ":3", webTD + ":2", webTD + ":1"}
	if len(deleter.deleteCalls) != len(want) {
		t.Fatalf("Delete calls = %d, want %d", len(deleter.deleteCalls), len(want))
	}
	for i, arn := range want {
		if deleter.deleteCalls[i] != arn {
			t.Errorf("Delete call %d = %s, want %s", i, deleter.deleteCalls[i], arn)
		}
	}
}

func TestEngine_Execute_NotFoundIsSuccess(t *testing.T) {
	gone := fmt.Errorf("deregister web:2: %w: ClientException", revision.ErrNotFound)
	deleter := &MockDeleter{failures: map[string]error{webTD + ":2": gone}}
	engine := NewEngine(deleter, nil, ExecutorOptions{})

	result, err := engine.Execute(context.Background(), targets("2"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Results[0].Status != StatusAbsent {
		t.Errorf("Status = %v, want %v", result.Results[0].Status, StatusAbsent)
	}
	if result.AbsentCount != 1 || result.FailedCount != 0 {
		t.Errorf("AbsentCount = %d, FailedCount = %d, want 1, 0", result.AbsentCount, result.FailedCount)
	}
	if result.PartialFailure {
		t.Error("already deleted revisions are not failures")
	}
}

func TestEngine_Execute_ContinuesAfterFailure(t *testing.T) {
	deleter := &MockDeleter{failures: map[string]error{webTD + ":2": errors.New("throttled")}}
	engine := NewEngine(deleter, nil, ExecutorOptions{})

	result, err := engine.Execute(context.Background(), targets("3", "2", "1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(deleter.deleteCalls) != 3 {
		t.Errorf("Delete calls = %d, want 3", len(deleter.deleteCalls))
	}
	if result.SuccessfulCount != 2 || result.FailedCount != 1 {
		t.Errorf("SuccessfulCount = %d, FailedCount = %d, want 2, 1", result.SuccessfulCount, result.FailedCount)
	}
	if !result.PartialFailure {
		t.Error("PartialFailure should be true")
	}

	failures := result.Failures()
	if len(failures) != 1 || failures[0].Target.Version != "2" {
		t.Fatalf("Failures = %+v, want web:2", failures)
	}
	if failures[0].Error != "throttled" {
		t.Errorf("Error = %q, want throttled", failures[0].Error)
	}
}

func TestEngine_Execute_CancelSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deleter := &MockDeleter{}
	deleter.onDelete = func(id revision.Identifier) {
		if id.Version == "2" {
			cancel()
		}
	}
	engine := NewEngine(deleter, nil, ExecutorOptions{})

	result, err := engine.Execute(ctx, targets("3", "2", "1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(deleter.deleteCalls) != 2 {
		t.Errorf("Delete calls = %d, want 2", len(deleter.deleteCalls))
	}
	if result.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", result.SkippedCount)
	}
	last := result.Results[len(result.Results)-1]
	if last.Status != StatusSkipped || last.Target.Version != "1" {
		t.Errorf("last result = %v %s, want skipped 1", last.Status, last.Target.Version)
	}
}

func TestEngine_DryRun(t *testing.T) {
	deleter := &MockDeleter{}
	engine := NewEngine(deleter, nil, ExecutorOptions{DryRun: true})

	result, err := engine.Execute(context.Background(), targets("2", "1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(deleter.deleteCalls) != 0 {
		t.Errorf("Delete calls = %d, want 0", len(deleter.deleteCalls))
	}
	if !result.DryRun {
		t.Error("DryRun should be set")
	}
	for _, r := range result.Results {
		if r.Status != StatusPlanned {
			t.Errorf("Status = %v, want %v", r.Status, StatusPlanned)
		}
	}
}

func TestEngine_Execute_Empty(t *testing.T) {
	engine := NewEngine(&MockDeleter{}, nil, ExecutorOptions{})

	result, err := engine.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.TotalTargets != 0 || len(result.Results) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestEngine_Execute_Journals(t *testing.T) {
	dir := t.TempDir()
	walInstance, err := wal.Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	deleter := &MockDeleter{failures: map[string]error{
		webTD + ":2": fmt.Errorf("gone: %w", revision.ErrNotFound),
		webTD + ":1": errors.New("access denied"),
	}}
	engine := NewEngine(deleter, walInstance, ExecutorOptions{Sweep: "taskdefs"})

	if _, err := engine.Execute(context.Background(), targets("3", "2", "1")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	_ = walInstance.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "vacuum-*.wal"))
	if len(files) != 1 {
		t.Fatalf("journal files = %d, want 1", len(files))
	}
	reader, err := wal.NewReader(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reader.Close() }()

	var got []wal.EntryType
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if entry.Sweep != "taskdefs" {
			t.Errorf("entry sweep = %q, want taskdefs", entry.Sweep)
		}
		got = append(got, entry.Type)
	}

	want := []wal.EntryType{
		wal.EntryPlanned,
		wal.EntryDeleting, wal.EntryDeleted,
		wal.EntryDeleting, wal.EntryAbsent,
		wal.EntryDeleting, wal.EntryFailed,
	}
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDeleteFunc(t *testing.T) {
	var called revision.Identifier
	f := DeleteFunc(func(ctx context.Context, id revision.Identifier) error {
		called = id
		return nil
	})

	id := revision.New(webTD, "7")
	if err := f.Delete(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if called != id {
		t.Errorf("called with %v, want %v", called, id)
	}
}
