package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vacuum/executor"
	"github.com/yairfalse/vacuum/internal/config"
	"github.com/yairfalse/vacuum/orchestrator"
	"github.com/yairfalse/vacuum/pkg/revision"
)

const account = "arn:aws:ecs:us-east-1:123456789012"

// stubECS lists one family of revisions under a single status
// (ACTIVE unless set) and no clusters.
type stubECS struct {
	family   string
	versions int
	status   string
}

func (s *stubECS) ListTaskDefinitions(_ context.Context, status string) ([]string, error) {
	want := s.status
	if want == "" {
		want = "ACTIVE"
	}
	if status != want {
		return nil, nil
	}
	var arns []string
	for v := 1; v <= s.versions; v++ {
		arns = append(arns, fmt.Sprintf("%s:task-definition/%s:%d", account, s.family, v))
	}
	return arns, nil
}

func (s *stubECS) ListClusters(context.Context) ([]string, error) {
	return nil, nil
}

func (s *stubECS) ListTasks(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *stubECS) ListServices(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *stubECS) DescribeTasks(context.Context, string, []string) ([]revision.Reference, []revision.Consumer, error) {
	return nil, nil, nil
}

func (s *stubECS) DescribeServices(context.Context, string, []string) ([]revision.Reference, []revision.Consumer, error) {
	return nil, nil, nil
}

func (s *stubECS) DeregisterTaskDefinition(context.Context, revision.Identifier) error {
	return nil
}

func (s *stubECS) DeleteTaskDefinition(context.Context, revision.Identifier) error {
	return nil
}

// stubLambda has no functions.
type stubLambda struct{}

func (stubLambda) ListFunctions(context.Context) ([]string, error) {
	return nil, nil
}

func (stubLambda) ListFunctionVersions(context.Context, string) ([]revision.Identifier, error) {
	return nil, nil
}

func (stubLambda) ListAliasReferences(context.Context, string) ([]revision.Reference, error) {
	return nil, nil
}

func (stubLambda) DeleteFunctionVersion(context.Context, revision.Identifier) error {
	return nil
}

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addGlobalFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestApplyFlags_OnlyChanged(t *testing.T) {
	cmd := newTestCommand(t,
		"--region", "us-west-2",
		"--dry-run=false",
		"--include", "api-,worker-",
	)

	c := config.Default()
	c.AWS.Profile = "legacy-stage"
	applyFlags(cmd, c)

	assert.Equal(t, "us-west-2", c.AWS.Region)
	assert.Equal(t, "legacy-stage", c.AWS.Profile)
	assert.False(t, c.IsDryRun())
	assert.Equal(t, []string{"api-", "worker-"}, c.Filter.IncludeFamilies)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, 10, c.AWS.MaxAttempts)
}

func TestApplyFlags_DefaultsKeepDryRun(t *testing.T) {
	cmd := newTestCommand(t)

	c := config.Default()
	applyFlags(cmd, c)

	assert.True(t, c.IsDryRun())
}

func TestBuildSweep_Names(t *testing.T) {
	c := config.Default()
	ecs := &stubECS{family: "api", versions: 3}

	for _, name := range []string{config.SweepTaskDefinitions, config.SweepInactive, config.SweepFunctions} {
		s, err := buildSweep(name, ecs, stubLambda{}, c, sweepOptions(c, nil, nil))
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}

	_, err := buildSweep("snapshots", ecs, stubLambda{}, c, sweepOptions(c, nil, nil))
	assert.Error(t, err)
}

func TestBuildSweep_TaskDefinitionPolicy(t *testing.T) {
	tests := []struct {
		name       string
		whitelist  []string
		keepRecent int
		wantDelete int
	}{
		{name: "unused revisions deleted", wantDelete: 7},
		{name: "keep recent window", keepRecent: 2, wantDelete: 5},
		{name: "whitelisted family keeps newest", whitelist: []string{"api"}, wantDelete: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			c.TaskDefinitions.Whitelist = tt.whitelist
			c.TaskDefinitions.KeepRecent = tt.keepRecent

			s, err := buildSweep(config.SweepTaskDefinitions, &stubECS{family: "api", versions: 7}, stubLambda{}, c, sweepOptions(c, nil, nil))
			require.NoError(t, err)

			res, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantDelete, res.DeleteCount)
			require.NotNil(t, res.Execution)
			assert.True(t, res.Execution.DryRun)
		})
	}
}

func TestInactiveCommand_KeepRecent(t *testing.T) {
	require.NotNil(t, inactiveCmd.Flags().Lookup("keep-recent"))
	assert.Nil(t, inactiveCmd.Flags().Lookup("keep"))

	c := config.Default()
	c.TaskDefinitions.KeepRecent = 2
	ecs := &stubECS{family: "api", versions: 5, status: "INACTIVE"}

	s, err := buildSweep(config.SweepInactive, ecs, stubLambda{}, c, sweepOptions(c, nil, nil))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeleteCount)
}

func TestPrintSummary_Text(t *testing.T) {
	res := &orchestrator.Result{
		Sweep:       "taskdefs",
		Families:    2,
		Revisions:   10,
		Referenced:  3,
		KeepCount:   6,
		DeleteCount: 4,
		Execution: &executor.ExecutionResult{
			SuccessfulCount: 2,
			AbsentCount:     1,
			FailedCount:     1,
		},
		Errors: []string{"arn:aws:ecs:us-east-1:123456789012:task-definition/api:1: throttled"},
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, res, "text"))

	out := buf.String()
	assert.Contains(t, out, "taskdefs\n")
	assert.Contains(t, out, "keep 6, delete 4")
	assert.Contains(t, out, "deleted 2, absent 1, failed 1, skipped 0")
	assert.Contains(t, out, "throttled")
}

func TestPrintSummary_DryRun(t *testing.T) {
	res := &orchestrator.Result{
		Sweep:       "functions",
		DeleteCount: 3,
		Execution:   &executor.ExecutionResult{DryRun: true},
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, res, "text"))

	assert.Contains(t, buf.String(), "functions (dry run)")
	assert.NotContains(t, buf.String(), "deleted")
}

func TestPrintSummary_JSON(t *testing.T) {
	res := &orchestrator.Result{Sweep: "inactive", DeleteCount: 1, Success: true}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, res, "json"))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "inactive", decoded["sweep"])
	assert.Equal(t, true, decoded["success"])
}
