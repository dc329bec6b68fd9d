package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagectl/internal/types"
)

type cannedRunner struct {
	result types.CommandResult
	err    error
}

func (r cannedRunner) Run(context.Context, string, []string, types.RunOptions) (types.CommandResult, error) {
	return r.result, r.err
}

func TestRunStepSuccess(t *testing.T) {
	result := RunStep(t.Context(), cannedRunner{result: types.CommandResult{Stdout: "Docker Compose version v2.29.1\n"}}, types.RunOptions{}, "docker", "compose", "version")
	assert.True(t, result.OK)
	assert.Equal(t, "Docker Compose version v2.29.1", result.Message)
}

func TestRunStepNonZeroExitIsNotAnError(t *testing.T) {
	runner := cannedRunner{result: types.CommandResult{Command: "systemctl start stack", ExitCode: 5, Stderr: "Unit not found.\n"}}

	result := RunStep(t.Context(), runner, types.RunOptions{Fatal: true}, "systemctl", "start", "stack")

	assert.False(t, result.OK)
	assert.True(t, result.Fatal)
	assert.NoError(t, result.Err)
	assert.Equal(t, types.FailureExternalTool, result.Kind)
	assert.Equal(t, "systemctl start stack exited with status 5: Unit not found.", result.Message)
}

func TestRunStepTimeout(t *testing.T) {
	runner := cannedRunner{result: types.CommandResult{Command: "docker compose build", ExitCode: -1, TimedOut: true, Duration: time.Minute}}

	result := RunStep(t.Context(), runner, types.RunOptions{}, "docker", "compose", "build")

	assert.False(t, result.OK)
	assert.False(t, result.Fatal)
	assert.Contains(t, result.Message, "timed out")
}

func TestRunStepMissingExecutable(t *testing.T) {
	result := RunStep(t.Context(), cannedRunner{err: errors.New("executable not found: nginx")}, types.RunOptions{}, "nginx", "-t")

	require.Error(t, result.Err)
	assert.True(t, result.Fatal)
	assert.Equal(t, types.FailureDependencyMissing, result.Kind)
}
