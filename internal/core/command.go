package core

import (
	"context"
	"fmt"
	"strings"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// RunStep runs one command and turns the result into a StepResult. A
// missing executable becomes an environment failure.
func RunStep(ctx context.Context, runner ports.CommandRunnerPort, opts types.RunOptions, name string, args ...string) types.StepResult {
	result, err := runner.Run(ctx, name, args, opts)
	if err != nil {
		return types.StepResult{
			Fatal: true,
			Kind:  types.FailureDependencyMissing,
			Err:   err,
		}
	}
	if result.Success() {
		return types.Succeeded(strings.TrimSpace(result.Stdout))
	}
	return types.Failed(types.FailureExternalTool, opts.Fatal, commandFailure(result))
}

func commandFailure(result types.CommandResult) string {
	if result.TimedOut {
		return fmt.Sprintf("%s timed out after %s", result.Command, result.Duration)
	}
	detail := strings.TrimSpace(result.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(result.Stdout)
	}
	if detail == "" {
		return fmt.Sprintf("%s exited with status %d", result.Command, result.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", result.Command, result.ExitCode, detail)
}
