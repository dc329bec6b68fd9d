package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
	"storagectl/internal/types"
)

// commandWaitDelay bounds how long output pipes held open by orphaned
// children may delay a killed command.
const commandWaitDelay = 2 * time.Second

// ExecRunner runs host commands. Every invocation is logged once to the
// context logger, whatever the outcome.
type ExecRunner struct {
	DefaultTimeout time.Duration
}

func NewExecRunner(defaultTimeout time.Duration) ExecRunner {
	return ExecRunner{DefaultTimeout: defaultTimeout}
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, opts types.RunOptions) (types.CommandResult, error) {
	commandLine := strings.TrimSpace(name + " " + strings.Join(args, " "))
	path, err := exec.LookPath(name)
	if err != nil {
		log.Ctx(ctx).Error().Str("command", commandLine).Err(err).Msg("executable not found")
		return types.CommandResult{Command: commandLine, ExitCode: -1}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("executable not found: %s", name)).
			WithCause(err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = opts.Dir
	cmd.WaitDelay = commandWaitDelay
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	result := types.CommandResult{
		Command:  commandLine,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		result.TimedOut = true
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		if result.Stderr == "" {
			result.Stderr = runErr.Error()
		}
	}

	event := log.Ctx(ctx).Info()
	if !result.Success() {
		event = log.Ctx(ctx).Warn()
	}
	event.Str("command", commandLine).
		Str("dir", opts.Dir).
		Int("exit_code", result.ExitCode).
		Bool("timed_out", result.TimedOut).
		Dur("duration", result.Duration).
		Msg("command finished")
	return result, nil
}

// runChecked runs a command and turns a non-zero exit into an error that
// carries the command output.
func runChecked(ctx context.Context, runner ports.CommandRunnerPort, opts types.RunOptions, name string, args ...string) (types.CommandResult, error) {
	result, err := runner.Run(ctx, name, args, opts)
	if err != nil {
		return result, err
	}
	if !result.Success() {
		return result, commandError(result)
	}
	return result, nil
}

func commandError(result types.CommandResult) error {
	output := strings.TrimSpace(result.Stderr)
	if output == "" {
		output = strings.TrimSpace(result.Stdout)
	}
	cause := fmt.Errorf("exit status %d", result.ExitCode)
	if result.TimedOut {
		cause = fmt.Errorf("timed out after %s", result.Duration)
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("%s failed", result.Command)).
		WithCause(shared.CommandError([]byte(output), cause))
}

var _ ports.CommandRunnerPort = ExecRunner{}
