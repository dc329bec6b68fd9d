package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"storagectl/internal/types"
)

const (
	exitOK                = 0
	exitGeneric           = 1
	exitInvalidArguments  = 2
	exitNotInstalled      = 3
	exitCancelled         = 4
	exitDependencyMissing = 5
	exitNetwork           = 6
	exitServiceStart      = 7
)

// exitError carries an exit code for a result that was already printed.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string {
	return e.msg
}

// usageError marks flag and argument mistakes as invalid arguments.
func usageError(_ *cobra.Command, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(err.Error()).
		WithCause(err)
}

func resultError(result types.OperationResult) error {
	code := exitCodeForResult(result)
	if code == exitOK {
		return nil
	}
	return exitError{code: code, msg: fmt.Sprintf("%s %s: %s", result.Operation, result.State, result.Message)}
}

func exitCodeForResult(result types.OperationResult) int {
	if result.Succeeded() {
		return exitOK
	}
	if result.State == types.RunStateCancelled {
		return exitCancelled
	}
	switch result.Kind {
	case types.FailureInterrupted:
		return exitCancelled
	case types.FailureNotInstalled:
		return exitNotInstalled
	case types.FailureDependencyMissing:
		return exitDependencyMissing
	case types.FailureNetwork:
		return exitNetwork
	case types.FailureServiceStart:
		return exitServiceStart
	case types.FailureValidation:
		return exitInvalidArguments
	default:
		return exitGeneric
	}
}

func exitCodeForError(err error) int {
	if err == nil {
		return exitOK
	}
	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument:
		return exitInvalidArguments
	case errbuilder.CodeNotFound:
		return exitNotInstalled
	default:
		return exitGeneric
	}
}
