package ports

import (
	"context"

	"storagectl/internal/types"
)

// CommandRunnerPort executes external processes. A non-zero exit is
// reported through the result; an error means the executable could not
// be started at all.
type CommandRunnerPort interface {
	Run(ctx context.Context, name string, args []string, opts types.RunOptions) (types.CommandResult, error)
}
