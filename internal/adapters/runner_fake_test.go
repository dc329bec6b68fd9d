package adapters

import (
	"context"
	"strings"

	"storagectl/internal/types"
)

type recordedCall struct {
	Line string
	Opts types.RunOptions
}

// scriptedRunner answers commands by the longest matching command-line
// prefix and succeeds silently for everything else.
type scriptedRunner struct {
	responses map[string]types.CommandResult
	missing   map[string]bool
	calls     []recordedCall
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{responses: map[string]types.CommandResult{}, missing: map[string]bool{}}
}

func (r *scriptedRunner) on(prefix string, result types.CommandResult) *scriptedRunner {
	r.responses[prefix] = result
	return r
}

func (r *scriptedRunner) Run(_ context.Context, name string, args []string, opts types.RunOptions) (types.CommandResult, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.calls = append(r.calls, recordedCall{Line: line, Opts: opts})
	if r.missing[name] {
		return types.CommandResult{Command: line, ExitCode: -1}, errNotFound(name)
	}
	best := ""
	for prefix := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return types.CommandResult{Command: line}, nil
	}
	result := r.responses[best]
	result.Command = line
	return result, nil
}

func (r *scriptedRunner) lines() []string {
	out := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call.Line)
	}
	return out
}

type notFoundError string

func (e notFoundError) Error() string {
	return "executable not found: " + string(e)
}

func errNotFound(name string) error {
	return notFoundError(name)
}
