package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// ComposeRuntime drives the stack through `docker compose`.
type ComposeRuntime struct {
	Runner      ports.CommandRunnerPort
	Project     string
	ComposeFile string
}

func NewComposeRuntime(runner ports.CommandRunnerPort, project string, composeFile string) ComposeRuntime {
	if strings.TrimSpace(composeFile) == "" {
		composeFile = "docker-compose.yml"
	}
	return ComposeRuntime{Runner: runner, Project: project, ComposeFile: composeFile}
}

func (c ComposeRuntime) Up(ctx context.Context, stackDir string) error {
	_, err := c.compose(ctx, stackDir, "up", "-d", "--remove-orphans")
	return err
}

func (c ComposeRuntime) Down(ctx context.Context, stackDir string) error {
	_, err := c.compose(ctx, stackDir, "down", "--remove-orphans")
	return err
}

func (c ComposeRuntime) Pull(ctx context.Context, stackDir string) error {
	_, err := c.compose(ctx, stackDir, "pull", "--ignore-buildable")
	return err
}

func (c ComposeRuntime) Build(ctx context.Context, stackDir string) error {
	_, err := c.compose(ctx, stackDir, "build", "--pull")
	return err
}

func (c ComposeRuntime) Ps(ctx context.Context, stackDir string) ([]types.ContainerState, error) {
	result, err := c.compose(ctx, stackDir, "ps", "--all", "--format", "json")
	if err != nil {
		return nil, err
	}
	return parseComposePs([]byte(result.Stdout))
}

func (c ComposeRuntime) compose(ctx context.Context, stackDir string, args ...string) (types.CommandResult, error) {
	if strings.TrimSpace(stackDir) == "" {
		return types.CommandResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("stack directory is empty")
	}
	file := c.ComposeFile
	if !filepath.IsAbs(file) {
		file = filepath.Join(stackDir, file)
	}
	base := []string{"compose", "-f", file}
	if strings.TrimSpace(c.Project) != "" {
		base = append(base, "-p", c.Project)
	}
	return runChecked(ctx, c.Runner, types.RunOptions{Dir: stackDir}, "docker", append(base, args...)...)
}

type composePsEntry struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
}

// parseComposePs accepts both the JSON array printed by older compose
// releases and the one-object-per-line output of newer ones.
func parseComposePs(output []byte) ([]types.ContainerState, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var entries []composePsEntry
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to parse compose ps output").
				WithCause(err)
		}
	} else {
		for _, line := range bytes.Split(trimmed, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var entry composePsEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeInternal).
					WithMsg("failed to parse compose ps output").
					WithCause(err)
			}
			entries = append(entries, entry)
		}
	}
	states := make([]types.ContainerState, 0, len(entries))
	for _, entry := range entries {
		states = append(states, types.ContainerState{
			Name:    entry.Name,
			Service: entry.Service,
			State:   strings.ToLower(entry.State),
		})
	}
	return states, nil
}

var _ ports.ContainerRuntimePort = ComposeRuntime{}
