package adapters

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
	"storagectl/internal/types"
)

// SystemdManager registers and controls units with systemctl.
type SystemdManager struct {
	Runner  ports.CommandRunnerPort
	UnitDir string
}

func NewSystemdManager(runner ports.CommandRunnerPort, unitDir string) SystemdManager {
	if strings.TrimSpace(unitDir) == "" {
		unitDir = "/etc/systemd/system"
	}
	return SystemdManager{Runner: runner, UnitDir: unitDir}
}

func (m SystemdManager) RegisterUnit(ctx context.Context, name string, definition string) (bool, error) {
	path, err := m.unitPath(name)
	if err != nil {
		return false, err
	}
	changed, err := shared.WriteFileIfChanged(path, []byte(definition), 0o644)
	if err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write unit file").
			WithCause(err)
	}
	if changed {
		if err := m.DaemonReload(ctx); err != nil {
			return true, err
		}
	}
	return changed, nil
}

func (m SystemdManager) RemoveUnit(ctx context.Context, name string) error {
	path, err := m.unitPath(name)
	if err != nil {
		return err
	}
	removed, err := shared.RemoveIfExists(path)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to remove unit file").
			WithCause(err)
	}
	if removed {
		return m.DaemonReload(ctx)
	}
	return nil
}

func (m SystemdManager) DaemonReload(ctx context.Context) error {
	return m.systemctl(ctx, "daemon-reload")
}

func (m SystemdManager) Start(ctx context.Context, name string) error {
	return m.systemctl(ctx, "start", name)
}

func (m SystemdManager) Stop(ctx context.Context, name string) error {
	return m.systemctlIgnoringMissing(ctx, "stop", name)
}

func (m SystemdManager) Enable(ctx context.Context, name string) error {
	return m.systemctl(ctx, "enable", name)
}

func (m SystemdManager) Disable(ctx context.Context, name string) error {
	return m.systemctlIgnoringMissing(ctx, "disable", name)
}

// IsActive asks systemctl is-active, which exits non-zero for any state
// other than active. Only a missing systemctl is an error.
func (m SystemdManager) IsActive(ctx context.Context, name string) (bool, error) {
	result, err := m.Runner.Run(ctx, "systemctl", []string{"is-active", "--quiet", name}, types.RunOptions{})
	if err != nil {
		return false, err
	}
	return result.Success(), nil
}

func (m SystemdManager) systemctl(ctx context.Context, args ...string) error {
	_, err := runChecked(ctx, m.Runner, types.RunOptions{}, "systemctl", args...)
	return err
}

// systemctlIgnoringMissing treats an unknown unit as already stopped or
// disabled.
func (m SystemdManager) systemctlIgnoringMissing(ctx context.Context, args ...string) error {
	result, err := m.Runner.Run(ctx, "systemctl", args, types.RunOptions{})
	if err != nil {
		return err
	}
	if result.Success() || isUnitNotFound(result.Stderr) {
		return nil
	}
	return commandError(result)
}

func (m SystemdManager) unitPath(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.ContainsRune(trimmed, filepath.Separator) {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid unit name %q", name))
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += ".service"
	}
	return filepath.Join(m.UnitDir, trimmed), nil
}

func isUnitNotFound(output string) bool {
	msg := strings.ToLower(output)
	return strings.Contains(msg, "not loaded") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist")
}

// RenderUnit produces the unit that keeps the compose stack up.
func RenderUnit(cfg types.StackConfig) string {
	compose := fmt.Sprintf("/usr/bin/docker compose -f %s -p %s", cfg.ComposePath(), cfg.ComposeProject)
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s container stack\n", cfg.Name)
	b.WriteString("Requires=docker.service\n")
	b.WriteString("After=docker.service network-online.target\n")
	b.WriteString("Wants=network-online.target\n\n")
	b.WriteString("[Service]\n")
	b.WriteString("Type=oneshot\n")
	b.WriteString("RemainAfterExit=yes\n")
	fmt.Fprintf(&b, "WorkingDirectory=%s\n", cfg.InstallDir)
	fmt.Fprintf(&b, "ExecStart=%s up -d --remove-orphans\n", compose)
	fmt.Fprintf(&b, "ExecStop=%s down\n", compose)
	b.WriteString("TimeoutStartSec=0\n\n")
	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}

var _ ports.ServiceManagerPort = SystemdManager{}
