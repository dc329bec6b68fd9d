// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// StackEnv points every storagectl directory at a fresh temp tree and
// returns the environment plus that tree's root.
func StackEnv(t *testing.T) ([]string, string) {
	t.Helper()
	dir := t.TempDir()
	env := append(os.Environ(),
		"GO111MODULE=on",
		"STORAGECTL_NAME=storagectl-e2e",
		"STORAGECTL_INSTALL_DIR="+filepath.Join(dir, "opt"),
		"STORAGECTL_DATA_DIRS="+filepath.Join(dir, "data"),
		"STORAGECTL_STATE_DIR="+filepath.Join(dir, "state"),
		"STORAGECTL_LOG_DIR="+filepath.Join(dir, "log"),
		"STORAGECTL_SNAPSHOT_DIR="+filepath.Join(dir, "backups"),
		"STORAGECTL_UNIT_DIR="+filepath.Join(dir, "systemd"),
		"STORAGECTL_NGINX_SITES_DIR="+filepath.Join(dir, "nginx", "sites-available"),
		"STORAGECTL_NGINX_ENABLED_DIR="+filepath.Join(dir, "nginx", "sites-enabled"),
		"STORAGECTL_REPO_URL=https://example.invalid/storage-manager.git",
		"STORAGECTL_VERSION_URL=",
	)
	return env, dir
}

// ExitCode returns the process exit code carried by err, zero for nil.
func ExitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "unexpected error: %v", err)
	return exitErr.ExitCode()
}
