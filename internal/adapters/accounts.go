package adapters

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// SystemAccounts manages the service account with the shadow-utils tools.
type SystemAccounts struct {
	Runner ports.CommandRunnerPort
}

func NewSystemAccounts(runner ports.CommandRunnerPort) SystemAccounts {
	return SystemAccounts{Runner: runner}
}

func (a SystemAccounts) UserExists(ctx context.Context, name string) (bool, error) {
	result, err := a.Runner.Run(ctx, "id", []string{"-u", name}, types.RunOptions{})
	if err != nil {
		return false, err
	}
	return result.Success(), nil
}

// EnsureUser creates a system account without login shell. It reports
// whether the account was created by this call.
func (a SystemAccounts) EnsureUser(ctx context.Context, name string, home string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("service account name is empty")
	}
	exists, err := a.UserExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	args := []string{"--system", "--no-create-home", "--shell", "/usr/sbin/nologin"}
	if strings.TrimSpace(home) != "" {
		args = append(args, "--home-dir", home)
	}
	args = append(args, name)
	if _, err := runChecked(ctx, a.Runner, types.RunOptions{}, "useradd", args...); err != nil {
		return false, err
	}
	if _, err := runChecked(ctx, a.Runner, types.RunOptions{}, "usermod", "-aG", "docker", name); err != nil {
		return true, err
	}
	return true, nil
}

func (a SystemAccounts) RemoveUser(ctx context.Context, name string) error {
	exists, err := a.UserExists(ctx, name)
	if err != nil || !exists {
		return err
	}
	_, err = runChecked(ctx, a.Runner, types.RunOptions{}, "userdel", name)
	return err
}

func (a SystemAccounts) Chown(ctx context.Context, owner string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"-R", owner + ":" + owner}, paths...)
	_, err := runChecked(ctx, a.Runner, types.RunOptions{}, "chown", args...)
	return err
}

var _ ports.AccountPort = SystemAccounts{}
