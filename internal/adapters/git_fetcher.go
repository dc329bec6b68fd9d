package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// GitFetcher checks out the stack sources with the git binary.
type GitFetcher struct {
	Runner ports.CommandRunnerPort
}

func NewGitFetcher(runner ports.CommandRunnerPort) GitFetcher {
	return GitFetcher{Runner: runner}
}

// Clone checks out ref into dest. An existing checkout is moved to ref
// instead, so a repeated install converges on the same tree.
func (g GitFetcher) Clone(ctx context.Context, url string, ref string, dest string) error {
	if strings.TrimSpace(url) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("repository url is empty")
	}
	if strings.TrimSpace(dest) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("clone destination is empty")
	}
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return g.FetchAndCheckout(ctx, dest, ref)
	}
	args := []string{"clone", "--quiet"}
	if strings.TrimSpace(ref) != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dest)
	_, err := runChecked(ctx, g.Runner, types.RunOptions{}, "git", args...)
	return err
}

func (g GitFetcher) FetchAndCheckout(ctx context.Context, dir string, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("git ref is empty")
	}
	opts := types.RunOptions{Dir: dir}
	if _, err := runChecked(ctx, g.Runner, opts, "git", "fetch", "--quiet", "--tags", "--prune", "origin"); err != nil {
		return err
	}
	if _, err := runChecked(ctx, g.Runner, opts, "git", "checkout", "--quiet", "--force", ref); err != nil {
		return err
	}
	// Branches need a fast-forward; tags and commits are already exact.
	result, err := g.Runner.Run(ctx, "git", []string{"symbolic-ref", "--quiet", "HEAD"}, opts)
	if err != nil {
		return err
	}
	if result.Success() {
		_, err = runChecked(ctx, g.Runner, opts, "git", "reset", "--quiet", "--hard", "origin/"+ref)
	}
	return err
}

// DescribeTag returns the newest tag reachable from the remote default
// branch of the checkout in dir.
func (g GitFetcher) DescribeTag(ctx context.Context, dir string) (string, error) {
	opts := types.RunOptions{Dir: dir}
	if _, err := runChecked(ctx, g.Runner, opts, "git", "fetch", "--quiet", "--tags", "origin"); err != nil {
		return "", err
	}
	result, err := runChecked(ctx, g.Runner, opts, "git", "describe", "--tags", "--abbrev=0", "origin/HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

var _ ports.SourceFetcherPort = GitFetcher{}
