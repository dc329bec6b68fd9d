package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"storagectl/internal/core"
	"storagectl/internal/policies"
	"storagectl/internal/types"
)

func (r *run) installSteps() []core.Step {
	cfg := r.cfg
	return []core.Step{
		r.checkPrerequisites(installPrerequisites),
		{
			Name: "detect-existing",
			Run: func(ctx context.Context, opts types.Options) types.StepResult {
				if !r.installed {
					if r.present {
						log.Ctx(ctx).Info().Str("dir", cfg.InstallDir).Msg("reusing files left by an earlier install")
					}
					return types.Succeeded("no existing installation")
				}
				if !opts.Force {
					return types.Failed(types.FailurePrecondition, true, fmt.Sprintf(
						"%s is already installed in %s (version %s); use storagectl update, or install --force to overwrite",
						cfg.Name, cfg.InstallDir, r.versionLabel()))
				}
				return types.Failed(types.FailurePrecondition, false, "existing installation detected (version "+r.versionLabel()+"); overwriting")
			},
		},
		{
			Name:     "backup-existing",
			Mutating: true,
			Describe: "snapshot the existing installation before overwriting it",
			Run: func(ctx context.Context, opts types.Options) types.StepResult {
				if !r.installed || !opts.Force {
					return types.Succeeded("nothing to back up")
				}
				return r.takeSnapshot(ctx)
			},
		},
		{
			Name:     "create-account",
			Fatal:    true,
			Mutating: true,
			Describe: "create the system account " + cfg.ServiceUser,
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				created, err := r.svc.Accounts.EnsureUser(ctx, cfg.ServiceUser, cfg.InstallDir)
				if err != nil {
					return types.Failed(types.FailureExternalTool, true, "service account not created: "+err.Error())
				}
				if !created {
					return types.Succeeded("account " + cfg.ServiceUser + " exists")
				}
				r.ledger.Created(policies.ResourceAccount, cfg.ServiceUser)
				return types.Succeeded("account " + cfg.ServiceUser + " created")
			},
		},
		{
			Name:     "create-directories",
			Fatal:    true,
			Mutating: true,
			Describe: "create " + strings.Join(r.installDirs(), ", "),
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				created, err := makeDirs(r.installDirs())
				for _, dir := range created {
					if r.persistent(dir) {
						r.ledger.Created(policies.ResourceDirectory, dir)
					}
				}
				if err != nil {
					return types.Failed(types.FailureExternalTool, true, "directory not created: "+err.Error())
				}
				if len(created) == 0 {
					return types.Succeeded("directories exist")
				}
				return types.Succeeded("created " + strings.Join(created, ", "))
			},
		},
		r.fetchSource(func(ctx context.Context) error {
			return r.svc.Source.Clone(ctx, cfg.RepoURL, r.target, cfg.InstallDir)
		}),
		r.setOwnership(),
		r.buildImages(),
		r.registerService(),
		r.configureProxy(),
		r.scheduleMaintenance(),
		r.startServices(),
		r.recordDeployment(func(now time.Time, opts types.Options) types.Deployment {
			return types.Deployment{
				Version:     r.target,
				Ref:         r.target,
				RepoURL:     cfg.RepoURL,
				InstalledAt: now,
				UpdatedAt:   now,
				Forced:      opts.Force,
				LastBackup:  r.ledger.Snapshot(),
			}
		}),
		r.verifyHealth(),
		r.pruneSnapshots(),
	}
}

func (r *run) installDirs() []string {
	dirs := append([]string{}, r.cfg.PersistentPaths()...)
	return append(dirs, r.cfg.StateDir, r.cfg.LogDir, r.cfg.SnapshotDir)
}

func (r *run) persistent(dir string) bool {
	for _, path := range r.cfg.PersistentPaths() {
		if path == dir {
			return true
		}
	}
	return false
}
