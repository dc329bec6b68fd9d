package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"storagectl/internal/core"
	"storagectl/internal/types"
)

func (r *run) updateSteps() []core.Step {
	cfg := r.cfg
	return []core.Step{
		r.checkPrerequisites(installPrerequisites),
		r.detectInstallation(),
		{
			Name: "check-version",
			Run:  r.checkVersion,
		},
		{
			Name:     "pre-update-backup",
			Mutating: true,
			Describe: "snapshot " + cfg.InstallDir + " and the data directories",
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				return r.takeSnapshot(ctx)
			},
		},
		{
			Name:     "stop-services",
			Mutating: true,
			Describe: "stop " + cfg.UnitName,
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				if err := r.svc.Services.Stop(ctx, cfg.UnitName); err != nil {
					return types.Failed(types.FailureExternalTool, false, "service not stopped: "+err.Error())
				}
				return types.Succeeded(cfg.UnitName + " stopped")
			},
		},
		r.fetchSource(func(ctx context.Context) error {
			return r.svc.Source.FetchAndCheckout(ctx, cfg.InstallDir, r.target)
		}),
		r.setOwnership(),
		r.buildImages(),
		r.registerService(),
		r.configureProxy(),
		r.scheduleMaintenance(),
		r.startServices(),
		r.recordDeployment(func(now time.Time, _ types.Options) types.Deployment {
			deployment := r.existing
			deployment.Version = r.target
			deployment.Ref = r.target
			if deployment.RepoURL == "" {
				deployment.RepoURL = cfg.RepoURL
			}
			if deployment.InstalledAt.IsZero() {
				deployment.InstalledAt = now
			}
			deployment.UpdatedAt = now
			if id := r.ledger.Snapshot(); id != "" {
				deployment.LastBackup = id
			}
			return deployment
		}),
		r.verifyHealth(),
		r.pruneSnapshots(),
	}
}

// checkVersion decides the update target. Equal tags end the plan early;
// an unreachable version source falls back to the configured ref unless
// only a check was requested.
func (r *run) checkVersion(ctx context.Context, opts types.Options) types.StepResult {
	current := r.existing.Version
	latest, source, err := r.svc.versionResolver().Latest(ctx)
	if err != nil {
		if opts.CheckOnly {
			return types.Failed(types.FailureNetwork, true, "cannot determine the latest version: "+err.Error())
		}
		r.target = r.cfg.Ref
		r.versions = &types.VersionInfo{Current: current, Latest: r.target, Source: core.VersionSourceConfigured}
		return types.Failed(types.FailureNetwork, false, fmt.Sprintf("latest version unknown, updating to configured ref %s: %v", r.target, err))
	}
	r.versions = &types.VersionInfo{Current: current, Latest: latest, Source: source}

	cmp := core.CompareVersions(current, latest)
	if cmp.Equal && !opts.Force {
		return types.Halted(fmt.Sprintf("already up to date (%s)", current))
	}
	if opts.CheckOnly {
		if cmp.Equal {
			return types.Halted(fmt.Sprintf("already up to date (%s)", current))
		}
		return types.Halted(fmt.Sprintf("update available: %s -> %s (%s, from %s)", labelOf(current), latest, cmp.Direction, source))
	}
	if cmp.Direction == types.DirectionDowngrade {
		log.Ctx(ctx).Warn().Str("current", current).Str("latest", latest).Msg("published version sorts before the deployed one")
	}
	r.target = latest
	if cmp.Equal {
		return types.Succeeded(fmt.Sprintf("reinstalling %s", latest))
	}
	return types.Succeeded(fmt.Sprintf("updating %s -> %s", labelOf(current), latest))
}

func labelOf(version string) string {
	if version == "" {
		return "unknown"
	}
	return version
}
