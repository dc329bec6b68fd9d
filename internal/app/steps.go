package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"storagectl/internal/adapters"
	"storagectl/internal/core"
	"storagectl/internal/policies"
	"storagectl/internal/types"
)

const prerequisiteTimeout = 30 * time.Second

type prerequisite struct {
	name string
	args []string
}

var installPrerequisites = []prerequisite{
	{name: "docker", args: []string{"version", "--format", "{{.Server.Version}}"}},
	{name: "docker", args: []string{"compose", "version", "--short"}},
	{name: "git", args: []string{"--version"}},
	{name: "systemctl", args: []string{"--version"}},
	{name: "nginx", args: []string{"-v"}},
	{name: "crontab", args: []string{"-l"}},
}

var removalPrerequisites = []prerequisite{
	{name: "docker", args: []string{"compose", "version", "--short"}},
	{name: "systemctl", args: []string{"--version"}},
}

func (r *run) checkPrerequisites(required []prerequisite) core.Step {
	return core.Step{
		Name:  "check-prerequisites",
		Fatal: true,
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			opts := types.RunOptions{Timeout: prerequisiteTimeout}
			var found []string
			for _, tool := range required {
				res := core.RunStep(ctx, r.svc.Runner, opts, tool.name, tool.args...)
				if res.Err != nil {
					res.Message = "missing dependency: " + tool.name
					return res
				}
				// crontab -l exits 1 when the table is empty.
				if !res.OK && tool.name != "crontab" {
					return types.Failed(types.FailureDependencyMissing, true, fmt.Sprintf("%s is not usable: %s", tool.name, res.Message))
				}
				found = append(found, tool.name)
			}
			return types.Succeeded("found " + strings.Join(dedupe(found), ", "))
		},
	}
}

func (r *run) detectInstallation() core.Step {
	return core.Step{
		Name:  "detect-installation",
		Fatal: true,
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			if !r.found() {
				return types.Failed(types.FailureNotInstalled, true, fmt.Sprintf("%s is not installed; run: storagectl install", r.cfg.Name))
			}
			if !r.installed {
				log.Ctx(ctx).Warn().Str("dir", r.cfg.InstallDir).Msg("deployment files found without metadata")
				return types.Succeeded("installation found in " + r.cfg.InstallDir + " (no metadata)")
			}
			return types.Succeeded("installed version " + r.versionLabel())
		},
	}
}

// takeSnapshot captures the persistent paths as a safety net. A failed
// backup never aborts the plan.
func (r *run) takeSnapshot(ctx context.Context) types.StepResult {
	paths := existingPaths(r.cfg.PersistentPaths())
	if len(paths) == 0 {
		return types.Succeeded("nothing to back up")
	}
	snapshot, err := r.svc.snapshotManager().Create(ctx, paths, r.existing.Version)
	if err != nil {
		return types.Failed(types.FailureBackup, false, "backup failed, continuing without a snapshot: "+err.Error())
	}
	r.snapshot = &snapshot
	r.ledger.SetSnapshot(snapshot.ID)
	if snapshot.Partial {
		return types.Failed(types.FailureBackup, false, fmt.Sprintf("snapshot %s is partial; only %s archived", snapshot.ID, strings.Join(snapshot.SourcePaths, ", ")))
	}
	return types.Succeeded(fmt.Sprintf("snapshot %s created (%s)", snapshot.ID, humanize.Bytes(uint64(snapshot.SizeBytes))))
}

func (r *run) fetchSource(checkout func(ctx context.Context) error) core.Step {
	return core.Step{
		Name:     "fetch-source",
		Fatal:    true,
		Mutating: true,
		Describe: fmt.Sprintf("check out %s into %s", r.cfg.RepoURL, r.cfg.InstallDir),
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			if err := checkout(ctx); err != nil {
				return types.Failed(types.FailureNetwork, true, "fetching source failed: "+err.Error())
			}
			return types.Succeeded("source at " + r.target)
		},
	}
}

func (r *run) setOwnership() core.Step {
	return core.Step{
		Name:     "set-ownership",
		Mutating: true,
		Describe: "hand " + strings.Join(r.cfg.PersistentPaths(), ", ") + " to " + r.cfg.ServiceUser,
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			paths := existingPaths(r.cfg.PersistentPaths())
			if err := r.svc.Accounts.Chown(ctx, r.cfg.ServiceUser, paths); err != nil {
				return types.Failed(types.FailureExternalTool, false, "ownership not changed: "+err.Error())
			}
			return types.Succeeded("owned by " + r.cfg.ServiceUser)
		},
	}
}

func (r *run) buildImages() core.Step {
	return core.Step{
		Name:     "build-images",
		Fatal:    true,
		Mutating: true,
		Describe: "pull and build the container images in " + r.cfg.InstallDir,
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			pullErr := r.svc.Runtime.Pull(ctx, r.cfg.InstallDir)
			if pullErr != nil {
				log.Ctx(ctx).Warn().Err(pullErr).Msg("image pull failed, building from cache")
			}
			if err := r.svc.Runtime.Build(ctx, r.cfg.InstallDir); err != nil {
				return types.Failed(types.FailureExternalTool, true, "image build failed: "+err.Error())
			}
			if pullErr != nil {
				return types.Failed(types.FailureNetwork, false, "images built from cache; pull failed: "+pullErr.Error())
			}
			return types.Succeeded("images ready")
		},
	}
}

func (r *run) registerService() core.Step {
	return core.Step{
		Name:     "register-service",
		Fatal:    true,
		Mutating: true,
		Describe: "write and enable " + r.cfg.UnitName,
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			changed, err := r.svc.Services.RegisterUnit(ctx, r.cfg.UnitName, adapters.RenderUnit(r.cfg))
			if err != nil {
				return types.Failed(types.FailureExternalTool, true, "unit not registered: "+err.Error())
			}
			if !r.installed {
				r.ledger.Created(policies.ResourceUnit, r.cfg.UnitName)
			}
			if err := r.svc.Services.Enable(ctx, r.cfg.UnitName); err != nil {
				return types.Failed(types.FailureExternalTool, true, "unit not enabled: "+err.Error())
			}
			if changed {
				return types.Succeeded(r.cfg.UnitName + " written and enabled")
			}
			return types.Succeeded(r.cfg.UnitName + " unchanged")
		},
	}
}

func (r *run) configureProxy() core.Step {
	return core.Step{
		Name:     "configure-proxy",
		Mutating: true,
		Describe: fmt.Sprintf("publish the dashboard on port %d through nginx", r.cfg.ProxyPort),
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			proxy := r.svc.Proxy
			changed, err := proxy.WriteSiteConfig(ctx, r.cfg.Name, adapters.RenderSite(r.cfg))
			if err != nil {
				return types.Failed(types.FailureExternalTool, false, "proxy site not written: "+err.Error())
			}
			if !r.installed {
				r.ledger.Created(policies.ResourceSite, r.cfg.Name)
			}
			ok, err := proxy.TestConfig(ctx)
			if err != nil || !ok {
				if removeErr := proxy.RemoveSiteConfig(ctx, r.cfg.Name); removeErr != nil {
					log.Ctx(ctx).Warn().Err(removeErr).Msg("rejected proxy site not removed")
				}
				return types.Failed(types.FailureExternalTool, false, "nginx rejected the site configuration; proxy not configured")
			}
			if !changed {
				return types.Succeeded("proxy site unchanged")
			}
			if err := proxy.Reload(ctx); err != nil {
				return types.Failed(types.FailureExternalTool, false, "nginx reload failed: "+err.Error())
			}
			return types.Succeeded("proxy site enabled")
		},
	}
}

func (r *run) scheduleMaintenance() core.Step {
	return core.Step{
		Name:     "schedule-maintenance",
		Mutating: true,
		Describe: fmt.Sprintf("schedule %q at %q", r.cfg.MaintenanceMarker(), r.cfg.MaintenanceSchedule),
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			if err := r.svc.Scheduler.UpsertEntry(ctx, r.cfg.MaintenanceSchedule, r.cfg.MaintenanceCommand()); err != nil {
				return types.Failed(types.FailureExternalTool, false, "maintenance not scheduled: "+err.Error())
			}
			if !r.installed {
				r.ledger.Created(policies.ResourceSchedule, r.cfg.MaintenanceMarker())
			}
			return types.Succeeded("maintenance scheduled at " + r.cfg.MaintenanceSchedule)
		},
	}
}

func (r *run) startServices() core.Step {
	return core.Step{
		Name:     "start-services",
		Fatal:    true,
		Mutating: true,
		Describe: "start " + r.cfg.UnitName + " and wait for the backend",
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			if err := r.svc.Services.Start(ctx, r.cfg.UnitName); err != nil {
				return types.Failed(types.FailureServiceStart, true, "service did not start: "+err.Error())
			}
			r.ledger.Created(policies.ResourceWorkload, r.cfg.ComposeProject)
			return r.waitReady(ctx)
		},
	}
}

func (r *run) waitReady(ctx context.Context) types.StepResult {
	poll := core.Poll(ctx, core.PollConfig{
		MaxAttempts: r.cfg.ReadyAttempts,
		Interval:    r.cfg.ReadyInterval,
		Timeout:     r.cfg.ReadyTimeout,
	}, r.svc.readiness().Probe)
	switch {
	case poll.Ready:
		return types.Succeeded(fmt.Sprintf("backend ready after %d attempt(s)", poll.Attempts))
	case poll.Cancelled:
		return types.Failed(types.FailureInterrupted, true, "interrupted while waiting for the backend")
	default:
		return types.Failed(types.FailureServiceStart, true, fmt.Sprintf("backend not ready after %d attempt(s): %v", poll.Attempts, poll.LastErr))
	}
}

func (r *run) recordDeployment(build func(now time.Time, opts types.Options) types.Deployment) core.Step {
	return core.Step{
		Name:     "record-deployment",
		Mutating: true,
		Describe: "record the deployed version in " + r.cfg.MetadataPath(),
		Run: func(ctx context.Context, opts types.Options) types.StepResult {
			deployment := build(r.svc.now(), opts)
			if err := r.svc.Metadata.Write(ctx, deployment); err != nil {
				return types.Failed(types.FailureExternalTool, false, "deployment metadata not written: "+err.Error())
			}
			return types.Succeeded("recorded version " + deployment.Version)
		},
	}
}

func (r *run) verifyHealth() core.Step {
	return core.Step{
		Name: "verify-health",
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			report := r.svc.verifier().Verify(ctx, r.svc.HealthChecks())
			r.health = &report
			if report.Passed {
				return types.Succeeded(fmt.Sprintf("health score %d/%d", report.Score, report.MaxScore))
			}
			return types.Failed(types.FailureHealth, false, healthFailure(report))
		},
	}
}

func (r *run) pruneSnapshots() core.Step {
	return core.Step{
		Name:     "prune-snapshots",
		Mutating: true,
		Describe: fmt.Sprintf("keep the newest %d snapshots", r.cfg.KeepSnapshots),
		Run: func(ctx context.Context, _ types.Options) types.StepResult {
			plan, err := r.svc.snapshotManager().Prune(ctx, types.SnapshotRetentionPolicy{
				KeepLast: r.cfg.KeepSnapshots,
				KeepDays: r.cfg.KeepDays,
			})
			if err != nil {
				return types.Failed(types.FailureBackup, false, "snapshot pruning failed: "+err.Error())
			}
			return types.Succeeded(fmt.Sprintf("%d snapshot(s) kept, %d pruned", len(plan.Keep), len(plan.Delete)))
		},
	}
}

func healthFailure(report types.HealthReport) string {
	var failed []string
	for _, check := range report.Failed() {
		failed = append(failed, check.Name)
	}
	return fmt.Sprintf("health score %d below threshold %d; failing: %s", report.Score, report.Threshold, strings.Join(failed, ", "))
}

func dedupe(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func makeDirs(paths []string) ([]string, error) {
	var created []string
	for _, path := range paths {
		if dirExists(path) {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return created, err
		}
		created = append(created, path)
	}
	return created, nil
}
