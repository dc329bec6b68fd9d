package app

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"storagectl/internal/core"
	"storagectl/internal/shared"
	"storagectl/internal/types"
)

func (r *run) uninstallSteps() []core.Step {
	cfg := r.cfg
	return []core.Step{
		r.checkPrerequisites(removalPrerequisites),
		r.detectInstallation(),
		{
			Name:     "backup-data",
			Mutating: true,
			Describe: "snapshot the deployment before removing it",
			Run: func(ctx context.Context, opts types.Options) types.StepResult {
				if !opts.CreateBackup {
					return types.Succeeded("backup not requested")
				}
				return r.takeSnapshot(ctx)
			},
		},
		{
			Name:     "stop-services",
			Mutating: true,
			Describe: "stop " + cfg.UnitName + " and remove its containers",
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				var failures []string
				if err := r.svc.Services.Stop(ctx, cfg.UnitName); err != nil {
					failures = append(failures, err.Error())
				}
				if dirExists(cfg.InstallDir) {
					if err := r.svc.Runtime.Down(ctx, cfg.InstallDir); err != nil {
						failures = append(failures, err.Error())
					}
				}
				if len(failures) > 0 {
					return types.Failed(types.FailureExternalTool, false, "services not fully stopped: "+strings.Join(failures, "; "))
				}
				return types.Succeeded("services stopped")
			},
		},
		{
			Name:     "remove-schedule",
			Mutating: true,
			Describe: "remove the scheduled maintenance entry",
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				removed, err := r.svc.Scheduler.RemoveEntriesMatching(ctx, regexp.QuoteMeta(cfg.MaintenanceMarker()))
				if err != nil {
					return types.Failed(types.FailureExternalTool, false, "maintenance entry not removed: "+err.Error())
				}
				if removed == 0 {
					return types.Succeeded("no maintenance entry")
				}
				return types.Succeeded("maintenance entry removed")
			},
		},
		{
			Name:     "remove-proxy-site",
			Mutating: true,
			Describe: "remove the nginx site " + cfg.Name,
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				proxy := r.svc.Proxy
				if err := proxy.RemoveSiteConfig(ctx, cfg.Name); err != nil {
					return types.Failed(types.FailureExternalTool, false, "proxy site not removed: "+err.Error())
				}
				if ok, err := proxy.TestConfig(ctx); err != nil || !ok {
					return types.Failed(types.FailureExternalTool, false, "nginx configuration invalid after removing the site; not reloaded")
				}
				if err := proxy.Reload(ctx); err != nil {
					return types.Failed(types.FailureExternalTool, false, "nginx reload failed: "+err.Error())
				}
				return types.Succeeded("proxy site removed")
			},
		},
		{
			Name:     "remove-service",
			Mutating: true,
			Describe: "disable and delete " + cfg.UnitName,
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				if err := r.svc.Services.Disable(ctx, cfg.UnitName); err != nil {
					return types.Failed(types.FailureExternalTool, false, "unit not disabled: "+err.Error())
				}
				if err := r.svc.Services.RemoveUnit(ctx, cfg.UnitName); err != nil {
					return types.Failed(types.FailureExternalTool, false, "unit not removed: "+err.Error())
				}
				return types.Succeeded(cfg.UnitName + " removed")
			},
		},
		{
			Name:     "remove-files",
			Fatal:    true,
			Mutating: true,
			Describe: "delete " + strings.Join(r.removalPaths(false), ", "),
			Run: func(ctx context.Context, opts types.Options) types.StepResult {
				var errs []error
				var removed []string
				for _, path := range r.removalPaths(opts.KeepData) {
					ok, err := shared.RemoveIfExists(path)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					if ok {
						removed = append(removed, path)
					}
				}
				if err := errors.Join(errs...); err != nil {
					return types.Failed(types.FailureExternalTool, true, "files not removed: "+err.Error())
				}
				message := "removed " + strings.Join(removed, ", ")
				if len(removed) == 0 {
					message = "no files to remove"
				}
				if opts.KeepData {
					message += "; kept " + strings.Join(cfg.DataDirs, ", ")
				}
				return types.Succeeded(message)
			},
		},
		{
			Name:     "remove-account",
			Mutating: true,
			Describe: "delete the system account " + cfg.ServiceUser,
			Run: func(ctx context.Context, opts types.Options) types.StepResult {
				if opts.KeepData {
					return types.Succeeded("account " + cfg.ServiceUser + " kept with the data")
				}
				if err := r.svc.Accounts.RemoveUser(ctx, cfg.ServiceUser); err != nil {
					return types.Failed(types.FailureExternalTool, false, "account not removed: "+err.Error())
				}
				return types.Succeeded("account " + cfg.ServiceUser + " removed")
			},
		},
		{
			Name:     "clear-metadata",
			Mutating: true,
			Describe: "delete " + cfg.MetadataPath(),
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				if err := r.svc.Metadata.Remove(ctx); err != nil {
					return types.Failed(types.FailureExternalTool, false, "deployment metadata not removed: "+err.Error())
				}
				return types.Succeeded("deployment metadata cleared")
			},
		},
	}
}

func (r *run) removalPaths(keepData bool) []string {
	if keepData {
		return []string{r.cfg.InstallDir}
	}
	return r.cfg.PersistentPaths()
}
