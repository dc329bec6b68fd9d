package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"storagectl/internal/core"
	"storagectl/internal/types"
)

func (r *run) rollbackSteps() []core.Step {
	cfg := r.cfg
	snapshot := *r.snapshot
	return []core.Step{
		{
			Name:     "restore-snapshot",
			Fatal:    true,
			Mutating: true,
			Describe: fmt.Sprintf("restore snapshot %s over %v and restart %s", snapshot.ID, snapshot.SourcePaths, cfg.UnitName),
			Run: func(ctx context.Context, _ types.Options) types.StepResult {
				report, err := r.svc.snapshotManager().Restore(ctx, snapshot, r.restoreHooks())
				if report.MaxScore > 0 {
					r.health = &report
				}
				if err != nil {
					var stage *core.StageError
					if errors.As(err, &stage) {
						return types.Failed(stage.Kind, true, "rollback failed at "+err.Error())
					}
					return types.Failed(types.FailureBackup, true, "rollback failed: "+err.Error())
				}
				return types.Succeeded("restored snapshot " + snapshot.ID)
			},
		},
		r.recordDeployment(func(now time.Time, _ types.Options) types.Deployment {
			deployment := r.existing
			if snapshot.Version != "" {
				deployment.Version = snapshot.Version
				deployment.Ref = snapshot.Version
			}
			if deployment.RepoURL == "" {
				deployment.RepoURL = cfg.RepoURL
			}
			if deployment.InstalledAt.IsZero() {
				deployment.InstalledAt = snapshot.CreatedAt
			}
			deployment.UpdatedAt = now
			deployment.LastBackup = snapshot.ID
			return deployment
		}),
	}
}

func (r *run) restoreHooks() core.RestoreHooks {
	cfg := r.cfg
	return core.RestoreHooks{
		Stop: func(ctx context.Context) error {
			stopErr := r.svc.Services.Stop(ctx, cfg.UnitName)
			if dirExists(cfg.InstallDir) {
				if err := r.svc.Runtime.Down(ctx, cfg.InstallDir); err != nil {
					log.Ctx(ctx).Warn().Err(err).Msg("containers not removed before restore")
				}
			}
			return stopErr
		},
		Start: func(ctx context.Context) error {
			if err := r.svc.Services.Start(ctx, cfg.UnitName); err != nil {
				return err
			}
			if res := r.waitReady(ctx); !res.OK {
				return errors.New(res.Message)
			}
			return nil
		},
		Verify: func(ctx context.Context) types.HealthReport {
			return r.svc.verifier().Verify(ctx, r.svc.HealthChecks())
		},
	}
}
