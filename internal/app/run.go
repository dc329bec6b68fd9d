package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"storagectl/internal/core"
	"storagectl/internal/policies"
	"storagectl/internal/types"
)

// run is the mutable state shared by the steps of one plan.
type run struct {
	svc      Service
	cfg      types.StackConfig
	op       types.Operation
	ledger   *policies.Ledger
	existing types.Deployment
	// installed means deployment metadata exists. Only a completed
	// install or update writes it.
	installed bool
	// present means the install directory exists.
	present  bool
	target   string
	versions *types.VersionInfo
	health   *types.HealthReport
	snapshot *types.Snapshot
}

func newRun(svc Service, op types.Operation) *run {
	return &run{
		svc:    svc,
		cfg:    svc.Config,
		op:     op,
		ledger: policies.NewLedger(),
		target: svc.Config.Ref,
	}
}

// preflight loads what is already deployed. Rollback also resolves its
// snapshot here so that a missing one ends the run before the gate.
func (r *run) preflight(ctx context.Context, opts types.Options) error {
	if r.svc.Metadata != nil {
		deployment, ok, err := r.svc.Metadata.Read(ctx)
		if err != nil {
			return err
		}
		r.existing, r.installed = deployment, ok
	}
	r.present = dirExists(r.cfg.InstallDir)

	if r.op != types.OperationRollback {
		return nil
	}
	manager := r.svc.snapshotManager()
	if id := strings.TrimSpace(opts.SnapshotID); id != "" {
		snapshot, err := manager.Get(ctx, id)
		if err != nil {
			if errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
				log.Ctx(ctx).Error().Str("snapshot", id).Msg("requested snapshot does not exist")
				return nil
			}
			return err
		}
		r.snapshot = &snapshot
		return nil
	}
	snapshot, ok, err := manager.Latest(ctx)
	if err != nil {
		return err
	}
	if ok {
		r.snapshot = &snapshot
	}
	return nil
}

// interrupted reports a run cancelled before its first step started.
func (r *run) interrupted(result types.OperationResult) types.OperationResult {
	result.State = types.RunStateAborted
	result.Kind = types.FailureInterrupted
	result.Message = "interrupted before any step ran"
	if plan, err := r.plan(); err == nil {
		if names := plan.StepNames(); len(names) > 0 {
			result.AbortedStep = names[0]
			result.Message = fmt.Sprintf("interrupted before step %s", names[0])
		}
	}
	return result
}

func (r *run) found() bool {
	return r.installed || r.present
}

// gateOptions drops --force for an install that has nothing to overwrite.
func (r *run) gateOptions(opts types.Options) types.Options {
	if r.op == types.OperationInstall && !r.installed {
		opts.Force = false
	}
	return opts
}

func (r *run) summary(opts types.Options) string {
	cfg := r.cfg
	switch r.op {
	case types.OperationInstall:
		return fmt.Sprintf("The existing %s installation in %s (version %s) will be overwritten.", cfg.Name, cfg.InstallDir, r.versionLabel())
	case types.OperationUpdate:
		return fmt.Sprintf("%s in %s (version %s) will be updated. A snapshot is taken first.", cfg.Name, cfg.InstallDir, r.versionLabel())
	case types.OperationUninstall:
		data := "kept"
		if !opts.KeepData {
			data = "deleted"
		}
		return fmt.Sprintf("%s will be removed from this host. Data in %s will be %s.", cfg.Name, strings.Join(cfg.DataDirs, ", "), data)
	case types.OperationRollback:
		if r.snapshot == nil {
			return ""
		}
		return fmt.Sprintf("%s will be restored from snapshot %s taken %s. Current files in %s are replaced.",
			cfg.Name, r.snapshot.ID, r.snapshot.CreatedAt.Format("2006-01-02 15:04:05 MST"), strings.Join(r.snapshot.SourcePaths, ", "))
	default:
		return ""
	}
}

func (r *run) versionLabel() string {
	if strings.TrimSpace(r.existing.Version) == "" {
		return "unknown"
	}
	return r.existing.Version
}

func (r *run) plan() (core.Plan, error) {
	switch r.op {
	case types.OperationInstall:
		return core.NewPlan(r.op, r.installSteps()...)
	case types.OperationUpdate:
		return core.NewPlan(r.op, r.updateSteps()...)
	case types.OperationUninstall:
		return core.NewPlan(r.op, r.uninstallSteps()...)
	case types.OperationRollback:
		return core.NewPlan(r.op, r.rollbackSteps()...)
	default:
		return core.Plan{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unknown operation %q", r.op))
	}
}

func dirExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func existingPaths(paths []string) []string {
	var out []string
	for _, path := range paths {
		if _, err := os.Lstat(path); err == nil {
			out = append(out, path)
		}
	}
	return out
}
