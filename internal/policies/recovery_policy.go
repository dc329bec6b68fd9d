package policies

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	"storagectl/internal/core"
	"storagectl/internal/ports"
	"storagectl/internal/shared"
	"storagectl/internal/types"
)

type ResourceKind string

const (
	ResourceWorkload  ResourceKind = "workload"
	ResourceUnit      ResourceKind = "unit"
	ResourceSchedule  ResourceKind = "schedule"
	ResourceSite      ResourceKind = "site"
	ResourceDirectory ResourceKind = "directory"
	ResourceAccount   ResourceKind = "account"
)

type Resource struct {
	Kind ResourceKind
	Name string
}

// Ledger remembers what the current run created. Cleanup undoes only
// entries found here, never pre-existing state.
type Ledger struct {
	resources  []Resource
	snapshotID string
	restoreID  string
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Created(kind ResourceKind, name string) {
	for _, r := range l.resources {
		if r.Kind == kind && r.Name == name {
			return
		}
	}
	l.resources = append(l.resources, Resource{Kind: kind, Name: name})
}

func (l *Ledger) Resources() []Resource {
	return append([]Resource(nil), l.resources...)
}

// SetSnapshot records the safety-net snapshot taken by this run.
func (l *Ledger) SetSnapshot(id string) {
	l.snapshotID = id
}

func (l *Ledger) Snapshot() string {
	return l.snapshotID
}

// Restoring records the snapshot a rollback run restores.
func (l *Ledger) Restoring(id string) {
	l.restoreID = id
}

func (l *Ledger) RestoreTarget() string {
	return l.restoreID
}

// Cleanup holds the ports an aborted install is unwound through.
type Cleanup struct {
	Runtime   ports.ContainerRuntimePort
	Services  ports.ServiceManagerPort
	Scheduler ports.SchedulerPort
	Proxy     ports.ReverseProxyPort
	Accounts  ports.AccountPort
	StackDir  string
	// RemoveDir defaults to deleting the tree.
	RemoveDir func(path string) error
}

// RecoveryPolicy decides what happens after a plan ends. Only aborted
// installs are unwound; an aborted update points at its snapshot.
type RecoveryPolicy struct {
	Ledger  *Ledger
	Cleanup Cleanup
}

func NewRecoveryPolicy(ledger *Ledger, cleanup Cleanup) RecoveryPolicy {
	return RecoveryPolicy{Ledger: ledger, Cleanup: cleanup}
}

func (p RecoveryPolicy) Recover(ctx context.Context, outcome core.Outcome, opts types.Options) core.RecoveryReport {
	if outcome.State != types.RunStateAborted || opts.DryRun {
		return core.RecoveryReport{}
	}
	switch outcome.Operation {
	case types.OperationInstall:
		return p.unwindInstall(ctx, opts)
	case types.OperationUpdate:
		return p.updateRemedy()
	case types.OperationRollback:
		return core.RecoveryReport{Remedy: rollbackRemedy(p.restoreTarget())}
	case types.OperationUninstall:
		return core.RecoveryReport{Remedy: "fix the reported problem and run: storagectl uninstall"}
	default:
		return core.RecoveryReport{}
	}
}

func (p RecoveryPolicy) unwindInstall(ctx context.Context, opts types.Options) core.RecoveryReport {
	logger := log.Ctx(ctx)
	report := core.RecoveryReport{Remedy: "fix the reported problem and run: storagectl install"}
	if p.Ledger == nil {
		return report
	}
	resources := p.Ledger.Resources()
	// newest first, so workloads stop before their unit disappears
	for i := len(resources) - 1; i >= 0; i-- {
		resource := resources[i]
		if (resource.Kind == ResourceDirectory || resource.Kind == ResourceAccount) && !opts.Force {
			logger.Info().Str("kind", string(resource.Kind)).Str("name", resource.Name).Msg("kept after aborted install")
			continue
		}
		action := fmt.Sprintf("remove %s %s", resource.Kind, resource.Name)
		if err := p.undo(ctx, resource); err != nil {
			logger.Warn().Err(err).Str("kind", string(resource.Kind)).Str("name", resource.Name).Msg("cleanup failed")
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", action, err))
			continue
		}
		logger.Info().Str("kind", string(resource.Kind)).Str("name", resource.Name).Msg("cleaned up")
		report.Actions = append(report.Actions, action)
	}
	return report
}

func (p RecoveryPolicy) undo(ctx context.Context, resource Resource) error {
	c := p.Cleanup
	switch resource.Kind {
	case ResourceWorkload:
		if c.Runtime == nil {
			return nil
		}
		return c.Runtime.Down(ctx, c.StackDir)
	case ResourceUnit:
		if c.Services == nil {
			return nil
		}
		if err := c.Services.Stop(ctx, resource.Name); err != nil {
			return err
		}
		if err := c.Services.Disable(ctx, resource.Name); err != nil {
			return err
		}
		return c.Services.RemoveUnit(ctx, resource.Name)
	case ResourceSchedule:
		if c.Scheduler == nil {
			return nil
		}
		_, err := c.Scheduler.RemoveEntriesMatching(ctx, regexp.QuoteMeta(resource.Name))
		return err
	case ResourceSite:
		if c.Proxy == nil {
			return nil
		}
		if err := c.Proxy.RemoveSiteConfig(ctx, resource.Name); err != nil {
			return err
		}
		ok, err := c.Proxy.TestConfig(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("proxy configuration invalid after removing site %s; not reloaded", resource.Name)
		}
		return c.Proxy.Reload(ctx)
	case ResourceDirectory:
		remove := c.RemoveDir
		if remove == nil {
			remove = func(path string) error {
				_, err := shared.RemoveIfExists(path)
				return err
			}
		}
		return remove(resource.Name)
	case ResourceAccount:
		if c.Accounts == nil {
			return nil
		}
		return c.Accounts.RemoveUser(ctx, resource.Name)
	default:
		return fmt.Errorf("unknown resource kind %s", resource.Kind)
	}
}

func (p RecoveryPolicy) updateRemedy() core.RecoveryReport {
	id := p.snapshot()
	if id == "" {
		return core.RecoveryReport{Remedy: "no pre-update snapshot exists; the deployment was left as-is and must be repaired manually"}
	}
	return core.RecoveryReport{Remedy: "storagectl rollback --snapshot " + id}
}

func (p RecoveryPolicy) snapshot() string {
	if p.Ledger == nil {
		return ""
	}
	return p.Ledger.Snapshot()
}

func (p RecoveryPolicy) restoreTarget() string {
	if p.Ledger == nil {
		return ""
	}
	return p.Ledger.RestoreTarget()
}

func rollbackRemedy(id string) string {
	if id == "" {
		return "inspect the rollback log, then run: storagectl rollback"
	}
	return "inspect the rollback log, then run: storagectl rollback --snapshot " + id
}

var _ core.Recovery = RecoveryPolicy{}
