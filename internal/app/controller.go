package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storagectl/internal/core"
	"storagectl/internal/policies"
	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// Run performs one lifecycle operation end to end: validation, the
// confirmation gate, the run lock, plan execution and bookkeeping. A
// failed or cancelled operation is reported through the result; the
// error return is reserved for invalid input and a broken environment.
func (s Service) Run(ctx context.Context, op types.Operation, opts types.Options) (types.OperationResult, error) {
	if op == types.OperationUpdate && opts.Rollback {
		op = types.OperationRollback
		opts.Rollback = false
	}
	if err := s.validate(op, opts); err != nil {
		return types.OperationResult{}, err
	}

	runID := s.runID()
	result := types.OperationResult{
		RunID:     runID,
		Operation: op,
		State:     types.RunStatePending,
		DryRun:    opts.DryRun,
		StartedAt: s.now(),
	}

	sink, err := s.OpenLog(op)
	if err != nil {
		return result, err
	}
	defer sink.Close()
	logger := zerolog.New(zerolog.MultiLevelWriter(s.console(), sink)).
		With().
		Timestamp().
		Str("run_id", runID).
		Str("operation", string(op)).
		Logger()
	ctx = logger.WithContext(ctx)

	r := newRun(s, op)
	if err := r.preflight(ctx, opts); err != nil {
		if ctx.Err() == nil {
			return result, err
		}
		result = r.interrupted(result)
		result.FinishedAt = s.now()
		logger.Warn().Str("step", result.AbortedStep).Msg(string(op) + " aborted: " + result.Message)
		return result, nil
	}
	if op == types.OperationRollback && r.snapshot == nil {
		result.State = types.RunStateAborted
		result.Kind = types.FailureBackup
		result.Message = "no snapshot available to roll back to"
		result.Remedy = "list snapshots with: storagectl snapshot list"
		result.FinishedAt = s.now()
		logger.Error().Msg(result.Message)
		return result, nil
	}
	if r.snapshot != nil {
		r.ledger.Restoring(r.snapshot.ID)
	}

	ok, err := core.NewGate(s.Prompter).Confirm(ctx, op, r.gateOptions(opts), r.summary(opts))
	if err != nil {
		return result, err
	}
	if !ok {
		result.State = types.RunStateCancelled
		result.Message = "cancelled by operator"
		result.FinishedAt = s.now()
		logger.Info().Msg(result.Message)
		return result, nil
	}

	if !opts.DryRun && s.Lock != nil {
		release, err := s.Lock.Acquire(ctx)
		if err != nil {
			return result, err
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn().Err(err).Msg("releasing run lock failed")
			}
		}()
	}

	journal := s.openJournal(ctx)
	if journal != nil {
		defer journal.Close()
		if err := journal.Begin(ctx, types.RunRecord{RunID: runID, Operation: op, State: types.RunStateRunning, StartedAt: result.StartedAt}); err != nil {
			logger.Warn().Err(err).Msg("journal start not recorded")
		}
	}

	plan, err := r.plan()
	if err != nil {
		return result, err
	}
	logger.Info().
		Bool("dry_run", opts.DryRun).
		Strs("steps", plan.StepNames()).
		Msg("starting " + string(op))

	sequencer := core.Sequencer{Recovery: policies.NewRecoveryPolicy(r.ledger, s.cleanup()), Clock: s.Clock}
	outcome := sequencer.Execute(ctx, plan, opts)

	result.State = outcome.State
	result.AbortedStep = outcome.AbortedStep
	result.Kind = outcome.Kind
	result.Message = outcome.Message
	result.Steps = outcome.Records
	result.Warnings = outcome.Warnings
	result.Health = r.health
	result.Versions = r.versions
	result.Snapshot = r.snapshot
	result.Remedy = outcome.Recovery.Remedy
	for _, cleanupErr := range outcome.Recovery.Errors {
		result.Warnings = append(result.Warnings, "cleanup: "+cleanupErr)
	}
	result.FinishedAt = s.now()

	if result.Succeeded() {
		logger.Info().Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).Int("warnings", len(result.Warnings)).Msg(string(op) + " finished")
	} else {
		logger.Error().Str("step", result.AbortedStep).Str("kind", string(result.Kind)).Msg(string(op) + " aborted: " + result.Message)
		if result.Remedy != "" {
			logger.Error().Msg("next step: " + result.Remedy)
		}
	}

	if !opts.DryRun && s.Metrics != nil {
		if err := s.Metrics.RecordRun(ctx, result); err != nil {
			logger.Warn().Err(err).Msg("run metrics not written")
		}
	}
	if journal != nil {
		if err := journal.Finish(ctx, recordOf(result)); err != nil {
			logger.Warn().Err(err).Msg("journal result not recorded")
		}
	}
	return result, nil
}

func (s Service) validate(op types.Operation, opts types.Options) error {
	invalid := func(msg string) error {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(msg)
	}
	switch op {
	case types.OperationInstall, types.OperationUpdate, types.OperationUninstall, types.OperationRollback:
	default:
		return invalid(fmt.Sprintf("unknown operation %q", op))
	}
	if opts.KeepData && op != types.OperationUninstall {
		return invalid("--keep-data only applies to uninstall")
	}
	if opts.CheckOnly && op != types.OperationUpdate {
		return invalid("--check only applies to update")
	}
	if opts.Force && op != types.OperationInstall && op != types.OperationUpdate {
		return invalid("--force only applies to install and update")
	}
	if opts.CreateBackup && op == types.OperationRollback {
		return invalid("--backup does not apply to rollback")
	}
	if strings.TrimSpace(opts.SnapshotID) != "" && op != types.OperationRollback {
		return invalid("--snapshot only applies to rollback")
	}
	if op == types.OperationInstall && strings.TrimSpace(s.Config.RepoURL) == "" {
		return invalid("repo_url must be configured to install")
	}
	return s.checkLayout()
}

// checkLayout rejects state, log and snapshot directories inside a
// snapshotted path.
func (s Service) checkLayout() error {
	dir, persistent, nested := s.Config.NestedControlDir()
	if !nested {
		return nil
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("%s is inside %s; state_dir, log_dir and snapshot_dir must live outside install_dir and data_dirs", dir, persistent))
}

func (s Service) openJournal(ctx context.Context) ports.JournalPort {
	if s.OpenJournal == nil {
		return nil
	}
	journal, err := s.OpenJournal()
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("run journal unavailable")
		return nil
	}
	return journal
}

func (s Service) cleanup() policies.Cleanup {
	return policies.Cleanup{
		Runtime:   s.Runtime,
		Services:  s.Services,
		Scheduler: s.Scheduler,
		Proxy:     s.Proxy,
		Accounts:  s.Accounts,
		StackDir:  s.Config.InstallDir,
	}
}

func (s Service) runID() string {
	if s.NewRunID == nil {
		return s.now().Format("20060102T150405")
	}
	return s.NewRunID()
}

func recordOf(result types.OperationResult) types.RunRecord {
	return types.RunRecord{
		RunID:       result.RunID,
		Operation:   result.Operation,
		State:       result.State,
		AbortedStep: result.AbortedStep,
		Kind:        result.Kind,
		Message:     result.Message,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		Steps:       result.Steps,
	}
}
