package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"storagectl/internal/types"
)

// Step is one unit of orchestration work. Run must be idempotent: it is
// invoked again when an aborted plan is re-run.
type Step struct {
	Name string
	// Fatal marks a failed result as aborting the plan even when the
	// result itself does not say so.
	Fatal bool
	// Mutating steps change the host. Dry runs describe them instead of
	// running them.
	Mutating bool
	Describe string
	Run      func(ctx context.Context, opts types.Options) types.StepResult
}

// Plan is an ordered list of steps bound to one operation. It is built
// once and never changes afterwards.
type Plan struct {
	operation types.Operation
	steps     []Step
}

func NewPlan(operation types.Operation, steps ...Step) (Plan, error) {
	seen := map[string]struct{}{}
	for i, step := range steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return Plan{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("step %d has no name", i+1))
		}
		if step.Run == nil {
			return Plan{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("step %s has no action", name))
		}
		if _, ok := seen[name]; ok {
			return Plan{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("duplicate step name %s", name))
		}
		seen[name] = struct{}{}
	}
	copied := make([]Step, len(steps))
	copy(copied, steps)
	return Plan{operation: operation, steps: copied}, nil
}

func (p Plan) Operation() types.Operation {
	return p.operation
}

func (p Plan) Len() int {
	return len(p.steps)
}

func (p Plan) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name)
	}
	return names
}

// Outcome is the final state of one plan execution.
type Outcome struct {
	Operation   types.Operation
	State       types.RunState
	AbortedStep string
	Kind        types.FailureKind
	Message     string
	Halted      bool
	Records     []types.StepRecord
	Warnings    []string
	Recovery    RecoveryReport
	// Err is set when an environment failure ended the run.
	Err error
}

func (o Outcome) Completed() bool {
	return o.State == types.RunStateCompleted || o.State == types.RunStateRolledBack
}

// Executed lists the names of steps that actually ran.
func (o Outcome) Executed() []string {
	var names []string
	for _, record := range o.Records {
		if record.Status == types.StepStatusPlanned || record.Status == types.StepStatusSkipped {
			continue
		}
		names = append(names, record.Name)
	}
	return names
}

type RecoveryReport struct {
	Actions []string
	Errors  []string
	Remedy  string
}

// Recovery runs after every plan execution, whatever the exit path.
type Recovery interface {
	Recover(ctx context.Context, outcome Outcome, opts types.Options) RecoveryReport
}

type RecoveryFunc func(ctx context.Context, outcome Outcome, opts types.Options) RecoveryReport

func (f RecoveryFunc) Recover(ctx context.Context, outcome Outcome, opts types.Options) RecoveryReport {
	return f(ctx, outcome, opts)
}

type Sequencer struct {
	Recovery Recovery
	Clock    func() time.Time
}

func NewSequencer(recovery Recovery) Sequencer {
	return Sequencer{Recovery: recovery, Clock: time.Now}
}

// Execute runs the plan's steps in order. A fatal failure stops the plan;
// cancellation of ctx is honoured between steps only. The recovery
// handler is invoked on every return path, including a panicking step.
func (s Sequencer) Execute(ctx context.Context, plan Plan, opts types.Options) (outcome Outcome) {
	logger := log.Ctx(ctx).With().Str("operation", string(plan.operation)).Logger()
	outcome = Outcome{Operation: plan.operation, State: types.RunStatePending}
	current := -1
	var started time.Time

	defer func() {
		if r := recover(); r != nil {
			name := ""
			if current >= 0 && current < len(plan.steps) {
				name = plan.steps[current].Name
			}
			message := fmt.Sprintf("step %s panicked: %v", name, r)
			logger.Error().Str("step", name).Msg(message)
			outcome.Records = append(outcome.Records, types.StepRecord{
				Index:    current + 1,
				Name:     name,
				Status:   types.StepStatusFailed,
				Message:  message,
				Kind:     types.FailureExternalTool,
				Duration: s.since(started),
			})
			outcome.State = types.RunStateAborted
			outcome.AbortedStep = name
			outcome.Kind = types.FailureExternalTool
			outcome.Message = message
		}
		if s.Recovery != nil {
			outcome.Recovery = s.Recovery.Recover(context.WithoutCancel(ctx), outcome, opts)
		}
	}()

	outcome.State = types.RunStateRunning
	total := len(plan.steps)
	for i, step := range plan.steps {
		if err := ctx.Err(); err != nil {
			outcome.State = types.RunStateAborted
			outcome.AbortedStep = step.Name
			outcome.Kind = types.FailureInterrupted
			outcome.Message = fmt.Sprintf("interrupted before step %s", step.Name)
			logger.Warn().Str("step", step.Name).Err(err).Msg(outcome.Message)
			return outcome
		}
		current = i
		stepLogger := logger.With().Str("step", step.Name).Int("index", i+1).Int("total", total).Logger()

		if opts.DryRun && step.Mutating {
			stepLogger.Info().Msg("dry-run: " + describe(step))
			outcome.Records = append(outcome.Records, types.StepRecord{
				Index:   i + 1,
				Name:    step.Name,
				Status:  types.StepStatusPlanned,
				Message: describe(step),
			})
			continue
		}

		stepLogger.Info().Msg("running step")
		started = s.now()
		result := step.Run(stepLogger.WithContext(ctx), opts)
		record := types.StepRecord{
			Index:    i + 1,
			Name:     step.Name,
			Message:  result.Message,
			Kind:     result.Kind,
			Duration: s.since(started),
		}

		if result.Err != nil {
			record.Status = types.StepStatusFailed
			if record.Kind == types.FailureNone {
				record.Kind = types.FailureDependencyMissing
			}
			outcome.Records = append(outcome.Records, record)
			outcome.State = types.RunStateAborted
			outcome.AbortedStep = step.Name
			outcome.Kind = record.Kind
			outcome.Message = result.Err.Error()
			outcome.Err = result.Err
			stepLogger.Error().Err(result.Err).Msg("environment failure")
			return outcome
		}

		if result.OK {
			record.Status = types.StepStatusOK
			outcome.Records = append(outcome.Records, record)
			stepLogger.Info().Dur("duration", record.Duration).Msg(okMessage(result))
			if result.Halt {
				outcome.Halted = true
				outcome.Message = result.Message
				break
			}
			continue
		}

		if record.Kind == types.FailureNone {
			record.Kind = types.FailureExternalTool
		}
		if result.Fatal || step.Fatal {
			record.Status = types.StepStatusFailed
			outcome.Records = append(outcome.Records, record)
			outcome.State = types.RunStateAborted
			outcome.AbortedStep = step.Name
			outcome.Kind = record.Kind
			outcome.Message = result.Message
			stepLogger.Error().Str("kind", string(record.Kind)).Msg(result.Message)
			return outcome
		}

		record.Status = types.StepStatusWarning
		outcome.Records = append(outcome.Records, record)
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%s: %s", step.Name, result.Message))
		stepLogger.Warn().Str("kind", string(record.Kind)).Msg(result.Message)
	}

	outcome.State = types.RunStateCompleted
	if plan.operation == types.OperationRollback && !opts.DryRun {
		outcome.State = types.RunStateRolledBack
	}
	return outcome
}

func (s Sequencer) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s Sequencer) since(started time.Time) time.Duration {
	if started.IsZero() {
		return 0
	}
	return s.now().Sub(started)
}

func describe(step Step) string {
	if strings.TrimSpace(step.Describe) != "" {
		return "would " + step.Describe
	}
	return "would run " + step.Name
}

func okMessage(result types.StepResult) string {
	if strings.TrimSpace(result.Message) == "" {
		return "step completed"
	}
	return result.Message
}
