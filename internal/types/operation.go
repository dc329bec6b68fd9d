package types

type Operation string

const (
	OperationInstall   Operation = "install"
	OperationUpdate    Operation = "update"
	OperationUninstall Operation = "uninstall"
	OperationRollback  Operation = "rollback"
)

// Destructive reports whether the operation replaces or removes an
// existing deployment. Install only qualifies when forced over an
// existing installation. Dry runs and version checks change nothing.
func (o Operation) Destructive(opts Options) bool {
	if opts.DryRun {
		return false
	}
	switch o {
	case OperationUpdate:
		return !opts.CheckOnly
	case OperationUninstall, OperationRollback:
		return true
	case OperationInstall:
		return opts.Force
	default:
		return false
	}
}

// Options are parsed once from flags and passed by value to the
// controller and every step.
type Options struct {
	SkipConfirm  bool
	Force        bool
	KeepData     bool
	CreateBackup bool
	DryRun       bool
	Verbose      bool
	CheckOnly    bool
	Rollback     bool
	SnapshotID   string
}

type RunState string

const (
	RunStatePending    RunState = "pending"
	RunStateRunning    RunState = "running"
	RunStateCompleted  RunState = "completed"
	RunStateAborted    RunState = "aborted"
	RunStateRolledBack RunState = "rolled_back"
	RunStateCancelled  RunState = "cancelled"
)

// FailureKind classifies why a step or an operation failed. It drives
// the exit code and the remedial hint.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureExternalTool      FailureKind = "external_tool"
	FailureNetwork           FailureKind = "network"
	FailureNotInstalled      FailureKind = "not_installed"
	FailurePrecondition      FailureKind = "precondition"
	FailureBackup            FailureKind = "backup"
	FailureServiceStart      FailureKind = "service_start"
	FailureDependencyMissing FailureKind = "dependency_missing"
	FailureHealth            FailureKind = "health"
	FailureValidation        FailureKind = "validation"
	FailureInterrupted       FailureKind = "interrupted"
)
