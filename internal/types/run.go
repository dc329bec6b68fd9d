package types

import "time"

// OperationResult is the outcome of one lifecycle operation.
type OperationResult struct {
	RunID       string
	Operation   Operation
	State       RunState
	AbortedStep string
	Kind        FailureKind
	Message     string
	Steps       []StepRecord
	Warnings    []string
	Health      *HealthReport
	Versions    *VersionInfo
	Snapshot    *Snapshot
	Remedy      string
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (r OperationResult) Succeeded() bool {
	return r.State == RunStateCompleted || r.State == RunStateRolledBack
}

type RunRecord struct {
	RunID       string
	Operation   Operation
	State       RunState
	AbortedStep string
	Kind        FailureKind
	Message     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Steps       []StepRecord
}
