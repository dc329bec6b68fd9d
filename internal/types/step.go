package types

import "time"

type StepResult struct {
	OK      bool
	Message string
	Fatal   bool
	Kind    FailureKind
	// Halt ends the plan early as a success.
	Halt bool
	// Err is an environment failure that ends the whole run.
	Err error
}

func Succeeded(message string) StepResult {
	return StepResult{OK: true, Message: message}
}

func Halted(message string) StepResult {
	return StepResult{OK: true, Message: message, Halt: true}
}

func Failed(kind FailureKind, fatal bool, message string) StepResult {
	return StepResult{OK: false, Message: message, Fatal: fatal, Kind: kind}
}

type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusWarning StepStatus = "warning"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
	StepStatusPlanned StepStatus = "planned"
)

// StepRecord is what the sequencer remembers about one executed step.
type StepRecord struct {
	Index    int
	Name     string
	Status   StepStatus
	Message  string
	Kind     FailureKind
	Duration time.Duration
}
