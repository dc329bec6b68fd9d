package types

import "time"

type RunOptions struct {
	Dir     string
	Env     []string
	Timeout time.Duration
	Stdin   string
	Fatal   bool
}

type CommandResult struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

func (r CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}
