package core

import (
	"context"
	"errors"
	"time"
)

type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

type PollOutcome struct {
	Ready     bool
	Attempts  int
	Elapsed   time.Duration
	TimedOut  bool
	Cancelled bool
	LastErr   error
}

// Poll calls check until it returns nil, the attempts run out, the
// timeout elapses, or ctx is cancelled. It blocks the caller.
func Poll(ctx context.Context, cfg PollConfig, check func(ctx context.Context) error) PollOutcome {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	started := time.Now()
	pollCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	outcome := PollOutcome{}
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome.Attempts = attempt
		err := check(pollCtx)
		if err == nil {
			outcome.Ready = true
			outcome.LastErr = nil
			outcome.Elapsed = time.Since(started)
			return outcome
		}
		outcome.LastErr = err
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(cfg.Interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			outcome.Elapsed = time.Since(started)
			if ctx.Err() != nil {
				outcome.Cancelled = true
			} else if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
				outcome.TimedOut = true
			}
			return outcome
		case <-timer.C:
		}
	}
	outcome.Elapsed = time.Since(started)
	return outcome
}
