package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// Check is one weighted entry of a health checklist.
type Check struct {
	Name   string
	Weight int
	Probe  ports.ProbePort
}

type Verifier struct {
	Threshold int
}

func NewVerifier(threshold int) Verifier {
	if threshold <= 0 {
		threshold = types.DefaultHealthThreshold
	}
	return Verifier{Threshold: threshold}
}

// Verify runs every probe, even after failures, and scores the passed
// weights against the threshold.
func (v Verifier) Verify(ctx context.Context, checks []Check) types.HealthReport {
	report := types.HealthReport{Threshold: v.Threshold}
	for _, check := range checks {
		result := types.CheckResult{Name: check.Name, Weight: check.Weight}
		report.MaxScore += check.Weight
		switch {
		case check.Probe == nil:
			result.Detail = "no probe configured"
		default:
			if err := check.Probe.Probe(ctx); err != nil {
				result.Detail = err.Error()
			} else {
				result.Passed = true
			}
		}
		if result.Passed {
			report.Score += check.Weight
		}
		log.Ctx(ctx).Debug().
			Str("check", check.Name).
			Bool("passed", result.Passed).
			Int("weight", check.Weight).
			Str("detail", result.Detail).
			Msg("health check")
		report.Checks = append(report.Checks, result)
	}
	report.Passed = report.Score >= report.Threshold
	return report
}

// ProbeFunc adapts a function to ports.ProbePort.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error {
	return f(ctx)
}
