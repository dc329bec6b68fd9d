package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
)

// Maintenance is the nightly job installed in the scheduler. A parity
// sync is only requested from a healthy stack.
func (s Service) Maintenance(ctx context.Context) (MaintenanceResult, error) {
	logger := log.Ctx(ctx)
	if s.Metadata != nil {
		_, ok, err := s.Metadata.Read(ctx)
		if err != nil {
			return MaintenanceResult{}, err
		}
		if !ok {
			return MaintenanceResult{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(s.Config.Name + " is not installed")
		}
	}

	report := s.verifier().Verify(ctx, s.HealthChecks())
	result := MaintenanceResult{Health: report}
	if !report.Passed {
		result.Skipped = healthFailure(report)
		logger.Warn().Int("score", report.Score).Msg("stack unhealthy, sync skipped: " + result.Skipped)
		return result, nil
	}
	if err := s.Backend.TriggerSync(ctx); err != nil {
		return result, err
	}
	result.Synced = true
	logger.Info().Int("score", report.Score).Msg("parity sync requested")
	return result, nil
}
