package app

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Status reports what is deployed and how healthy it is. It changes
// nothing and never takes the run lock.
func (s Service) Status(ctx context.Context) (StatusResult, error) {
	result := StatusResult{Present: dirExists(s.Config.InstallDir)}
	if s.Metadata != nil {
		deployment, ok, err := s.Metadata.Read(ctx)
		if err != nil {
			return StatusResult{}, err
		}
		result.Deployment, result.Installed = deployment, ok
	}
	if s.Lock != nil {
		if pid, held := s.Lock.Holder(ctx); held {
			result.LockHolder = pid
		}
	}

	manager := s.snapshotManager()
	if snapshots, err := manager.List(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("snapshots not listed")
	} else {
		result.Snapshots = len(snapshots)
	}
	if latest, ok, err := manager.Latest(ctx); err == nil && ok {
		result.Latest = &latest
	}

	if result.Installed || result.Present {
		result.Health = s.verifier().Verify(ctx, s.HealthChecks())
	}
	return result, nil
}

func (s Service) History(ctx context.Context, req HistoryRequest) (HistoryResult, error) {
	if s.OpenJournal == nil {
		return HistoryResult{}, nil
	}
	journal, err := s.OpenJournal()
	if err != nil {
		return HistoryResult{}, err
	}
	defer journal.Close()
	runs, err := journal.Recent(ctx, req.Limit)
	if err != nil {
		return HistoryResult{}, err
	}
	return HistoryResult{Runs: runs}, nil
}
