package app

import (
	"context"

	"github.com/rs/zerolog/log"
)

func (s Service) PruneSnapshots(ctx context.Context, req PruneRequest) (PruneResult, error) {
	if !req.DryRun && s.Lock != nil {
		release, err := s.Lock.Acquire(ctx)
		if err != nil {
			return PruneResult{}, err
		}
		defer func() {
			if err := release(); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("releasing run lock failed")
			}
		}()
	}
	policy := s.retentionPolicy(req)
	plan, err := s.snapshotManager().Prune(ctx, policy)
	if err != nil {
		return PruneResult{}, err
	}
	if policy.DryRun {
		return PruneResult{
			KeepCount:   len(plan.Keep),
			DeleteCount: len(plan.Delete),
			Deleted:     snapshotIDs(plan.Delete),
			DryRun:      true,
		}, nil
	}
	return PruneResult{
		KeepCount:   len(plan.Keep),
		DeleteCount: len(plan.Delete),
		Deleted:     snapshotIDs(plan.Delete),
	}, nil
}
