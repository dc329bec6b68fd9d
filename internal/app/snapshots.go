package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"storagectl/internal/types"
)

func (s Service) ListSnapshots(ctx context.Context) (SnapshotListResult, error) {
	manager := s.snapshotManager()
	snapshots, err := manager.List(ctx)
	if err != nil {
		return SnapshotListResult{}, err
	}
	result := SnapshotListResult{Snapshots: snapshots}
	if latest, ok, err := manager.Latest(ctx); err == nil && ok {
		result.LatestID = latest.ID
	}
	return result, nil
}

// CreateSnapshot captures the persistent paths outside of any lifecycle
// operation. It holds the run lock so it never races an update.
func (s Service) CreateSnapshot(ctx context.Context) (types.Snapshot, error) {
	if err := s.checkLayout(); err != nil {
		return types.Snapshot{}, err
	}
	if s.Lock != nil {
		release, err := s.Lock.Acquire(ctx)
		if err != nil {
			return types.Snapshot{}, err
		}
		defer func() {
			if err := release(); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("releasing run lock failed")
			}
		}()
	}
	paths := existingPaths(s.Config.PersistentPaths())
	if len(paths) == 0 {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("nothing to snapshot: no deployment files in " + s.Config.InstallDir)
	}
	version := ""
	if s.Metadata != nil {
		if deployment, ok, err := s.Metadata.Read(ctx); err == nil && ok {
			version = deployment.Version
		}
	}
	return s.snapshotManager().Create(ctx, paths, version)
}

// retentionPolicy falls back to the configured keep count when the
// request names no limit.
func (s Service) retentionPolicy(req PruneRequest) types.SnapshotRetentionPolicy {
	if req.KeepLast <= 0 && req.KeepDays <= 0 {
		req.KeepLast = s.Config.KeepSnapshots
	}
	return types.SnapshotRetentionPolicy{
		KeepLast: req.KeepLast,
		KeepDays: req.KeepDays,
		DryRun:   req.DryRun,
	}
}

func snapshotIDs(snapshots []types.Snapshot) []string {
	ids := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		ids = append(ids, snapshot.ID)
	}
	return ids
}
