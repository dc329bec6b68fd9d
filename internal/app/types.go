package app

import "storagectl/internal/types"

type PruneRequest struct {
	KeepLast int
	KeepDays int
	DryRun   bool
}

type PruneResult struct {
	KeepCount   int
	DeleteCount int
	Deleted     []string
	DryRun      bool
}

type SnapshotListResult struct {
	Snapshots []types.Snapshot
	// LatestID is the snapshot a plain rollback would restore.
	LatestID string
}

type StatusResult struct {
	Installed  bool
	Present    bool
	Deployment types.Deployment
	Health     types.HealthReport
	Latest     *types.Snapshot
	Snapshots  int
	// LockHolder is the PID of a run in progress, or zero.
	LockHolder int
}

type HistoryRequest struct {
	Limit int
}

type HistoryResult struct {
	Runs []types.RunRecord
}

type MaintenanceResult struct {
	Health types.HealthReport
	Synced bool
	// Skipped explains why no sync was requested.
	Skipped string
}
