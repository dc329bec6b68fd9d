package core

import (
	"sort"
	"time"

	"storagectl/internal/types"
)

// BuildPrunePlan keeps the KeepLast most recent snapshots, further
// limited to those younger than KeepDays when set. The newest snapshot
// is never deleted. Delete is ordered oldest first.
func BuildPrunePlan(snapshots []types.Snapshot, policy types.SnapshotRetentionPolicy, now time.Time) types.SnapshotPrunePlan {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	normalized := normalizeRetentionPolicy(policy)
	sorted := SortNewestFirst(snapshots)

	var keep []types.Snapshot
	var del []types.Snapshot
	for i, snapshot := range sorted {
		retained := normalized.KeepLast == 0 || i < normalized.KeepLast
		if retained && normalized.KeepDays > 0 && i > 0 && !snapshot.CreatedAt.IsZero() {
			cutoff := now.AddDate(0, 0, -normalized.KeepDays)
			if snapshot.CreatedAt.Before(cutoff) {
				retained = false
			}
		}
		if retained {
			keep = append(keep, snapshot)
		} else {
			del = append(del, snapshot)
		}
	}
	for i, j := 0, len(del)-1; i < j; i, j = i+1, j-1 {
		del[i], del[j] = del[j], del[i]
	}
	return types.SnapshotPrunePlan{Keep: keep, Delete: del}
}

// SortNewestFirst orders snapshots by creation time, newest first. Equal
// timestamps fall back to the ID so the lexically smaller ID counts as
// older.
func SortNewestFirst(snapshots []types.Snapshot) []types.Snapshot {
	sorted := append([]types.Snapshot(nil), snapshots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	return sorted
}

func normalizeRetentionPolicy(policy types.SnapshotRetentionPolicy) types.SnapshotRetentionPolicy {
	normalized := policy
	if normalized.KeepLast < 0 {
		normalized.KeepLast = 0
	}
	if normalized.KeepDays < 0 {
		normalized.KeepDays = 0
	}
	return normalized
}
