package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagectl/internal/types"
)

type memoryStore struct {
	snapshots   map[string]types.Snapshot
	pointer     string
	failPaths   map[string]bool
	failExtract bool
	archived    [][]string
	cleared     [][]string
	extracted   []string
	deleted     []string
	newest      *types.Snapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: map[string]types.Snapshot{}, failPaths: map[string]bool{}}
}

func (s *memoryStore) Archive(_ context.Context, name string, paths []string) (string, int64, error) {
	s.archived = append(s.archived, paths)
	for _, path := range paths {
		if s.failPaths[path] {
			return "", 0, fmt.Errorf("cannot read %s", path)
		}
	}
	return name + ".tar.gz", int64(10 * len(paths)), nil
}

func (s *memoryStore) WriteManifest(_ context.Context, snapshot types.Snapshot) (types.Snapshot, error) {
	snapshot.Path = snapshot.ID + ".yaml"
	s.snapshots[snapshot.ID] = snapshot
	return snapshot, nil
}

func (s *memoryStore) List(context.Context) ([]types.Snapshot, error) {
	var out []types.Snapshot
	for _, snapshot := range s.snapshots {
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (types.Snapshot, error) {
	snapshot, ok := s.snapshots[id]
	if !ok {
		return types.Snapshot{}, errors.New("snapshot not found")
	}
	return snapshot, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	delete(s.snapshots, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memoryStore) Extract(_ context.Context, snapshot types.Snapshot) error {
	if s.failExtract {
		return errors.New("unexpected EOF")
	}
	s.extracted = append(s.extracted, snapshot.ID)
	return nil
}

func (s *memoryStore) ClearPaths(_ context.Context, paths []string) error {
	s.cleared = append(s.cleared, paths)
	return nil
}

func (s *memoryStore) LatestPointer(context.Context) (string, error) {
	if s.pointer == "" {
		return "", errors.New("no pointer")
	}
	return s.pointer, nil
}

func (s *memoryStore) SetLatestPointer(_ context.Context, id string) error {
	s.pointer = id
	return nil
}

func (s *memoryStore) NewestByModTime(context.Context) (types.Snapshot, bool, error) {
	if s.newest == nil {
		return types.Snapshot{}, false, nil
	}
	return *s.newest, true, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestSnapshotCreateCombinedArchive(t *testing.T) {
	store := newMemoryStore()
	manager := SnapshotManager{Store: store, Clock: fixedClock(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))}

	snapshot, err := manager.Create(t.Context(), []string{"/opt/stack", "/var/lib/stack"}, "v1.0.0")

	require.NoError(t, err)
	assert.Equal(t, "20260301-103000", snapshot.ID)
	assert.Equal(t, []string{"20260301-103000.tar.gz"}, snapshot.Archives)
	assert.Equal(t, []string{"/opt/stack", "/var/lib/stack"}, snapshot.SourcePaths)
	assert.Equal(t, "v1.0.0", snapshot.Version)
	assert.False(t, snapshot.Partial)
	assert.Equal(t, snapshot.ID, store.pointer)
}

func TestSnapshotCreateFallsBackToPerPathArchives(t *testing.T) {
	store := newMemoryStore()
	store.failPaths["/var/lib/stack"] = true
	manager := SnapshotManager{Store: store, Clock: fixedClock(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))}

	snapshot, err := manager.Create(t.Context(), []string{"/opt/stack", "/var/lib/stack", "/etc/stack"}, "")

	require.NoError(t, err)
	assert.True(t, snapshot.Partial)
	assert.Equal(t, []string{"/opt/stack", "/etc/stack"}, snapshot.SourcePaths)
	assert.Equal(t, []string{"20260301-103000-1.tar.gz", "20260301-103000-3.tar.gz"}, snapshot.Archives)
	assert.Len(t, store.archived, 4)
}

func TestSnapshotCreateFailsWhenNothingArchived(t *testing.T) {
	store := newMemoryStore()
	store.failPaths["/opt/stack"] = true
	manager := SnapshotManager{Store: store, Clock: fixedClock(time.Now())}

	_, err := manager.Create(t.Context(), []string{"/opt/stack"}, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup failed")
	assert.Empty(t, store.snapshots)
	assert.Empty(t, store.pointer)
}

func TestSnapshotCreateAvoidsIDCollision(t *testing.T) {
	store := newMemoryStore()
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	manager := SnapshotManager{Store: store, Clock: fixedClock(at)}

	first, err := manager.Create(t.Context(), []string{"/opt/stack"}, "")
	require.NoError(t, err)
	second, err := manager.Create(t.Context(), []string{"/opt/stack"}, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, strings.HasPrefix(second.ID, first.ID))
}

func TestSnapshotLatestPrefersValidPointer(t *testing.T) {
	store := newMemoryStore()
	store.snapshots["a"] = types.Snapshot{ID: "a"}
	store.pointer = "a"
	store.newest = &types.Snapshot{ID: "b"}
	manager := NewSnapshotManager(store)

	snapshot, ok, err := manager.Latest(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", snapshot.ID)
}

func TestSnapshotLatestIgnoresStalePointer(t *testing.T) {
	store := newMemoryStore()
	store.pointer = "gone"
	store.newest = &types.Snapshot{ID: "b"}
	manager := NewSnapshotManager(store)

	snapshot, ok, err := manager.Latest(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", snapshot.ID)
}

func TestSnapshotLatestNone(t *testing.T) {
	_, ok, err := NewSnapshotManager(newMemoryStore()).Latest(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotPruneDeletesOldestFirst(t *testing.T) {
	store := newMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("s%d", i)
		store.snapshots[id] = types.Snapshot{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
	}
	manager := SnapshotManager{Store: store, Clock: fixedClock(base.Add(24 * time.Hour))}

	plan, err := manager.Prune(t.Context(), types.SnapshotRetentionPolicy{KeepLast: 2})

	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, store.deleted)
	assert.Equal(t, []string{"s5", "s4"}, snapshotIDs(plan.Keep))
	assert.Len(t, store.snapshots, 2)
}

func TestSnapshotPruneDryRunDeletesNothing(t *testing.T) {
	store := newMemoryStore()
	store.snapshots["a"] = types.Snapshot{ID: "a", CreatedAt: time.Now().Add(-time.Hour)}
	store.snapshots["b"] = types.Snapshot{ID: "b", CreatedAt: time.Now()}

	plan, err := NewSnapshotManager(store).Prune(t.Context(), types.SnapshotRetentionPolicy{KeepLast: 1, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, snapshotIDs(plan.Delete))
	assert.Empty(t, store.deleted)
}

func TestSnapshotPruneRejectsZeroKeep(t *testing.T) {
	_, err := NewSnapshotManager(newMemoryStore()).Prune(t.Context(), types.SnapshotRetentionPolicy{})
	require.Error(t, err)
}

func TestSnapshotRestoreSequence(t *testing.T) {
	store := newMemoryStore()
	var calls []string
	hooks := RestoreHooks{
		Stop:  func(context.Context) error { calls = append(calls, "stop"); return nil },
		Start: func(context.Context) error { calls = append(calls, "start"); return nil },
		Verify: func(context.Context) types.HealthReport {
			calls = append(calls, "verify")
			return types.HealthReport{Score: 100, Threshold: 80, Passed: true}
		},
	}
	snapshot := types.Snapshot{ID: "s1", Archives: []string{"s1.tar.gz"}, SourcePaths: []string{"/opt/stack"}}

	report, err := NewSnapshotManager(store).Restore(t.Context(), snapshot, hooks)

	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, []string{"stop", "start", "verify"}, calls)
	assert.Equal(t, [][]string{{"/opt/stack"}}, store.cleared)
	assert.Equal(t, []string{"s1"}, store.extracted)
}

func TestSnapshotRestoreExtractionFailureIsFatal(t *testing.T) {
	store := newMemoryStore()
	store.failExtract = true
	started := false
	hooks := RestoreHooks{Start: func(context.Context) error { started = true; return nil }}
	snapshot := types.Snapshot{ID: "s1", Archives: []string{"s1.tar.gz"}, SourcePaths: []string{"/opt/stack"}}

	_, err := NewSnapshotManager(store).Restore(t.Context(), snapshot, hooks)

	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "extract", stageErr.Stage)
	assert.Equal(t, types.FailureBackup, stageErr.Kind)
	assert.False(t, started)
}

func TestSnapshotRestoreUnhealthyIsFatal(t *testing.T) {
	hooks := RestoreHooks{
		Verify: func(context.Context) types.HealthReport {
			return types.HealthReport{Score: 50, Threshold: 80}
		},
	}
	snapshot := types.Snapshot{ID: "s1", Archives: []string{"s1.tar.gz"}, SourcePaths: []string{"/opt/stack"}}

	report, err := NewSnapshotManager(newMemoryStore()).Restore(t.Context(), snapshot, hooks)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, types.FailureHealth, stageErr.Kind)
	assert.Equal(t, 50, report.Score)
}
