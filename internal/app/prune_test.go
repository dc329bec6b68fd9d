package app

import (
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneSnapshotsByAge(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")
	older, err := f.svc.CreateSnapshot(t.Context())
	require.NoError(t, err)
	newer, err := f.svc.CreateSnapshot(t.Context())
	require.NoError(t, err)

	later := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	f.svc.Clock = func() time.Time { return later }

	result, err := f.svc.PruneSnapshots(t.Context(), PruneRequest{KeepDays: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID}, result.Deleted)
	assert.Equal(t, 1, result.KeepCount, "the newest snapshot survives any age limit")

	listed, err := f.svc.ListSnapshots(t.Context())
	require.NoError(t, err)
	require.Len(t, listed.Snapshots, 1)
	assert.Equal(t, newer.ID, listed.Snapshots[0].ID)
}

func TestPruneSnapshotsWaitsForLock(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")
	_, err := f.svc.CreateSnapshot(t.Context())
	require.NoError(t, err)

	release, err := f.svc.Lock.Acquire(t.Context())
	require.NoError(t, err)
	defer release()

	_, err = f.svc.PruneSnapshots(t.Context(), PruneRequest{KeepLast: 1})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))

	preview, err := f.svc.PruneSnapshots(t.Context(), PruneRequest{KeepLast: 1, DryRun: true})
	require.NoError(t, err, "previews never take the lock")
	assert.Equal(t, 0, preview.DeleteCount)
}
