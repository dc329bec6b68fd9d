package app

import (
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagectl/internal/adapters"
	"storagectl/internal/types"
)

func TestPruneSnapshotsKeepsNewest(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")
	var ids []string
	for i := 0; i < 3; i++ {
		snapshot, err := f.svc.CreateSnapshot(t.Context())
		require.NoError(t, err)
		ids = append(ids, snapshot.ID)
	}

	preview, err := f.svc.PruneSnapshots(t.Context(), PruneRequest{KeepLast: 1, DryRun: true})
	require.NoError(t, err)
	assert.True(t, preview.DryRun)
	assert.Equal(t, 2, preview.DeleteCount)
	listed, err := f.svc.ListSnapshots(t.Context())
	require.NoError(t, err)
	assert.Len(t, listed.Snapshots, 3)

	result, err := f.svc.PruneSnapshots(t.Context(), PruneRequest{KeepLast: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.KeepCount)
	assert.ElementsMatch(t, ids[:2], result.Deleted)

	listed, err = f.svc.ListSnapshots(t.Context())
	require.NoError(t, err)
	require.Len(t, listed.Snapshots, 1)
	assert.Equal(t, ids[2], listed.Snapshots[0].ID)
	assert.Equal(t, ids[2], listed.LatestID)
}

func TestPruneSnapshotsDefaultsToConfiguredKeep(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")
	_, err := f.svc.CreateSnapshot(t.Context())
	require.NoError(t, err)

	result, err := f.svc.PruneSnapshots(t.Context(), PruneRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.DeleteCount)
	assert.Equal(t, 1, result.KeepCount)
}

func TestCreateSnapshotWithoutDeployment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSnapshot(t.Context())
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
}

func TestStatusReportsDeploymentAndHealth(t *testing.T) {
	f := newFixture(t)

	status, err := f.svc.Status(t.Context())
	require.NoError(t, err)
	assert.False(t, status.Installed)
	assert.Empty(t, status.Health.Checks, "health is not probed without a deployment")

	f.deploy(t, "v1.2.0")
	snapshot, err := f.svc.CreateSnapshot(t.Context())
	require.NoError(t, err)

	status, err = f.svc.Status(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Installed)
	assert.Equal(t, "v1.2.0", status.Deployment.Version)
	assert.True(t, status.Health.Passed)
	assert.Equal(t, 1, status.Snapshots)
	require.NotNil(t, status.Latest)
	assert.Equal(t, snapshot.ID, status.Latest.ID)
	assert.Zero(t, status.LockHolder)
}

func TestHistoryListsJournaledRuns(t *testing.T) {
	f := newFixture(t)
	f.ready = errors.New("connection refused")
	_, err := f.svc.Run(t.Context(), types.OperationInstall, types.Options{})
	require.NoError(t, err)

	history, err := f.svc.History(t.Context(), HistoryRequest{Limit: 5})
	require.NoError(t, err)
	require.Len(t, history.Runs, 1)
	run := history.Runs[0]
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, types.OperationInstall, run.Operation)
	assert.Equal(t, types.RunStateAborted, run.State)
	assert.Equal(t, "start-services", run.AbortedStep)
	assert.Equal(t, types.FailureServiceStart, run.Kind)
	assert.NotEmpty(t, run.Steps)
}

func TestMaintenanceSyncsHealthyStack(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")

	result, err := f.svc.Maintenance(t.Context())
	require.NoError(t, err)
	assert.True(t, result.Synced)
	assert.True(t, f.log.has("sync"))
}

func TestMaintenanceSkipsUnhealthyStack(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")
	f.healthy = false

	result, err := f.svc.Maintenance(t.Context())
	require.NoError(t, err)
	assert.False(t, result.Synced)
	assert.Contains(t, result.Skipped, "stack healthy")
	assert.False(t, f.log.has("sync"))
}

func TestMaintenanceRequiresInstallation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Maintenance(t.Context())
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestMaintenanceStopsOnUnreadableMetadata(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "v1.2.0")
	f.svc.Metadata = adapters.NewMetadataFile("")

	_, err := f.svc.Maintenance(t.Context())
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	assert.False(t, f.log.has("sync"))
}
