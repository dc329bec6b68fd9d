package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

const snapshotIDLayout = "20060102-150405"

// StageError reports which part of a multi-stage operation failed.
type StageError struct {
	Stage string
	Kind  types.FailureKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RestoreHooks connect a restore to the running stack.
type RestoreHooks struct {
	Stop   func(ctx context.Context) error
	Start  func(ctx context.Context) error
	Verify func(ctx context.Context) types.HealthReport
}

type SnapshotManager struct {
	Store ports.SnapshotStorePort
	Clock func() time.Time
}

func NewSnapshotManager(store ports.SnapshotStorePort) SnapshotManager {
	return SnapshotManager{Store: store, Clock: time.Now}
}

// Create archives sourcePaths into a new snapshot. When a single archive
// of every path fails, each path is archived on its own and whatever
// succeeds is kept. Only a snapshot without any archive is an error.
func (m SnapshotManager) Create(ctx context.Context, sourcePaths []string, version string) (types.Snapshot, error) {
	if len(sourcePaths) == 0 {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("backup failed: no source paths")
	}
	createdAt := m.now()
	id := m.nextID(ctx, createdAt)
	assert.NotEmpty(ctx, id, "snapshot id must be set")
	logger := log.Ctx(ctx).With().Str("snapshot", id).Logger()

	snapshot := types.Snapshot{ID: id, CreatedAt: createdAt, Version: version}
	archive, size, err := m.Store.Archive(ctx, id, sourcePaths)
	if err == nil {
		snapshot.Archives = []string{archive}
		snapshot.SourcePaths = append([]string(nil), sourcePaths...)
		snapshot.SizeBytes = size
	} else {
		logger.Warn().Err(err).Msg("combined archive failed, archiving paths individually")
		var failures []string
		for i, path := range sourcePaths {
			name := fmt.Sprintf("%s-%d", id, i+1)
			archive, size, err := m.Store.Archive(ctx, name, []string{path})
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("path archive failed")
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			snapshot.Archives = append(snapshot.Archives, archive)
			snapshot.SourcePaths = append(snapshot.SourcePaths, path)
			snapshot.SizeBytes += size
		}
		if len(snapshot.Archives) == 0 {
			return types.Snapshot{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("backup failed: " + strings.Join(failures, "; ")).
				WithCause(err)
		}
		snapshot.Partial = len(failures) > 0
	}

	written, err := m.Store.WriteManifest(ctx, snapshot)
	if err != nil {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("backup failed: cannot write manifest").
			WithCause(err)
	}
	if err := m.Store.SetLatestPointer(ctx, written.ID); err != nil {
		logger.Warn().Err(err).Msg("latest snapshot pointer not updated")
	}
	logger.Info().
		Int64("size_bytes", written.SizeBytes).
		Int("archives", len(written.Archives)).
		Bool("partial", written.Partial).
		Msg("snapshot created")
	return written, nil
}

// List returns every snapshot, newest first.
func (m SnapshotManager) List(ctx context.Context) ([]types.Snapshot, error) {
	snapshots, err := m.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	return SortNewestFirst(snapshots), nil
}

func (m SnapshotManager) Get(ctx context.Context, id string) (types.Snapshot, error) {
	return m.Store.Get(ctx, id)
}

// Latest prefers the pointer record and only trusts it while the
// snapshot it names still exists. Otherwise the newest manifest wins.
func (m SnapshotManager) Latest(ctx context.Context) (types.Snapshot, bool, error) {
	id, err := m.Store.LatestPointer(ctx)
	if err == nil && strings.TrimSpace(id) != "" {
		snapshot, err := m.Store.Get(ctx, id)
		if err == nil {
			return snapshot, true, nil
		}
		log.Ctx(ctx).Debug().Str("snapshot", id).Err(err).Msg("latest pointer is stale")
	}
	return m.Store.NewestByModTime(ctx)
}

// Prune applies the retention policy. With DryRun set nothing is deleted.
func (m SnapshotManager) Prune(ctx context.Context, policy types.SnapshotRetentionPolicy) (types.SnapshotPrunePlan, error) {
	if policy.KeepLast < 1 && policy.KeepDays < 1 {
		return types.SnapshotPrunePlan{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("keep-last must be at least 1")
	}
	snapshots, err := m.Store.List(ctx)
	if err != nil {
		return types.SnapshotPrunePlan{}, err
	}
	plan := BuildPrunePlan(snapshots, policy, m.now())
	if policy.DryRun {
		return plan, nil
	}
	for _, snapshot := range plan.Delete {
		if err := m.Store.Delete(ctx, snapshot.ID); err != nil {
			return plan, err
		}
		log.Ctx(ctx).Info().Str("snapshot", snapshot.ID).Msg("snapshot pruned")
	}
	return plan, nil
}

// Restore replaces the live directories with the snapshot's contents and
// verifies the stack afterwards. Failing extraction, restart or health
// is fatal.
func (m SnapshotManager) Restore(ctx context.Context, snapshot types.Snapshot, hooks RestoreHooks) (types.HealthReport, error) {
	logger := log.Ctx(ctx).With().Str("snapshot", snapshot.ID).Logger()
	if len(snapshot.Archives) == 0 {
		return types.HealthReport{}, &StageError{
			Stage: "extract",
			Kind:  types.FailureBackup,
			Err:   fmt.Errorf("snapshot %s has no archives", snapshot.ID),
		}
	}
	if hooks.Stop != nil {
		if err := hooks.Stop(ctx); err != nil {
			logger.Warn().Err(err).Msg("stopping services before restore failed")
		}
	}
	if err := m.Store.ClearPaths(ctx, snapshot.SourcePaths); err != nil {
		return types.HealthReport{}, &StageError{Stage: "clear", Kind: types.FailureExternalTool, Err: err}
	}
	if err := m.Store.Extract(ctx, snapshot); err != nil {
		return types.HealthReport{}, &StageError{Stage: "extract", Kind: types.FailureBackup, Err: err}
	}
	logger.Info().Strs("paths", snapshot.SourcePaths).Msg("snapshot extracted")
	if hooks.Start != nil {
		if err := hooks.Start(ctx); err != nil {
			return types.HealthReport{}, &StageError{Stage: "start", Kind: types.FailureServiceStart, Err: err}
		}
	}
	if hooks.Verify == nil {
		return types.HealthReport{}, nil
	}
	report := hooks.Verify(ctx)
	if !report.Passed {
		return report, &StageError{
			Stage: "verify",
			Kind:  types.FailureHealth,
			Err:   fmt.Errorf("health score %d below threshold %d", report.Score, report.Threshold),
		}
	}
	return report, nil
}

func (m SnapshotManager) nextID(ctx context.Context, at time.Time) string {
	base := at.UTC().Format(snapshotIDLayout)
	id := base
	for i := 1; ; i++ {
		if _, err := m.Store.Get(ctx, id); err != nil {
			return id
		}
		id = fmt.Sprintf("%s.%d", base, i)
	}
}

func (m SnapshotManager) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock().UTC()
}
