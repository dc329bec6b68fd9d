package ports

import (
	"context"

	"storagectl/internal/types"
)

type SnapshotStorePort interface {
	// Archive writes one compressed archive holding every path and
	// returns its location and size.
	Archive(ctx context.Context, name string, paths []string) (string, int64, error)
	WriteManifest(ctx context.Context, snapshot types.Snapshot) (types.Snapshot, error)
	List(ctx context.Context) ([]types.Snapshot, error)
	Get(ctx context.Context, id string) (types.Snapshot, error)
	Delete(ctx context.Context, id string) error
	Extract(ctx context.Context, snapshot types.Snapshot) error
	// ClearPaths removes the live directories a restore replaces.
	ClearPaths(ctx context.Context, paths []string) error
	LatestPointer(ctx context.Context) (string, error)
	SetLatestPointer(ctx context.Context, id string) error
	// NewestByModTime scans manifests when the pointer cannot be trusted.
	NewestByModTime(ctx context.Context) (types.Snapshot, bool, error)
}
