package ports

import (
	"context"

	"storagectl/internal/types"
)

type ContainerRuntimePort interface {
	Up(ctx context.Context, stackDir string) error
	Down(ctx context.Context, stackDir string) error
	Ps(ctx context.Context, stackDir string) ([]types.ContainerState, error)
	Pull(ctx context.Context, stackDir string) error
	Build(ctx context.Context, stackDir string) error
}

type ServiceManagerPort interface {
	// RegisterUnit writes the unit definition and reports whether it changed.
	RegisterUnit(ctx context.Context, name string, definition string) (bool, error)
	RemoveUnit(ctx context.Context, name string) error
	DaemonReload(ctx context.Context) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	IsActive(ctx context.Context, name string) (bool, error)
}

type SchedulerPort interface {
	UpsertEntry(ctx context.Context, schedule string, command string) error
	RemoveEntriesMatching(ctx context.Context, pattern string) (int, error)
}

type ReverseProxyPort interface {
	WriteSiteConfig(ctx context.Context, name string, config string) (bool, error)
	RemoveSiteConfig(ctx context.Context, name string) error
	TestConfig(ctx context.Context) (bool, error)
	Reload(ctx context.Context) error
}

type SourceFetcherPort interface {
	Clone(ctx context.Context, url string, ref string, dest string) error
	FetchAndCheckout(ctx context.Context, dir string, ref string) error
	DescribeTag(ctx context.Context, dir string) (string, error)
}

type AccountPort interface {
	UserExists(ctx context.Context, name string) (bool, error)
	EnsureUser(ctx context.Context, name string, home string) (bool, error)
	RemoveUser(ctx context.Context, name string) error
	Chown(ctx context.Context, owner string, paths []string) error
}

// BackendPort talks to the deployed backend's HTTP API.
type BackendPort interface {
	TriggerSync(ctx context.Context) error
}
