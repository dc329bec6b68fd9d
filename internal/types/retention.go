package types

import "time"

// Snapshot is an immutable point-in-time archive set of the stack's
// persistent directories. Path is the manifest describing it.
type Snapshot struct {
	ID          string    `yaml:"id"`
	Path        string    `yaml:"-"`
	Archives    []string  `yaml:"archives"`
	CreatedAt   time.Time `yaml:"created_at"`
	SourcePaths []string  `yaml:"source_paths"`
	SizeBytes   int64     `yaml:"size_bytes"`
	Version     string    `yaml:"version,omitempty"`
	Partial     bool      `yaml:"partial,omitempty"`
}

type SnapshotRetentionPolicy struct {
	KeepLast int
	KeepDays int
	DryRun   bool
}

type SnapshotPrunePlan struct {
	Keep   []Snapshot
	Delete []Snapshot
}
