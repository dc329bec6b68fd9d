package types

import "time"

// Deployment is the metadata recorded for the deployed instance.
type Deployment struct {
	Version     string
	Ref         string
	RepoURL     string
	InstalledAt time.Time
	UpdatedAt   time.Time
	Forced      bool
	KeepData    bool
	LastBackup  string
}
