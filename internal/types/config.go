package types

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultName                = "storage-manager"
	DefaultRef                 = "main"
	DefaultBackendURL          = "http://127.0.0.1:5000"
	DefaultProxyPort           = 80
	DefaultMaintenanceSchedule = "0 2 * * *"
	DefaultHealthThreshold     = 80
	DefaultKeepSnapshots       = 5
	DefaultReadyAttempts       = 30
	DefaultReadyInterval       = 2 * time.Second
	DefaultReadyTimeout        = 2 * time.Minute
	DefaultCommandTimeout      = 10 * time.Minute
)

// StackConfig describes where and how the stack is deployed.
type StackConfig struct {
	Name                string
	InstallDir          string
	DataDirs            []string
	StateDir            string
	LogDir              string
	SnapshotDir         string
	ServiceUser         string
	UnitName            string
	UnitDir             string
	ComposeProject      string
	ComposeFile         string
	RepoURL             string
	Ref                 string
	VersionURL          string
	BackendURL          string
	ProxyPort           int
	ServerName          string
	NginxSitesDir       string
	NginxEnabledDir     string
	MaintenanceSchedule string
	BinaryPath          string
	HealthThreshold     int
	KeepSnapshots       int
	KeepDays            int
	ReadyAttempts       int
	ReadyInterval       time.Duration
	ReadyTimeout        time.Duration
	CommandTimeout      time.Duration
	MetricsFile         string
}

// WithDefaults fills every unset field.
func (c StackConfig) WithDefaults() StackConfig {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.InstallDir == "" {
		c.InstallDir = filepath.Join("/opt", c.Name)
	}
	if len(c.DataDirs) == 0 {
		c.DataDirs = []string{filepath.Join("/var/lib", c.Name)}
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join("/var/lib/storagectl", c.Name)
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join("/var/log/storagectl", c.Name)
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = filepath.Join("/var/backups", c.Name)
	}
	if c.ServiceUser == "" {
		c.ServiceUser = c.Name
	}
	if c.UnitName == "" {
		c.UnitName = c.Name + ".service"
	}
	if c.UnitDir == "" {
		c.UnitDir = "/etc/systemd/system"
	}
	if c.ComposeProject == "" {
		c.ComposeProject = c.Name
	}
	if c.ComposeFile == "" {
		c.ComposeFile = "docker-compose.yml"
	}
	if c.Ref == "" {
		c.Ref = DefaultRef
	}
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.ProxyPort <= 0 {
		c.ProxyPort = DefaultProxyPort
	}
	if c.ServerName == "" {
		c.ServerName = "_"
	}
	if c.NginxSitesDir == "" {
		c.NginxSitesDir = "/etc/nginx/sites-available"
	}
	if c.NginxEnabledDir == "" {
		c.NginxEnabledDir = "/etc/nginx/sites-enabled"
	}
	if c.MaintenanceSchedule == "" {
		c.MaintenanceSchedule = DefaultMaintenanceSchedule
	}
	if c.BinaryPath == "" {
		c.BinaryPath = "/usr/local/bin/storagectl"
	}
	if c.HealthThreshold <= 0 {
		c.HealthThreshold = DefaultHealthThreshold
	}
	if c.KeepSnapshots <= 0 {
		c.KeepSnapshots = DefaultKeepSnapshots
	}
	if c.ReadyAttempts <= 0 {
		c.ReadyAttempts = DefaultReadyAttempts
	}
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = DefaultReadyInterval
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	return c
}

// PersistentPaths are the directories captured by snapshots.
func (c StackConfig) PersistentPaths() []string {
	paths := []string{c.InstallDir}
	for _, dir := range c.DataDirs {
		if strings.TrimSpace(dir) != "" {
			paths = append(paths, dir)
		}
	}
	return paths
}

// NestedControlDir returns the first of the state, log or snapshot
// directories that lies inside a persistent path, together with that path.
func (c StackConfig) NestedControlDir() (string, string, bool) {
	for _, dir := range []string{c.StateDir, c.LogDir, c.SnapshotDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		for _, persistent := range c.PersistentPaths() {
			if strings.TrimSpace(persistent) != "" && withinDir(persistent, dir) {
				return dir, persistent, true
			}
		}
	}
	return "", "", false
}

func withinDir(parent string, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (c StackConfig) MetadataPath() string {
	return filepath.Join(c.StateDir, "deployment.env")
}

func (c StackConfig) LockPath() string {
	return filepath.Join(c.StateDir, "storagectl.lock")
}

func (c StackConfig) JournalPath() string {
	return filepath.Join(c.StateDir, "journal.db")
}

func (c StackConfig) ComposePath() string {
	if filepath.IsAbs(c.ComposeFile) {
		return c.ComposeFile
	}
	return filepath.Join(c.InstallDir, c.ComposeFile)
}

// MaintenanceCommand is the command line scheduled for nightly maintenance.
func (c StackConfig) MaintenanceCommand() string {
	return c.MaintenanceMarker() + " >> " + filepath.Join(c.LogDir, "maintenance.log") + " 2>&1"
}

// MaintenanceMarker identifies the scheduled entry owned by this stack.
func (c StackConfig) MaintenanceMarker() string {
	return c.BinaryPath + " maintenance"
}
