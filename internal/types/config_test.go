package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNestedControlDir(t *testing.T) {
	base := StackConfig{
		InstallDir:  "/opt/sm",
		DataDirs:    []string{"/srv/pool"},
		StateDir:    "/var/lib/storagectl/sm",
		LogDir:      "/var/log/storagectl/sm",
		SnapshotDir: "/var/backups/sm",
	}
	tests := []struct {
		name       string
		mutate     func(cfg *StackConfig)
		wantDir    string
		wantParent string
	}{
		{name: "separate trees", mutate: func(*StackConfig) {}},
		{name: "sibling with shared prefix", mutate: func(cfg *StackConfig) { cfg.SnapshotDir = "/opt/sm-backups" }},
		{
			name:       "snapshots inside install dir",
			mutate:     func(cfg *StackConfig) { cfg.SnapshotDir = "/opt/sm/backups" },
			wantDir:    "/opt/sm/backups",
			wantParent: "/opt/sm",
		},
		{
			name:       "state inside data dir",
			mutate:     func(cfg *StackConfig) { cfg.StateDir = "/srv/pool/.state/" },
			wantDir:    "/srv/pool/.state/",
			wantParent: "/srv/pool",
		},
		{
			name:       "log dir equals install dir",
			mutate:     func(cfg *StackConfig) { cfg.LogDir = "/opt/sm" },
			wantDir:    "/opt/sm",
			wantParent: "/opt/sm",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.DataDirs = append([]string(nil), base.DataDirs...)
			tt.mutate(&cfg)
			dir, parent, nested := cfg.NestedControlDir()
			assert.Equal(t, tt.wantDir != "", nested)
			assert.Equal(t, tt.wantDir, dir)
			assert.Equal(t, tt.wantParent, parent)
		})
	}
}

func TestDefaultLayoutHasNoNestedControlDir(t *testing.T) {
	_, _, nested := StackConfig{}.WithDefaults().NestedControlDir()
	assert.False(t, nested)
}
