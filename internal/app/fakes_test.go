package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/require"

	"storagectl/internal/adapters"
	"storagectl/internal/core"
	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// calls is the ordered record of every side effect the fakes saw.
type calls struct {
	seen []string
	fail map[string]error
}

func (c *calls) record(call string) error {
	c.seen = append(c.seen, call)
	return c.fail[call]
}

func (c *calls) has(call string) bool {
	for _, seen := range c.seen {
		if seen == call {
			return true
		}
	}
	return false
}

func (c *calls) withPrefix(prefix string) []string {
	var out []string
	for _, seen := range c.seen {
		if strings.HasPrefix(seen, prefix) {
			out = append(out, seen)
		}
	}
	return out
}

type fakeRunner struct {
	log     *calls
	missing map[string]bool
}

func (f fakeRunner) Run(_ context.Context, name string, args []string, _ types.RunOptions) (types.CommandResult, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	if f.missing[name] {
		return types.CommandResult{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("executable not found: " + name)
	}
	f.log.record("exec " + line)
	return types.CommandResult{Command: line}, nil
}

type fakeRuntime struct{ log *calls }

func (f fakeRuntime) Up(context.Context, string) error {
	return f.log.record("compose up")
}
func (f fakeRuntime) Down(context.Context, string) error {
	return f.log.record("compose down")
}
func (f fakeRuntime) Ps(context.Context, string) ([]types.ContainerState, error) {
	return []types.ContainerState{{Name: "sm-backend-1", Service: "backend", State: "running"}}, nil
}
func (f fakeRuntime) Pull(context.Context, string) error {
	return f.log.record("compose pull")
}
func (f fakeRuntime) Build(context.Context, string) error {
	return f.log.record("compose build")
}

type fakeServices struct {
	log    *calls
	active map[string]bool
}

func (f fakeServices) RegisterUnit(_ context.Context, name string, definition string) (bool, error) {
	if !strings.Contains(definition, "docker compose") {
		return false, errors.New("unexpected unit definition")
	}
	return true, f.log.record("register " + name)
}
func (f fakeServices) RemoveUnit(_ context.Context, name string) error {
	return f.log.record("remove-unit " + name)
}
func (f fakeServices) DaemonReload(context.Context) error {
	return f.log.record("daemon-reload")
}
func (f fakeServices) Start(_ context.Context, name string) error {
	f.active[name] = true
	return f.log.record("start " + name)
}
func (f fakeServices) Stop(_ context.Context, name string) error {
	delete(f.active, name)
	return f.log.record("stop " + name)
}
func (f fakeServices) Enable(_ context.Context, name string) error {
	return f.log.record("enable " + name)
}
func (f fakeServices) Disable(_ context.Context, name string) error {
	return f.log.record("disable " + name)
}
func (f fakeServices) IsActive(_ context.Context, name string) (bool, error) {
	return f.active[name], nil
}

type fakeScheduler struct {
	log     *calls
	entries map[string]string
}

func (f fakeScheduler) UpsertEntry(_ context.Context, schedule string, command string) error {
	f.entries[command] = schedule
	return f.log.record("schedule " + schedule)
}
func (f fakeScheduler) RemoveEntriesMatching(_ context.Context, pattern string) (int, error) {
	removed := 0
	for command := range f.entries {
		if strings.Contains(command, strings.ReplaceAll(pattern, `\`, "")) {
			delete(f.entries, command)
			removed++
		}
	}
	return removed, f.log.record("unschedule")
}

type fakeProxy struct {
	log    *calls
	reject bool
}

func (f fakeProxy) WriteSiteConfig(_ context.Context, name string, config string) (bool, error) {
	if !strings.Contains(config, "proxy_pass") {
		return false, errors.New("unexpected site config")
	}
	return true, f.log.record("site " + name)
}
func (f fakeProxy) RemoveSiteConfig(_ context.Context, name string) error {
	return f.log.record("remove-site " + name)
}
func (f fakeProxy) TestConfig(context.Context) (bool, error) {
	return !f.reject, f.log.record("nginx -t")
}
func (f fakeProxy) Reload(context.Context) error {
	return f.log.record("nginx reload")
}

// fakeSource writes a tree the way a checkout would, so snapshots have
// something to capture.
type fakeSource struct {
	log *calls
	tag string
}

func (f fakeSource) Clone(_ context.Context, _ string, ref string, dest string) error {
	if err := f.log.record("clone " + ref); err != nil {
		return err
	}
	return writeTree(dest, ref)
}
func (f fakeSource) FetchAndCheckout(_ context.Context, dir string, ref string) error {
	if err := f.log.record("checkout " + ref); err != nil {
		return err
	}
	return writeTree(dir, ref)
}
func (f fakeSource) DescribeTag(context.Context, string) (string, error) {
	if f.tag == "" {
		return "", errors.New("no tags")
	}
	return f.tag, nil
}

func writeTree(dir string, ref string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "VERSION"), []byte(ref+"\n"), 0o644)
}

type fakeAccounts struct{ log *calls }

func (f fakeAccounts) UserExists(context.Context, string) (bool, error) {
	return false, nil
}
func (f fakeAccounts) EnsureUser(_ context.Context, name string, _ string) (bool, error) {
	return true, f.log.record("useradd " + name)
}
func (f fakeAccounts) RemoveUser(_ context.Context, name string) error {
	return f.log.record("userdel " + name)
}
func (f fakeAccounts) Chown(_ context.Context, owner string, _ []string) error {
	return f.log.record("chown " + owner)
}

type fakeBackend struct{ log *calls }

func (f fakeBackend) TriggerSync(context.Context) error {
	return f.log.record("sync")
}

type fakeRemote struct {
	tag string
	err error
}

func (f *fakeRemote) LatestTag(context.Context) (string, error) {
	return f.tag, f.err
}

type fakePrompter struct {
	answer  string
	prompts []string
}

func (f *fakePrompter) Prompt(_ context.Context, message string) (string, error) {
	f.prompts = append(f.prompts, message)
	return f.answer, nil
}

type fakeMetrics struct {
	runs []types.OperationResult
}

func (f *fakeMetrics) RecordRun(_ context.Context, result types.OperationResult) error {
	f.runs = append(f.runs, result)
	return nil
}

type fixture struct {
	cfg      types.StackConfig
	log      *calls
	remote   *fakeRemote
	prompter *fakePrompter
	metrics  *fakeMetrics
	ready    error
	healthy  bool
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := types.StackConfig{
		Name:          "sm",
		InstallDir:    filepath.Join(root, "opt", "sm"),
		DataDirs:      []string{filepath.Join(root, "data")},
		StateDir:      filepath.Join(root, "state"),
		LogDir:        filepath.Join(root, "log"),
		SnapshotDir:   filepath.Join(root, "backups"),
		RepoURL:       "https://git.example.test/sm.git",
		BinaryPath:    "/usr/local/bin/storagectl",
		ReadyAttempts: 2,
		ReadyInterval: time.Millisecond,
		ReadyTimeout:  time.Second,
	}.WithDefaults()

	f := &fixture{
		cfg:      cfg,
		log:      &calls{fail: map[string]error{}},
		remote:   &fakeRemote{},
		prompter: &fakePrompter{},
		metrics:  &fakeMetrics{},
		healthy:  true,
	}
	clock := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	f.svc = Service{
		Config:    cfg,
		Runner:    fakeRunner{log: f.log, missing: map[string]bool{}},
		Runtime:   fakeRuntime{log: f.log},
		Services:  fakeServices{log: f.log, active: map[string]bool{}},
		Scheduler: fakeScheduler{log: f.log, entries: map[string]string{}},
		Proxy:     fakeProxy{log: f.log},
		Source:    fakeSource{log: f.log},
		Accounts:  fakeAccounts{log: f.log},
		Backend:   fakeBackend{log: f.log},
		Remote:    f.remote,
		Metadata:  adapters.NewMetadataFile(cfg.MetadataPath()),
		Snapshots: adapters.SnapshotStoreFile{Dir: cfg.SnapshotDir, Root: "/"},
		Lock:      adapters.NewFileLock(cfg.LockPath()),
		Metrics:   f.metrics,
		Prompter:  f.prompter,
		Checks: []core.Check{
			{Name: "stack healthy", Weight: 100, Probe: core.ProbeFunc(func(context.Context) error {
				if !f.healthy {
					return errors.New("backend down")
				}
				return nil
			})},
		},
		Readiness: core.ProbeFunc(func(context.Context) error { return f.ready }),
		OpenJournal: func() (ports.JournalPort, error) {
			return adapters.OpenSQLiteJournal(filepath.Join(cfg.StateDir, "journal.db"))
		},
		OpenLog: func(op types.Operation) (io.WriteCloser, error) {
			return adapters.OpenOperationLog(cfg.LogDir, op)
		},
		Console: io.Discard,
		Clock: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		NewRunID: func() string { return "run-1" },
	}
	return f
}

func (f *fixture) missing(binary string) {
	f.svc.Runner = fakeRunner{log: f.log, missing: map[string]bool{binary: true}}
}

// deploy leaves the fixture looking like a completed install of version.
func (f *fixture) deploy(t *testing.T, version string) {
	t.Helper()
	require.NoError(t, writeTree(f.cfg.InstallDir, version))
	for _, dir := range f.cfg.DataDirs {
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pool.db"), []byte("data-"+version), 0o644))
	}
	installed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.Metadata.Write(t.Context(), types.Deployment{
		Version:     version,
		Ref:         version,
		RepoURL:     f.cfg.RepoURL,
		InstalledAt: installed,
		UpdatedAt:   installed,
	}))
}

func (f *fixture) deployment(t *testing.T) (types.Deployment, bool) {
	t.Helper()
	deployment, ok, err := f.svc.Metadata.Read(t.Context())
	require.NoError(t, err)
	return deployment, ok
}

func stepNames(records []types.StepRecord) []string {
	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Name)
	}
	return names
}

func statusOf(records []types.StepRecord, name string) types.StepStatus {
	for _, record := range records {
		if record.Name == name {
			return record.Status
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
