package app

import (
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"storagectl/internal/adapters"
	"storagectl/internal/core"
	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// Service owns the ports a lifecycle operation is driven through.
type Service struct {
	Config    types.StackConfig
	Runner    ports.CommandRunnerPort
	Runtime   ports.ContainerRuntimePort
	Services  ports.ServiceManagerPort
	Scheduler ports.SchedulerPort
	Proxy     ports.ReverseProxyPort
	Source    ports.SourceFetcherPort
	Accounts  ports.AccountPort
	Backend   ports.BackendPort
	Remote    ports.RemoteVersionPort
	Metadata  ports.MetadataPort
	Snapshots ports.SnapshotStorePort
	Lock      ports.LockPort
	Metrics   ports.MetricsPort
	Prompter  ports.PrompterPort
	// Checks replaces the default health checklist when set.
	Checks []core.Check
	// Readiness replaces the default backend status probe when set.
	Readiness   ports.ProbePort
	OpenJournal func() (ports.JournalPort, error)
	OpenLog     func(op types.Operation) (io.WriteCloser, error)
	Console     io.Writer
	Clock       func() time.Time
	NewRunID    func() string
}

func NewService(cfg types.StackConfig, console io.Writer) Service {
	cfg = cfg.WithDefaults()
	runner := adapters.NewExecRunner(cfg.CommandTimeout)
	services := adapters.NewSystemdManager(runner, cfg.UnitDir)
	return Service{
		Config:    cfg,
		Runner:    runner,
		Runtime:   adapters.NewComposeRuntime(runner, cfg.ComposeProject, cfg.ComposeFile),
		Services:  services,
		Scheduler: adapters.NewCronScheduler(runner, ""),
		Proxy:     adapters.NewNginxProxy(runner, cfg.NginxSitesDir, cfg.NginxEnabledDir),
		Source:    adapters.NewGitFetcher(runner),
		Accounts:  adapters.NewSystemAccounts(runner),
		Backend:   adapters.NewBackendClient(cfg.BackendURL, 0),
		Remote:    remoteVersionSource(cfg.VersionURL),
		Metadata:  adapters.NewMetadataFile(cfg.MetadataPath()),
		Snapshots: adapters.NewSnapshotStoreFile(cfg.SnapshotDir),
		Lock:      adapters.NewFileLock(cfg.LockPath()),
		Metrics:   adapters.NewMetricsTextfile(cfg.MetricsFile),
		Prompter:  adapters.NewStdioPrompter(),
		OpenJournal: func() (ports.JournalPort, error) {
			return adapters.OpenSQLiteJournal(cfg.JournalPath())
		},
		OpenLog: func(op types.Operation) (io.WriteCloser, error) {
			return adapters.OpenOperationLog(cfg.LogDir, op)
		},
		Console:  console,
		Clock:    time.Now,
		NewRunID: uuid.NewString,
	}
}

func remoteVersionSource(endpoint string) ports.RemoteVersionPort {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return adapters.NewHTTPVersionSource(endpoint, 0, 0, 0)
}

// HealthChecks is the weighted checklist used after every change.
func (s Service) HealthChecks() []core.Check {
	if s.Checks != nil {
		return s.Checks
	}
	cfg := s.Config
	return []core.Check{
		{Name: "service unit active", Weight: 25, Probe: adapters.ServiceProbe{Manager: s.Services, Unit: cfg.UnitName}},
		{Name: "backend container running", Weight: 25, Probe: adapters.ContainerProbe{Runtime: s.Runtime, StackDir: cfg.InstallDir, Service: "backend"}},
		{Name: "backend api responding", Weight: 30, Probe: s.readiness()},
		{Name: "proxy port open", Weight: 10, Probe: adapters.TCPProbe{Address: net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.ProxyPort))}},
		{Name: "nginx active", Weight: 10, Probe: adapters.ServiceProbe{Manager: s.Services, Unit: "nginx"}},
	}
}

func (s Service) readiness() ports.ProbePort {
	if s.Readiness != nil {
		return s.Readiness
	}
	return adapters.HTTPProbe{URL: strings.TrimRight(s.Config.BackendURL, "/") + "/api/status"}
}

func (s Service) verifier() core.Verifier {
	return core.NewVerifier(s.Config.HealthThreshold)
}

func (s Service) snapshotManager() core.SnapshotManager {
	manager := core.NewSnapshotManager(s.Snapshots)
	if s.Clock != nil {
		manager.Clock = s.Clock
	}
	return manager
}

func (s Service) versionResolver() core.VersionResolver {
	return core.VersionResolver{
		Metadata:  s.Metadata,
		Remote:    s.Remote,
		Source:    s.Source,
		SourceDir: s.Config.InstallDir,
	}
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s Service) console() io.Writer {
	if s.Console == nil {
		return os.Stderr
	}
	return s.Console
}
