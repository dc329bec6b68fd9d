package policies

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagectl/internal/core"
	"storagectl/internal/types"
)

type callLog struct {
	calls []string
	fail  map[string]error
}

func (c *callLog) record(call string) error {
	c.calls = append(c.calls, call)
	return c.fail[call]
}

type fakeRuntime struct{ log *callLog }

func (f fakeRuntime) Up(context.Context, string) error {
	return f.log.record("up")
}
func (f fakeRuntime) Down(_ context.Context, dir string) error {
	return f.log.record("down " + dir)
}
func (f fakeRuntime) Ps(context.Context, string) ([]types.ContainerState, error) {
	return nil, nil
}
func (f fakeRuntime) Pull(context.Context, string) error {
	return nil
}
func (f fakeRuntime) Build(context.Context, string) error {
	return nil
}

type fakeServices struct{ log *callLog }

func (f fakeServices) RegisterUnit(context.Context, string, string) (bool, error) {
	return true, nil
}
func (f fakeServices) RemoveUnit(_ context.Context, name string) error {
	return f.log.record("remove-unit " + name)
}
func (f fakeServices) DaemonReload(context.Context) error {
	return nil
}
func (f fakeServices) Start(context.Context, string) error {
	return nil
}
func (f fakeServices) Stop(_ context.Context, name string) error {
	return f.log.record("stop " + name)
}
func (f fakeServices) Enable(context.Context, string) error {
	return nil
}
func (f fakeServices) Disable(_ context.Context, name string) error {
	return f.log.record("disable " + name)
}
func (f fakeServices) IsActive(context.Context, string) (bool, error) {
	return false, nil
}

type fakeScheduler struct{ log *callLog }

func (f fakeScheduler) UpsertEntry(context.Context, string, string) error {
	return nil
}
func (f fakeScheduler) RemoveEntriesMatching(_ context.Context, pattern string) (int, error) {
	return 1, f.log.record("unschedule " + pattern)
}

type fakeProxy struct {
	log    *callLog
	reject bool
}

func (f fakeProxy) WriteSiteConfig(context.Context, string, string) (bool, error) {
	return true, nil
}
func (f fakeProxy) RemoveSiteConfig(_ context.Context, name string) error {
	return f.log.record("remove-site " + name)
}
func (f fakeProxy) TestConfig(context.Context) (bool, error) {
	return !f.reject, nil
}
func (f fakeProxy) Reload(context.Context) error {
	return f.log.record("reload-proxy")
}

type fakeAccounts struct{ log *callLog }

func (f fakeAccounts) UserExists(context.Context, string) (bool, error) {
	return true, nil
}
func (f fakeAccounts) EnsureUser(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f fakeAccounts) RemoveUser(_ context.Context, name string) error {
	return f.log.record("userdel " + name)
}
func (f fakeAccounts) Chown(context.Context, string, []string) error {
	return nil
}

func newCleanup(log *callLog) Cleanup {
	return Cleanup{
		Runtime:   fakeRuntime{log},
		Services:  fakeServices{log},
		Scheduler: fakeScheduler{log},
		Proxy:     fakeProxy{log: log},
		Accounts:  fakeAccounts{log},
		StackDir:  "/opt/sm",
		RemoveDir: func(path string) error { return log.record("rm " + path) },
	}
}

func installLedger() *Ledger {
	ledger := NewLedger()
	ledger.Created(ResourceAccount, "sm")
	ledger.Created(ResourceDirectory, "/opt/sm")
	ledger.Created(ResourceUnit, "sm.service")
	ledger.Created(ResourceSite, "sm")
	ledger.Created(ResourceSchedule, "/usr/local/bin/storagectl maintenance")
	ledger.Created(ResourceWorkload, "sm")
	ledger.Created(ResourceWorkload, "sm")
	return ledger
}

func TestRecoveryPolicyInstallAbort(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		want  []string
	}{
		{
			name: "keeps directories and account",
			want: []string{
				"down /opt/sm",
				`unschedule /usr/local/bin/storagectl maintenance`,
				"remove-site sm",
				"reload-proxy",
				"stop sm.service",
				"disable sm.service",
				"remove-unit sm.service",
			},
		},
		{
			name:  "forced install removes everything it created",
			force: true,
			want: []string{
				"down /opt/sm",
				`unschedule /usr/local/bin/storagectl maintenance`,
				"remove-site sm",
				"reload-proxy",
				"stop sm.service",
				"disable sm.service",
				"remove-unit sm.service",
				"rm /opt/sm",
				"userdel sm",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			policy := NewRecoveryPolicy(installLedger(), newCleanup(log))
			outcome := core.Outcome{Operation: types.OperationInstall, State: types.RunStateAborted, AbortedStep: "start-services"}

			report := policy.Recover(t.Context(), outcome, types.Options{Force: tt.force})
			if diff := cmp.Diff(tt.want, log.calls); diff != "" {
				t.Fatalf("unexpected cleanup (-want +got):\n%s", diff)
			}
			assert.Empty(t, report.Errors)
			assert.Contains(t, report.Remedy, "storagectl install")
		})
	}
}

func TestRecoveryPolicyInstallCleanupContinuesAfterErrors(t *testing.T) {
	log := &callLog{fail: map[string]error{"down /opt/sm": errors.New("daemon gone")}}
	policy := NewRecoveryPolicy(installLedger(), newCleanup(log))
	outcome := core.Outcome{Operation: types.OperationInstall, State: types.RunStateAborted}

	report := policy.Recover(t.Context(), outcome, types.Options{})
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "daemon gone")
	assert.Contains(t, log.calls, "remove-unit sm.service")
}

func TestRecoveryPolicyNoopUnlessAborted(t *testing.T) {
	log := &callLog{}
	policy := NewRecoveryPolicy(installLedger(), newCleanup(log))

	for _, state := range []types.RunState{types.RunStateCompleted, types.RunStateCancelled} {
		report := policy.Recover(t.Context(), core.Outcome{Operation: types.OperationInstall, State: state}, types.Options{})
		assert.Equal(t, core.RecoveryReport{}, report)
	}
	report := policy.Recover(t.Context(), core.Outcome{Operation: types.OperationInstall, State: types.RunStateAborted}, types.Options{DryRun: true})
	assert.Equal(t, core.RecoveryReport{}, report)
	assert.Empty(t, log.calls)
}

func TestRecoveryPolicyUpdateAbort(t *testing.T) {
	log := &callLog{}
	ledger := NewLedger()
	policy := NewRecoveryPolicy(ledger, newCleanup(log))
	outcome := core.Outcome{Operation: types.OperationUpdate, State: types.RunStateAborted}

	report := policy.Recover(t.Context(), outcome, types.Options{})
	assert.Contains(t, report.Remedy, "no pre-update snapshot")

	ledger.SetSnapshot("20260101-020000")
	report = policy.Recover(t.Context(), outcome, types.Options{})
	assert.Equal(t, "storagectl rollback --snapshot 20260101-020000", report.Remedy)
	assert.Empty(t, log.calls, "update aborts must not touch the deployment")
}

func TestRecoveryPolicyUninstallAndRollbackAbort(t *testing.T) {
	log := &callLog{}
	policy := NewRecoveryPolicy(installLedger(), newCleanup(log))

	report := policy.Recover(t.Context(), core.Outcome{Operation: types.OperationUninstall, State: types.RunStateAborted}, types.Options{})
	assert.Empty(t, report.Actions)
	assert.Contains(t, report.Remedy, "storagectl uninstall")

	report = policy.Recover(t.Context(), core.Outcome{Operation: types.OperationRollback, State: types.RunStateAborted}, types.Options{})
	assert.Empty(t, report.Actions)
	assert.Contains(t, report.Remedy, "storagectl rollback")
	assert.Empty(t, log.calls)
}

func TestRecoveryPolicyRollbackRemedyNamesRestoredSnapshot(t *testing.T) {
	ledger := NewLedger()
	ledger.Restoring("20260101-020000")
	policy := NewRecoveryPolicy(ledger, newCleanup(&callLog{}))

	report := policy.Recover(t.Context(), core.Outcome{Operation: types.OperationRollback, State: types.RunStateAborted}, types.Options{})
	assert.Equal(t, "inspect the rollback log, then run: storagectl rollback --snapshot 20260101-020000", report.Remedy)
}

func TestRecoveryPolicyReportsRejectedProxyConfig(t *testing.T) {
	log := &callLog{}
	ledger := NewLedger()
	ledger.Created(ResourceSite, "sm")
	cleanup := newCleanup(log)
	cleanup.Proxy = fakeProxy{log: log, reject: true}
	policy := NewRecoveryPolicy(ledger, cleanup)

	report := policy.Recover(t.Context(), core.Outcome{Operation: types.OperationInstall, State: types.RunStateAborted}, types.Options{})
	assert.Empty(t, report.Actions)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "not reloaded")
	assert.Equal(t, []string{"remove-site sm"}, log.calls)
}
