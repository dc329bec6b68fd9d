package adapters

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagectl/internal/types"
)

const maintenanceCmd = "/usr/local/bin/storagectl maintenance >> /var/log/storagectl/maintenance.log 2>&1"

func TestCronSchedulerUpsertEntry(t *testing.T) {
	tests := []struct {
		name      string
		existing  types.CommandResult
		wantWrite bool
		wantStdin string
	}{
		{
			name:      "empty crontab",
			existing:  types.CommandResult{ExitCode: 1, Stderr: "no crontab for root"},
			wantWrite: true,
			wantStdin: "0 2 * * * " + maintenanceCmd + "\n",
		},
		{
			name:      "identical entry is left alone",
			existing:  types.CommandResult{Stdout: "0 2 * * * " + maintenanceCmd + "\n"},
			wantWrite: false,
		},
		{
			name: "stale schedule is replaced and other lines kept",
			existing: types.CommandResult{Stdout: "MAILTO=ops\n" +
				"30 4 * * * " + maintenanceCmd + "\n" +
				"0 3 * * 0 /usr/bin/other\n"},
			wantWrite: true,
			wantStdin: "MAILTO=ops\n0 3 * * 0 /usr/bin/other\n0 2 * * * " + maintenanceCmd + "\n",
		},
		{
			name: "duplicates collapse to one entry",
			existing: types.CommandResult{Stdout: "0 2 * * * " + maintenanceCmd + "\n" +
				"0 2 * * * " + maintenanceCmd + "\n"},
			wantWrite: true,
			wantStdin: "0 2 * * * " + maintenanceCmd + "\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			runner := newScriptedRunner().on("crontab -l", tt.existing)
			scheduler := NewCronScheduler(runner, "")

			require.NoError(t, scheduler.UpsertEntry(t.Context(), "0 2 * * *", maintenanceCmd))

			var writes []recordedCall
			for _, call := range runner.calls {
				if call.Line == "crontab -" {
					writes = append(writes, call)
				}
			}
			if !tt.wantWrite {
				assert.Empty(t, writes)
				return
			}
			require.Len(t, writes, 1)
			if diff := cmp.Diff(tt.wantStdin, writes[0].Opts.Stdin); diff != "" {
				t.Fatalf("unexpected crontab (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCronSchedulerRejectsBadSchedule(t *testing.T) {
	scheduler := NewCronScheduler(newScriptedRunner(), "")
	err := scheduler.UpsertEntry(t.Context(), "every night", maintenanceCmd)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestCronSchedulerRemoveEntriesMatching(t *testing.T) {
	runner := newScriptedRunner().on("crontab -u storage -l", types.CommandResult{Stdout: "# storagectl maintenance\n" +
		"0 2 * * * " + maintenanceCmd + "\n" +
		"0 3 * * 0 /usr/bin/other\n"})
	scheduler := NewCronScheduler(runner, "storage")

	removed, err := scheduler.RemoveEntriesMatching(t.Context(), `storagectl maintenance`)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	last := runner.calls[len(runner.calls)-1]
	assert.Equal(t, "crontab -u storage -", last.Line)
	assert.Equal(t, "# storagectl maintenance\n0 3 * * 0 /usr/bin/other\n", last.Opts.Stdin)
}

func TestCronSchedulerRemoveNothingSkipsWrite(t *testing.T) {
	runner := newScriptedRunner().on("crontab -l", types.CommandResult{Stdout: "0 3 * * 0 /usr/bin/other\n"})
	scheduler := NewCronScheduler(runner, "")

	removed, err := scheduler.RemoveEntriesMatching(t.Context(), `storagectl`)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, []string{"crontab -l"}, runner.lines())
}
