package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storagectl/internal/app"
	"storagectl/internal/types"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the deployed version, health and latest snapshot",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newAppService()
			status, err := service.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(newPrinter(cmd.OutOrStdout()), status, time.Now())
			return nil
		},
	}
}

func printStatus(p printer, status app.StatusResult, now time.Time) {
	switch {
	case status.Installed:
		d := status.Deployment
		p.line("%s installed: %s (ref %s)", p.marker(types.StepStatusOK), orUnknown(d.Version), orUnknown(d.Ref))
		if !d.InstalledAt.IsZero() {
			p.line("  installed %s", humanize.RelTime(d.InstalledAt, now, "ago", "from now"))
		}
		if !d.UpdatedAt.IsZero() && !d.UpdatedAt.Equal(d.InstalledAt) {
			p.line("  updated %s", humanize.RelTime(d.UpdatedAt, now, "ago", "from now"))
		}
	case status.Present:
		p.line("%s files present but no deployment recorded; rerun: storagectl install", p.marker(types.StepStatusWarning))
	default:
		p.line("not installed")
	}
	if len(status.Health.Checks) > 0 {
		p.health(status.Health)
	}
	if status.Latest != nil {
		p.line("latest snapshot: %s (%s, %s), %d total",
			status.Latest.ID,
			humanize.Bytes(uint64(status.Latest.SizeBytes)),
			humanize.RelTime(status.Latest.CreatedAt, now, "ago", "from now"),
			status.Snapshots,
		)
	} else {
		p.line("no snapshots")
	}
	if status.LockHolder > 0 {
		p.line("%s a run is in progress (PID %d)", p.marker(types.StepStatusWarning), status.LockHolder)
	}
}

func newHistoryCommand() *cobra.Command {
	limit := 0
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lifecycle runs",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newAppService()
			history, err := service.History(cmd.Context(), app.HistoryRequest{Limit: limit})
			if err != nil {
				return err
			}
			printHistory(newPrinter(cmd.OutOrStdout()), history.Runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func printHistory(p printer, runs []types.RunRecord) {
	if len(runs) == 0 {
		p.line("no runs recorded")
		return
	}
	for _, run := range runs {
		status := types.StepStatusOK
		switch run.State {
		case types.RunStateAborted:
			status = types.StepStatusFailed
		case types.RunStateCancelled:
			status = types.StepStatusWarning
		}
		detail := string(run.State)
		if run.AbortedStep != "" {
			detail += " at " + run.AbortedStep
		}
		if run.Message != "" {
			detail += ": " + run.Message
		}
		p.line("%s %s %-9s %s", p.marker(status), run.StartedAt.Local().Format(time.DateTime), run.Operation, detail)
	}
}
