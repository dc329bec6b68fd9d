package cli

import (
	"github.com/spf13/cobra"

	"storagectl/internal/types"
)

func newMaintenanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Verify health and trigger a parity sync (run from cron)",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newAppService()
			result, err := service.Maintenance(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.health(result.Health)
			if result.Synced {
				p.line("%s parity sync requested", p.marker(types.StepStatusOK))
				return nil
			}
			p.line("%s sync skipped: %s", p.marker(types.StepStatusWarning), result.Skipped)
			return nil
		},
	}
}
