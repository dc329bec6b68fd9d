package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storagectl/internal/types"
)

type lifecycleOptions struct {
	Yes      bool
	Force    bool
	KeepData bool
	Backup   bool
	DryRun   bool
	Check    bool
	Rollback bool
	Snapshot string
}

func newInstallCommand() *cobra.Command {
	opts := lifecycleOptions{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Deploy the stack on this host",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLifecycle(cmd.Context(), cmd, types.OperationInstall, opts)
		},
	}
	addCommonFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Overwrite an existing installation after backing it up")
	return cmd
}

func newUpdateCommand() *cobra.Command {
	opts := lifecycleOptions{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Upgrade the deployed stack to the latest release",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLifecycle(cmd.Context(), cmd, types.OperationUpdate, opts)
		},
	}
	addCommonFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Redeploy even when already up to date")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&opts.Rollback, "rollback", false, "Roll back to a snapshot instead of updating")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "Snapshot ID used with --rollback (default: latest)")
	return cmd
}

func newUninstallCommand() *cobra.Command {
	opts := lifecycleOptions{}
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the stack from this host",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLifecycle(cmd.Context(), cmd, types.OperationUninstall, opts)
		},
	}
	addCommonFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.KeepData, "keep-data", "k", false, "Keep data directories and the service account")
	cmd.Flags().BoolVarP(&opts.Backup, "backup", "b", false, "Snapshot the deployment before removing it")
	return cmd
}

func newRollbackCommand() *cobra.Command {
	opts := lifecycleOptions{}
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the deployment from a snapshot",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLifecycle(cmd.Context(), cmd, types.OperationRollback, opts)
		},
	}
	addCommonFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "Snapshot ID to restore (default: latest)")
	return cmd
}

func addCommonFlags(cmd *cobra.Command, opts *lifecycleOptions) {
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show the plan without changing anything")
	_ = viper.BindPFlag("assume_yes", cmd.Flags().Lookup("yes"))
	_ = viper.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))
}

func lifecycleRunOptions(cmd *cobra.Command, opts lifecycleOptions) types.Options {
	return types.Options{
		SkipConfirm:  resolveBool(cmd, opts.Yes, "assume_yes", "yes"),
		Force:        opts.Force,
		KeepData:     opts.KeepData,
		CreateBackup: opts.Backup,
		DryRun:       resolveBool(cmd, opts.DryRun, "dry_run", "dry-run"),
		Verbose:      viper.GetBool("verbose"),
		CheckOnly:    opts.Check,
		Rollback:     opts.Rollback,
		SnapshotID:   opts.Snapshot,
	}
}

func runLifecycle(ctx context.Context, cmd *cobra.Command, op types.Operation, opts lifecycleOptions) error {
	service := newAppService()
	result, err := service.Run(ctx, op, lifecycleRunOptions(cmd, opts))
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).result(result)
	return resultError(result)
}
