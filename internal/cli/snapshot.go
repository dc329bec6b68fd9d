package cli

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storagectl/internal/app"
	"storagectl/internal/types"
)

type pruneOptions struct {
	KeepLast int
	KeepDays int
	DryRun   bool
}

func newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"snapshots"},
		Short:   "List, create and prune deployment snapshots",
	}
	cmd.AddCommand(newSnapshotListCommand())
	cmd.AddCommand(newSnapshotCreateCommand())
	cmd.AddCommand(newSnapshotPruneCommand())
	return cmd
}

func newSnapshotListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest last",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newAppService()
			result, err := service.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).snapshots(result.Snapshots, result.LatestID, time.Now())
			return nil
		},
	}
}

func newSnapshotCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Snapshot the install and data directories now",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newAppService()
			snapshot, err := service.CreateSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.line("created snapshot %s (%s)", snapshot.ID, humanize.Bytes(uint64(snapshot.SizeBytes)))
			if snapshot.Partial {
				p.line("%s some directories could not be archived; see the log for details", p.marker(types.StepStatusWarning))
			}
			return nil
		},
	}
}

func newSnapshotPruneCommand() *cobra.Command {
	opts := pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots outside the retention policy",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.KeepLast, "keep-last", 0, "Keep the last N snapshots (default: keep_snapshots)")
	cmd.Flags().IntVar(&opts.KeepDays, "keep-days", 0, "Also keep snapshots newer than N days")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Only report what would be deleted")

	_ = viper.BindPFlag("prune_keep_last", cmd.Flags().Lookup("keep-last"))
	_ = viper.BindPFlag("prune_keep_days", cmd.Flags().Lookup("keep-days"))
	return cmd
}

func runPrune(ctx context.Context, cmd *cobra.Command, opts pruneOptions) error {
	service := newAppService()
	result, err := service.PruneSnapshots(ctx, app.PruneRequest{
		KeepLast: resolveInt(cmd, opts.KeepLast, "prune_keep_last", "keep-last"),
		KeepDays: resolveInt(cmd, opts.KeepDays, "prune_keep_days", "keep-days"),
		DryRun:   opts.DryRun,
	})
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())
	if result.DryRun {
		p.line("dry-run: keep=%d delete=%d", result.KeepCount, result.DeleteCount)
		for _, id := range result.Deleted {
			p.line("  would delete %s", id)
		}
		return nil
	}
	p.line("pruned snapshots: %d (kept %d)", result.DeleteCount, result.KeepCount)
	return nil
}
