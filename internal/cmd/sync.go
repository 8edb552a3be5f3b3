package cmd

import (
	"encoding/json"
	"fmt"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/prdservice"

	"github.com/spf13/cobra"
)

// newSyncStatusCmd creates the sync-status command.
func newSyncStatusCmd(provider *AppProvider) *cobra.Command {
	var (
		force  bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sync-status",
		Short: "Derive PRD status from linked task progress",
		Long: `Set each PRD's status from its linked tasks: done when every task is
completed, in-progress when any task is started or completed, pending
otherwise. PRDs without linked tasks keep their status. The file moves
with the status; if the move is rejected the status is not changed.

Archived PRDs are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			res, err := app.Service.UpdateAllPrdStatuses(cmd.Context(), prdservice.SyncOptions{Force: force, DryRun: dryRun})
			if err != nil {
				return fmt.Errorf("status sync failed: %w", err)
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(res)
			}
			for _, d := range res.Details {
				switch d.Outcome {
				case metastore.OutcomeApplied:
					fmt.Fprintf(app.Out, "%s: %s\n", d.PRDID, app.SuccessColor(d.Message))
				case metastore.OutcomeFailed:
					fmt.Fprintf(app.Out, "%s: %s\n", d.PRDID, app.ErrorColor(d.Message))
				}
			}
			fmt.Fprintf(app.Out, "Updated %d, unchanged %d, errors %d\n", res.Updated, res.Unchanged, res.Errors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rewrite every PRD, archived ones included")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing")

	return cmd
}
