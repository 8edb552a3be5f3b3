package cmd

import (
	"encoding/json"
	"fmt"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/prdservice"

	"github.com/spf13/cobra"
)

// newOrganizeCmd creates the organize command.
func newOrganizeCmd(provider *AppProvider) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Move PRD files into the directory of their status",
		Long: `Move every PRD file that is not in .taskmaster/prd/<status>/ into it and
update the recorded path. A destination that already holds another file
is reported and left alone.

With --dry-run nothing is moved or written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			res, err := app.Service.OrganizeAllPrdFiles(cmd.Context(), prdservice.OrganizeOptions{DryRun: dryRun})
			if err != nil {
				return fmt.Errorf("organize failed: %w", err)
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(res)
			}
			for _, d := range res.Details {
				switch d.Outcome {
				case metastore.OutcomeApplied:
					fmt.Fprintf(app.Out, "%s %s: %s -> %s\n", app.SuccessColor(d.Message), d.PRDID, d.From, d.To)
				case metastore.OutcomeFailed:
					fmt.Fprintf(app.Out, "%s %s: %s\n", app.ErrorColor("error"), d.PRDID, d.Message)
				}
			}
			verb := "Moved"
			if dryRun {
				verb = "Would move"
			}
			fmt.Fprintf(app.Out, "%s %d, already correct %d, errors %d\n", verb, res.Moved, res.AlreadyCorrect, res.Errors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would move without touching anything")

	return cmd
}
