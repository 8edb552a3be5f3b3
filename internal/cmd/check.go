package cmd

import (
	"encoding/json"
	"fmt"

	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/prdservice"

	"github.com/spf13/cobra"
)

// newCheckCmd creates the check command.
func newCheckCmd(provider *AppProvider) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check PRD files and PRD-task links for inconsistencies",
		Long: `Check every PRD record against its file and the PRD index against the task list.

Checks for:
- PRD file missing
- File content changed since it was recorded (hash or size mismatch)
- File outside the directory of its status, or a stale recorded path
- PRD linking a task that does not exist
- Task naming a PRD that does not link it back
- Task naming a PRD that does not exist, or a different PRD than the one linking it

With --fix, hashes are re-recorded, files are moved into their status
directory and missing back-links are added. Links to missing tasks are
only reported; they are never removed automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			report, err := app.Service.PerformIntegrityCheck(cmd.Context(), prdservice.CheckOptions{AutoFix: fix})
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(report)
			}
			printReport(app, report, fix)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Repair what can be repaired unambiguously")

	return cmd
}

func printReport(app *App, report *prdservice.Report, fix bool) {
	if fixes := report.AutoFixResults; fixes != nil {
		fmt.Fprintf(app.Out, "Auto-fix: %d applied, %d skipped, %d failed\n", fixes.Applied, fixes.Skipped, fixes.Failed)
		for _, d := range fixes.Details {
			fmt.Fprintf(app.Out, "  %-8s %s %s: %s\n", d.Outcome, d.Type, subject(d.PRDID, d.TaskID.String()), d.Message)
		}
	}

	issues := report.Issues()
	fmt.Fprintf(app.Out, "Checked %d PRD files and %d tasks.\n", len(report.FileIntegrity), report.LinkingConsistency.TasksChecked)
	if len(issues) == 0 {
		fmt.Fprintln(app.Out, app.SuccessColor("No problems found."))
		return
	}

	fmt.Fprintf(app.Out, "Found %d errors and %d warnings:\n", report.Overall.ErrorCount, report.Overall.WarningCount)
	for _, is := range issues {
		sev := app.WarnColor("warning")
		if is.Severity == integrity.SeverityError {
			sev = app.ErrorColor("error")
		}
		fmt.Fprintf(app.Out, "  [%s] %s: %s\n", sev, is.Type, is.Message)
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(app.Out, "\nRecommendations:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(app.Out, "  - %s\n", r)
		}
	}
	if !fix {
		fmt.Fprintln(app.Out, "\nRun 'tm check --fix' to repair these issues.")
	}
}

func subject(prdID, taskID string) string {
	switch {
	case prdID != "" && taskID != "":
		return prdID + "/task " + taskID
	case taskID != "":
		return "task " + taskID
	default:
		return prdID
	}
}
