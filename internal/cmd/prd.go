package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/prdservice"

	"github.com/spf13/cobra"
)

// newPRDCmd creates the prd command with subcommands.
func newPRDCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prd",
		Short: "Manage PRD documents",
		Long: `Manage the PRD documents tracked in the PRD index.

Subcommands:
  add      Copy a document into the project and record it
  list     List PRDs
  show     Show one PRD
  archive  Archive a PRD
  delete   Delete a PRD (archives unless --force)
  scan     Record files found in the status directories`,
	}

	cmd.AddCommand(newPRDAddCmd(provider))
	cmd.AddCommand(newPRDListCmd(provider))
	cmd.AddCommand(newPRDShowCmd(provider))
	cmd.AddCommand(newPRDArchiveCmd(provider))
	cmd.AddCommand(newPRDDeleteCmd(provider))
	cmd.AddCommand(newPRDScanCmd(provider))

	return cmd
}

func newPRDAddCmd(provider *AppProvider) *cobra.Command {
	var (
		opts     prdservice.AddOptions
		priority string
		complex  string
	)

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Copy a document into the project and record it",
		Long: `Copy a document into .taskmaster/prd/pending/ and add it to the PRD index.
The title defaults to the document's first heading.

Examples:
  tm prd add docs/auth.md
  tm prd add billing.md --title "Billing" --priority high --tags billing,q3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			opts.Priority = metastore.Priority(priority)
			opts.Complexity = metastore.Complexity(complex)

			p, err := app.Service.AddPRD(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(p)
			}
			fmt.Fprintf(app.Out, "%s %s (%s) at %s\n", app.SuccessColor("Added"), p.ID, p.Title, p.FilePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "Title (default: first heading of the document)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Description")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority: low, medium, high, urgent")
	cmd.Flags().StringVar(&complex, "complexity", "", "Complexity: low, medium, high")
	cmd.Flags().StringSliceVar(&opts.Tags, "tags", nil, "Comma-separated tags")

	return cmd
}

func newPRDListCmd(provider *AppProvider) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List PRDs",
		Long: `List the PRDs in the index, optionally filtered by status.

Examples:
  tm prd list
  tm prd list --status in-progress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			st := metastore.PRDStatus(status)
			if st != "" && !st.Valid() {
				return fmt.Errorf("invalid status %q", status)
			}

			prds, err := app.Service.ListPRDs(cmd.Context(), st)
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(prds)
			}
			if len(prds) == 0 {
				fmt.Fprintln(app.Out, "No PRDs found")
				return nil
			}
			for _, p := range prds {
				fmt.Fprintf(app.Out, "%-14s %-12s %3d%%  %s\n", p.ID, p.Status, p.TaskStats.CompletionPercentage, p.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only PRDs with this status")

	return cmd
}

func newPRDShowCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <prd-id>",
		Short: "Show one PRD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			p, err := app.Service.GetPRD(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(p)
			}
			fmt.Fprintf(app.Out, "%s: %s\n", p.ID, p.Title)
			fmt.Fprintf(app.Out, "  Status:     %s\n", p.Status)
			fmt.Fprintf(app.Out, "  File:       %s (%d bytes)\n", p.FilePath, p.FileSize)
			fmt.Fprintf(app.Out, "  Hash:       %s\n", p.FileHash)
			if p.Priority != "" {
				fmt.Fprintf(app.Out, "  Priority:   %s\n", p.Priority)
			}
			if p.Complexity != "" {
				fmt.Fprintf(app.Out, "  Complexity: %s\n", p.Complexity)
			}
			if len(p.Tags) > 0 {
				fmt.Fprintf(app.Out, "  Tags:       %s\n", strings.Join(p.Tags, ", "))
			}
			links := make([]string, len(p.LinkedTasks))
			for i, id := range p.LinkedTasks {
				links[i] = id.String()
			}
			fmt.Fprintf(app.Out, "  Tasks:      %s\n", strings.Join(links, ", "))
			fmt.Fprintf(app.Out, "  Completion: %d%% (%d of %d)\n",
				p.TaskStats.CompletionPercentage, p.TaskStats.CompletedTasks, p.TaskStats.TotalTasks)
			return nil
		},
	}

	return cmd
}

func newPRDArchiveCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <prd-id>",
		Short: "Archive a PRD",
		Long:  `Set a PRD's status to archived and move its file into .taskmaster/prd/archived/.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			p, err := app.Service.ArchivePRD(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(p)
			}
			fmt.Fprintf(app.Out, "%s %s\n", app.SuccessColor("Archived"), p.ID)
			return nil
		},
	}

	return cmd
}

func newPRDDeleteCmd(provider *AppProvider) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <prd-id>",
		Short: "Delete a PRD",
		Long: `Without --force the PRD is archived.

With --force the file, the record and the version history are removed,
together with every task whose source is the PRD. Links to those tasks
are dropped from the remaining PRDs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			res, err := app.Service.DeletePRD(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(res)
			}
			if res.Archived {
				fmt.Fprintf(app.Out, "%s %s (use --force to delete)\n", app.SuccessColor("Archived"), res.PRDID)
				return nil
			}
			fmt.Fprintf(app.Out, "%s %s and %d tasks\n", app.SuccessColor("Deleted"), res.PRDID, len(res.RemovedTasks))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete instead of archiving")

	return cmd
}

func newPRDScanCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Record files found in the status directories",
		Long: `Add a PRD record for every file under .taskmaster/prd/<status>/ that no
PRD points at. The new PRD takes the status of its directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			items, err := app.Service.DiscoverPRDs(cmd.Context())
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(map[string]any{
					"items":   items,
					"summary": metastore.TallyOf(items),
				})
			}
			for _, it := range items {
				fmt.Fprintf(app.Out, "%-8s %s %s\n", it.Outcome, it.ID, it.Message)
			}
			fmt.Fprintln(app.Out, tallyLine(metastore.TallyOf(items)))
			return nil
		},
	}

	return cmd
}
