package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/versions"

	"github.com/spf13/cobra"
)

// newVersionsCmd creates the versions command with subcommands.
func newVersionsCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Inspect PRD version history",
		Long: `Inspect the version history recorded for each PRD.

A version is recorded whenever a PRD's file content or status changes
through tm. Disable tracking with 'tm config set versions.enabled false'.

Subcommands:
  history  List the versions of a PRD, newest first
  compare  Show the fields that differ between two versions
  track    Record a version for every PRD that changed`,
	}

	cmd.AddCommand(newVersionsHistoryCmd(provider))
	cmd.AddCommand(newVersionsCompareCmd(provider))
	cmd.AddCommand(newVersionsTrackCmd(provider))

	return cmd
}

func newVersionsHistoryCmd(provider *AppProvider) *cobra.Command {
	var (
		filter     versions.Filter
		changeType string
	)

	cmd := &cobra.Command{
		Use:   "history <prd-id>",
		Short: "List the versions of a PRD, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			filter.ChangeType = versions.ChangeType(changeType)

			res, err := app.Service.GetVersionHistory(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(res)
			}
			fmt.Fprintf(app.Out, "%s: %d versions\n", res.PRDID, res.Total)
			for _, v := range res.Versions {
				fmt.Fprintf(app.Out, "  v%-3d %s  %-8s %-12s %s\n",
					v.Version, v.Timestamp.Format("2006-01-02 15:04:05"), v.ChangeType, v.Status, v.Author)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Show at most this many versions")
	cmd.Flags().StringVar(&changeType, "type", "", "Only versions of this change type (created, content, status, restamp, moved)")
	cmd.Flags().StringVar(&filter.Author, "author", "", "Only versions recorded by this author")

	return cmd
}

func newVersionsCompareCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <prd-id> <v1> <v2>",
		Short: "Show the fields that differ between two versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			v1, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[1])
			}
			v2, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[2])
			}

			cmp, err := app.Service.CompareVersions(cmd.Context(), args[0], v1, v2)
			if err != nil {
				return err
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(cmp)
			}
			if cmp.Identical() {
				fmt.Fprintf(app.Out, "v%d and v%d are identical\n", v1, v2)
				return nil
			}
			for _, c := range cmp.Changes {
				fmt.Fprintf(app.Out, "%-16s %s -> %s\n", c.Field, c.From, c.To)
			}
			return nil
		},
	}

	return cmd
}

func newVersionsTrackCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Record a version for every PRD that changed",
		Long: `Scan every PRD and record a version for each whose file hash or status
differs from its latest version. PRDs edited outside tm are picked up here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			items, err := app.Service.TrackVersions(cmd.Context())
			if err != nil {
				return err
			}
			tally := metastore.TallyOf(items)
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(map[string]any{
					"items":   items,
					"summary": tally,
				})
			}
			for _, it := range items {
				if it.Outcome != metastore.OutcomeSkipped {
					fmt.Fprintf(app.Out, "%-8s %s %s\n", it.Outcome, it.ID, it.Message)
				}
			}
			fmt.Fprintln(app.Out, tallyLine(tally))
			return nil
		},
	}

	return cmd
}
