package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"taskmaster-lite/internal/metastore"

	"github.com/spf13/cobra"
)

// StatsOutput is the JSON output of stats for a single PRD.
type StatsOutput struct {
	PRDID string              `json:"prdId"`
	Stats metastore.TaskStats `json:"taskStats"`
}

// newStatsCmd creates the stats command.
func newStatsCmd(provider *AppProvider) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "stats [prd-id]",
		Short: "Show PRD task statistics",
		Long: `With a PRD id, recompute that PRD's task statistics from the task list
and print them. Without one, print a summary of all PRDs; --refresh
recomputes every PRD's statistics first.

Statistics never change a PRD's status; use 'tm sync-status' for that.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				res := app.Service.UpdatePrdTaskStatistics(ctx, args[0])
				if !res.Success {
					return res.Err
				}
				if app.JSON {
					return json.NewEncoder(app.Out).Encode(StatsOutput{PRDID: args[0], Stats: *res.Data})
				}
				s := res.Data
				fmt.Fprintf(app.Out, "PRD %s\n", args[0])
				fmt.Fprintf(app.Out, "  Total:        %d\n", s.TotalTasks)
				fmt.Fprintf(app.Out, "  Completed:    %d\n", s.CompletedTasks)
				fmt.Fprintf(app.Out, "  In progress:  %d\n", s.InProgressTasks)
				fmt.Fprintf(app.Out, "  Pending:      %d\n", s.PendingTasks)
				fmt.Fprintf(app.Out, "  Blocked:      %d\n", s.BlockedTasks)
				fmt.Fprintf(app.Out, "  Completion:   %d%%\n", s.CompletionPercentage)
				return nil
			}

			if refresh {
				n, err := app.Service.RefreshAllStatistics(ctx)
				if err != nil {
					return fmt.Errorf("refreshing statistics: %w", err)
				}
				app.Logger.Info("refreshed prd statistics", "changed", n)
			}
			agg, err := app.Service.Statistics(ctx)
			if err != nil {
				return fmt.Errorf("loading PRDs: %w", err)
			}
			if app.JSON {
				return json.NewEncoder(app.Out).Encode(agg)
			}
			fmt.Fprintf(app.Out, "PRDs:               %d\n", agg.TotalPRDs)
			for _, st := range metastore.PRDStatuses {
				fmt.Fprintf(app.Out, "  %-17s %d\n", st+":", agg.ByStatus[st])
			}
			if len(agg.ByPriority) > 0 {
				fmt.Fprintf(app.Out, "By priority:        %s\n", counts(agg.ByPriority))
			}
			if len(agg.ByComplexity) > 0 {
				fmt.Fprintf(app.Out, "By complexity:      %s\n", counts(agg.ByComplexity))
			}
			fmt.Fprintf(app.Out, "Linked tasks:       %d\n", agg.TotalLinkedTasks)
			fmt.Fprintf(app.Out, "Average completion: %d%%\n", agg.AverageCompletion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Recompute every PRD's statistics before summarizing")

	return cmd
}

func counts[K ~string](m map[K]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, m[K(k)])
	}
	return out
}
