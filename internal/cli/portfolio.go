package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/InverskProperty/propsk-sub012/internal/app"
)

func newAdoptTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adopt-tags",
		Short: "Create shared portfolios for unlinked external portfolio tags",
		Args:  cobra.NoArgs,
		RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			if err := a.RequireTags(); err != nil {
				return err
			}
			result, err := a.Portfolios.AdoptExternalTags(ctx, actorFor(cmd, a))
			if err != nil {
				return err
			}
			if err := printResult(cmd, result, result.Message()); err != nil {
				return err
			}
			printErrors(cmd.ErrOrStderr(), result.Errors)
			return nil
		}),
	}
}

func newAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Recompute assignment statistics for every active portfolio",
		Args:  cobra.NoArgs,
		RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			saved, err := a.Portfolios.RecalculateAnalytics(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Recalculated analytics for %d portfolios\n", saved)
			return err
		}),
	}
}

func newStatsCmd() *cobra.Command {
	var portfolioID int64

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print assignment statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			var scope *int64
			if portfolioID > 0 {
				scope = &portfolioID
			}
			stats, err := a.Assignments.Stats(ctx, scope)
			if err != nil {
				return err
			}
			return printResult(cmd, stats, fmt.Sprintf(
				"Active: %d (pending %d, synced %d, failed %d), in blocks: %d, multi-portfolio properties: %d",
				stats.TotalActive, stats.Pending, stats.Synced, stats.Failed, stats.InBlocks, stats.MultiPortfolioProperties))
		}),
	}

	cmd.Flags().Int64Var(&portfolioID, "portfolio", 0, "Limit statistics to one portfolio")
	return cmd
}
