package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/InverskProperty/propsk-sub012/internal/app"
	"github.com/InverskProperty/propsk-sub012/internal/services"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run tag reconciliation on demand",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "all",
			Short: "Resolve pending tags and replay every pending or failed assignment",
			Args:  cobra.NoArgs,
			RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
				result, err := a.Sync.SyncAllNeedingSync(ctx, actorFor(cmd, a))
				if err != nil {
					return err
				}
				return printSync(cmd, result)
			}),
		},
		syncByIDCmd("portfolio", "Resolve a portfolio's tag and re-sync its assignments",
			func(a *app.App) func(context.Context, int64, int64) (*services.SyncResult, error) { return a.Sync.SyncPortfolio }),
		syncByIDCmd("block", "Resolve a block's tag and re-sync its assignments",
			func(a *app.App) func(context.Context, int64, int64) (*services.SyncResult, error) { return a.Sync.SyncBlock }),
		syncByIDCmd("assignment", "Re-sync one assignment",
			func(a *app.App) func(context.Context, int64, int64) (*services.SyncResult, error) { return a.Sync.SyncAssignment }),
	)
	return cmd
}

func syncByIDCmd(name, short string, pick func(a *app.App) func(context.Context, int64, int64) (*services.SyncResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid %s id %q", name, args[0])
			}
			result, err := pick(a)(ctx, id, actorFor(cmd, a))
			if err != nil {
				return err
			}
			return printSync(cmd, result)
		}),
	}
}

func printSync(cmd *cobra.Command, result *services.SyncResult) error {
	if err := printResult(cmd, result, result.Message()); err != nil {
		return err
	}
	printErrors(cmd.ErrOrStderr(), result.Errors)
	if !result.Success() {
		return fmt.Errorf("sync finished with %d failures", result.Failed+len(result.Errors))
	}
	return nil
}
