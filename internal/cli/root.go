// Package cli implements portfolioctl, the administrative companion to the
// server: schema migrations, one-off data migrations and on-demand
// reconciliation runs.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/InverskProperty/propsk-sub012/internal/app"
	"github.com/InverskProperty/propsk-sub012/internal/config"
	"github.com/InverskProperty/propsk-sub012/internal/logger"
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "portfolioctl",
		Short: "Administrative CLI for portfolio assignments and tag reconciliation",
		Long: `portfolioctl runs the maintenance operations of the portfolio service
outside the HTTP API: schema migrations, tag-name and legacy-reference
migrations, reconciliation passes and analytics snapshots.

Configuration is read from the same environment variables as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Int64("as", 0, "Actor ID recorded on changes (defaults to SYSTEM_ACTOR_ID)")
	root.PersistentFlags().Bool("json", false, "Print results as JSON")

	root.AddCommand(
		newMigrateCmd(),
		newMigrateTagsCmd(),
		newMigrateLegacyCmd(),
		newSyncCmd(),
		newAdoptTagsCmd(),
		newAnalyticsCmd(),
		newStatsCmd(),
	)
	return root
}

type runFunc func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error

type bootstrapOptions struct {
	// skipMigrations leaves schema changes to the migrate command.
	skipMigrations bool
}

// withApp loads configuration, builds the App and closes it afterwards.
func withApp(opts bootstrapOptions, fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if opts.skipMigrations {
			cfg.Database.AutoMigrate = false
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := logger.NewWithWriter(cfg.Server.Env, cmd.ErrOrStderr())

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialise application: %w", err)
		}
		defer a.Close()

		return fn(ctx, a, cmd, args)
	}
}

// actorFor returns --as, or the configured system actor.
func actorFor(cmd *cobra.Command, a *app.App) int64 {
	if as, err := cmd.Flags().GetInt64("as"); err == nil && as > 0 {
		return as
	}
	return a.Config.Scheduler.SystemActorID
}

// printResult writes v as JSON when --json is set, otherwise the summary line.
func printResult(cmd *cobra.Command, v interface{}, summary string) error {
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, summary)
	return err
}

func printErrors(out io.Writer, errs []string) {
	for _, e := range errs {
		fmt.Fprintf(out, "  - %s\n", e)
	}
}
