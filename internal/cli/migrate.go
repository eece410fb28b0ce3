package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/InverskProperty/propsk-sub012/internal/app"
	"github.com/InverskProperty/propsk-sub012/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		Long: `Migrate applies the embedded SQL migrations to the configured Postgres
database. It is safe to run repeatedly; applied migrations are skipped.

Use --status to print the current schema version without migrating.`,
		RunE: withApp(bootstrapOptions{skipMigrations: true}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			if a.DB == nil {
				return fmt.Errorf("migrate requires STORE_DRIVER=postgres")
			}
			out := cmd.OutOrStdout()

			if !status {
				if err := a.DB.Migrate(ctx); err != nil {
					return err
				}
			}
			version, err := a.DB.MigrationVersion(ctx)
			if err != nil {
				return err
			}
			names, err := database.Migrations()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Schema version: %d (%d migrations embedded)\n", version, len(names))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&status, "status", false, "Show the current schema version only")
	return cmd
}

func newMigrateTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-tags",
		Short: "Resolve stored tag names into external tag IDs",
		Long: `Migrate-tags finds portfolios and blocks whose stored tag reference is a
tag name rather than an external ID, resolves each against the tagging
platform and stores the ID. Requires the tag integration.`,
		RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			if err := a.RequireTags(); err != nil {
				return err
			}
			result, err := a.Portfolios.MigrateTagNamesToIDs(ctx, actorFor(cmd, a))
			if err != nil {
				return err
			}
			if err := printResult(cmd, result, result.Summary()); err != nil {
				return err
			}
			printErrors(cmd.ErrOrStderr(), result.Errors)
			return nil
		}),
	}
}

func newMigrateLegacyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-legacy",
		Short: "Turn legacy property portfolio pointers into assignments",
		RunE: withApp(bootstrapOptions{}, func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			result, err := a.Portfolios.MigrateLegacyReferences(ctx, actorFor(cmd, a))
			if err != nil {
				return err
			}
			if err := printResult(cmd, result, result.Summary()); err != nil {
				return err
			}
			printErrors(cmd.ErrOrStderr(), result.Errors)
			return nil
		}),
	}
}
