package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/migrate"
	"taskmaster-lite/internal/sqldb"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

// newMigrateCmd creates the migrate command with subcommands.
func newMigrateCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate project layout and storage",
		Long: `Migrate a project between layouts and storage backends.

Subcommands:
  layout  Copy a flat project (tasks/, prd/, templates/) into .taskmaster/
  db      Copy the JSON indices into the SQLite database
  schema  Bring the database schema up to date`,
	}

	cmd.AddCommand(newMigrateLayoutCmd(provider))
	cmd.AddCommand(newMigrateDBCmd(provider))
	cmd.AddCommand(newMigrateSchemaCmd(provider))

	return cmd
}

// newMigrateLayoutCmd runs without the App: the project may still be in the
// flat layout, which the App would otherwise open as is.
func newMigrateLayoutCmd(provider *AppProvider) *cobra.Command {
	var preserve bool

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Copy a flat project into .taskmaster/",
		Long: `Copy tasks/, prd/, templates/, .taskmasterconfig and
scripts/*complexity-report*.json into .taskmaster/. Recorded PRD paths are
rewritten to the new location. Runs only when tasks/ exists and
.taskmaster/tasks does not.

The originals are removed unless --preserve-old is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := provider.projectRoot()
			if err != nil {
				return err
			}
			logger := logging.FromConfig(provider.errOut(), provider.LogLevel, provider.LogFormat)

			res, err := migrate.MigrateDirectoryStructureWithResult(root, preserve, migrate.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("layout migration failed: %w", err)
			}
			out := provider.out()
			if provider.JSONOutput {
				return json.NewEncoder(out).Encode(res)
			}
			if !res.Migrated {
				fmt.Fprintln(out, "Nothing to migrate.")
				return nil
			}
			fmt.Fprintf(out, "Migrated %d files into .taskmaster (%d PRD paths rewritten)\n", res.CopiedFiles, res.RewrittenPRDs)
			for _, r := range res.Removed {
				fmt.Fprintf(out, "  removed %s\n", r)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&preserve, "preserve-old", false, "Keep the original files")

	return cmd
}

// withDatabase runs fn on the project database, reusing the App's
// connection on the sqlite backend.
func withDatabase(ctx context.Context, app *App, fn func(*sqlx.DB) error) error {
	if app.DB != nil {
		return fn(app.DB)
	}
	db, err := sqldb.Open(ctx, databasePath(app.Layout, app.ConfigStore))
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func newMigrateDBCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Copy the JSON indices into the SQLite database",
		Long: `Insert every task and PRD of the JSON indices that the database does not
hold yet. Running it again inserts nothing. A record that fails is
reported and the rest continue. When anything was inserted, a timestamped
backup of tasks.json is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var res *migrate.Result
			err = withDatabase(ctx, app, func(db *sqlx.DB) error {
				var err error
				res, err = migrate.MigrateJSONToDatabase(ctx, app.Layout.Root, db, migrate.WithLogger(app.Logger))
				return err
			})
			if err != nil {
				return fmt.Errorf("database migration failed: %w", err)
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(res)
			}
			fmt.Fprintf(app.Out, "Tasks: %d migrated, %d already present\n", res.TasksMigrated, res.TasksSkipped)
			fmt.Fprintf(app.Out, "PRDs:  %d migrated, %d already present\n", res.PRDsMigrated, res.PRDsSkipped)
			if res.Failed > 0 {
				fmt.Fprintf(app.Out, "%s %d records failed:\n", app.WarnColor("Warning:"), res.Failed)
				for _, e := range res.Errors {
					fmt.Fprintf(app.Out, "  - %s\n", e)
				}
			}
			if res.BackupPath != "" {
				fmt.Fprintf(app.Out, "Backup written to %s\n", res.BackupPath)
			}
			return nil
		},
	}

	return cmd
}

func newMigrateSchemaCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var res *migrate.SchemaResult
			err = withDatabase(ctx, app, func(db *sqlx.DB) error {
				var err error
				res, err = migrate.MigrateSchema(ctx, db)
				return err
			})
			if err != nil {
				return err
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(res)
			}
			if len(res.AddedColumns) == 0 && res.Backfilled == 0 {
				fmt.Fprintln(app.Out, "Schema is up to date.")
				return nil
			}
			fmt.Fprintf(app.Out, "Added columns: %v; backfilled %d rows\n", res.AddedColumns, res.Backfilled)
			return nil
		},
	}

	return cmd
}

