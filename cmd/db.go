package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/db"
	"github.com/otherjamesbrown/mailtriage/pkg/store"
)

// Database command flags
var (
	dbDryRun bool
	dbTarget string
	dbYes    bool
	dbOutput string
)

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the analysis store schema",
		Long: `Manage the PostgreSQL schema behind --store and history.

Migrations are compiled into the binary and tracked in the schema_migrations
table. Connection settings come from the database section of the config file,
DATABASE_URL, or the DB_* environment variables.

Examples:
  # Show migration status
  mailtriage db status

  # Apply all pending migrations
  mailtriage db migrate

  # Preview migrations without applying
  mailtriage db migrate --dry-run`,
		Aliases: []string{"database", "migrations"},
	}

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))

	return cmd
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand(deps *CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending database migrations.

Shows pending migrations and asks for confirmation before applying them.
Each migration runs in its own transaction; if one fails it is rolled back
and no further migrations are attempted.`,
		Example: `  mailtriage db migrate
  mailtriage db migrate --dry-run
  mailtriage db migrate --target 002 --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context(), deps, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&dbDryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().StringVarP(&dbTarget, "target", "t", "", "Target version to migrate to (e.g., 002)")
	cmd.Flags().BoolVarP(&dbYes, "yes", "y", false, "Apply without asking for confirmation")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand(deps *CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database migration status",
		Long: `Show the current state of database migrations.

  Applied   recorded in schema_migrations and compiled into this binary
  Pending   compiled in but not applied yet
  Drift     recorded as applied but unknown to this binary`,
		Example: `  mailtriage db status
  mailtriage db status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context(), deps, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&dbOutput, "format", "f", "", "Output format: text, json, yaml")

	return cmd
}

func runDbMigrate(ctx context.Context, deps *CommandDeps, in io.Reader, out io.Writer) error {
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	migrations := store.Migrations()
	pending, err := db.PendingMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("getting pending migrations: %w", err)
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(out, "Pending migrations (%d):\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %s - %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(out)

	if dbDryRun {
		fmt.Fprintln(out, "Dry run mode: no migrations applied.")
		return nil
	}

	if !dbYes && !confirm(in, out, "Apply these migrations? (y/N): ") {
		fmt.Fprintln(out, "Migration cancelled.")
		return nil
	}

	var result *db.MigrationResult
	if dbTarget != "" {
		fmt.Fprintf(out, "Applying migrations up to version %s...\n", dbTarget)
		result, err = db.RunMigrationsToTarget(ctx, pool, migrations, dbTarget)
	} else {
		fmt.Fprintln(out, "Applying all pending migrations...")
		result, err = db.RunMigrations(ctx, pool, migrations)
	}

	if err != nil {
		fmt.Fprintf(out, "\n\033[31mMigration failed:\033[0m %v\n", err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintf(out, "\nSuccessfully applied before failure:\n")
			for _, v := range result.Applied {
				fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", v)
			}
		}
		return err
	}

	fmt.Fprintln(out)
	if len(result.Applied) > 0 {
		fmt.Fprintf(out, "\033[32mSuccessfully applied %d migration(s):\033[0m\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d migration(s) (already applied):\n", len(result.Skipped))
		for _, v := range result.Skipped {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "\033[32mMigrations completed successfully.\033[0m")
	return nil
}

// confirm prints prompt and reports whether the reply was "y" or "yes".
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func runDbStatus(ctx context.Context, deps *CommandDeps, out io.Writer) error {
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	status, err := db.GetMigrationStatus(ctx, pool, store.Migrations())
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	format := deps.format()
	if dbOutput != "" {
		format = config.OutputFormat(strings.ToLower(dbOutput))
	}

	return output(out, format, status, func(w io.Writer) error {
		return outputMigrationStatusText(w, status)
	})
}

// outputMigrationStatusText formats migration status for terminal display.
func outputMigrationStatusText(w io.Writer, status *db.MigrationStatus) error {
	if len(status.Applied) > 0 {
		fmt.Fprintf(w, "\033[32mApplied Migrations (%d):\033[0m\n", len(status.Applied))
		writeMigrationTable(w, status.Applied, true)
	}

	if len(status.Pending) > 0 {
		fmt.Fprintf(w, "\033[33mPending Migrations (%d):\033[0m\n", len(status.Pending))
		writeMigrationTable(w, status.Pending, false)
	}

	if len(status.Drift) > 0 {
		fmt.Fprintf(w, "\033[31mDrift (%d) - applied but unknown to this binary:\033[0m\n", len(status.Drift))
		writeMigrationTable(w, status.Drift, true)
	}

	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return nil
	}

	fmt.Fprintf(w, "Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		fmt.Fprintf(w, ", \033[31m%d drift\033[0m", len(status.Drift))
	}
	fmt.Fprintln(w)

	return nil
}

func writeMigrationTable(w io.Writer, entries []db.MigrationStatusEntry, withApplied bool) {
	if withApplied {
		fmt.Fprintln(w, "  VERSION    NAME                              APPLIED")
		fmt.Fprintln(w, "  -------    ----                              -------")
	} else {
		fmt.Fprintln(w, "  VERSION    NAME")
		fmt.Fprintln(w, "  -------    ----")
	}
	for _, m := range entries {
		if !withApplied {
			fmt.Fprintf(w, "  %-10s %s\n", truncate(m.Version, 10), m.Name)
			continue
		}
		appliedAt := "-"
		if m.AppliedAt != nil {
			appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "  %-10s %-33s %s\n", truncate(m.Version, 10), truncate(m.Name, 33), appliedAt)
	}
	fmt.Fprintln(w)
}
