package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

func newMigrateCommand() *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Run database migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ExitOnError),
		Run:         runMigrate,
	}

	cmd.Flags.String("db-url", "", "PostgreSQL connection URL")

	return cmd
}

func runMigrate(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbURL := flags.String("db-url", getEnv("ORGSCOPE_POSTGRES_URL", defaultDBURL), "PostgreSQL connection URL")

	if err := flags.Parse(args); err != nil {
		return err
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrateAll(context.Background(), db); err != nil {
		return err
	}

	fmt.Println("All migrations applied")
	return nil
}

// migrateAll applies every package's migrations in dependency order. All of
// them are idempotent, so repeated runs are safe.
func migrateAll(ctx context.Context, db *sql.DB) error {
	if err := hierarchy.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("hierarchy migrations failed: %w", err)
	}
	if err := grants.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("grants migrations failed: %w", err)
	}
	if err := directory.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("directory migrations failed: %w", err)
	}
	if err := audit.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("audit migrations failed: %w", err)
	}
	return nil
}
