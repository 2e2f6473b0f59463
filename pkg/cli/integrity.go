package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

func newIntegrityCommand() *Command {
	cmd := &Command{
		Name:        "integrity",
		Description: "Scan the hierarchy for structural issues",
		Flags:       flag.NewFlagSet("integrity", flag.ExitOnError),
		Run:         runIntegrity,
	}

	cmd.Flags.String("db-url", "", "PostgreSQL connection URL")

	return cmd
}

func runIntegrity(args []string) error {
	flags := flag.NewFlagSet("integrity", flag.ExitOnError)
	dbURL := flags.String("db-url", getEnv("ORGSCOPE_POSTGRES_URL", defaultDBURL), "PostgreSQL connection URL")

	if err := flags.Parse(args); err != nil {
		return err
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := hierarchy.NewStore(db).RunIntegrityReport(context.Background())
	if err != nil {
		return fmt.Errorf("integrity scan failed: %w", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Println(string(out))

	// An unhealthy tree exits non-zero.
	if !report.Healthy() {
		return fmt.Errorf("found %d integrity issues", len(report.Issues))
	}
	return nil
}
