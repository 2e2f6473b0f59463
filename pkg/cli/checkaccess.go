package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scope"
)

func newCheckAccessCommand() *Command {
	cmd := &Command{
		Name:        "check-access",
		Description: "Resolve one access decision for an actor",
		Flags:       flag.NewFlagSet("check-access", flag.ExitOnError),
		Run:         runCheckAccess,
	}

	cmd.Flags.String("db-url", "", "PostgreSQL connection URL")
	cmd.Flags.String("actor", "", "Actor id to resolve")
	cmd.Flags.String("path", "", "Node path to check")
	cmd.Flags.String("user", "", "User id to check instead of a path")

	return cmd
}

func runCheckAccess(args []string) error {
	flags := flag.NewFlagSet("check-access", flag.ExitOnError)
	dbURL := flags.String("db-url", getEnv("ORGSCOPE_POSTGRES_URL", defaultDBURL), "PostgreSQL connection URL")
	actor := flags.String("actor", "", "Actor id to resolve")
	path := flags.String("path", "", "Node path to check")
	user := flags.String("user", "", "User id to check instead of a path")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *actor == "" {
		return fmt.Errorf("actor is required")
	}
	if (*path == "") == (*user == "") {
		return fmt.Errorf("exactly one of path or user is required")
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// One-off resolution reads straight from the database, no cache tier.
	resolver := scope.NewResolver(grants.NewStore(db), hierarchy.NewStore(db), directory.NewStore(db), nil)

	ctx := context.Background()
	var decision *scope.AccessDecision
	if *path != "" {
		decision, err = resolver.CheckPathAccess(ctx, *actor, *path)
	} else {
		decision, err = resolver.CheckUserAccess(ctx, *actor, *user)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
