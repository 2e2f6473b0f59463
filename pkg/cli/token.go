package cli

import (
	"flag"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/orgscope/pkg/auth"
)

func newTokenCommand() *Command {
	return &Command{
		Name:        "token",
		Description: "Manage service tokens (issue, revoke, list)",
		Flags:       flag.NewFlagSet("token", flag.ExitOnError),
		Run:         runToken,
	}
}

func runToken(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("token requires a subcommand: issue, revoke or list")
	}

	switch args[0] {
	case "issue":
		return runTokenIssue(args[1:])
	case "revoke":
		return runTokenRevoke(args[1:])
	case "list":
		return runTokenList(args[1:])
	default:
		return fmt.Errorf("unknown token subcommand: %s", args[0])
	}
}

func runTokenIssue(args []string) error {
	flags := flag.NewFlagSet("token issue", flag.ExitOnError)
	file := flags.String("file", getEnv("ORGSCOPE_TOKEN_FILE", ""), "Token file path")
	actor := flags.String("actor", "", "Actor id the token authenticates as")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("file is required")
	}
	actorID, err := uuid.Parse(*actor)
	if err != nil {
		return fmt.Errorf("invalid actor id %q: %w", *actor, err)
	}

	tokens, err := auth.LoadTokenFile(*file)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(actorID)
	if err != nil {
		return err
	}
	if err := tokens.Save(); err != nil {
		return err
	}

	fmt.Printf("Issued token for %s (shown once):\n%s\n", actorID, token)
	return nil
}

func runTokenRevoke(args []string) error {
	flags := flag.NewFlagSet("token revoke", flag.ExitOnError)
	file := flags.String("file", getEnv("ORGSCOPE_TOKEN_FILE", ""), "Token file path")
	prefix := flags.String("prefix", "", "Display prefix of the token to revoke")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("file is required")
	}
	if *prefix == "" {
		return fmt.Errorf("prefix is required")
	}

	tokens, err := auth.LoadTokenFile(*file)
	if err != nil {
		return err
	}
	removed := tokens.Revoke(*prefix)
	if removed == 0 {
		return fmt.Errorf("no token matches prefix %q", *prefix)
	}
	if err := tokens.Save(); err != nil {
		return err
	}

	fmt.Printf("Revoked %d token(s)\n", removed)
	return nil
}

func runTokenList(args []string) error {
	flags := flag.NewFlagSet("token list", flag.ExitOnError)
	file := flags.String("file", getEnv("ORGSCOPE_TOKEN_FILE", ""), "Token file path")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("file is required")
	}

	tokens, err := auth.LoadTokenFile(*file)
	if err != nil {
		return err
	}

	entries := tokens.Entries()
	if len(entries) == 0 {
		fmt.Println("No tokens")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("  %-20s %s\n", e.Prefix, e.ActorID)
	}
	return nil
}
