package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/orgscope/pkg/auth"
	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

func newSeedCommand() *Command {
	cmd := &Command{
		Name:        "seed",
		Description: "Seed a demo hierarchy into a fresh database",
		Flags:       flag.NewFlagSet("seed", flag.ExitOnError),
		Run:         runSeed,
	}

	cmd.Flags.String("db-url", "", "PostgreSQL connection URL")
	cmd.Flags.String("token-file", "", "Token file to receive a service token for the seeded admin")

	return cmd
}

func runSeed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ExitOnError)
	dbURL := flags.String("db-url", getEnv("ORGSCOPE_POSTGRES_URL", defaultDBURL), "PostgreSQL connection URL")
	tokenFile := flags.String("token-file", getEnv("ORGSCOPE_TOKEN_FILE", ""), "Token file to receive a service token for the seeded admin")

	if err := flags.Parse(args); err != nil {
		return err
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	// Schema first so seeding works against an empty database.
	if err := migrateAll(ctx, db); err != nil {
		return err
	}
	fmt.Println("✓ Schema migrated")

	nodes := hierarchy.NewStore(db)
	grantStore := grants.NewStore(db)
	users := directory.NewStore(db)

	root, err := nodes.Create(ctx, &hierarchy.CreateNodeRequest{Name: "Acme", Code: "acme"})
	if err != nil {
		return fmt.Errorf("failed to create root node: %w", err)
	}
	eng, err := nodes.Create(ctx, &hierarchy.CreateNodeRequest{Name: "Engineering", Code: "eng", ParentID: &root.ID})
	if err != nil {
		return fmt.Errorf("failed to create engineering node: %w", err)
	}
	platform, err := nodes.Create(ctx, &hierarchy.CreateNodeRequest{Name: "Platform", Code: "platform", ParentID: &eng.ID})
	if err != nil {
		return fmt.Errorf("failed to create platform node: %w", err)
	}
	mobile, err := nodes.Create(ctx, &hierarchy.CreateNodeRequest{Name: "Mobile", Code: "mobile", ParentID: &eng.ID})
	if err != nil {
		return fmt.Errorf("failed to create mobile node: %w", err)
	}
	sales, err := nodes.Create(ctx, &hierarchy.CreateNodeRequest{Name: "Sales", Code: "sales", ParentID: &root.ID})
	if err != nil {
		return fmt.Errorf("failed to create sales node: %w", err)
	}
	fmt.Println("✓ Hierarchy seeded")

	admin, err := users.Create(ctx, &directory.CreateUserRequest{
		DisplayName: "Priya Shah",
		Email:       "priya@acme.example",
		NodeID:      root.ID,
		Title:       "Head of Operations",
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	seedUsers := []*directory.CreateUserRequest{
		{DisplayName: "Marcus Webb", Email: "marcus@acme.example", NodeID: platform.ID, Title: "Platform Engineer"},
		{DisplayName: "Lena Fischer", Email: "lena@acme.example", NodeID: mobile.ID, Title: "Mobile Engineer"},
		{DisplayName: "Tom Okafor", Email: "tom@acme.example", NodeID: sales.ID, Title: "Account Executive"},
	}
	for _, req := range seedUsers {
		if _, err := users.Create(ctx, req); err != nil {
			return fmt.Errorf("failed to create user %s: %w", req.Email, err)
		}
	}
	fmt.Println("✓ Demo users created")

	// The first admin grant is written at the store level; every later grant
	// goes through the API and its anti-escalation checks.
	if _, err := grantStore.Grant(ctx, &grants.CreateGrantRequest{
		ActorID:              admin.ID,
		NodeID:               root.ID,
		Role:                 grants.RoleAdmin,
		InheritToDescendants: true,
	}); err != nil {
		return fmt.Errorf("failed to create admin grant: %w", err)
	}
	fmt.Println("✓ Root admin grant created")

	fmt.Printf("\nSeeded nodes:\n")
	for _, n := range []*hierarchy.Node{root, eng, platform, mobile, sales} {
		fmt.Printf("  %-20s %s\n", n.Path, n.ID)
	}
	fmt.Printf("\nAdmin actor id: %s\n", admin.ID)

	if *tokenFile != "" {
		file, err := auth.LoadTokenFile(*tokenFile)
		if err != nil {
			return fmt.Errorf("failed to load token file: %w", err)
		}
		adminID, err := uuid.Parse(admin.ID)
		if err != nil {
			return fmt.Errorf("invalid admin user id: %w", err)
		}
		token, err := file.Issue(adminID)
		if err != nil {
			return fmt.Errorf("failed to issue admin token: %w", err)
		}
		if err := file.Save(); err != nil {
			return fmt.Errorf("failed to save token file: %w", err)
		}
		fmt.Printf("Admin service token (shown once): %s\n", token)
	}

	return nil
}
