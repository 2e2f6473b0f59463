package grants

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all grant migrations. The org_nodes table must exist
// first, so hierarchy migrations run before these.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create org_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_grants (
					id UUID PRIMARY KEY,
					actor_id UUID NOT NULL,
					node_id UUID NOT NULL REFERENCES org_nodes(id),
					node_path TEXT NOT NULL,
					role VARCHAR(20) NOT NULL,
					inherit_to_descendants BOOLEAN NOT NULL DEFAULT FALSE,
					valid_from TIMESTAMP NOT NULL DEFAULT NOW(),
					valid_until TIMESTAMP,
					granted_by UUID,
					revoked_by UUID,
					revoked_at TIMESTAMP,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_org_grants_active_pair ON org_grants(actor_id, node_id) WHERE is_active;
				CREATE INDEX idx_org_grants_actor_id ON org_grants(actor_id);
				CREATE INDEX idx_org_grants_node_id ON org_grants(node_id);
				CREATE INDEX idx_org_grants_node_path ON org_grants(node_path);
				CREATE INDEX idx_org_grants_valid_until ON org_grants(valid_until);
			`,
		},
	}
}

// RunMigrations executes all pending grant migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS grants_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM grants_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		fmt.Printf("Running grants migration %d: %s\n", migration.Version, migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO grants_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
