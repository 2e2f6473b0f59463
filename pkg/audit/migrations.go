package audit

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

// Migrations contains all audit schema migrations in order
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create audit_events table",
		SQL: `
			CREATE TABLE IF NOT EXISTS audit_events (
				id BIGSERIAL PRIMARY KEY,
				timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				event_type VARCHAR(100) NOT NULL,
				status VARCHAR(20) NOT NULL,
				actor_id UUID,
				resource_type VARCHAR(50),
				resource_id VARCHAR(255),
				resource_path VARCHAR(2048),
				request_id VARCHAR(100),
				ip_address VARCHAR(45),
				user_agent TEXT,
				method VARCHAR(10),
				http_path VARCHAR(500),
				status_code INT,
				message TEXT,
				error_message TEXT,
				details JSONB,
				changes JSONB
			);

			CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
			CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id);
			CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
			CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
			CREATE INDEX IF NOT EXISTS idx_audit_events_resource_path ON audit_events(resource_path);
		`,
	},
}

// RunMigrations applies all pending audit migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migrations tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range Migrations {
		var exists bool
		err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM audit_migrations WHERE version = $1)",
			migration.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO audit_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		fmt.Printf("Applied audit migration %d: %s\n", migration.Version, migration.Description)
	}

	return nil
}
