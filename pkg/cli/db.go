package cli

import (
	"database/sql"
	"fmt"
)

const defaultDBURL = "postgres://localhost/orgscope?sslmode=disable"

// openDB connects and verifies the connection. Callers own Close.
func openDB(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
