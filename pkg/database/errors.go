package database

import "errors"

var (
	// ErrNotReady indicates the server could not be reached.
	ErrNotReady = errors.New("database not ready")
	// ErrNotMigrated indicates a table the backends need is missing. Run
	// cmd/migrate against the database.
	ErrNotMigrated = errors.New("database schema not migrated")
)
