package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
)

// EnsureDatabase creates the service database if it does not exist yet,
// using an admin connection. Called once at start-up when an admin DSN is
// configured; a no-op otherwise.
func EnsureDatabase(adminDSN, dbName string) error {
	if adminDSN == "" {
		return nil
	}
	if !validDatabaseName(dbName) {
		return fmt.Errorf("invalid database name: %q", dbName)
	}

	db, err := sql.Open("postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to admin database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping admin database: %w", err)
	}

	var exists bool
	err = db.QueryRow(`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if exists {
		slog.Debug("database already exists", "database", dbName)
		return nil
	}

	slog.Info("creating database", "database", dbName)

	// CREATE DATABASE does not accept parameters; the name is validated
	// above.
	if _, err := db.Exec(fmt.Sprintf(`CREATE DATABASE %q`, dbName)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	return nil
}

// validDatabaseName allows lowercase identifiers with underscores only.
func validDatabaseName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			return false
		}
	}
	return !strings.ContainsAny(name[:1], "0123456789")
}
