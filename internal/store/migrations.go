package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrate applies every pending schema migration in migrations/ through
// golang-migrate's sqlite3 backend. That backend needs the cgo mattn
// driver, so it opens its own short-lived *sql.DB against the same file
// rather than reusing Store's single modernc.org/sqlite connection — the
// long-lived runtime connection never takes on a cgo dependency.
func (s *Store) migrate(ctx context.Context) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	migrateDB, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite3.WithInstance(migrateDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("init sqlite3 migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// isNoRows reports whether err is the no-rows sentinel from database/sql,
// the signal every single-row lookup in this package maps to ErrNotFound.
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
