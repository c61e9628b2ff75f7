// Package store is the embedded persistence layer: registered groups,
// routing cursors, scheduled tasks, and the message log that feeds the
// orchestrator's context window. Everything lives in one SQLite file,
// opened in WAL mode with a single writer connection.
package store

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps the database handle shared by every table-specific file in
// this package (messages.go, chats.go, groups.go, sessions.go,
// router_state.go, tasks.go, tasklog.go).
type Store struct {
	db   *sqlx.DB
	path string
}

// DefaultPath returns the conventional database location under the given
// base directory (normally the orchestrator's data directory).
func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, "nanoclaw.db")
}

// Open creates the database directory if needed, opens the SQLite file in
// WAL mode with a single writer connection, and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", wrap(err))
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", wrap(err))
	}
	// A single connection avoids SQLITE_BUSY entirely for writes; WAL still
	// lets concurrent readers proceed against the last committed snapshot.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for packages that need raw sqlx access
// (currently only this package's own table files use it).
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, wrap(err))
		}
	}
	return nil
}

// retryOnBusy retries f when SQLite reports the database as locked or busy,
// which can still happen briefly against the WAL file during a checkpoint.
// Exponential backoff with jitter; f runs at most six times (the first try
// plus five retries).
func retryOnBusy(ctx context.Context, f func() error) error {
	const baseDelay = 25 * time.Millisecond
	const maxDelay = 400 * time.Millisecond
	const maxAttempts = 5

	var err error
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		err = f()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt == maxAttempts {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2+1)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
