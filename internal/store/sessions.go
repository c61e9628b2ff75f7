package store

import (
	"context"
	"fmt"
)

// SessionID returns the sandbox session id remembered for folder, or
// ErrNotFound if the folder has never produced one (its next run starts
// fresh, with no --resume/session argument).
func (s *Store) SessionID(ctx context.Context, folder string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT session_id FROM sessions WHERE folder = ?;`, folder)
	if isNoRows(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session id: %w", wrap(err))
	}
	return id, nil
}

// SetSessionID remembers the sandbox session id a folder's agent reported
// back, overwriting whatever was stored before.
func (s *Store) SetSessionID(ctx context.Context, folder, sessionID string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (folder, session_id, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(folder) DO UPDATE SET
				session_id = excluded.session_id,
				updated_at = CURRENT_TIMESTAMP;
		`, folder, sessionID)
		if err != nil {
			return fmt.Errorf("set session id: %w", wrap(err))
		}
		return nil
	})
}

// ClearSessionID drops a folder's remembered session, forcing its next run
// to start a fresh agent session (used by scheduled tasks in "isolated" context mode).
func (s *Store) ClearSessionID(ctx context.Context, folder string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE folder = ?;`, folder)
		if err != nil {
			return fmt.Errorf("clear session id: %w", wrap(err))
		}
		return nil
	})
}
