package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IngestCursor returns the global last_ingest_cursor, or the zero time if
// the loop has never run before.
func (s *Store) IngestCursor(ctx context.Context) (time.Time, error) {
	var cursor time.Time
	err := s.db.GetContext(ctx, &cursor, `SELECT cursor FROM ingest_cursor WHERE id = 0;`)
	if isNoRows(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get ingest cursor: %w", wrap(err))
	}
	return cursor, nil
}

// SetIngestCursor persists the global last_ingest_cursor.
func (s *Store) SetIngestCursor(ctx context.Context, at time.Time) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO ingest_cursor (id, cursor, updated_at)
			VALUES (0, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				cursor = excluded.cursor,
				updated_at = CURRENT_TIMESTAMP;
		`, at)
		if err != nil {
			return fmt.Errorf("set ingest cursor: %w", wrap(err))
		}
		return nil
	})
}

// AgentCursor returns last_agent_cursor[folder], or the zero time if the
// folder's agent has never successfully run.
func (s *Store) AgentCursor(ctx context.Context, folder string) (time.Time, error) {
	var cursor sql.NullTime
	err := s.db.GetContext(ctx, &cursor, `SELECT last_agent_cursor FROM router_state WHERE folder = ?;`, folder)
	if isNoRows(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get agent cursor: %w", wrap(err))
	}
	if !cursor.Valid {
		return time.Time{}, nil
	}
	return cursor.Time, nil
}

// SetAgentCursor persists last_agent_cursor[folder]. Called only after an
// agent run for folder has succeeded; a failed run must leave the prior
// value untouched (see the orchestrator loop's rollback step).
func (s *Store) SetAgentCursor(ctx context.Context, folder string, at time.Time) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO router_state (folder, last_agent_cursor, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(folder) DO UPDATE SET
				last_agent_cursor = excluded.last_agent_cursor,
				updated_at = CURRENT_TIMESTAMP;
		`, folder, at)
		if err != nil {
			return fmt.Errorf("set agent cursor: %w", wrap(err))
		}
		return nil
	})
}

// AllAgentCursors returns last_agent_cursor for every folder with router
// state recorded. Used by crash recovery to find chats whose newest
// message outran their agent cursor.
func (s *Store) AllAgentCursors(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT folder, last_agent_cursor FROM router_state;`)
	if err != nil {
		return nil, fmt.Errorf("list agent cursors: %w", wrap(err))
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var folder string
		var cursor sql.NullTime
		if err := rows.Scan(&folder, &cursor); err != nil {
			return nil, fmt.Errorf("scan agent cursor: %w", wrap(err))
		}
		if cursor.Valid {
			out[folder] = cursor.Time
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent cursor rows: %w", wrap(err))
	}
	return out, nil
}
