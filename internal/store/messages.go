package store

import (
	"context"
	"fmt"
	"time"
)

// Message is one row of the shared chat log, addressed by a monotonic ID.
// The orchestrator's dual cursors (last_ingest_cursor, last_agent_cursor)
// use created_at, not the ID, as their watermark.
type Message struct {
	ID         int64     `db:"id"`
	ChatID     string    `db:"chat_id"`
	Channel    string    `db:"channel"`
	SenderID   string    `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	Text       string    `db:"text"`
	IsFromBot  bool      `db:"is_from_bot"`
	CreatedAt  time.Time `db:"created_at"`
}

// InsertMessage appends a message and returns its assigned ID.
func (s *Store) InsertMessage(ctx context.Context, m Message) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (chat_id, channel, sender_id, sender_name, text, is_from_bot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?);
		`, m.ChatID, m.Channel, m.SenderID, m.SenderName, m.Text, m.IsFromBot, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", wrap(err))
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted message id: %w", wrap(err))
		}
		return nil
	})
	return id, err
}

// MessagesAfter returns every message for (chatID, channel) with
// created_at strictly greater than afterCursor, ordered oldest first. This
// is the chat's missed window once last_agent_cursor[chatID] is passed as
// afterCursor; callers truncate to MAX_CONTEXT_MESSAGES themselves so the
// truncation rule (keep the most recent N) stays visible at the call site.
func (s *Store) MessagesAfter(ctx context.Context, chatID, channel string, afterCursor time.Time) ([]Message, error) {
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE chat_id = ? AND channel = ? AND created_at > ?
		ORDER BY created_at ASC, id ASC;
	`, chatID, channel, afterCursor)
	if err != nil {
		return nil, fmt.Errorf("messages after cursor: %w", wrap(err))
	}
	return msgs, nil
}

// MessagesSince returns every message across all chats with created_at
// strictly greater than afterCursor, ordered oldest first. This is the
// orchestrator loop's ingest query: it scans the whole log once per tick
// and groups the result by chat itself.
func (s *Store) MessagesSince(ctx context.Context, afterCursor time.Time) ([]Message, error) {
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE created_at > ?
		ORDER BY created_at ASC, id ASC;
	`, afterCursor)
	if err != nil {
		return nil, fmt.Errorf("messages since cursor: %w", wrap(err))
	}
	return msgs, nil
}

// MaxMessageID returns the highest message id in the log, or 0 if empty.
// Nothing in the orchestrator clamps cursors with it; the cursors are
// created_at timestamps, not message ids.
func (s *Store) MaxMessageID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM messages;`); err != nil {
		return 0, fmt.Errorf("max message id: %w", wrap(err))
	}
	return id, nil
}
