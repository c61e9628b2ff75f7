package store

import (
	"context"
	"fmt"
	"time"
)

// TouchChat upserts a (chat_id, channel) row's last_message_at, keeping the
// greater of the existing and incoming timestamp so an out-of-order poll
// response can never move it backwards.
func (s *Store) TouchChat(ctx context.Context, chatID, channel string, at time.Time) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO chats (chat_id, channel, last_message_at, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(chat_id, channel) DO UPDATE SET
				last_message_at = MAX(last_message_at, excluded.last_message_at),
				updated_at = CURRENT_TIMESTAMP;
		`, chatID, channel, at)
		if err != nil {
			return fmt.Errorf("touch chat %s/%s: %w", channel, chatID, wrap(err))
		}
		return nil
	})
}
