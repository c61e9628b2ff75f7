package bus

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupeCache suppresses re-delivery of the same inbound message when a
// channel's poll loop or webhook retries hands it back a second time (a
// Telegram long-poll overlap, a Discord gateway reconnect resend, a
// WhatsApp history resync). Bounded by both entry count and age so a
// long-running process never grows this without limit.
type DedupeCache struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

// NewDedupeCache creates a cache holding at most maxEntries keys, each
// valid for ttl before IsDuplicate treats it as fresh again.
func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	cache, err := lru.New[string, time.Time](maxEntries)
	if err != nil {
		// Only returns an error for maxEntries <= 0, which is a caller bug.
		panic(fmt.Sprintf("bus: invalid dedupe cache size %d: %v", maxEntries, err))
	}
	return &DedupeCache{cache: cache, ttl: ttl}
}

// Key builds the dedupe key for an inbound message: channel-scoped so the
// same native message ID from two different channels never collides.
func Key(channel, senderID, chatID, messageID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", channel, senderID, chatID, messageID)
}

// IsDuplicate reports whether key was seen within ttl, and records it as
// seen now regardless of the answer (a later duplicate updates the window
// rather than starting a separate count).
func (d *DedupeCache) IsDuplicate(key string) bool {
	now := time.Now()
	if seenAt, ok := d.cache.Get(key); ok && now.Sub(seenAt) < d.ttl {
		d.cache.Add(key, now)
		return true
	}
	d.cache.Add(key, now)
	return false
}
