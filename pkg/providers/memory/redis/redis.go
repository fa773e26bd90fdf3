// Package redis implements the short-term half of the memory port: a
// per-session ring of recent turns, refreshed on every read the way a live
// session cache should behave.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

const (
	keyPrefix  = "xiaozhi:mem:"
	defaultTTL = 24 * time.Hour
	maxEntries = 40
)

// Store is a Redis-backed ring buffer of a session's recent turns.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

func New(client *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Append pushes entry onto the session's recent-turn list, trimming to the
// most recent maxEntries and refreshing the key's TTL.
func (s *Store) Append(ctx context.Context, sessionID string, entry types.HistoryEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, val)
	pipe.LTrim(ctx, key, 0, maxEntries-1)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns the session's most recent entries, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string) ([]types.HistoryEntry, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}
	s.client.Expire(ctx, s.key(sessionID), s.ttl)
	out := make([]types.HistoryEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry types.HistoryEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Clear removes a session's recent-turn cache, called at teardown once
// Summarize has persisted the durable long-term record.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("%s%s", keyPrefix, sessionID)
}
