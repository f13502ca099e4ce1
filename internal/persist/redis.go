package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chadiek/glass-bridge/internal/session"
)

// redisStore keeps each session's turns in a capped list and its last
// activity time in a plain key, both expiring after ttl.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int64
	now    func() time.Time
}

func conversationKey(sessionID string) string { return "glass:conversation:" + sessionID }
func updatedAtKey(sessionID string) string    { return "glass:session:" + sessionID + ":updated_at" }

func (s *redisStore) SaveConversationEntry(ctx context.Context, sessionID string, e session.ConversationEntry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := conversationKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		pipe.LTrim(ctx, key, -s.maxLen, -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *redisStore) TouchSessionUpdatedAt(ctx context.Context, sessionID string) error {
	return s.client.Set(ctx, updatedAtKey(sessionID), s.now().UTC().Format(time.RFC3339Nano), s.ttl).Err()
}

// entries returns a session's stored turns, oldest first.
func (s *redisStore) entries(ctx context.Context, sessionID string) ([]session.ConversationEntry, error) {
	vals, err := s.client.LRange(ctx, conversationKey(sessionID), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]session.ConversationEntry, 0, len(vals))
	for _, v := range vals {
		var e session.ConversationEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *redisStore) Close() error { return s.client.Close() }
