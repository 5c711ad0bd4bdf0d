package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signal-relay/internal/session"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session"

// SessionStore keeps conversation state in Redis as JSON; idle sessions expire after ttl.
type SessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionStore(client redis.Cmdable, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

func (s *SessionStore) Load(ctx context.Context, conversationID int64) (*session.Context, error) {
	data, err := s.client.Get(ctx, sessionKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.New(conversationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", conversationID, err)
	}
	var c session.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", conversationID, err)
	}
	return &c, nil
}

func (s *SessionStore) Save(ctx context.Context, c *session.Context) error {
	cp := *c
	cp.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", c.ConversationID, err)
	}
	if err := s.client.Set(ctx, sessionKey(c.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %d: %w", c.ConversationID, err)
	}
	return nil
}

func sessionKey(conversationID int64) string {
	return fmt.Sprintf("%s:%d", sessionKeyPrefix, conversationID)
}
