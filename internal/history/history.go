// Package history stores per-session conversation turns, grounded on
// original_source's services/history_service.py: a Redis list per session
// keyed session:{id}, refreshed to a 1-hour TTL on every append.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vanta-voice/gateway/internal/providers"
)

const sessionTTL = time.Hour

// Store appends and retrieves the recent turns of a session.
type Store interface {
	Append(ctx context.Context, sessionID string, msg providers.Message) error
	Recent(ctx context.Context, sessionID string, limit int) ([]providers.Message, error)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// RedisStore is the production Store.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("history: invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msg providers.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, sessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, limit int) ([]providers.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, sessionKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeAll(raw)
}

func decodeAll(raw []string) ([]providers.Message, error) {
	msgs := make([]providers.Message, 0, len(raw))
	for _, r := range raw {
		var m providers.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// MemStore is an in-memory Store used by tests.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string][]providers.Message
}

func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]providers.Message)}
}

func (s *MemStore) Append(ctx context.Context, sessionID string, msg providers.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	return nil
}

func (s *MemStore) Recent(ctx context.Context, sessionID string, limit int) ([]providers.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sessions[sessionID]
	if limit <= 0 || limit >= len(all) {
		out := make([]providers.Message, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]providers.Message, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}
