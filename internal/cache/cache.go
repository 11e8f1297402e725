// Package cache implements the content cache the router consults before an
// LLM call when a session has no prior turn history, grounded on
// original_source's services/cache_service.py. Keys are
// cache:{version}:{md5(query+":"+systemPrompt)}; the teacher's redis/go-redis
// dependency backs the production Store, with an in-memory Store for tests.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersion = "v1"
	cacheTTL     = 24 * time.Hour
)

// Store looks up and stores cached completions for a given query + system prompt.
type Store interface {
	Get(ctx context.Context, query, systemPrompt string) (string, bool, error)
	Set(ctx context.Context, query, systemPrompt, response string) error
}

func key(query, systemPrompt string) string {
	sum := md5.Sum([]byte(query + ":" + systemPrompt))
	return fmt.Sprintf("cache:%s:%s", cacheVersion, hex.EncodeToString(sum[:]))
}

// RedisStore is the production Store, backed by a connection pool capped at
// 10 connections (cache_service.py's max_connections=10).
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis url: %w", err)
	}
	opts.PoolSize = 10
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Get(ctx context.Context, query, systemPrompt string) (string, bool, error) {
	val, err := s.client.Get(ctx, key(query, systemPrompt)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, query, systemPrompt, response string) error {
	return s.client.Set(ctx, key(query, systemPrompt), response, cacheTTL).Err()
}

// MemStore is an in-memory Store used by tests and by callers without a
// configured Redis instance.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]string)}
}

func (s *MemStore) Get(ctx context.Context, query, systemPrompt string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key(query, systemPrompt)]
	return v, ok, nil
}

func (s *MemStore) Set(ctx context.Context, query, systemPrompt, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(query, systemPrompt)] = response
	return nil
}
