package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefrontd/checkout-core/internal/model"
)

// RedisStore is a SessionStore backed by redis, one JSON value per user key
// with the idle TTL enforced by the key expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore using the given client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, prefix: "cart:", ttl: ttl}
}

func (s *RedisStore) key(userID string) string { return s.prefix + userID }

// Lines returns the user's working set, refreshing the key TTL on hit.
func (s *RedisStore) Lines(ctx context.Context, userID string) (map[string]model.CartLine, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return map[string]model.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart session read: %w", err)
	}
	var lines map[string]model.CartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("cart session decode: %w", err)
	}
	if err := s.client.Expire(ctx, s.key(userID), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("cart session touch: %w", err)
	}
	return lines, nil
}

// SaveLines replaces the user's working set. An empty set deletes the key.
func (s *RedisStore) SaveLines(ctx context.Context, userID string, lines map[string]model.CartLine) error {
	if len(lines) == 0 {
		return s.Drop(ctx, userID)
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("cart session encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cart session write: %w", err)
	}
	return nil
}

// Drop removes the user's working set.
func (s *RedisStore) Drop(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("cart session delete: %w", err)
	}
	return nil
}
