package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps tokens under "{prefix}:{key}" so several clients can share
// one session.
//
// Redis Key Structure:
//
//	{prefix}:access_token   - current access token
//	{prefix}:refresh_token  - current refresh token
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// DialRedis connects to redisURL and verifies the connection.
func DialRedis(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStore(client, prefix), nil
}

// NewRedisStore creates a store from an existing Redis connection.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set writes all values in one transaction.
func (s *RedisStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	if err := s.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
