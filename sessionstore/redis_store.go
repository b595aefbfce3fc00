package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend shares pending authorizations between replicas
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session: redis ping failed: %w", err)
	}

	return NewRedisBackendFromClient(rdb, cfg.Prefix, cfg.TTL), nil
}

func NewRedisBackendFromClient(rdb *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "gitlab-login"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisBackend{client: rdb, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) Store(sessionID string) Store {
	return &redisStore{backend: b, sessionID: sessionID}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type redisStore struct {
	backend   *RedisBackend
	sessionID string
}

func (s *redisStore) key(k string) string {
	return s.backend.prefix + ":" + s.sessionID + ":" + k
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.backend.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: redis get: %w", err)
	}
	return val, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	return s.backend.client.Set(ctx, s.key(key), value, s.backend.ttl).Err()
}

func (s *redisStore) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.backend.client.Del(ctx, full...).Err()
}
