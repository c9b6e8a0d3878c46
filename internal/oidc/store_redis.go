package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "govbr:code:"

// RedisStore keeps codes in Redis so several server replicas can share them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client, redisKeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// SaveAuthCode stores the code with SET NX, expiring with the code.
func (s *RedisStore) SaveAuthCode(ctx context.Context, code *AuthCode) error {
	ttl := timeUntil(code)
	if ttl < 0 {
		return fmt.Errorf("save auth code: already expired")
	}
	payload, err := json.Marshal(code)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(code.CodeHash), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("save auth code: %w", err)
	}
	if !ok {
		return ErrCodeExists
	}
	return nil
}

// ConsumeAuthCode reads and deletes the code with a single GETDEL.
func (s *RedisStore) ConsumeAuthCode(ctx context.Context, codeHash string) (*AuthCode, error) {
	val, err := s.client.GetDel(ctx, s.key(codeHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume auth code: %w", err)
	}
	var code AuthCode
	if err := json.Unmarshal([]byte(val), &code); err != nil {
		return nil, fmt.Errorf("decode auth code: %w", err)
	}
	return &code, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(codeHash string) string {
	return s.prefix + codeHash
}
