package oidc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/providentiaww/govbr-oidc-mock/internal/cache"
)

var (
	// ErrCodeNotFound is returned when a code was never issued, was already
	// consumed or has expired.
	ErrCodeNotFound = errors.New("authorization code not found")
	// ErrCodeExists is returned when saving would overwrite a live code.
	ErrCodeExists = errors.New("authorization code already exists")
)

// CodeStore persists authorization codes. Consume must be atomic: of any
// number of concurrent calls for one code, at most one returns it.
type CodeStore interface {
	SaveAuthCode(ctx context.Context, code *AuthCode) error
	ConsumeAuthCode(ctx context.Context, codeHash string) (*AuthCode, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps codes in process memory.
type MemoryStore struct {
	codes *cache.SimpleCache
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: cache.NewSimpleCache()}
}

// SaveAuthCode stores code until consumed or until its lifetime runs out.
// Expired codes nobody redeemed are dropped on the way.
func (s *MemoryStore) SaveAuthCode(_ context.Context, code *AuthCode) error {
	ttl := timeUntil(code)
	if ttl < 0 {
		return fmt.Errorf("save auth code: already expired")
	}
	s.codes.Purge()
	if !s.codes.SetNX(code.CodeHash, *code, ttl) {
		return ErrCodeExists
	}
	return nil
}

// ConsumeAuthCode retrieves and deletes an auth code.
func (s *MemoryStore) ConsumeAuthCode(_ context.Context, codeHash string) (*AuthCode, error) {
	val, ok := s.codes.Take(codeHash)
	if !ok {
		return nil, ErrCodeNotFound
	}
	code := val.(AuthCode)
	return &code, nil
}

// Len returns the number of codes held, expired ones included.
func (s *MemoryStore) Len() int {
	return s.codes.Len()
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.codes.Clear()
	return nil
}

// NewStoreFromEnv picks a backend from CODE_STORE (memory, redis, postgres).
func NewStoreFromEnv(ctx context.Context) (CodeStore, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CODE_STORE")))
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when CODE_STORE=redis")
		}
		return NewRedisStore(ctx, redisURL)
	case "postgres":
		connString := os.Getenv("DATABASE_URL")
		if connString == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when CODE_STORE=postgres")
		}
		return NewPostgresStore(ctx, connString)
	default:
		return nil, fmt.Errorf("unknown CODE_STORE %q", backend)
	}
}

// timeUntil is the lifetime of code measured from its CreatedAt: zero when
// it never expires, negative when it expired before it was created.
func timeUntil(code *AuthCode) time.Duration {
	if code.ExpiresAt.IsZero() {
		return 0
	}
	issued := code.CreatedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	if ttl := code.ExpiresAt.Sub(issued); ttl > 0 {
		return ttl
	}
	return -1
}
