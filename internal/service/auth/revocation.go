package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Revocations tracks signed-out session token ids until they expire.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocations keeps revoked ids in a map pruned on write.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations constructs an empty in-process deny list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke records tokenID until the given instant.
func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, id)
		}
	}
	if now.Before(until) {
		m.entries[tokenID] = until
	}
	return nil
}

// Revoked reports whether tokenID is still on the list.
func (m *MemoryRevocations) Revoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[tokenID]
	return ok && m.now().Before(exp), nil
}

// RedisRevocations stores revoked ids as expiring keys so every API replica
// sees the same list.
type RedisRevocations struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewRedisRevocations wraps an existing client.
func NewRedisRevocations(client *redis.Client, logger *slog.Logger) *RedisRevocations {
	return &RedisRevocations{client: client, logger: logger, prefix: "anonify:revoked:"}
}

// Revoke sets a key that expires with the token.
func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+tokenID, 1, ttl).Err()
}

// Revoked checks for the key.
func (r *RedisRevocations) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		r.logger.Error("redis revocation lookup failed", "error", err)
		return false, err
	}
	return n > 0, nil
}
