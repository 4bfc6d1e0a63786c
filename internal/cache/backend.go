// Package cache holds the conversation cache: a per-session ordered list of
// turns kept as one JSON blob with a sliding TTL. The cache is never
// authoritative; the durable history store is.
package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Backend is the key/value store behind ConversationCache.
type Backend interface {
	// Get returns (value, true, nil) on a hit and (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// RedisBackend stores values in Redis with per-key expiry.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend wraps an existing client. The caller owns the client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// MemoryBackend keeps values in process memory. It is used when no Redis URL
// is configured and in tests.
type MemoryBackend struct {
	c *gocache.Cache
}

// NewMemoryBackend returns a backend whose expired entries are swept every
// cleanup interval.
func NewMemoryBackend(cleanup time.Duration) *MemoryBackend {
	return &MemoryBackend{c: gocache.New(gocache.NoExpiration, cleanup)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil, false, errors.New("cache: unexpected value type")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	b.c.Set(key, cp, ttl)
	return nil
}

func (b *MemoryBackend) Del(_ context.Context, key string) error {
	b.c.Delete(key)
	return nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }
