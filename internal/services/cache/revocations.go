package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Revocations remembers session token ids that must no longer authenticate.
// An entry only needs to live until the token itself expires.
type Revocations interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

type MemoryRevocations struct {
	c *gocache.Cache
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	m.c.Set(id, struct{}{}, ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	_, ok := m.c.Get(id)
	return ok, nil
}

type RedisRevocations struct {
	client *redis.Client
	prefix string
}

func NewRedisRevocations(client *redis.Client, prefix string) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: prefix}
}

// Revocations shares the cache's connection, the client is closed with the cache.
func (r *Redis) Revocations() *RedisRevocations {
	return NewRedisRevocations(r.client, "session_revoked:")
}

func (r *RedisRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+id, "1", ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
