package compiler

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisSecondaryCache is an optional cross-process existence index: it
// lets a short-lived fluxctl invocation and a long-running fluxfaasd
// daemon on the same host avoid recompiling a hash the other already
// built. It is never the source of truth for an artifact's bytes — only
// for whether a path on disk might already hold them.
type RedisSecondaryCache struct {
	client *redis.Client
	key    string
}

// NewRedisSecondaryCache connects to addr and returns a secondaryCache
// backed by a single Redis hash named key.
func NewRedisSecondaryCache(addr, key string) *RedisSecondaryCache {
	if key == "" {
		key = "flux:artifacts"
	}
	return &RedisSecondaryCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (r *RedisSecondaryCache) Lookup(ctx context.Context, hash string) (string, bool) {
	path, err := r.client.HGet(ctx, r.key, hash).Result()
	if err != nil {
		return "", false
	}
	return path, true
}

func (r *RedisSecondaryCache) Store(ctx context.Context, hash, path string) error {
	return r.client.HSet(ctx, r.key, hash, path).Err()
}

// Close releases the underlying Redis connection pool.
func (r *RedisSecondaryCache) Close() error {
	return r.client.Close()
}
