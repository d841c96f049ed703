package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "supply:masterdata"

// Cache is a redis read-through cache for master data lookups. Master data changes
// rarely and is read on every workflow call, so entries live for a short TTL.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(parts ...string) string {
	return cachePrefix + ":" + strings.Join(parts, ":")
}

// fetch loads a cached value or populates it using the loader. Loader errors are never
// cached, so a not-found lookup hits the database again next time.
func fetch[T any](ctx context.Context, c *Cache, key string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var value T
		if jsonErr := json.Unmarshal(raw, &value); jsonErr == nil {
			return value, nil
		}
	case !errors.Is(err, redis.Nil):
		return loader(ctx)
	}
	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	if payload, err := json.Marshal(value); err == nil {
		_ = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	return value, nil
}

// Invalidate drops every cached master data entry.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, cachePrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
