// internal/infrastructure/cache/redis/cache.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"crypto-weather-sync/internal/infrastructure/cache/upstreamcache"
)

const defaultPrefix = "cwsync:"

// Cache - зеркало записей кэша апстрима в Redis
type Cache struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

// NewCacheWithClient создает Cache с существующим клиентом.
// retention = 0 хранит записи без срока.
func NewCacheWithClient(client redis.Cmdable, prefix string, retention time.Duration) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Cache{
		client:    client,
		prefix:    prefix,
		retention: retention,
	}
}

// Set устанавливает значение в Redis с TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Get получает значение из Redis
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// entryKey - ключ зеркала записи
func (c *Cache) entryKey(key string) string {
	return "entry:" + key
}

// LoadEntry читает зеркало записи кэша
func (c *Cache) LoadEntry(ctx context.Context, key string) (upstreamcache.Entry, bool, error) {
	var entry upstreamcache.Entry
	err := c.Get(ctx, c.entryKey(key), &entry)
	if errors.Is(err, redis.Nil) {
		return upstreamcache.Entry{}, false, nil
	}
	if err != nil {
		return upstreamcache.Entry{}, false, fmt.Errorf("redis load %s: %w", key, err)
	}
	return entry, true, nil
}

// SaveEntry заменяет зеркало записи целиком
func (c *Cache) SaveEntry(ctx context.Context, key string, entry upstreamcache.Entry) error {
	if err := c.Set(ctx, c.entryKey(key), entry, c.retention); err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}
