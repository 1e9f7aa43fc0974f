package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces the keys written by RedisCache.
const DefaultRedisKeyPrefix = "svcrouter:"

// RedisCache stores entries in Redis so several routers can share one cache.
// Entries are written without expiry.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db).
// The connection is verified with a PING before returning.
func NewRedisCache(url, keyPrefix string) (RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return RedisCache{}, fmt.Errorf("invalid redis URL: %w", err)
	}
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return RedisCache{}, fmt.Errorf("redis connection failed: %w", err)
	}
	return RedisCache{client: client, keyPrefix: keyPrefix}, nil
}

func (c RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c RedisCache) Put(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.keyPrefix+key, value, 0).Err()
}

func (c RedisCache) Keys(ctx context.Context, cb func(string)) error {
	iter := c.client.Scan(ctx, 0, escapeGlob(c.keyPrefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if key, ok := strings.CutPrefix(iter.Val(), c.keyPrefix); ok {
			cb(key)
		}
	}
	return iter.Err()
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c RedisCache) Close() error {
	return c.client.Close()
}
