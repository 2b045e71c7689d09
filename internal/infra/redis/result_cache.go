package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache stores adjudication results and derived reports in Redis under
// namespaced keys with a TTL. A shared Redis lets every node benefit from a
// fingerprint any node has already executed.
type ResultCache struct {
	client *redis.Client
}

func NewResultCache(client *redis.Client) *ResultCache {
	return &ResultCache{client: client}
}

func (c *ResultCache) key(namespace, key string) string {
	return "exam:cache:" + namespace + ":" + key
}

func (c *ResultCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *ResultCache) Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(namespace, key), value, ttl).Err()
}
