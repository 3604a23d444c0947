package question

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Cache keeps module question pools in Redis so repeated test starts skip the document store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ PoolCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(moduleID string) string {
	return "questionpool:" + moduleID
}

// Get returns nil, nil on a cache miss.
func (c *Cache) Get(ctx context.Context, moduleID string) (*Pool, error) {
	data, err := c.client.Get(ctx, c.key(moduleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var pool Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *Cache) Set(ctx context.Context, moduleID string, pool Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(moduleID), data, c.ttl).Err()
}
