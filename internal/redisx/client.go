package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// MarkOnce sets key with ttl only if absent. It returns false when the key was
// already present.
func MarkOnce(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// StatusCache keeps {"status": "..."} snapshots of orders for fast reads.
type StatusCache struct {
	RDB *redis.Client
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (string, bool) {
	s, err := c.RDB.Get(ctx, OrderStatusKey(orderID)).Result()
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

func (c *StatusCache) Set(ctx context.Context, orderID string, body []byte) {
	_ = c.RDB.Set(ctx, OrderStatusKey(orderID), body, TTLStatusCache).Err()
}
