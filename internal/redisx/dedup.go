package redisx

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Dedup stores processed event ids under dedup:{scope}:{id} for TTLDedup.
type Dedup struct {
	RDB *redis.Client
}

func (d *Dedup) Claim(ctx context.Context, scope, id string) (bool, error) {
	return MarkOnce(ctx, d.RDB, DedupKey(scope, id), TTLDedup)
}

func (d *Dedup) Release(ctx context.Context, scope, id string) error {
	return d.RDB.Del(ctx, DedupKey(scope, id)).Err()
}
