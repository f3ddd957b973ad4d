package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkax "github.com/ariefcatur/go-digital-library/internal/kafka"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/ariefcatur/go-digital-library/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	ReasonGranted  = "granted"
	ReasonProgress = "progress"
)

// Change tells readers that a user's library rows changed and should be re-fetched.
type Change struct {
	UserID     string   `json:"user_id"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Reason     string   `json:"reason"`
	Source     string   `json:"source,omitempty"`
}

// Notifier is a read-side signal. Failures never affect the write that caused them.
type Notifier interface {
	LibraryChanged(ctx context.Context, c Change) error
}

// RedisNotifier bumps the listing version, drops the cached listing and publishes c
// on library:{user_id}.
type RedisNotifier struct {
	RDB *redis.Client
}

func (n *RedisNotifier) LibraryChanged(ctx context.Context, c Change) error {
	verKey := redisx.LibraryVersionKey(c.UserID)
	_, err := n.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, verKey)
		p.Expire(ctx, verKey, redisx.TTLLibraryVersion)
		p.Del(ctx, redisx.LibraryListKey(c.UserID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate library cache: %w", err)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return n.RDB.Publish(ctx, redisx.LibraryChannel(c.UserID), b).Err()
}

type RedisCache struct {
	RDB *redis.Client
	Log *zap.Logger
}

func (c *RedisCache) Get(ctx context.Context, userID string) ([]Entitlement, bool) {
	s, err := c.RDB.Get(ctx, redisx.LibraryListKey(userID)).Result()
	if err != nil || s == "" {
		return nil, false
	}
	var items []Entitlement
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, false
	}
	return items, true
}

func (c *RedisCache) Version(ctx context.Context, userID string) (int64, bool) {
	v, err := c.RDB.Get(ctx, redisx.LibraryVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	return v, err == nil
}

var errStaleListing = errors.New("library: listing changed while loading")

// Set writes the listing under WATCH on the version key, so a grant that lands
// between Version and Set leaves the cache empty instead of stale.
func (c *RedisCache) Set(ctx context.Context, userID string, v int64, items []Entitlement) {
	b, err := json.Marshal(items)
	if err != nil {
		return
	}
	verKey := redisx.LibraryVersionKey(userID)
	err = c.RDB.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != v {
			return errStaleListing
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, redisx.LibraryListKey(userID), b, redisx.TTLLibraryCache)
			return nil
		})
		return err
	}, verKey)
	if err != nil && c.Log != nil {
		c.Log.Debug("library cache set skipped", zap.String("user_id", userID), zap.Error(err))
	}
}

// Subscriber streams library change messages for one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan string, func(), error)
}

type RedisSubscriber struct {
	RDB *redis.Client
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, userID string) (<-chan string, func(), error) {
	ps := s.RDB.Subscribe(ctx, redisx.LibraryChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan string)
	go func() {
		defer close(out)
		for m := range ps.Channel() {
			select {
			case out <- m.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = ps.Close() }, nil
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// EventNotifier publishes an EntitlementsGranted envelope for every grant.
type EventNotifier struct {
	Producer Publisher
	Service  string
}

func (n *EventNotifier) LibraryChanged(ctx context.Context, c Change) error {
	if c.Reason != ReasonGranted {
		return nil
	}
	ev, err := orders.NewEnvelope(orders.EventEntitlementsGranted, n.Service, c.UserID, "",
		orders.EntitlementsGrantedPayload{UserID: c.UserID, ProductIDs: c.ProductIDs, Source: c.Source})
	if err != nil {
		return err
	}
	n.Producer.Publish([]byte(c.UserID), kafkax.MustMarshal(ev), kafkax.EventHeaders(ev.EventType, ev.EventVersion)...)
	return nil
}
