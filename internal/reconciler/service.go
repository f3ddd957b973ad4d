package reconciler

import (
	"context"
	"encoding/json"
	"errors"

	kafkax "github.com/ariefcatur/go-digital-library/internal/kafka"
	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const dedupScope = "reconciler"

type Syncer interface {
	SyncEntitlements(ctx context.Context, userID string) (int, error)
}

// Dedup remembers processed event ids. Claim returns false if id was already claimed.
type Dedup interface {
	Claim(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

// Service reconciles a user's library whenever an order of theirs reaches a
// fulfilling status. It is installed as a consumer handler.
type Service struct {
	Library  Syncer
	Dedup    Dedup // optional
	Resolver library.Resolver
	Log      *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// HandleStatusChanged processes one order.status.changed message. Malformed and
// unrelated messages are dropped so their offsets get committed.
func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().Warn("drop malformed envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		s.log().Warn("drop malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if !orders.TriggersFulfillment(p.To) {
		return nil
	}

	log := s.log().With(zap.String("event_id", env.EventID), zap.String("order_id", p.OrderID))
	userID, viaDemo, ok := s.Resolver.ForOrder(orders.Order{ID: p.OrderID, UserID: p.UserID, CustomerEmail: p.CustomerEmail})
	if !ok {
		log.Info("skip reconcile: order has no user identity")
		return nil
	}
	if viaDemo {
		log.Warn("reconciling guest order into demo library", zap.String("user_id", userID))
	}

	if s.Dedup != nil {
		first, err := s.Dedup.Claim(ctx, dedupScope, env.EventID)
		if err != nil {
			log.Warn("dedup unavailable, processing anyway", zap.Error(err))
		} else if !first {
			return nil
		}
	}

	n, err := s.Library.SyncEntitlements(ctx, userID)
	if err != nil {
		if s.Dedup != nil {
			if rerr := s.Dedup.Release(context.WithoutCancel(ctx), dedupScope, env.EventID); rerr != nil {
				log.Warn("release dedup key", zap.Error(rerr))
			}
		}
		if errors.Is(err, library.ErrNoIdentity) {
			return nil
		}
		return err
	}
	log.Info("library reconciled", zap.String("user_id", userID), zap.String("to", string(p.To)), zap.Int("granted", n))
	return nil
}
