package library

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-digital-library/internal/orders"
	"go.uber.org/zap"
)

// OnStatusChanged runs fulfillment for transitions into shipped or delivered and is
// a no-op for every other transition.
func (s *Service) OnStatusChanged(ctx context.Context, orderID string, from, to orders.Status) (Result, error) {
	if !orders.TriggersFulfillment(to) {
		return Result{OrderID: orderID, Skipped: true, Reason: fmt.Sprintf("transition %s -> %s does not fulfill", from, to)}, nil
	}
	return s.TriggerFulfillment(ctx, orderID)
}

// TriggerFulfillment grants the digital items of a shipped or delivered order to the
// order's user. Safe to re-run: existing entitlements are never overwritten.
func (s *Service) TriggerFulfillment(ctx context.Context, orderID string) (Result, error) {
	res := Result{OrderID: orderID}
	log := s.log().With(zap.String("order_id", orderID))

	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		log.Warn("fulfillment aborted: order fetch failed", zap.Error(err))
		return res, fmt.Errorf("%w: order %s: %w", ErrRead, orderID, err)
	}
	if !orders.TriggersFulfillment(o.Status) {
		res.Skipped, res.Reason = true, fmt.Sprintf("order status %s does not fulfill", o.Status)
		log.Info("fulfillment skipped", zap.String("reason", res.Reason))
		return res, nil
	}

	userID, viaDemo, ok := s.Resolver.ForOrder(o)
	if !ok {
		res.Skipped, res.Reason = true, ErrNoIdentity.Error()
		log.Info("fulfillment skipped: no user identity", zap.String("customer_email", o.CustomerEmail))
		return res, nil
	}
	if viaDemo {
		log.Warn("demo identity fallback used", zap.String("user_id", userID))
	}
	res.UserID = userID

	items, err := s.Orders.ListItems(ctx, orderID)
	if err != nil {
		log.Warn("fulfillment aborted: items fetch failed", zap.Error(err))
		return res, fmt.Errorf("%w: items of %s: %w", ErrRead, orderID, err)
	}
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, ItemFromOrder(it))
	}

	granted, err := s.grant(ctx, userID, lines, "order:"+orderID)
	if err != nil {
		log.Warn("fulfillment failed", zap.String("user_id", userID), zap.Error(err))
		return res, err
	}
	res.Granted = granted
	log.Info("fulfillment done", zap.String("user_id", userID), zap.Int("granted", len(granted)))
	return res, nil
}
