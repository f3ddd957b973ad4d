package library

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SyncEntitlements re-derives a user's library from every order that is neither
// cancelled nor returned and grants whatever is missing. It returns the number of
// entitlements newly created; a repeated run returns 0.
func (s *Service) SyncEntitlements(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrNoIdentity
	}
	log := s.log().With(zap.String("user_id", userID))

	email := s.Resolver.EmailFor(userID)
	all, err := s.Orders.ListOrdersForUser(ctx, userID, email)
	if err != nil {
		log.Warn("sync aborted: orders fetch failed", zap.Error(err))
		return 0, fmt.Errorf("%w: orders of %s: %w", ErrRead, userID, err)
	}

	seen := map[string]bool{}
	ids := make([]string, 0, len(all))
	for _, o := range all {
		if !o.Status.Entitling() || seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		ids = append(ids, o.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	items, err := s.Orders.ListItems(ctx, ids...)
	if err != nil {
		log.Warn("sync aborted: items fetch failed", zap.Error(err))
		return 0, fmt.Errorf("%w: items of %s: %w", ErrRead, userID, err)
	}
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, ItemFromOrder(it))
	}

	granted, err := s.grant(ctx, userID, lines, "sync")
	if err != nil {
		return 0, err
	}
	log.Info("library sync done", zap.Int("orders", len(ids)), zap.Int("granted", len(granted)))
	return len(granted), nil
}
