package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-digital-library/internal/orders"
	"go.uber.org/zap"
)

var (
	// ErrRead marks a failed order, item or product fetch; the operation is aborted.
	ErrRead = errors.New("library: upstream read failed")
	// ErrWrite marks a failed entitlement upsert. The triggering order change stands.
	ErrWrite = errors.New("library: entitlement write failed")

	ErrNoIdentity      = errors.New("library: no user identity")
	ErrInvalidPosition = errors.New("library: position must be >= 0")
)

type OrderSource interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	ListItems(ctx context.Context, orderIDs ...string) ([]orders.OrderItem, error)
	ListOrdersForUser(ctx context.Context, userID, email string) ([]orders.Order, error)
}

type CandidateSource interface {
	Candidates(ctx context.Context, ids, names []string) ([]Candidate, error)
}

type Store interface {
	Grant(ctx context.Context, userID string, productIDs []string) ([]string, error)
	List(ctx context.Context, userID string) ([]Entitlement, error)
	UpdateProgress(ctx context.Context, userID, productID string, position int) error
}

type Cache interface {
	Get(ctx context.Context, userID string) ([]Entitlement, bool)
	// Version is read before loading the rows; ok is false when it cannot be read.
	Version(ctx context.Context, userID string) (v int64, ok bool)
	// Set stores items only while the version is still v.
	Set(ctx context.Context, userID string, v int64, items []Entitlement)
}

// Service owns every write to the entitlement store: single-order fulfillment,
// bulk reconciliation and reading-progress updates.
type Service struct {
	Orders    OrderSource
	Catalog   CandidateSource
	Store     Store
	Cache     Cache // optional
	Notifiers []Notifier
	Resolver  Resolver
	Log       *zap.Logger
}

// Result describes one fulfillment run. Skipped runs performed no writes.
type Result struct {
	OrderID string   `json:"order_id"`
	UserID  string   `json:"user_id,omitempty"`
	Skipped bool     `json:"skipped"`
	Reason  string   `json:"reason,omitempty"`
	Granted []string `json:"granted"`
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// grant runs the matcher over items and upserts the digital matches for userID.
// Only product ids newly inserted are returned.
func (s *Service) grant(ctx context.Context, userID string, items []LineItem, source string) ([]string, error) {
	ids, names := lookupKeys(items)
	if len(ids) == 0 && len(names) == 0 {
		return nil, nil
	}
	cands, err := s.Catalog.Candidates(ctx, ids, names)
	if err != nil {
		return nil, fmt.Errorf("%w: candidates: %w", ErrRead, err)
	}

	m := MatchDigital(items, cands)
	for _, pid := range m.Ambiguous {
		s.log().Warn("ambiguous digital classification",
			zap.String("user_id", userID),
			zap.String("product_id", pid),
			zap.String("source", source),
		)
	}
	if len(m.ProductIDs) == 0 {
		return nil, nil
	}

	granted, err := s.Store.Grant(ctx, userID, m.ProductIDs)
	if err != nil {
		s.log().Error("entitlement upsert failed",
			zap.String("user_id", userID),
			zap.Strings("product_ids", m.ProductIDs),
			zap.String("source", source),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if len(granted) > 0 {
		s.notify(ctx, Change{UserID: userID, ProductIDs: granted, Reason: ReasonGranted, Source: source})
	}
	return granted, nil
}

func (s *Service) notify(ctx context.Context, c Change) {
	for _, n := range s.Notifiers {
		if err := n.LibraryChanged(ctx, c); err != nil {
			s.log().Warn("library change notification failed",
				zap.String("user_id", c.UserID),
				zap.String("reason", c.Reason),
				zap.Error(err),
			)
		}
	}
}

// Library lists a user's entitlements, served from cache when possible.
func (s *Service) Library(ctx context.Context, userID string) ([]Entitlement, error) {
	var (
		ver     int64
		cacheOK bool
	)
	if s.Cache != nil {
		if items, ok := s.Cache.Get(ctx, userID); ok {
			return items, nil
		}
		ver, cacheOK = s.Cache.Version(ctx, userID)
	}
	items, err := s.Store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cacheOK {
		s.Cache.Set(ctx, userID, ver, items)
	}
	return items, nil
}

func (s *Service) UpdateProgress(ctx context.Context, userID, productID string, position int) error {
	if position < 0 {
		return ErrInvalidPosition
	}
	if err := s.Store.UpdateProgress(ctx, userID, productID, position); err != nil {
		return err
	}
	s.notify(ctx, Change{UserID: userID, ProductIDs: []string{productID}, Reason: ReasonProgress})
	return nil
}
