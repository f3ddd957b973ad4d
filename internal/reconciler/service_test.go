package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-digital-library/internal/config"
	kafkax "github.com/ariefcatur/go-digital-library/internal/kafka"
	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSyncer struct{ mock.Mock }

func (m *mockSyncer) SyncEntitlements(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memDedup) Claim(_ context.Context, scope, id string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	k := scope + ":" + id
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, scope, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, scope+":"+id)
	return nil
}

func statusMsg(t *testing.T, eventType string, p orders.OrderStatusChangedPayload) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "library-api", p.OrderID, "", p)
	require.NoError(t, err)
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestHandleStatusChanged_SyncsOnShipped(t *testing.T) {
	syncer := new(mockSyncer)
	syncer.On("SyncEntitlements", mock.Anything, "u-1").Return(2, nil).Once()
	dedup := &memDedup{seen: map[string]bool{}}
	s := &Service{Library: syncer, Dedup: dedup}

	m := statusMsg(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o-1", UserID: "u-1", From: orders.StatusProcessing, To: orders.StatusShipped,
	})
	require.NoError(t, s.HandleStatusChanged(context.Background(), m))
	// redelivery of the same event is a no-op
	require.NoError(t, s.HandleStatusChanged(context.Background(), m))

	syncer.AssertExpectations(t)
}

func TestHandleStatusChanged_Ignores(t *testing.T) {
	syncer := new(mockSyncer)
	s := &Service{Library: syncer}
	ctx := context.Background()

	require.NoError(t, s.HandleStatusChanged(ctx, kafkago.Message{Value: []byte("{")}))
	require.NoError(t, s.HandleStatusChanged(ctx, statusMsg(t, orders.EventOrderCreated, orders.OrderStatusChangedPayload{OrderID: "o-1"})))
	require.NoError(t, s.HandleStatusChanged(ctx, statusMsg(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o-1", UserID: "u-1", From: orders.StatusPending, To: orders.StatusProcessing,
	})))
	require.NoError(t, s.HandleStatusChanged(ctx, statusMsg(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o-2", CustomerEmail: "guest@shop.test", To: orders.StatusDelivered,
	})))

	syncer.AssertNotCalled(t, "SyncEntitlements", mock.Anything, mock.Anything)
}

func TestHandleStatusChanged_DemoFallback(t *testing.T) {
	syncer := new(mockSyncer)
	syncer.On("SyncEntitlements", mock.Anything, "demo-user").Return(1, nil).Once()
	s := &Service{
		Library:  syncer,
		Resolver: library.Resolver{Demo: config.DemoConfig{Enabled: true, UserID: "demo-user", Email: "demo@shop.test"}},
	}

	m := statusMsg(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o-3", CustomerEmail: "Demo@Shop.test", To: orders.StatusDelivered,
	})
	require.NoError(t, s.HandleStatusChanged(context.Background(), m))
	syncer.AssertExpectations(t)
}

func TestHandleStatusChanged_FailureReleasesClaim(t *testing.T) {
	syncer := new(mockSyncer)
	syncer.On("SyncEntitlements", mock.Anything, "u-1").Return(0, library.ErrWrite).Once()
	syncer.On("SyncEntitlements", mock.Anything, "u-1").Return(1, nil).Once()
	dedup := &memDedup{seen: map[string]bool{}}
	s := &Service{Library: syncer, Dedup: dedup}

	m := statusMsg(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o-1", UserID: "u-1", To: orders.StatusShipped,
	})
	err := s.HandleStatusChanged(context.Background(), m)
	assert.ErrorIs(t, err, library.ErrWrite)
	assert.Empty(t, dedup.seen)

	require.NoError(t, s.HandleStatusChanged(context.Background(), m))
	syncer.AssertExpectations(t)
}

func TestHandleStatusChanged_DedupDownStillSyncs(t *testing.T) {
	syncer := new(mockSyncer)
	syncer.On("SyncEntitlements", mock.Anything, "u-1").Return(0, nil).Once()
	s := &Service{Library: syncer, Dedup: &memDedup{err: errors.New("redis down")}}

	m := statusMsg(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o-1", UserID: "u-1", To: orders.StatusDelivered,
	})
	require.NoError(t, s.HandleStatusChanged(context.Background(), m))
	syncer.AssertExpectations(t)
}
