package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLibrary struct {
	items       []library.Entitlement
	syncN       int
	syncErr     error
	progressErr error
	progress    map[string]int
	fulfillRes  library.Result
	fulfillErr  error
}

func (f *fakeLibrary) Library(context.Context, string) ([]library.Entitlement, error) {
	return f.items, nil
}

func (f *fakeLibrary) SyncEntitlements(context.Context, string) (int, error) {
	return f.syncN, f.syncErr
}

func (f *fakeLibrary) UpdateProgress(_ context.Context, userID, productID string, pos int) error {
	if f.progressErr != nil {
		return f.progressErr
	}
	f.progress[userID+"/"+productID] = pos
	return nil
}

func (f *fakeLibrary) TriggerFulfillment(context.Context, string) (library.Result, error) {
	return f.fulfillRes, f.fulfillErr
}

type fakeSubscriber struct {
	msgs   []string
	err    error
	closed bool
}

func (s *fakeSubscriber) Subscribe(context.Context, string) (<-chan string, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	ch := make(chan string, len(s.msgs))
	for _, m := range s.msgs {
		ch <- m
	}
	close(ch)
	return ch, func() { s.closed = true }, nil
}

func newLibraryRouter(svc *fakeLibrary, sub library.Subscriber) *chi.Mux {
	r := chi.NewRouter()
	h := &LibraryHandler{Svc: svc, Subscriber: sub, Validate: NewValidator(), Log: zap.NewNop()}
	h.Register(r)
	return r
}

func TestLibrary_List(t *testing.T) {
	svc := &fakeLibrary{items: []library.Entitlement{{UserID: "u-1", ProductID: "7", ProductName: "Space Opera"}}}

	rr := do(t, newLibraryRouter(svc, nil), http.MethodGet, "/library/u-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"product_id":"7"`)
}

func TestLibrary_Sync(t *testing.T) {
	svc := &fakeLibrary{syncN: 3}
	r := newLibraryRouter(svc, nil)

	rr := do(t, r, http.MethodPost, "/library/u-1/sync", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"user_id":"u-1","granted":3}`, rr.Body.String())

	svc.syncErr = library.ErrRead
	rr = do(t, r, http.MethodPost, "/library/u-1/sync", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	svc.syncErr = library.ErrNoIdentity
	rr = do(t, r, http.MethodPost, "/library/u-1/sync", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLibrary_Progress(t *testing.T) {
	svc := &fakeLibrary{progress: map[string]int{}}
	r := newLibraryRouter(svc, nil)

	rr := do(t, r, http.MethodPut, "/library/u-1/items/7/progress", `{"last_position":0}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, svc.progress["u-1/7"])

	rr = do(t, r, http.MethodPut, "/library/u-1/items/7/progress", `{"last_position":120}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 120, svc.progress["u-1/7"])

	rr = do(t, r, http.MethodPut, "/library/u-1/items/7/progress", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, r, http.MethodPut, "/library/u-1/items/7/progress", `{"last_position":-4}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	svc.progressErr = library.ErrNotFound
	rr = do(t, r, http.MethodPut, "/library/u-1/items/8/progress", `{"last_position":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLibrary_Fulfill(t *testing.T) {
	svc := &fakeLibrary{fulfillRes: library.Result{OrderID: "o-1", UserID: "u-1", Granted: []string{"7"}}}
	r := newLibraryRouter(svc, nil)

	rr := do(t, r, http.MethodPost, "/orders/o-1/fulfill", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"granted":["7"]`)

	svc.fulfillErr = errors.Join(library.ErrRead, orders.ErrNotFound)
	rr = do(t, r, http.MethodPost, "/orders/o-1/fulfill", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	svc.fulfillErr = library.ErrWrite
	rr = do(t, r, http.MethodPost, "/orders/o-1/fulfill", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestLibrary_Events(t *testing.T) {
	sub := &fakeSubscriber{msgs: []string{`{"user_id":"u-1","reason":"granted"}`}}

	rr := do(t, newLibraryRouter(&fakeLibrary{}, sub), http.MethodGet, "/library/u-1/events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "event: library\ndata: {\"user_id\":\"u-1\",\"reason\":\"granted\"}\n\n")
	assert.True(t, sub.closed)
}

func TestLibrary_EventsUnavailable(t *testing.T) {
	rr := do(t, newLibraryRouter(&fakeLibrary{}, nil), http.MethodGet, "/library/u-1/events", "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)

	rr = do(t, newLibraryRouter(&fakeLibrary{}, &fakeSubscriber{err: errors.New("redis down")}), http.MethodGet, "/library/u-1/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
