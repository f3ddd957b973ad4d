package library

import (
	"context"
	"strings"
	"sync"

	"github.com/ariefcatur/go-digital-library/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
)

type memOrders struct {
	mu       sync.Mutex
	orders   map[string]orders.Order
	items    map[string][]orders.OrderItem
	getCalls int
	err      error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]orders.Order{}, items: map[string][]orders.OrderItem{}}
}

func (m *memOrders) add(o orders.Order, items ...orders.OrderItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	for i := range items {
		items[i].OrderID = o.ID
	}
	m.items[o.ID] = items
}

func (m *memOrders) GetOrder(_ context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return orders.Order{}, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ListItems(_ context.Context, ids ...string) ([]orders.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []orders.OrderItem
	for _, id := range ids {
		out = append(out, m.items[id]...)
	}
	return out, nil
}

func (m *memOrders) ListOrdersForUser(_ context.Context, userID, email string) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []orders.Order
	for _, o := range m.orders {
		if o.UserID == userID || (email != "" && o.UserID == "" && strings.EqualFold(o.CustomerEmail, email)) {
			out = append(out, o)
		}
	}
	return out, nil
}

type memCatalog struct {
	mu    sync.Mutex
	cands []Candidate
	calls int
	err   error
}

func (c *memCatalog) Candidates(_ context.Context, ids, names []string) ([]Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want["id:"+id] = true
	}
	for _, n := range names {
		want["name:"+n] = true
	}
	var out []Candidate
	for _, cand := range c.cands {
		if want["id:"+cand.ID] || want["name:"+normalizeName(cand.Name)] {
			out = append(out, cand)
		}
	}
	return out, nil
}

type memStore struct {
	mu         sync.Mutex
	rows       map[string]map[string]*Entitlement
	grantCalls int
	err        error
	onList     func(userID string)
}

func newMemStore() *memStore { return &memStore{rows: map[string]map[string]*Entitlement{}} }

func (s *memStore) Grant(_ context.Context, userID string, productIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantCalls++
	if s.err != nil {
		return nil, s.err
	}
	if s.rows[userID] == nil {
		s.rows[userID] = map[string]*Entitlement{}
	}
	var granted []string
	for _, pid := range productIDs {
		if _, ok := s.rows[userID][pid]; ok {
			continue
		}
		s.rows[userID][pid] = &Entitlement{UserID: userID, ProductID: pid}
		granted = append(granted, pid)
	}
	return granted, nil
}

func (s *memStore) List(_ context.Context, userID string) ([]Entitlement, error) {
	s.mu.Lock()
	out := []Entitlement{}
	for _, e := range s.rows[userID] {
		out = append(out, *e)
	}
	hook := s.onList
	s.mu.Unlock()
	if hook != nil {
		hook(userID)
	}
	return out, nil
}

func (s *memStore) UpdateProgress(_ context.Context, userID, productID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[userID][productID]
	if !ok {
		return ErrNotFound
	}
	e.LastPosition = position
	return nil
}

func (s *memStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[userID])
}

func (s *memStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		n += len(r)
	}
	return n
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) LibraryChanged(ctx context.Context, c Change) error {
	return m.Called(ctx, c).Error(0)
}

type memCache struct {
	items    map[string][]Entitlement
	versions map[string]int64
	hits     int
}

func newMemCache() *memCache {
	return &memCache{items: map[string][]Entitlement{}, versions: map[string]int64{}}
}

// bump mirrors RedisNotifier: a change moves the version and drops the listing.
func (c *memCache) bump(userID string) {
	c.versions[userID]++
	delete(c.items, userID)
}

func (c *memCache) Version(_ context.Context, userID string) (int64, bool) {
	return c.versions[userID], true
}

func (c *memCache) Get(_ context.Context, userID string) ([]Entitlement, bool) {
	items, ok := c.items[userID]
	if ok {
		c.hits++
	}
	return items, ok
}

func (c *memCache) Set(_ context.Context, userID string, v int64, items []Entitlement) {
	if c.versions[userID] != v {
		return
	}
	c.items[userID] = items
}

type capturePublisher struct {
	keys    [][]byte
	values  [][]byte
	headers [][]kafkago.Header
}

func (p *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	p.headers = append(p.headers, headers)
}
