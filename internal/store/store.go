// Package store implements the inventory record store: durable keyed storage
// for product and order records with conditional updates and point reads.
//
// Every exported mutation executes as a single critical section, so no
// concurrent operation can observe a half-updated record.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/storefrontd/checkout-core/internal/model"
)

// Store holds product and order records behind one mutex.
type Store struct {
	mu       sync.RWMutex
	products map[string]model.Product
	orders   map[string]model.Order

	ordersCommitted atomic.Uint64
}

// StockAdjust describes one conditional stock change inside an order commit.
// Delta is negative for a sale. ExpectVersion is the version observed when the
// line was validated; the commit fails if it no longer matches.
type StockAdjust struct {
	ProductID     string
	Delta         int64
	ExpectVersion int64
}

// LineGuard validates one stock adjustment against the current record.
// Returning an error aborts the whole commit with nothing written.
type LineGuard func(p model.Product, a StockAdjust) error

// New creates an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]model.Product),
		orders:   make(map[string]model.Order),
	}
}

// GetProduct returns a copy of the product record.
func (s *Store) GetProduct(id string) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// PutProduct writes a product record unconditionally. Catalog management
// surface; stock mutations go through conditional writes instead.
func (s *Store) PutProduct(p model.Product) {
	if p.ProductID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ProductID] = p
}

// UpdateProduct applies fn to the current record as one atomic conditional
// write. fn receives a copy; the value it returns is stored. An error from fn
// aborts the write and nothing changes.
func (s *Store) UpdateProduct(id string, fn func(p model.Product) (model.Product, error)) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[id]
	if !ok {
		return model.Product{}, model.ErrNotFound
	}
	next, err := fn(cur)
	if err != nil {
		return model.Product{}, err
	}
	next.ProductID = cur.ProductID
	s.products[id] = next
	return next, nil
}

// CommitOrder is the atomic unit of work for order placement: it persists the
// order and applies every stock adjustment, or does nothing at all. Each
// adjustment is re-checked through guard against the record as it exists at
// commit time; the first failing line aborts the whole commit.
func (s *Store) CommitOrder(o model.Order, adjusts []StockAdjust, guard LineGuard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.OrderID]; exists {
		return model.ErrInvalidState
	}
	for _, a := range adjusts {
		p, ok := s.products[a.ProductID]
		if !ok {
			return model.ErrNotFound
		}
		if err := guard(p, a); err != nil {
			return err
		}
	}
	for _, a := range adjusts {
		p := s.products[a.ProductID]
		p.Stock += a.Delta
		p.Version++
		s.products[a.ProductID] = p
	}
	s.orders[o.OrderID] = o
	s.ordersCommitted.Add(1)
	return nil
}

// GetOrder returns a copy of the order record.
func (s *Store) GetOrder(id string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// OrdersByUser returns copies of all orders owned by the user.
func (s *Store) OrdersByUser(userID string) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

// UpdateOrder applies fn to the current order record as one atomic
// conditional write, mirroring UpdateProduct.
func (s *Store) UpdateOrder(id string, fn func(o model.Order) (model.Order, error)) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[id]
	if !ok {
		return model.Order{}, model.ErrNotFound
	}
	next, err := fn(cur)
	if err != nil {
		return model.Order{}, err
	}
	next.OrderID = cur.OrderID
	s.orders[id] = next
	return next, nil
}

// Metrics returns record counts and the committed-order counter.
func (s *Store) Metrics() (products, orders int, committed uint64) {
	s.mu.RLock()
	products = len(s.products)
	orders = len(s.orders)
	s.mu.RUnlock()
	return products, orders, s.ordersCommitted.Load()
}
