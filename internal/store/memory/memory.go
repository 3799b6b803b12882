// Package memory provides in-memory implementations of the domain stores,
// used in paper mode when no database is configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crossarb/internal/domain"
)

// PnLStore implements domain.PnLStore in process memory. Nothing survives a
// restart; paper trading accepts that.
type PnLStore struct {
	mu     sync.Mutex
	pnl    float64
	exists bool
}

// NewPnLStore creates an empty PnLStore.
func NewPnLStore() *PnLStore {
	return &PnLStore{}
}

var _ domain.PnLStore = (*PnLStore)(nil)

func (s *PnLStore) Load(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return 0, domain.ErrNotFound
	}
	return s.pnl, nil
}

func (s *PnLStore) Save(ctx context.Context, pnlUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pnl = pnlUSD
	s.exists = true
	return nil
}

// OrderStore implements domain.OrderStore in process memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

var _ domain.OrderStore = (*OrderStore)(nil)

func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

func (s *OrderStore) Update(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return domain.ErrNotFound
	}
	s.orders[order.ID] = order
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.IsTerminal() && o.UpdatedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
