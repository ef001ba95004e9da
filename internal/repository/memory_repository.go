package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

// MemoryRepository keeps orders in process memory. Used for local runs and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Order
	byRef map[string]*domain.Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*domain.Order),
		byRef: make(map[string]*domain.Order),
	}
}

func (m *MemoryRepository) UpsertByPaymentReference(_ context.Context, order *domain.Order) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byRef[order.PaymentReference]; ok {
		return cloneOrder(existing), false, nil
	}

	stored := cloneOrder(order)
	m.byID[stored.ID] = stored
	m.byRef[stored.PaymentReference] = stored
	return cloneOrder(stored), true, nil
}

func (m *MemoryRepository) GetByOrderID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryRepository) GetByPaymentReference(_ context.Context, ref string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.byRef[ref]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, ref string, next domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byRef[ref]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status == next {
		return cloneOrder(o), nil
	}
	if !domain.CanTransitionTo(o.Status, next) {
		return cloneOrder(o), ErrIllegalTransition
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), nil
}

func (m *MemoryRepository) ListRecent(_ context.Context, limit int) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]*domain.Order, 0, len(m.byID))
	for _, o := range m.byID {
		orders = append(orders, cloneOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}
