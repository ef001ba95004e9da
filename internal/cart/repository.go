package cart

import (
	"context"
	"sync"
	"time"
)

type Repository interface {
	GetCart(ctx context.Context, sessionID string) (*Cart, error)
	// AddItem inserts item, or adds its quantity to the existing line for the
	// same variant. Quantities are capped at MaxQuantity.
	AddItem(ctx context.Context, sessionID string, item Item) error
	UpdateItemQuantity(ctx context.Context, sessionID, productID, variant string, quantity int) error
	RemoveItem(ctx context.Context, sessionID, productID, variant string) error
	DeleteCart(ctx context.Context, sessionID string) error
}

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*Cart)}
}

func (m *MemoryRepository) GetCart(_ context.Context, sessionID string) (*Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[sessionID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c.clone(), nil
}

func (m *MemoryRepository) AddItem(_ context.Context, sessionID string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c, ok := m.carts[sessionID]
	if !ok {
		c = newCart(sessionID)
		m.carts[sessionID] = c
	}
	c.UpdatedAt = now
	for i := range c.Items {
		if c.Items[i].same(item.ProductID, item.VariantKey) {
			c.Items[i].Quantity = clampQuantity(c.Items[i].Quantity + item.Quantity)
			c.Items[i].AddedAt = now
			return nil
		}
	}
	item.Quantity = clampQuantity(item.Quantity)
	item.AddedAt = now
	c.Items = append(c.Items, item)
	return nil
}

func (m *MemoryRepository) UpdateItemQuantity(_ context.Context, sessionID, productID, variant string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[sessionID]
	if !ok {
		return ErrItemNotFound
	}
	for i := range c.Items {
		if c.Items[i].same(productID, variant) {
			c.Items[i].Quantity = clampQuantity(quantity)
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *MemoryRepository) RemoveItem(_ context.Context, sessionID, productID, variant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[sessionID]
	if !ok {
		return ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].same(productID, variant) {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (m *MemoryRepository) DeleteCart(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[sessionID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, sessionID)
	return nil
}
