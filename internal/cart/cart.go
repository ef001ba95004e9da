// Package cart keeps shopping carts per cart session.
package cart

import (
	"errors"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

const MaxQuantity = 99

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidItem     = errors.New("invalid cart item")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
)

type Cart struct {
	SessionID string    `bson:"session_id" json:"sessionId"`
	Items     []Item    `bson:"items" json:"items"`
	Currency  string    `bson:"currency" json:"currency"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Item is one product variant. A cart holds at most one item per
// (ProductID, VariantKey).
type Item struct {
	ProductID   string    `bson:"product_id" json:"id"`
	VariantKey  string    `bson:"variant_key" json:"size,omitempty"`
	UnitPrice   int64     `bson:"unit_price" json:"unitPrice"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	DisplayName string    `bson:"display_name" json:"name"`
	ImageRef    string    `bson:"image_ref,omitempty" json:"image,omitempty"`
	AddedAt     time.Time `bson:"added_at" json:"addedAt"`
}

func (i Item) same(productID, variant string) bool {
	return i.ProductID == productID && i.VariantKey == variant
}

func newCart(sessionID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		SessionID: sessionID,
		Items:     []Item{},
		Currency:  domain.DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot captures the cart for checkout.
func (c *Cart) Snapshot() *domain.CartSnapshot {
	lines := make([]domain.CartLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, domain.CartLine{
			ProductID:   it.ProductID,
			VariantKey:  it.VariantKey,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			DisplayName: it.DisplayName,
			ImageRef:    it.ImageRef,
		})
	}
	return domain.NewCartSnapshot(lines, c.Currency)
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) clone() *Cart {
	cp := *c
	cp.Items = make([]Item, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

func clampQuantity(q int) int {
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}
