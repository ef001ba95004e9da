package repository

import (
	"context"
	"errors"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// OrderRepository is the durable order store. An order is created at most
// once per payment reference; after that only its status may change.
type OrderRepository interface {
	// UpsertByPaymentReference inserts order unless one already exists for
	// order.PaymentReference. It returns the stored order and whether this
	// call created it.
	UpsertByPaymentReference(ctx context.Context, order *domain.Order) (*domain.Order, bool, error)
	GetByOrderID(ctx context.Context, id string) (*domain.Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (*domain.Order, error)
	// UpdateStatus moves the order for ref to next. Setting the current
	// status again is a no-op.
	UpdateStatus(ctx context.Context, ref string, next domain.OrderStatus) (*domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Order, error)
	Ping(ctx context.Context) error
	Close() error
}

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func cloneOrder(o *domain.Order) *domain.Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = make([]domain.CartLine, len(o.Items))
	copy(cp.Items, o.Items)
	if o.ShippingAddress != nil {
		a := *o.ShippingAddress
		cp.ShippingAddress = &a
	}
	if o.BillingAddress != nil {
		a := *o.BillingAddress
		cp.BillingAddress = &a
	}
	return &cp
}
