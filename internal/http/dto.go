package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

// ItemDTO is a cart line as the storefront sends it: price in major units.
type ItemDTO struct {
	ID       string          `json:"id" validate:"required"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"min=1,max=99"`
	Size     string          `json:"size,omitempty"`
	Image    string          `json:"image,omitempty"`
}

func (d ItemDTO) toLine() domain.CartLine {
	return domain.CartLine{
		ProductID:   d.ID,
		VariantKey:  d.Size,
		UnitPrice:   domain.ToMinorUnits(d.Price),
		Quantity:    d.Quantity,
		DisplayName: d.Name,
		ImageRef:    d.Image,
	}
}

func toSnapshot(items []ItemDTO, currency string) *domain.CartSnapshot {
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.toLine())
	}
	return domain.NewCartSnapshot(lines, currency)
}

func fromLines(lines []domain.CartLine) []itemView {
	out := make([]itemView, 0, len(lines))
	for _, l := range lines {
		out = append(out, itemView{
			ID:       l.ProductID,
			Name:     l.DisplayName,
			Image:    l.ImageRef,
			Price:    major(l.UnitPrice),
			Quantity: l.Quantity,
			Size:     l.VariantKey,
		})
	}
	return out
}

type itemView struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Image    string      `json:"image,omitempty"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Size     string      `json:"size,omitempty"`
}

// major renders minor units as a JSON number in major units, e.g. 59.99.
func major(minor int64) json.Number {
	return json.Number(domain.FromMinorUnits(minor).StringFixed(2))
}

// AddressDTO accepts both the provider's line1 and the storefront's street.
type AddressDTO struct {
	Name       string `json:"name"`
	Street     string `json:"street,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a *AddressDTO) toDomain() *domain.Address {
	if a == nil {
		return nil
	}
	line1 := a.Line1
	if line1 == "" {
		line1 = a.Street
	}
	return &domain.Address{
		Name:       a.Name,
		Line1:      line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type addressView struct {
	Name       string `json:"name,omitempty"`
	Street     string `json:"street,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

func toAddressView(a *domain.Address) *addressView {
	if a == nil {
		return nil
	}
	return &addressView{
		Name:       a.Name,
		Street:     a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// TotalsDTO holds client-side totals in major units.
type TotalsDTO struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

func (t *TotalsDTO) toDomain() *domain.Totals {
	if t == nil {
		return nil
	}
	return &domain.Totals{
		Subtotal: domain.ToMinorUnits(t.Subtotal),
		Shipping: domain.ToMinorUnits(t.Shipping),
		Tax:      domain.ToMinorUnits(t.Tax),
		Total:    domain.ToMinorUnits(t.Total),
	}
}

type orderView struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	Status            domain.OrderStatus  `json:"status"`
	PaymentReference  string              `json:"paymentReference"`
	CreatedAt         time.Time           `json:"createdAt"`
	EstimatedDelivery time.Time           `json:"estimatedDelivery"`
	Items             []itemView          `json:"items"`
	Subtotal          json.Number         `json:"subtotal"`
	Shipping          json.Number         `json:"shipping"`
	Tax               json.Number         `json:"tax"`
	Total             json.Number         `json:"total"`
	Currency          string              `json:"currency"`
	CustomerInfo      domain.CustomerInfo `json:"customerInfo"`
	ShippingAddress   *addressView        `json:"shippingAddress,omitempty"`
	BillingAddress    *addressView        `json:"billingAddress,omitempty"`
}

func toOrderView(o *domain.Order) orderView {
	return orderView{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		PaymentReference:  o.PaymentReference,
		CreatedAt:         o.CreatedAt,
		EstimatedDelivery: o.EstimatedDelivery,
		Items:             fromLines(o.Items),
		Subtotal:          major(o.Totals.Subtotal),
		Shipping:          major(o.Totals.Shipping),
		Tax:               major(o.Totals.Tax),
		Total:             major(o.Totals.Total),
		Currency:          strings.ToLower(o.Currency),
		CustomerInfo:      o.Customer,
		ShippingAddress:   toAddressView(o.ShippingAddress),
		BillingAddress:    toAddressView(o.BillingAddress),
	}
}
