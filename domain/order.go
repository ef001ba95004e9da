package domain

import (
	"sort"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCanceled   OrderStatus = "canceled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCanceled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusFailed, OrderStatusCanceled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusFailed:     {OrderStatusConfirmed},
}

func CanTransitionTo(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses an order may be in to move to next.
func AllowedFrom(next OrderStatus) []OrderStatus {
	var from []OrderStatus
	for s, targets := range orderTransitions {
		for _, t := range targets {
			if t == next {
				from = append(from, s)
			}
		}
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })
	return from
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

func (s OrderStatus) String() string {
	return string(s)
}

type CustomerInfo struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Totals are in minor currency units.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

func (t Totals) Consistent() bool {
	return t.Subtotal+t.Shipping+t.Tax == t.Total
}

// Order is the durable record of a paid checkout. Items and Totals are frozen
// at creation; only Status and UpdatedAt change afterwards.
type Order struct {
	ID                string       `json:"id"`
	OrderNumber       string       `json:"orderNumber"`
	PaymentReference  string       `json:"paymentReference"`
	PaymentKind       PaymentKind  `json:"paymentKind"`
	Status            OrderStatus  `json:"status"`
	Customer          CustomerInfo `json:"customerInfo"`
	ShippingAddress   *Address     `json:"shippingAddress,omitempty"`
	BillingAddress    *Address     `json:"billingAddress,omitempty"`
	Items             []CartLine   `json:"items"`
	Totals            Totals       `json:"totals"`
	Currency          string       `json:"currency"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	EstimatedDelivery time.Time    `json:"estimatedDelivery"`
}

const DeliveryLeadTime = 7 * 24 * time.Hour
