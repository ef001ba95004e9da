package domain

import (
	"fmt"
	"time"
)

// PaymentSession is a provider-hosted checkout. Immutable after creation
// except for Status and PaymentStatus.
type PaymentSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url,omitempty"`
	Status        SessionStatus     `json:"status"`
	Paid          bool              `json:"paid"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Customer      *CustomerInfo     `json:"customer,omitempty"`
	Shipping      *Address          `json:"shipping,omitempty"`
	Billing       *Address          `json:"billing,omitempty"`
	PaymentIntent string            `json:"payment_intent,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ExpiresAt     time.Time         `json:"expires_at,omitempty"`
}

// Succeeded reports whether the customer has paid for this session.
func (s *PaymentSession) Succeeded() bool {
	return s != nil && s.Status == SessionStatusCompleted && s.Paid
}

// PaymentIntent is a single charge attempt confirmed client-side.
// ClientSecret authorises that confirmation and must never be logged.
type PaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"-"`
	Status       IntentStatus      `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (p *PaymentIntent) Succeeded() bool {
	return p != nil && p.Status == IntentStatusSucceeded
}

// String never includes the client secret.
func (p *PaymentIntent) String() string {
	if p == nil {
		return "<nil intent>"
	}
	return fmt.Sprintf("intent{id=%s status=%s amount=%d %s}", p.ID, p.Status, p.Amount, p.Currency)
}
