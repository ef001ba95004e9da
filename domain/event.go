package domain

import "time"

// EventKind is the provider-neutral classification of a webhook event.
type EventKind string

const (
	EventSessionCompleted EventKind = "session.completed"
	EventSessionExpired   EventKind = "session.expired"
	EventPaymentSucceeded EventKind = "payment.succeeded"
	EventPaymentFailed    EventKind = "payment.failed"
	EventUnknown          EventKind = "unknown"
)

// Event is a verified provider notification. Exactly one of Session or Intent
// is set for the known kinds; unknown events carry only the provider type.
type Event struct {
	ID           string          `json:"id"`
	Kind         EventKind       `json:"kind"`
	ProviderType string          `json:"provider_type"`
	Reference    string          `json:"reference,omitempty"`
	Created      time.Time       `json:"created"`
	Session      *PaymentSession `json:"session,omitempty"`
	Intent       *PaymentIntent  `json:"intent,omitempty"`
}
