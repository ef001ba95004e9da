// Package gateway is the provider-neutral contract the checkout core uses to
// talk to the payment provider.
package gateway

import (
	"context"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*domain.PaymentSession, error)
	RetrieveSession(ctx context.Context, id string) (*domain.PaymentSession, error)
	CreateIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*domain.PaymentIntent, error)
	// VerifyWebhookSignature authenticates rawBody against signature using
	// secret and only then decodes it. It never decodes an unverified body.
	VerifyWebhookSignature(rawBody []byte, signature, secret string) (*domain.Event, error)
}

// SessionRequest asks the provider for a hosted checkout page. Amounts come
// from Lines; the provider computes the session total from them.
type SessionRequest struct {
	Lines                    []domain.CartLine
	Currency                 string
	SuccessURL               string
	CancelURL                string
	CustomerEmail            string
	Metadata                 map[string]string
	IdempotencyKey           string
	AllowedShippingCountries []string
	RequireBillingAddress    bool
}

type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}
