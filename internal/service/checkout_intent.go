package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

type CreateIntentRequest struct {
	// Amount in minor units. Zero means "charge the subtotal of Items".
	Amount   int64
	Currency string
	Items    *domain.CartSnapshot
	// SessionID is the shopper's cart session. It scopes the idempotency
	// key; without it every call creates a new intent.
	SessionID string
}

type IntentRef struct {
	IntentID     string
	ClientSecret string
}

// CreateIntent creates a payment intent for client-side confirmation.
// Amounts under MinimumChargeable are rejected without calling the provider.
func (s *CheckoutService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}

	var (
		snap *domain.CartSnapshot
		md   map[string]string
	)
	if req.Items != nil && len(req.Items.Lines) > 0 {
		if err := req.Items.Validate(); err != nil {
			s.metrics.CheckoutOutcome("create_intent", "invalid_cart")
			return nil, err
		}
		snap = req.Items.Clone()
		snap.Currency = currency
		var err error
		if md, err = snap.EncodeMetadata(); err != nil {
			return nil, fmt.Errorf("encode cart metadata: %w", err)
		}
	}

	amount := req.Amount
	if amount == 0 && snap != nil {
		amount = snap.Subtotal()
	}
	if amount < MinimumChargeable {
		s.metrics.CheckoutOutcome("create_intent", "amount_too_small")
		return nil, fmt.Errorf("%w: %d < %d", ErrAmountTooSmall, amount, MinimumChargeable)
	}

	gwReq := gateway.IntentRequest{
		Amount:         amount,
		Currency:       currency,
		Metadata:       md,
		IdempotencyKey: intentKey(req.SessionID, amount, currency, snap, s.now(), s.cfg.IdempotencyWindow),
	}
	pi, err := callGateway(ctx, s, "create_intent", func(ctx context.Context) (*domain.PaymentIntent, error) {
		return s.gw.CreateIntent(ctx, gwReq)
	})
	if err != nil {
		s.metrics.CheckoutOutcome("create_intent", "gateway_error")
		return nil, fmt.Errorf("create payment intent: %w", errors.Join(ErrGatewayUnavailable, err))
	}

	s.metrics.CheckoutOutcome("create_intent", "ok")
	s.logger.Info("payment intent created", "intent_id", pi.ID, "amount", domain.FormatMinor(amount, currency))
	return &IntentRef{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
