package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

type BeginCheckoutRequest struct {
	Cart          *domain.CartSnapshot
	CustomerEmail string
	// SessionID identifies the shopper's cart session; it scopes the
	// idempotency key.
	SessionID string
}

type SessionRef struct {
	SessionID string
	URL       string
}

// BeginCheckout creates a hosted payment session for the cart. The cart is
// validated first and the provider is never called for an invalid cart.
func (s *CheckoutService) BeginCheckout(ctx context.Context, req BeginCheckoutRequest) (*SessionRef, error) {
	if err := req.Cart.Validate(); err != nil {
		s.metrics.CheckoutOutcome("begin_checkout", "invalid_cart")
		return nil, err
	}

	snap := req.Cart.Clone()
	if snap.Currency == "" {
		snap.Currency = s.cfg.Currency
	}
	md, err := snap.EncodeMetadata()
	if err != nil {
		return nil, fmt.Errorf("encode cart metadata: %w", err)
	}

	key := checkoutKey(snap, req.SessionID, req.CustomerEmail, s.now(), s.cfg.IdempotencyWindow)
	gwReq := gateway.SessionRequest{
		Lines:                    snap.Lines,
		Currency:                 snap.Currency,
		SuccessURL:               s.cfg.SuccessURL,
		CancelURL:                s.cfg.CancelURL,
		CustomerEmail:            req.CustomerEmail,
		Metadata:                 md,
		IdempotencyKey:           key,
		AllowedShippingCountries: s.cfg.AllowedShippingCountries,
		RequireBillingAddress:    s.cfg.RequireBillingAddress,
	}

	sess, err := callGateway(ctx, s, "create_session", func(ctx context.Context) (*domain.PaymentSession, error) {
		return s.gw.CreateSession(ctx, gwReq)
	})
	if err != nil {
		s.metrics.CheckoutOutcome("begin_checkout", "gateway_error")
		return nil, fmt.Errorf("create checkout session: %w", errors.Join(ErrGatewayUnavailable, err))
	}

	if sess.AmountTotal != 0 && sess.AmountTotal != snap.Subtotal() {
		s.logger.Error("provider session total differs from cart subtotal",
			"session_id", sess.ID,
			"provider_total", sess.AmountTotal,
			"cart_subtotal", snap.Subtotal())
	}

	s.metrics.CheckoutOutcome("begin_checkout", "ok")
	s.logger.Info("checkout session created",
		"session_id", sess.ID,
		"items", snap.ItemCount(),
		"amount", domain.FormatMinor(snap.Subtotal(), snap.Currency))

	return &SessionRef{SessionID: sess.ID, URL: sess.URL}, nil
}

// RetrieveSession returns provider-side session details for the thank-you page.
func (s *CheckoutService) RetrieveSession(ctx context.Context, id string) (*domain.PaymentSession, error) {
	if !isSessionRef(id) {
		return nil, ErrSessionNotFound
	}
	sess, err := callGateway(ctx, s, "retrieve_session", func(ctx context.Context) (*domain.PaymentSession, error) {
		return s.gw.RetrieveSession(ctx, id)
	})
	if err != nil {
		if gwErr := gateway.Classify(err); gwErr.StatusCode == 404 {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("retrieve checkout session: %w", errors.Join(ErrGatewayUnavailable, err))
	}
	return sess, nil
}
