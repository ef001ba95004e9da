package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
)

// FinalizeRequest carries what the client knows about a finished payment.
// Payment status is always re-read from the provider; the client's Items and
// Totals are only used where the provider has nothing better.
type FinalizeRequest struct {
	PaymentReference string
	Customer         domain.CustomerInfo
	Shipping         *domain.Address
	Billing          *domain.Address
	Items            *domain.CartSnapshot
	Totals           *domain.Totals
}

func isSessionRef(ref string) bool { return strings.HasPrefix(ref, "cs_") }
func isIntentRef(ref string) bool  { return strings.HasPrefix(ref, "pi_") }

// FinalizeOrder materializes the order for a succeeded payment. It is
// idempotent on the payment reference: replays return the order created by
// the first call, and the bool reports whether this call created it.
func (s *CheckoutService) FinalizeOrder(ctx context.Context, req FinalizeRequest) (*domain.Order, bool, error) {
	ref := strings.TrimSpace(req.PaymentReference)
	if !isSessionRef(ref) && !isIntentRef(ref) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}

	existing, err := s.orders.GetByPaymentReference(ctx, ref)
	if err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, false, fmt.Errorf("lookup order: %w", err)
	}
	if existing != nil && existing.Status != domain.OrderStatusFailed && existing.Status != domain.OrderStatusPending {
		s.logger.Info("duplicate finalize, returning existing order", "order_id", existing.ID, "payment_reference", ref)
		return existing, false, nil
	}

	var order *domain.Order
	if isSessionRef(ref) {
		order, err = s.orderFromSession(ctx, ref, req)
	} else {
		order, err = s.orderFromIntent(ctx, ref, req)
	}
	if err != nil {
		s.metrics.CheckoutOutcome("finalize_order", outcomeFor(err))
		return nil, false, err
	}

	stored, created, err := s.orders.UpsertByPaymentReference(ctx, order)
	if err != nil {
		return nil, false, fmt.Errorf("store order: %w", err)
	}
	if !created && stored.Status != domain.OrderStatusConfirmed {
		// a failed attempt on the same payment was recorded first
		stored, err = s.orders.UpdateStatus(ctx, ref, domain.OrderStatusConfirmed)
		if err != nil && !errors.Is(err, repository.ErrIllegalTransition) {
			return nil, false, fmt.Errorf("confirm order: %w", err)
		}
	}

	if created {
		s.metrics.CheckoutOutcome("finalize_order", "created")
		s.logger.Info("order created",
			"order_id", stored.ID,
			"order_number", stored.OrderNumber,
			"payment_reference", ref,
			"total", domain.FormatMinor(stored.Totals.Total, stored.Currency))
		s.publishConfirmed(ctx, stored)
	} else {
		s.metrics.CheckoutOutcome("finalize_order", "existing")
	}
	return stored, created, nil
}

func (s *CheckoutService) orderFromSession(ctx context.Context, ref string, req FinalizeRequest) (*domain.Order, error) {
	sess, err := callGateway(ctx, s, "retrieve_session", func(ctx context.Context) (*domain.PaymentSession, error) {
		return s.gw.RetrieveSession(ctx, ref)
	})
	if err != nil {
		return nil, s.verifyError(err)
	}
	if !sess.Succeeded() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrPaymentNotCompleted, sess.ID, sess.Status)
	}

	snap, err := domain.DecodeCartMetadata(sess.Metadata)
	if err != nil {
		s.logger.Warn("session has no usable cart metadata", "session_id", sess.ID, "error", err)
		snap = req.Items
	}

	order := s.newOrder(ref, domain.PaymentKindSession, snap, sess.Currency)
	// the provider's charged total is authoritative
	order.Totals = domain.Totals{Subtotal: sess.AmountTotal, Total: sess.AmountTotal}

	order.Customer = req.Customer
	if sess.Customer != nil {
		order.Customer = mergeCustomer(*sess.Customer, req.Customer)
	}
	if order.Customer.Email == "" {
		order.Customer.Email = sess.CustomerEmail
	}
	order.ShippingAddress = firstAddress(sess.Shipping, req.Shipping)
	order.BillingAddress = firstAddress(sess.Billing, req.Billing)
	return order, nil
}

func (s *CheckoutService) orderFromIntent(ctx context.Context, ref string, req FinalizeRequest) (*domain.Order, error) {
	pi, err := callGateway(ctx, s, "retrieve_intent", func(ctx context.Context) (*domain.PaymentIntent, error) {
		return s.gw.RetrieveIntent(ctx, ref)
	})
	if err != nil {
		return nil, s.verifyError(err)
	}
	if !pi.Succeeded() {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentNotCompleted, pi.ID, pi.Status)
	}

	snap, err := domain.DecodeCartMetadata(pi.Metadata)
	if err != nil {
		snap = req.Items
	}

	order := s.newOrder(ref, domain.PaymentKindIntent, snap, pi.Currency)
	// keep the client's breakdown only when it adds up to what was charged
	if req.Totals != nil && req.Totals.Consistent() && req.Totals.Total == pi.Amount {
		order.Totals = *req.Totals
	} else {
		order.Totals = domain.Totals{Subtotal: pi.Amount, Total: pi.Amount}
	}
	order.Customer = req.Customer
	order.ShippingAddress = req.Shipping
	order.BillingAddress = req.Billing
	return order, nil
}

func (s *CheckoutService) newOrder(ref string, kind domain.PaymentKind, snap *domain.CartSnapshot, currency string) *domain.Order {
	now := s.now().UTC()
	if currency == "" {
		currency = s.cfg.Currency
	}
	var items []domain.CartLine
	if snap != nil {
		items = snap.Clone().Lines
	}
	if items == nil {
		items = []domain.CartLine{}
	}
	return &domain.Order{
		ID:                uuid.NewString(),
		OrderNumber:       orderNumber(now),
		PaymentReference:  ref,
		PaymentKind:       kind,
		Status:            domain.OrderStatusConfirmed,
		Items:             items,
		Currency:          strings.ToLower(currency),
		CreatedAt:         now,
		UpdatedAt:         now,
		EstimatedDelivery: now.Add(domain.DeliveryLeadTime),
	}
}

func (s *CheckoutService) verifyError(err error) error {
	if gwErr := gateway.Classify(err); gwErr.StatusCode == 404 {
		return fmt.Errorf("%w: %s", ErrInvalidReference, gwErr.Code)
	}
	return fmt.Errorf("verify payment: %w", errors.Join(ErrGatewayUnavailable, err))
}

func (s *CheckoutService) publishConfirmed(ctx context.Context, order *domain.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.OrderConfirmed(ctx, order); err != nil {
		s.logger.Error("failed to publish order confirmed", "order_id", order.ID, "error", err)
	}
}

func (s *CheckoutService) publishFailed(ctx context.Context, order *domain.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.OrderFailed(ctx, order); err != nil {
		s.logger.Error("failed to publish order failed", "order_id", order.ID, "error", err)
	}
}

func mergeCustomer(provider, client domain.CustomerInfo) domain.CustomerInfo {
	out := provider
	if out.Email == "" {
		out.Email = client.Email
	}
	if out.Name == "" {
		out.Name = client.Name
	}
	if out.FirstName == "" {
		out.FirstName = client.FirstName
	}
	if out.LastName == "" {
		out.LastName = client.LastName
	}
	if out.Phone == "" {
		out.Phone = client.Phone
	}
	return out
}

func firstAddress(addrs ...*domain.Address) *domain.Address {
	for _, a := range addrs {
		if a != nil {
			return a
		}
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrPaymentNotCompleted):
		return "not_completed"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_error"
	default:
		return "error"
	}
}

// FinalizeFromSession finalizes the order for a session a webhook reported
// as completed. The provider is still asked whether it was paid.
func (s *CheckoutService) FinalizeFromSession(ctx context.Context, sess *domain.PaymentSession) (*domain.Order, bool, error) {
	req := FinalizeRequest{
		PaymentReference: sess.ID,
		Shipping:         sess.Shipping,
		Billing:          sess.Billing,
	}
	if sess.Customer != nil {
		req.Customer = *sess.Customer
	}
	return s.FinalizeOrder(ctx, req)
}
