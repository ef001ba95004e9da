package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
)

// MarkPaymentSucceeded records a provider-confirmed success for an intent.
// Without an order the intent's cart metadata is used to create one.
func (s *CheckoutService) MarkPaymentSucceeded(ctx context.Context, pi *domain.PaymentIntent) error {
	order, err := s.orders.GetByPaymentReference(ctx, pi.ID)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		if _, decodeErr := domain.DecodeCartMetadata(pi.Metadata); decodeErr != nil {
			// intents behind hosted sessions are finalized by the session event
			s.logger.Info("payment succeeded for intent without order", "intent_id", pi.ID)
			return nil
		}
		_, _, err = s.FinalizeOrder(ctx, FinalizeRequest{PaymentReference: pi.ID})
		return err
	case err != nil:
		return fmt.Errorf("lookup order: %w", err)
	}

	if order.Status == domain.OrderStatusConfirmed {
		return nil
	}
	if _, err := s.orders.UpdateStatus(ctx, pi.ID, domain.OrderStatusConfirmed); err != nil {
		if errors.Is(err, repository.ErrIllegalTransition) {
			s.logger.Warn("ignoring payment success for order", "order_id", order.ID, "status", order.Status)
			return nil
		}
		return fmt.Errorf("confirm order: %w", err)
	}
	s.logger.Info("order confirmed by payment event", "order_id", order.ID, "payment_reference", pi.ID)
	return nil
}

// MarkPaymentFailed records a failed payment. The cart is left untouched so
// the shopper can retry. A confirmed order is only failed after the provider
// confirms the payment did not succeed, since events may arrive out of order.
func (s *CheckoutService) MarkPaymentFailed(ctx context.Context, ref string) error {
	order, err := s.orders.GetByPaymentReference(ctx, ref)
	if errors.Is(err, repository.ErrOrderNotFound) {
		s.logger.Info("payment failed before any order existed", "payment_reference", ref)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup order: %w", err)
	}
	if order.Status == domain.OrderStatusFailed {
		return nil
	}

	if order.Status == domain.OrderStatusConfirmed {
		succeeded, err := s.paymentSucceeded(ctx, ref)
		if err != nil {
			return err
		}
		if succeeded {
			s.logger.Warn("ignoring stale payment failure", "order_id", order.ID, "payment_reference", ref)
			return nil
		}
	}

	updated, err := s.orders.UpdateStatus(ctx, ref, domain.OrderStatusFailed)
	if errors.Is(err, repository.ErrIllegalTransition) {
		s.logger.Warn("ignoring payment failure for order", "order_id", order.ID, "status", order.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fail order: %w", err)
	}
	s.logger.Warn("order marked failed", "order_id", updated.ID, "payment_reference", ref)
	s.publishFailed(ctx, updated)
	return nil
}

func (s *CheckoutService) paymentSucceeded(ctx context.Context, ref string) (bool, error) {
	if isSessionRef(ref) {
		sess, err := callGateway(ctx, s, "retrieve_session", func(ctx context.Context) (*domain.PaymentSession, error) {
			return s.gw.RetrieveSession(ctx, ref)
		})
		if err != nil {
			return false, s.verifyError(err)
		}
		return sess.Succeeded(), nil
	}
	pi, err := callGateway(ctx, s, "retrieve_intent", func(ctx context.Context) (*domain.PaymentIntent, error) {
		return s.gw.RetrieveIntent(ctx, ref)
	})
	if err != nil {
		return false, s.verifyError(err)
	}
	return pi.Succeeded(), nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.GetByOrderID(ctx, id)
}

func (s *CheckoutService) ListRecentOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	return s.orders.ListRecent(ctx, limit)
}
