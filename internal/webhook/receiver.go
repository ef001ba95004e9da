// Package webhook verifies payment provider notifications and applies them
// to orders exactly once per provider event.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
)

// ErrWebhookSecretMissing means the receiver was started without a signing
// secret. Events are never processed unverified.
var ErrWebhookSecretMissing = errors.New("webhook signing secret not configured")

const DefaultMaxAttempts = 10

// Verifier checks the provider signature and parses the event.
type Verifier interface {
	VerifyWebhookSignature(rawBody []byte, signature, secret string) (*domain.Event, error)
}

// Orders is the part of the checkout service events are applied to.
type Orders interface {
	FinalizeFromSession(ctx context.Context, sess *domain.PaymentSession) (*domain.Order, bool, error)
	MarkPaymentSucceeded(ctx context.Context, pi *domain.PaymentIntent) error
	MarkPaymentFailed(ctx context.Context, ref string) error
}

type Receiver struct {
	verifier    Verifier
	secret      string
	inbox       Inbox
	orders      Orders
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxAttempts int
}

func NewReceiver(v Verifier, secret string, inbox Inbox, orders Orders, m *metrics.Metrics, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		verifier:    v,
		secret:      secret,
		inbox:       inbox,
		orders:      orders,
		metrics:     m,
		logger:      logger.With("component", "webhook"),
		maxAttempts: DefaultMaxAttempts,
	}
}

// Verify authenticates rawBody before anything in it is parsed or trusted.
func (r *Receiver) Verify(rawBody []byte, signature string) (*domain.Event, error) {
	if r.secret == "" {
		r.logger.Error("webhook secret missing, refusing event", "alert", true)
		r.metrics.WebhookEvent("unverified", "secret_missing")
		return nil, ErrWebhookSecretMissing
	}

	ev, err := r.verifier.VerifyWebhookSignature(rawBody, signature, r.secret)
	if err != nil {
		r.metrics.WebhookEvent("unverified", "rejected")
		r.logger.Warn("webhook rejected",
			"error", err,
			"body_len", len(rawBody),
			"body_hash", fmt.Sprintf("%016x", xxhash.Sum64(rawBody)),
			"signature_ts", signatureTimestamp(signature))
		return nil, err
	}
	return ev, nil
}

// Receive verifies and durably records an event, then tries to apply it.
// A nil error means the delivery can be acknowledged: processing failures
// stay in the inbox for the retry poller.
func (r *Receiver) Receive(ctx context.Context, rawBody []byte, signature string) (*domain.Event, error) {
	ev, err := r.Verify(rawBody, signature)
	if err != nil {
		return nil, err
	}

	fresh, err := r.inbox.Enqueue(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	if !fresh {
		r.logger.Info("duplicate webhook delivery", "event_id", ev.ID, "kind", ev.Kind)
		r.metrics.WebhookEvent(string(ev.Kind), "duplicate")
	}

	if err := r.Process(ctx, ev); err != nil {
		r.logger.Error("webhook processing failed, left for retry", "event_id", ev.ID, "kind", ev.Kind, "error", err)
	}
	return ev, nil
}

// Process applies an inbox event unless it was already processed, and
// records the outcome in the inbox.
func (r *Receiver) Process(ctx context.Context, ev *domain.Event) error {
	seen, err := r.inbox.Seen(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("check inbox: %w", err)
	}
	if seen {
		return nil
	}

	if err := r.HandleEvent(ctx, ev); err != nil {
		r.metrics.WebhookEvent(string(ev.Kind), "failed")
		dead, markErr := r.inbox.MarkFailed(ctx, ev.ID, err, r.maxAttempts)
		if markErr != nil {
			return errors.Join(err, markErr)
		}
		if dead {
			r.logger.Error("webhook event parked after too many attempts",
				"event_id", ev.ID, "kind", ev.Kind, "attempts", r.maxAttempts, "alert", true)
		}
		return err
	}

	r.metrics.WebhookEvent(string(ev.Kind), "processed")
	return r.inbox.MarkProcessed(ctx, ev.ID)
}

// HandleEvent applies a verified event to the order store.
func (r *Receiver) HandleEvent(ctx context.Context, ev *domain.Event) error {
	log := r.logger.With("event_id", ev.ID, "kind", ev.Kind, "reference", ev.Reference)

	switch ev.Kind {
	case domain.EventSessionCompleted:
		if ev.Session == nil {
			return fmt.Errorf("%w: session event without session", gateway.ErrMalformedEvent)
		}
		order, created, err := r.orders.FinalizeFromSession(ctx, ev.Session)
		if errors.Is(err, service.ErrPaymentNotCompleted) {
			// delayed payment methods complete the session before paying
			log.Info("session completed without payment yet")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("order finalized from webhook", "order_id", order.ID, "created", created)
		return nil

	case domain.EventPaymentSucceeded:
		if ev.Intent == nil {
			return fmt.Errorf("%w: payment event without intent", gateway.ErrMalformedEvent)
		}
		return r.orders.MarkPaymentSucceeded(ctx, ev.Intent)

	case domain.EventPaymentFailed:
		return r.orders.MarkPaymentFailed(ctx, ev.Reference)

	case domain.EventSessionExpired:
		log.Info("checkout session expired")
		return nil

	default:
		log.Info("ignoring webhook event", "provider_type", ev.ProviderType)
		return nil
	}
}

func signatureTimestamp(header string) string {
	for _, part := range strings.Split(header, ",") {
		if ts, ok := strings.CutPrefix(strings.TrimSpace(part), "t="); ok {
			return ts
		}
	}
	return ""
}
