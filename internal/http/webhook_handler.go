package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
	"github.com/purrpawboutique/purr-paw-boutique/internal/webhook"
)

const signatureHeader = "Stripe-Signature"

// maxWebhookBytes matches the provider's own payload cap.
const maxWebhookBytes = 512 << 10

type WebhookReceiver interface {
	Receive(ctx context.Context, rawBody []byte, signature string) (*domain.Event, error)
}

type WebhookHandler struct {
	receiver WebhookReceiver
	logger   *slog.Logger
	timeout  time.Duration
}

func NewWebhookHandler(receiver WebhookReceiver, logger *slog.Logger, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		receiver: receiver,
		logger:   logger,
		timeout:  timeout,
	}
}

// POST /api/stripe-webhook
// The body must reach the receiver byte for byte; it is never decoded here.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Could not read request body")
		return
	}

	ev, err := h.receiver.Receive(ctx, body, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrWebhookSecretMissing):
		respondError(w, http.StatusInternalServerError, "webhook_not_configured", "Webhook endpoint is not configured")
		return
	case errors.Is(err, gateway.ErrSignatureInvalid), errors.Is(err, gateway.ErrMalformedEvent):
		respondError(w, http.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
		return
	default:
		h.logger.Error("webhook could not be recorded", "error", err)
		respondRetryable(w, http.StatusInternalServerError, "webhook_failed", "Webhook could not be recorded")
		return
	}

	h.logger.Debug("webhook accepted", "event_id", ev.ID, "kind", ev.Kind)
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
