package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
)

// Checkout is the part of the checkout service the HTTP layer drives.
type Checkout interface {
	BeginCheckout(ctx context.Context, req service.BeginCheckoutRequest) (*service.SessionRef, error)
	CreateIntent(ctx context.Context, req service.CreateIntentRequest) (*service.IntentRef, error)
	RetrieveSession(ctx context.Context, id string) (*domain.PaymentSession, error)
	FinalizeOrder(ctx context.Context, req service.FinalizeRequest) (*domain.Order, bool, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

const msgPaymentNotStarted = "Payment could not be started, please try again"

type CheckoutHandler struct {
	checkout Checkout
	logger   *slog.Logger
	timeout  time.Duration
}

func NewCheckoutHandler(checkout Checkout, logger *slog.Logger, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		logger:   logger,
		timeout:  timeout,
	}
}

type CreateSessionRequestDTO struct {
	Items         []ItemDTO `json:"items" validate:"required,min=1,dive"`
	CustomerEmail string    `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

type CreateSessionResponseDTO struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// POST /api/create-checkout-session
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateSessionRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_items", "Invalid items")
		return
	}

	ref, err := h.checkout.BeginCheckout(ctx, service.BeginCheckoutRequest{
		Cart:          toSnapshot(req.Items, ""),
		CustomerEmail: req.CustomerEmail,
		SessionID:     cartSessionID(r.Context()),
	})
	if err != nil {
		h.handleCheckoutError(w, err, msgPaymentNotStarted)
		return
	}

	respondJSON(w, http.StatusOK, CreateSessionResponseDTO{SessionID: ref.SessionID, URL: ref.URL})
}

type CreateIntentRequestDTO struct {
	// Amount is in minor units (pence). When it is missing, Items must be
	// given and their subtotal is charged.
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Items    []ItemDTO `json:"items,omitempty" validate:"dive"`
}

type CreateIntentResponseDTO struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// POST /api/create-payment-intent
func (h *CheckoutHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateIntentRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}
	var items *domain.CartSnapshot
	if len(req.Items) > 0 {
		items = toSnapshot(req.Items, req.Currency)
	}
	ref, err := h.checkout.CreateIntent(ctx, service.CreateIntentRequest{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Items:     items,
		SessionID: cartSessionID(r.Context()),
	})
	if err != nil {
		h.handleCheckoutError(w, err, msgPaymentNotStarted)
		return
	}

	respondJSON(w, http.StatusOK, CreateIntentResponseDTO{
		ClientSecret:    ref.ClientSecret,
		PaymentIntentID: ref.IntentID,
	})
}

type CustomerDetailsDTO struct {
	Email   string       `json:"email,omitempty"`
	Name    string       `json:"name,omitempty"`
	Phone   string       `json:"phone,omitempty"`
	Address *addressView `json:"address,omitempty"`
}

type SessionResponseDTO struct {
	ID              string              `json:"id"`
	PaymentStatus   string              `json:"payment_status"`
	Status          string              `json:"status"`
	CustomerDetails *CustomerDetailsDTO `json:"customer_details,omitempty"`
	AmountTotal     int64               `json:"amount_total"`
	Currency        string              `json:"currency"`
	LineItems       []itemView          `json:"line_items"`
	Metadata        map[string]string   `json:"metadata,omitempty"`
}

// GET /api/checkout-session/{sessionId}
func (h *CheckoutHandler) GetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "sessionId")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "session id is required")
		return
	}

	sess, err := h.checkout.RetrieveSession(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", "Checkout session not found")
			return
		}
		h.handleCheckoutError(w, err, "Failed to retrieve session")
		return
	}

	respondJSON(w, http.StatusOK, toSessionResponse(sess))
}

func toSessionResponse(sess *domain.PaymentSession) SessionResponseDTO {
	out := SessionResponseDTO{
		ID:            sess.ID,
		PaymentStatus: "unpaid",
		Status:        string(sess.Status),
		AmountTotal:   sess.AmountTotal,
		Currency:      strings.ToLower(sess.Currency),
		LineItems:     []itemView{},
		Metadata:      publicMetadata(sess.Metadata),
	}
	if sess.Paid {
		out.PaymentStatus = "paid"
	}
	if sess.Customer != nil || sess.CustomerEmail != "" {
		details := &CustomerDetailsDTO{Email: sess.CustomerEmail, Address: toAddressView(sess.Billing)}
		if sess.Customer != nil {
			details.Name = sess.Customer.Name
			details.Phone = sess.Customer.Phone
			if sess.Customer.Email != "" {
				details.Email = sess.Customer.Email
			}
		}
		out.CustomerDetails = details
	}
	if snap, err := domain.DecodeCartMetadata(sess.Metadata); err == nil {
		out.LineItems = fromLines(snap.Lines)
	}
	return out
}

// publicMetadata drops the encoded cart chunks; the lines are returned
// decoded instead.
func publicMetadata(md map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range md {
		if strings.HasPrefix(k, "cart_") {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// handleCheckoutError maps service errors to responses. Provider details are
// logged, never returned.
func (h *CheckoutHandler) handleCheckoutError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, service.ErrInvalidCart):
		respondError(w, http.StatusBadRequest, "invalid_items", "Invalid items")
	case errors.Is(err, service.ErrAmountTooSmall):
		respondError(w, http.StatusBadRequest, "invalid_amount", "Invalid amount")
	default:
		h.logger.Error(message, "error", err)
		respondRetryable(w, http.StatusInternalServerError, "checkout_failed", message)
	}
}
