package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
)

type OrdersHandler struct {
	checkout Checkout
	logger   *slog.Logger
	timeout  time.Duration
}

func NewOrdersHandler(checkout Checkout, logger *slog.Logger, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		checkout: checkout,
		logger:   logger,
		timeout:  timeout,
	}
}

type CreateOrderRequestDTO struct {
	PaymentIntentID  string              `json:"paymentIntentId,omitempty"`
	PaymentReference string              `json:"paymentReference,omitempty"`
	SessionID        string              `json:"sessionId,omitempty"`
	CustomerInfo     domain.CustomerInfo `json:"customerInfo"`
	ShippingAddress  *AddressDTO         `json:"shippingAddress,omitempty"`
	BillingAddress   *AddressDTO         `json:"billingAddress,omitempty"`
	Items            []ItemDTO           `json:"items,omitempty" validate:"dive"`
	Totals           *TotalsDTO          `json:"totals,omitempty"`
}

// reference picks whichever payment reference the client sent.
func (d CreateOrderRequestDTO) reference() string {
	for _, ref := range []string{d.PaymentReference, d.PaymentIntentID, d.SessionID} {
		if ref != "" {
			return ref
		}
	}
	return ""
}

type OrderSummaryDTO struct {
	ID          string             `json:"id"`
	OrderNumber string             `json:"orderNumber"`
	Status      domain.OrderStatus `json:"status"`
}

type CreateOrderResponseDTO struct {
	Success bool            `json:"success"`
	Created bool            `json:"created"`
	Order   OrderSummaryDTO `json:"order"`
}

// POST /api/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid order request")
		return
	}
	ref := req.reference()
	if ref == "" {
		respondError(w, http.StatusBadRequest, "missing_payment_reference", "Payment reference is required")
		return
	}

	fin := service.FinalizeRequest{
		PaymentReference: ref,
		Customer:         req.CustomerInfo,
		Shipping:         req.ShippingAddress.toDomain(),
		Billing:          req.BillingAddress.toDomain(),
		Totals:           req.Totals.toDomain(),
	}
	if len(req.Items) > 0 {
		fin.Items = toSnapshot(req.Items, "")
	}

	order, created, err := h.checkout.FinalizeOrder(ctx, fin)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotCompleted):
			respondRetryable(w, http.StatusBadRequest, "payment_not_completed", "Payment not completed")
		case errors.Is(err, service.ErrInvalidReference):
			respondError(w, http.StatusBadRequest, "invalid_payment_reference", "Unrecognised payment reference")
		case errors.Is(err, service.ErrGatewayUnavailable):
			h.logger.Error("payment verification failed", "reference", ref, "error", err)
			respondRetryable(w, http.StatusServiceUnavailable, "payment_verification_unavailable", "Could not verify payment, please retry")
		default:
			h.logger.Error("create order failed", "reference", ref, "error", err)
			respondRetryable(w, http.StatusInternalServerError, "order_failed", "Failed to create order")
		}
		return
	}

	respondJSON(w, http.StatusOK, CreateOrderResponseDTO{
		Success: true,
		Created: created,
		Order: OrderSummaryDTO{
			ID:          order.ID,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
		},
	})
}

// GET /api/orders/{orderId}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "orderId")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id is required")
		return
	}

	order, err := h.checkout.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order_not_found", "Order not found")
			return
		}
		h.logger.Error("get order failed", "order_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch order")
		return
	}

	respondJSON(w, http.StatusOK, toOrderView(order))
}
