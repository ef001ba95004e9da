package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/cart"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
)

type Carts interface {
	GetCart(ctx context.Context, sessionID string) (*cart.Cart, error)
	AddItem(ctx context.Context, sessionID string, item cart.Item) error
	UpdateQuantity(ctx context.Context, sessionID, productID, variant string, quantity int) error
	RemoveItem(ctx context.Context, sessionID, productID, variant string) error
	ClearCart(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context, sessionID string) (*domain.CartSnapshot, error)
}

type CartHandler struct {
	carts    Carts
	checkout Checkout
	logger   *slog.Logger
	timeout  time.Duration
}

func NewCartHandler(carts Carts, checkout Checkout, logger *slog.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		checkout: checkout,
		logger:   logger,
		timeout:  timeout,
	}
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

type CheckoutFromCartRequestDTO struct {
	CustomerEmail string `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

type CartResponseDTO struct {
	Items     []itemView  `json:"items"`
	ItemCount int         `json:"itemCount"`
	Currency  string      `json:"currency"`
	Subtotal  json.Number `json:"subtotal"`
	Shipping  json.Number `json:"shipping"`
	Tax       json.Number `json:"tax"`
	Total     json.Number `json:"total"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toCartResponse(c *cart.Cart) CartResponseDTO {
	snap := c.Snapshot()
	quote := domain.QuoteTotals(snap.Subtotal())
	if len(snap.Lines) == 0 {
		quote = domain.Totals{}
	}
	return CartResponseDTO{
		Items:     fromLines(snap.Lines),
		ItemCount: c.ItemCount(),
		Currency:  snap.Currency,
		Subtotal:  major(quote.Subtotal),
		Shipping:  major(quote.Shipping),
		Tax:       major(quote.Tax),
		Total:     major(quote.Total),
		UpdatedAt: c.UpdatedAt,
	}
}

// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.carts.GetCart(ctx, cartSessionID(r.Context()))
	if err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

// POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ItemDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sid := cartSessionID(r.Context())
	line := req.toLine()
	err := h.carts.AddItem(ctx, sid, cart.Item{
		ProductID:   line.ProductID,
		VariantKey:  line.VariantKey,
		UnitPrice:   line.UnitPrice,
		Quantity:    line.Quantity,
		DisplayName: line.DisplayName,
		ImageRef:    line.ImageRef,
	})
	if err != nil {
		h.handleCartError(w, err)
		return
	}
	h.respondCart(ctx, w, sid, http.StatusCreated)
}

// PUT /api/cart/items/{productId}?size=
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", cart.ErrInvalidQuantity.Error())
		return
	}

	sid := cartSessionID(r.Context())
	productID := chi.URLParam(r, "productId")
	if err := h.carts.UpdateQuantity(ctx, sid, productID, r.URL.Query().Get("size"), req.Quantity); err != nil {
		h.handleCartError(w, err)
		return
	}
	h.respondCart(ctx, w, sid, http.StatusOK)
}

// DELETE /api/cart/items/{productId}?size=
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sid := cartSessionID(r.Context())
	if err := h.carts.RemoveItem(ctx, sid, chi.URLParam(r, "productId"), r.URL.Query().Get("size")); err != nil {
		h.handleCartError(w, err)
		return
	}
	h.respondCart(ctx, w, sid, http.StatusOK)
}

// DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.ClearCart(ctx, cartSessionID(r.Context())); err != nil {
		h.handleCartError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/cart/checkout starts a hosted checkout for the stored cart.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutFromCartRequestDTO
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	sid := cartSessionID(r.Context())
	snap, err := h.carts.Snapshot(ctx, sid)
	if err != nil {
		h.handleCartError(w, err)
		return
	}

	ref, err := h.checkout.BeginCheckout(ctx, service.BeginCheckoutRequest{
		Cart:          snap,
		CustomerEmail: req.CustomerEmail,
		SessionID:     sid,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCart) {
			respondError(w, http.StatusBadRequest, "invalid_items", "Invalid items")
			return
		}
		h.logger.Error("cart checkout failed", "error", err)
		respondRetryable(w, http.StatusInternalServerError, "checkout_failed", msgPaymentNotStarted)
		return
	}
	respondJSON(w, http.StatusOK, CreateSessionResponseDTO{SessionID: ref.SessionID, URL: ref.URL})
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, sid string, status int) {
	c, err := h.carts.GetCart(ctx, sid)
	if err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, status, toCartResponse(c))
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidItem):
		respondError(w, http.StatusBadRequest, "invalid_item", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrItemNotFound), errors.Is(err, cart.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "Item not found in cart")
	default:
		h.logger.Error("cart operation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Cart is temporarily unavailable")
	}
}
