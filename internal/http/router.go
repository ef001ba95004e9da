// Package http exposes the storefront checkout API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
)

// Pinger reports whether the order store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Checkout       Checkout
	Webhooks       WebhookReceiver
	Carts          Carts
	Tokens         TokenIssuer
	Store          Pinger
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	PublishableKey string
	AllowedOrigins []string
	RequestTimeout time.Duration
	// CheckoutPerMinute limits checkout and intent creation per client IP.
	// Zero disables the limit.
	CheckoutPerMinute int
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	checkoutHandler := NewCheckoutHandler(cfg.Checkout, cfg.Logger, timeout)
	ordersHandler := NewOrdersHandler(cfg.Checkout, cfg.Logger, timeout)
	webhookHandler := NewWebhookHandler(cfg.Webhooks, cfg.Logger, timeout)
	cartHandler := NewCartHandler(cfg.Carts, cfg.Checkout, cfg.Logger, timeout)

	var limiter *IPRateLimiter
	if cfg.CheckoutPerMinute > 0 {
		limiter = NewIPRateLimiter(cfg.CheckoutPerMinute, cfg.CheckoutPerMinute)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))
	if cfg.Metrics != nil {
		r.Use(Instrument(cfg.Metrics))
	}
	r.Use(middleware.Timeout(timeout + 5*time.Second))

	r.Get("/health", healthHandler(cfg.Store))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// The webhook body must stay uncompressed and untouched.
		r.Post("/stripe-webhook", webhookHandler.Handle)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			r.Get("/config", func(w http.ResponseWriter, _ *http.Request) {
				respondJSON(w, http.StatusOK, map[string]string{"publishableKey": cfg.PublishableKey})
			})
			r.Get("/checkout-session/{sessionId}", checkoutHandler.GetCheckoutSession)
			r.Post("/orders", ordersHandler.CreateOrder)
			r.Get("/orders/{orderId}", ordersHandler.GetOrder)

			// routes that read the shopper's cart session
			r.Group(func(r chi.Router) {
				r.Use(CartSession(cfg.Tokens))

				r.Group(func(r chi.Router) {
					if limiter != nil {
						r.Use(limiter.Middleware)
					}
					r.Post("/create-checkout-session", checkoutHandler.CreateCheckoutSession)
					r.Post("/create-payment-intent", checkoutHandler.CreatePaymentIntent)
					r.Post("/cart/checkout", cartHandler.Checkout)
				})

				r.Get("/cart", cartHandler.GetCart)
				r.Delete("/cart", cartHandler.ClearCart)
				r.Post("/cart/items", cartHandler.AddItem)
				r.Put("/cart/items/{productId}", cartHandler.UpdateQuantity)
				r.Delete("/cart/items/{productId}", cartHandler.RemoveItem)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}))
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
