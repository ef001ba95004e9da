package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
)

// MinimumChargeable is the smallest amount, in minor units, the provider accepts.
const MinimumChargeable int64 = 50

// OrderEvents is notified about order lifecycle changes. Publishing is best
// effort; a failure never undoes the order write.
type OrderEvents interface {
	OrderConfirmed(ctx context.Context, order *domain.Order) error
	OrderFailed(ctx context.Context, order *domain.Order) error
}

type Config struct {
	SuccessURL               string
	CancelURL                string
	Currency                 string
	AllowedShippingCountries []string
	RequireBillingAddress    bool
	// GatewayTimeout bounds each provider call.
	GatewayTimeout time.Duration
	// RetryBackoff is the pause before the single retry of a transient failure.
	RetryBackoff time.Duration
	// IdempotencyWindow is how long identical checkout attempts share a key.
	IdempotencyWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		SuccessURL:               "https://purrpawboutique.uk/thank-you?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:                "https://purrpawboutique.uk/cart",
		Currency:                 domain.DefaultCurrency,
		AllowedShippingCountries: []string{"GB", "IE", "FR", "DE", "ES", "IT", "NL", "BE"},
		RequireBillingAddress:    true,
		GatewayTimeout:           12 * time.Second,
		RetryBackoff:             250 * time.Millisecond,
		IdempotencyWindow:        10 * time.Minute,
	}
}

type CheckoutService struct {
	gw      gateway.Gateway
	orders  repository.OrderRepository
	events  OrderEvents
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

func NewCheckoutService(
	gw gateway.Gateway,
	orders repository.OrderRepository,
	events OrderEvents,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = def.GatewayTimeout
	}
	if cfg.IdempotencyWindow <= 0 {
		cfg.IdempotencyWindow = def.IdempotencyWindow
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return &CheckoutService{
		gw:      gw,
		orders:  orders,
		events:  events,
		metrics: m,
		logger:  logger.With("component", "checkout"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// callGateway runs fn under the per-call timeout and retries it once when
// the failure is transient. Nothing is persisted before fn succeeds.
func callGateway[T any](ctx context.Context, s *CheckoutService, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		res, err = fn(callCtx)
		cancel()
		if err == nil {
			return res, nil
		}

		gwErr := gateway.Classify(err)
		s.logger.Warn("payment gateway call failed",
			"operation", op,
			"attempt", attempt,
			"code", gwErr.Code,
			"status", gwErr.StatusCode,
			"retryable", gwErr.Retryable)
		if !gwErr.Retryable || attempt == 2 || ctx.Err() != nil {
			break
		}

		s.metrics.GatewayRetry(op)
		select {
		case <-time.After(s.cfg.RetryBackoff):
		case <-ctx.Done():
			return res, err
		}
	}
	return res, err
}
