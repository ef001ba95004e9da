package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "payment-gateway",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Breaker wraps a Gateway with a circuit breaker. Only retryable failures
// count towards tripping; a declined card must not open the circuit.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreaker(next Gateway, s BreakerSettings, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, &Error{Code: "circuit_open", Message: "payment gateway temporarily unavailable", Retryable: true, Err: err}
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (b *Breaker) CreateSession(ctx context.Context, req SessionRequest) (*domain.PaymentSession, error) {
	return execute(b, func() (*domain.PaymentSession, error) { return b.next.CreateSession(ctx, req) })
}

func (b *Breaker) RetrieveSession(ctx context.Context, id string) (*domain.PaymentSession, error) {
	return execute(b, func() (*domain.PaymentSession, error) { return b.next.RetrieveSession(ctx, id) })
}

func (b *Breaker) CreateIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error) {
	return execute(b, func() (*domain.PaymentIntent, error) { return b.next.CreateIntent(ctx, req) })
}

func (b *Breaker) RetrieveIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	return execute(b, func() (*domain.PaymentIntent, error) { return b.next.RetrieveIntent(ctx, id) })
}

// VerifyWebhookSignature is local computation and bypasses the breaker.
func (b *Breaker) VerifyWebhookSignature(rawBody []byte, signature, secret string) (*domain.Event, error) {
	return b.next.VerifyWebhookSignature(rawBody, signature, secret)
}
