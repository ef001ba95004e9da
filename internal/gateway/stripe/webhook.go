package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

// DefaultTolerance is how old a signed timestamp may be before the event is
// rejected as a replay.
const DefaultTolerance = 5 * time.Minute

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent verifies the Stripe-Signature header over the exact payload
// bytes and then maps the event to a domain.Event. Nothing is decoded
// before the signature checks out.
func ParseEvent(payload []byte, header, secret string, tolerance time.Duration) (*domain.Event, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: no signing secret", gateway.ErrSignatureInvalid)
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrSignatureInvalid, err)
	}

	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", gateway.ErrMalformedEvent)
	}

	ev := &domain.Event{
		ID:           env.ID,
		ProviderType: env.Type,
		Kind:         domain.EventUnknown,
		Created:      time.Unix(env.Created, 0).UTC(),
	}

	switch env.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return withSession(ev, domain.EventSessionCompleted, env.Data.Object)
	case "checkout.session.expired":
		return withSession(ev, domain.EventSessionExpired, env.Data.Object)
	case "checkout.session.async_payment_failed":
		return withSession(ev, domain.EventPaymentFailed, env.Data.Object)
	case "payment_intent.succeeded":
		return withIntent(ev, domain.EventPaymentSucceeded, env.Data.Object)
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return withIntent(ev, domain.EventPaymentFailed, env.Data.Object)
	}
	return ev, nil
}

func withSession(ev *domain.Event, kind domain.EventKind, raw json.RawMessage) (*domain.Event, error) {
	var obj sessionObject
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return nil, fmt.Errorf("%w: %s carries no session", gateway.ErrMalformedEvent, ev.ProviderType)
	}
	ev.Kind = kind
	ev.Session = obj.toDomain()
	ev.Reference = obj.ID
	return ev, nil
}

func withIntent(ev *domain.Event, kind domain.EventKind, raw json.RawMessage) (*domain.Event, error) {
	var obj intentObject
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return nil, fmt.Errorf("%w: %s carries no payment intent", gateway.ErrMalformedEvent, ev.ProviderType)
	}
	ev.Kind = kind
	ev.Intent = obj.toDomain()
	// the client secret is never needed downstream of a webhook
	ev.Intent.ClientSecret = ""
	ev.Reference = obj.ID
	return ev, nil
}
