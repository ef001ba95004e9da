// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway/stripe"
)

// Fake mimics the provider: it honours idempotency keys, keeps sessions and
// intents in memory and verifies webhooks with the real Stripe scheme.
type Fake struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*domain.PaymentSession
	intents  map[string]*domain.PaymentIntent
	byKey    map[string]string
	keyReqs  map[string]string
	errs     []error

	CreateSessionCalls   int
	RetrieveSessionCalls int
	CreateIntentCalls    int
	RetrieveIntentCalls  int

	LastSessionRequest *gateway.SessionRequest
	LastIntentRequest  *gateway.IntentRequest
}

var _ gateway.Gateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		sessions: make(map[string]*domain.PaymentSession),
		intents:  make(map[string]*domain.PaymentIntent),
		byKey:    make(map[string]string),
		keyReqs:  make(map[string]string),
	}
}

// FailNext queues errors returned by the next provider calls, in order.
func (f *Fake) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *Fake) popErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CreateSessionCalls + f.RetrieveSessionCalls + f.CreateIntentCalls + f.RetrieveIntentCalls
}

func (f *Fake) CreateSession(ctx context.Context, req gateway.SessionRequest) (*domain.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateSessionCalls++
	reqCopy := req
	f.LastSessionRequest = &reqCopy
	if err := f.popErr(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(err)
	}
	prev, replayed, err := f.replay(req.IdempotencyKey, sessionParams(req))
	if err != nil {
		return nil, err
	}
	if replayed {
		return copySession(f.sessions[prev]), nil
	}

	f.seq++
	var total int64
	for _, l := range req.Lines {
		total += l.LineTotal()
	}
	id := fmt.Sprintf("cs_test_%04d", f.seq)
	s := &domain.PaymentSession{
		ID:            id,
		URL:           "https://checkout.stripe.test/pay/" + id,
		Status:        domain.SessionStatusOpen,
		AmountTotal:   total,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		Metadata:      copyMap(req.Metadata),
		ExpiresAt:     time.Now().Add(24 * time.Hour).UTC(),
	}
	f.sessions[id] = s
	f.remember(req.IdempotencyKey, sessionParams(req), id)
	return copySession(s), nil
}

// replay mirrors the provider's idempotency rules: a reused key returns the
// original object, unless the parameters differ, which is a terminal error.
func (f *Fake) replay(key, params string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	id, ok := f.byKey[key]
	if !ok {
		return "", false, nil
	}
	if f.keyReqs[key] != params {
		return "", false, &gateway.Error{
			Code:       "idempotency_error",
			Message:    "keys for idempotent requests can only be used with the same parameters",
			StatusCode: 400,
		}
	}
	return id, true, nil
}

func (f *Fake) remember(key, params, id string) {
	if key == "" {
		return
	}
	f.byKey[key] = id
	f.keyReqs[key] = params
}

func sessionParams(req gateway.SessionRequest) string {
	req.IdempotencyKey = ""
	return fmt.Sprintf("%+v", req)
}

func intentParams(req gateway.IntentRequest) string {
	req.IdempotencyKey = ""
	return fmt.Sprintf("%+v", req)
}

func (f *Fake) RetrieveSession(_ context.Context, id string) (*domain.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RetrieveSessionCalls++
	if err := f.popErr(); err != nil {
		return nil, err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, &gateway.Error{Code: "resource_missing", Message: "no such checkout session: " + id, StatusCode: 404}
	}
	return copySession(s), nil
}

func (f *Fake) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateIntentCalls++
	reqCopy := req
	f.LastIntentRequest = &reqCopy
	if err := f.popErr(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, gateway.Classify(err)
	}
	prev, replayed, err := f.replay(req.IdempotencyKey, intentParams(req))
	if err != nil {
		return nil, err
	}
	if replayed {
		return copyIntent(f.intents[prev]), nil
	}

	f.seq++
	id := fmt.Sprintf("pi_test_%04d", f.seq)
	pi := &domain.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_fake",
		Status:       domain.IntentStatusRequiresPaymentMethod,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Metadata:     copyMap(req.Metadata),
	}
	f.intents[id] = pi
	f.remember(req.IdempotencyKey, intentParams(req), id)
	return copyIntent(pi), nil
}

func (f *Fake) RetrieveIntent(_ context.Context, id string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RetrieveIntentCalls++
	if err := f.popErr(); err != nil {
		return nil, err
	}
	pi, ok := f.intents[id]
	if !ok {
		return nil, &gateway.Error{Code: "resource_missing", Message: "no such payment intent: " + id, StatusCode: 404}
	}
	return copyIntent(pi), nil
}

func (f *Fake) VerifyWebhookSignature(rawBody []byte, signature, secret string) (*domain.Event, error) {
	return stripe.ParseEvent(rawBody, signature, secret, stripe.DefaultTolerance)
}

// CompleteSession marks a session as paid, as the hosted page would.
func (f *Fake) CompleteSession(id string, customer domain.CustomerInfo, shipping *domain.Address) *domain.PaymentSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.Status = domain.SessionStatusCompleted
	s.Paid = true
	s.Customer = &customer
	if s.CustomerEmail == "" {
		s.CustomerEmail = customer.Email
	}
	s.Shipping = shipping
	f.seq++
	s.PaymentIntent = fmt.Sprintf("pi_test_%04d", f.seq)
	return copySession(s)
}

func (f *Fake) ExpireSession(id string) *domain.PaymentSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.Status = domain.SessionStatusExpired
	return copySession(s)
}

// SetIntentStatus moves an intent, as client-side confirmation would.
func (f *Fake) SetIntentStatus(id string, status domain.IntentStatus) *domain.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi := f.intents[id]
	pi.Status = status
	return copyIntent(pi)
}

func copySession(s *domain.PaymentSession) *domain.PaymentSession {
	cp := *s
	cp.Metadata = copyMap(s.Metadata)
	return &cp
}

func copyIntent(pi *domain.PaymentIntent) *domain.PaymentIntent {
	cp := *pi
	cp.Metadata = copyMap(pi.Metadata)
	return &cp
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Sign produces a Stripe-Signature header for payload.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type wireAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

func toWireAddress(a *domain.Address) *wireAddress {
	if a == nil {
		return nil
	}
	return &wireAddress{Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country}
}

// SessionEvent renders a provider event carrying s in Stripe's wire format.
func SessionEvent(eventID, eventType string, s *domain.PaymentSession) []byte {
	status := string(s.Status)
	if s.Status == domain.SessionStatusCompleted {
		status = "complete"
	}
	paymentStatus := "unpaid"
	if s.Paid {
		paymentStatus = "paid"
	}
	obj := map[string]any{
		"id":             s.ID,
		"object":         "checkout.session",
		"url":            s.URL,
		"status":         status,
		"payment_status": paymentStatus,
		"amount_total":   s.AmountTotal,
		"currency":       s.Currency,
		"customer_email": s.CustomerEmail,
		"metadata":       s.Metadata,
	}
	if s.PaymentIntent != "" {
		obj["payment_intent"] = s.PaymentIntent
	}
	if s.Customer != nil {
		obj["customer_details"] = map[string]any{
			"email":   s.Customer.Email,
			"name":    s.Customer.Name,
			"phone":   s.Customer.Phone,
			"address": toWireAddress(s.Billing),
		}
	}
	if s.Shipping != nil {
		obj["shipping_details"] = map[string]any{
			"name":    s.Shipping.Name,
			"address": toWireAddress(s.Shipping),
		}
	}
	return envelope(eventID, eventType, obj)
}

// IntentEvent renders a provider event carrying pi in Stripe's wire format.
func IntentEvent(eventID, eventType string, pi *domain.PaymentIntent) []byte {
	return envelope(eventID, eventType, map[string]any{
		"id":       pi.ID,
		"object":   "payment_intent",
		"status":   string(pi.Status),
		"amount":   pi.Amount,
		"currency": pi.Currency,
		"metadata": pi.Metadata,
	})
}

func envelope(eventID, eventType string, obj map[string]any) []byte {
	raw, err := json.Marshal(map[string]any{
		"id":      eventID,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": obj},
	})
	if err != nil {
		panic(err)
	}
	return raw
}
