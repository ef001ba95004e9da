package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway/gatewaytest"
	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
	"github.com/purrpawboutique/purr-paw-boutique/internal/webhook"
)

func (s *testServer) completedSessionEvent(t *testing.T, eventID string) ([]byte, string) {
	t.Helper()
	ref := s.paidSession(t)
	sess, err := s.gw.RetrieveSession(context.Background(), ref)
	require.NoError(t, err)
	return gatewaytest.SessionEvent(eventID, "checkout.session.completed", sess), ref
}

func TestWebhook_CreatesOrder(t *testing.T) {
	s := newTestServer(t)
	body, ref := s.completedSessionEvent(t, "evt_http_1")

	rec := s.do(t, http.MethodPost, "/api/stripe-webhook", body,
		signatureHeader, gatewaytest.Sign(body, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	order, err := s.orders.GetByPaymentReference(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, int64(5999), order.Totals.Total)

	// redelivery is acknowledged and changes nothing
	rec = s.do(t, http.MethodPost, "/api/stripe-webhook", body,
		signatureHeader, gatewaytest.Sign(body, testWebhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)
	again, err := s.orders.GetByPaymentReference(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)
}

func TestWebhook_Rejected(t *testing.T) {
	s := newTestServer(t)
	body, ref := s.completedSessionEvent(t, "evt_http_2")
	sig := gatewaytest.Sign(body, testWebhookSecret, time.Now())

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] ^= 0x01

	tests := []struct {
		name string
		body []byte
		sig  string
	}{
		{"tampered body", tampered, sig},
		{"no signature", body, ""},
		{"wrong secret", body, gatewaytest.Sign(body, "whsec_other", time.Now())},
		{"stale timestamp", body, gatewaytest.Sign(body, testWebhookSecret, time.Now().Add(-time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/stripe-webhook", tt.body, signatureHeader, tt.sig)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotContains(t, rec.Body.String(), testWebhookSecret)
		})
	}

	_, err := s.orders.GetByPaymentReference(context.Background(), ref)
	assert.Error(t, err)
}

func TestWebhook_MissingSecretIsServerError(t *testing.T) {
	s := newTestServer(t, func(rc *RouterConfig) {
		rc.Webhooks = webhook.NewReceiver(gatewaytest.NewFake(), "", webhook.NewMemoryInbox(), nil,
			metrics.New(prometheus.NewRegistry()), discard)
	})

	rec := s.do(t, http.MethodPost, "/api/stripe-webhook", []byte(`{"id":"evt_x"}`), signatureHeader, "t=1,v1=abc")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "webhook_not_configured", decodeBody[ErrorResponse](t, rec).Code)
}

type stubReceiver struct {
	err error
}

func (s stubReceiver) Receive(context.Context, []byte, string) (*domain.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Event{ID: "evt_stub", Kind: domain.EventUnknown}, nil
}

func TestWebhook_InboxFailureAsksForRedelivery(t *testing.T) {
	h := NewWebhookHandler(stubReceiver{err: errors.New("record event evt_1: disk full")}, discard, defaultTestTimeout)
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", nil)
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.True(t, resp.Retryable)
	assert.NotContains(t, rec.Body.String(), "disk full")
}
