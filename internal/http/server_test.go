package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/purrpawboutique/purr-paw-boutique/internal/cart"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway/gatewaytest"
	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
	"github.com/purrpawboutique/purr-paw-boutique/internal/session"
	"github.com/purrpawboutique/purr-paw-boutique/internal/webhook"
)

const (
	testWebhookSecret  = "whsec_http_test"
	defaultTestTimeout = 5 * time.Second
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	gw      *gatewaytest.Fake
	orders  *repository.MemoryRepository
	svc     *service.CheckoutService
	carts   *cart.Service
	tokens  *session.Issuer
	inbox   *webhook.MemoryInbox
	handler http.Handler
}

func newTestServer(t *testing.T, opts ...func(*RouterConfig)) *testServer {
	t.Helper()
	gw := gatewaytest.NewFake()
	orders := repository.NewMemoryRepository()
	m := metrics.New(prometheus.NewRegistry())
	cfg := service.DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.GatewayTimeout = time.Second
	svc := service.NewCheckoutService(gw, orders, nil, m, discard, cfg)
	inbox := webhook.NewMemoryInbox()
	carts := cart.NewService(cart.NewMemoryRepository(), cart.NoopCache{}, discard)
	tokens, err := session.NewIssuer("cart-token-secret", time.Hour)
	require.NoError(t, err)

	rc := RouterConfig{
		Checkout:       svc,
		Webhooks:       webhook.NewReceiver(gw, testWebhookSecret, inbox, svc, m, discard),
		Carts:          carts,
		Tokens:         tokens,
		Store:          orders,
		Metrics:        m,
		Logger:         discard,
		PublishableKey: "pk_test_123",
		AllowedOrigins: []string{"https://purrpawboutique.uk"},
		RequestTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(&rc)
	}
	return &testServer{
		gw:      gw,
		orders:  orders,
		svc:     svc,
		carts:   carts,
		tokens:  tokens,
		inbox:   inbox,
		handler: NewRouter(rc),
	}
}

// do sends body as JSON unless it is already []byte. Extra args are
// header name/value pairs.
func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var capeItem = map[string]any{
	"id":       "cape-royal",
	"name":     "Royal Velvet Cape",
	"price":    59.99,
	"quantity": 1,
	"size":     "M",
	"image":    "/images/cape.jpg",
}

var bowTieItem = map[string]any{
	"id":       "bow-tie",
	"name":     "Satin Bow Tie",
	"price":    "6.00",
	"quantity": 2,
	"size":     "S",
}
