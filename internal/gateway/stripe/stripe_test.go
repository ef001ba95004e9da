package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{SecretKey: "sk_test_123", APIURL: srv.URL, SiteURL: "https://purrpawboutique.uk/"}, nil)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestCreateSession_SendsCartAndOptions(t *testing.T) {
	var form map[string]string
	var idemKey, path string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		idemKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		writeJSON(w, http.StatusOK, `{
			"id": "cs_test_a1",
			"object": "checkout.session",
			"url": "https://checkout.stripe.com/c/pay/cs_test_a1",
			"status": "open",
			"payment_status": "unpaid",
			"amount_total": 5999,
			"currency": "gbp",
			"metadata": {"cart_chunks": "1"}
		}`)
	})

	sess, err := gw.CreateSession(context.Background(), gateway.SessionRequest{
		Lines: []domain.CartLine{
			{ProductID: "royal-velvet-cape", VariantKey: "M", UnitPrice: 5999, Quantity: 1, DisplayName: "Royal Velvet Cape (M)", ImageRef: "/images/cape.jpg"},
		},
		Currency:                 "GBP",
		SuccessURL:               "https://purrpawboutique.uk/thank-you?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:                "https://purrpawboutique.uk/cart",
		CustomerEmail:            "owner@example.com",
		Metadata:                 map[string]string{"cart_chunks": "1", "cart_0": "{}"},
		IdempotencyKey:           "checkout-abc",
		AllowedShippingCountries: []string{"GB", "IE"},
		RequireBillingAddress:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/checkout/sessions", path)
	assert.Equal(t, "checkout-abc", idemKey)
	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, "5999", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "gbp", form["line_items[0][price_data][currency]"])
	assert.Equal(t, "1", form["line_items[0][quantity]"])
	assert.Equal(t, "Royal Velvet Cape (M)", form["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, "https://purrpawboutique.uk/images/cape.jpg", form["line_items[0][price_data][product_data][images][0]"])
	assert.Equal(t, "Size: M", form["line_items[0][price_data][product_data][description]"])
	assert.Equal(t, "GB", form["shipping_address_collection[allowed_countries][0]"])
	assert.Equal(t, "required", form["billing_address_collection"])
	assert.Equal(t, "owner@example.com", form["customer_email"])
	assert.Equal(t, "1", form["metadata[cart_chunks]"])

	assert.Equal(t, "cs_test_a1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_a1", sess.URL)
	assert.Equal(t, domain.SessionStatusOpen, sess.Status)
	assert.False(t, sess.Paid)
	assert.Equal(t, int64(5999), sess.AmountTotal)
}

func TestRetrieveSession_MapsCustomerAndShipping(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_test_paid", r.URL.Path)
		writeJSON(w, http.StatusOK, `{
			"id": "cs_test_paid",
			"object": "checkout.session",
			"status": "complete",
			"payment_status": "paid",
			"amount_total": 7199,
			"currency": "gbp",
			"payment_intent": "pi_123",
			"customer_details": {
				"email": "owner@example.com",
				"name": "Biscuit Owner",
				"address": {"line1": "9 Billing Road", "city": "Leeds", "postal_code": "LS1 1AA", "country": "GB"}
			},
			"shipping_details": {
				"name": "Biscuit",
				"address": {"line1": "1 Bark Street", "city": "London", "postal_code": "E1 6AN", "country": "GB"}
			}
		}`)
	})

	sess, err := gw.RetrieveSession(context.Background(), "cs_test_paid")
	require.NoError(t, err)

	assert.True(t, sess.Succeeded())
	assert.Equal(t, "pi_123", sess.PaymentIntent)
	assert.Equal(t, "owner@example.com", sess.CustomerEmail)
	require.NotNil(t, sess.Customer)
	assert.Equal(t, "Biscuit Owner", sess.Customer.Name)
	require.NotNil(t, sess.Shipping)
	assert.Equal(t, "E1 6AN", sess.Shipping.PostalCode)
	assert.Equal(t, "Biscuit", sess.Shipping.Name)
	require.NotNil(t, sess.Billing)
	assert.Equal(t, "Leeds", sess.Billing.City)
}

func TestCreateIntent(t *testing.T) {
	var form map[string]string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		writeJSON(w, http.StatusOK, `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_x","status":"requires_payment_method","amount":7199,"currency":"gbp"}`)
	})

	pi, err := gw.CreateIntent(context.Background(), gateway.IntentRequest{Amount: 7199, Currency: "gbp", IdempotencyKey: "intent-1"})
	require.NoError(t, err)

	assert.Equal(t, "7199", form["amount"])
	assert.Equal(t, "gbp", form["currency"])
	assert.Equal(t, "true", form["automatic_payment_methods[enabled]"])
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret_x", pi.ClientSecret)
	assert.Equal(t, domain.IntentStatusRequiresPaymentMethod, pi.Status)
}

func TestRetrieveIntent_StatusMapping(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"pi_2","object":"payment_intent","status":"requires_action","amount":100,"currency":"gbp"}`)
	})

	pi, err := gw.RetrieveIntent(context.Background(), "pi_2")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusRequiresConfirmation, pi.Status)
}

func TestErrors_AreClassified(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`, true},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"invalid_request_error","code":"rate_limit","message":"slow down"}}`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","code":"parameter_missing","message":"missing"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := gw.CreateIntent(context.Background(), gateway.IntentRequest{Amount: 100, Currency: "gbp"})
			var gwErr *gateway.Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.retryable, gwErr.Retryable)
			assert.Equal(t, tt.status, gwErr.StatusCode)
		})
	}
}

func TestImageURL(t *testing.T) {
	gw := New(Config{SiteURL: "https://purrpawboutique.uk"}, nil)
	assert.Equal(t, "https://purrpawboutique.uk/images/a.jpg", gw.imageURL("/images/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", gw.imageURL("https://cdn.example.com/a.jpg"))
	assert.Equal(t, "", gw.imageURL(""))
}
