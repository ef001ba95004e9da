package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

const testSecret = "whsec_test_secret"

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

const sessionCompleted = `{
	"id": "evt_1",
	"type": "checkout.session.completed",
	"created": 1760000000,
	"data": {"object": {
		"id": "cs_test_paid",
		"object": "checkout.session",
		"status": "complete",
		"payment_status": "paid",
		"amount_total": 5999,
		"currency": "gbp",
		"customer_details": {"email": "owner@example.com"},
		"metadata": {"cart_chunks": "1"}
	}}
}`

func TestParseEvent_SessionCompleted(t *testing.T) {
	payload := []byte(sessionCompleted)

	ev, err := ParseEvent(payload, sign(payload, testSecret, time.Now()), testSecret, DefaultTolerance)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, domain.EventSessionCompleted, ev.Kind)
	assert.Equal(t, "cs_test_paid", ev.Reference)
	require.NotNil(t, ev.Session)
	assert.Nil(t, ev.Intent)
	assert.True(t, ev.Session.Succeeded())
	assert.Equal(t, int64(5999), ev.Session.AmountTotal)
	assert.Equal(t, "owner@example.com", ev.Session.CustomerEmail)
}

func TestParseEvent_TamperedPayloadRejected(t *testing.T) {
	payload := []byte(sessionCompleted)
	header := sign(payload, testSecret, time.Now())

	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[len(tampered)-5] ^= 0x01

	_, err := ParseEvent(tampered, header, testSecret, DefaultTolerance)
	assert.ErrorIs(t, err, gateway.ErrSignatureInvalid)
}

func TestParseEvent_SignatureFailures(t *testing.T) {
	payload := []byte(sessionCompleted)

	tests := []struct {
		name   string
		header string
		secret string
	}{
		{"wrong secret", sign(payload, "whsec_other", time.Now()), testSecret},
		{"stale timestamp", sign(payload, testSecret, time.Now().Add(-time.Hour)), testSecret},
		{"missing header", "", testSecret},
		{"garbage header", "not-a-signature", testSecret},
		{"empty secret", sign(payload, testSecret, time.Now()), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent(payload, tt.header, tt.secret, DefaultTolerance)
			assert.ErrorIs(t, err, gateway.ErrSignatureInvalid)
		})
	}
}

func TestParseEvent_IntentSucceededDropsSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded","created":1760000000,
		"data":{"object":{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_x","status":"succeeded","amount":7199,"currency":"gbp"}}}`)

	ev, err := ParseEvent(payload, sign(payload, testSecret, time.Now()), testSecret, DefaultTolerance)
	require.NoError(t, err)

	assert.Equal(t, domain.EventPaymentSucceeded, ev.Kind)
	require.NotNil(t, ev.Intent)
	assert.Equal(t, "pi_1", ev.Reference)
	assert.Empty(t, ev.Intent.ClientSecret)
	assert.True(t, ev.Intent.Succeeded())
}

func TestParseEvent_Kinds(t *testing.T) {
	tests := []struct {
		typ  string
		obj  string
		kind domain.EventKind
	}{
		{"checkout.session.expired", `{"id":"cs_1","status":"expired"}`, domain.EventSessionExpired},
		{"checkout.session.async_payment_failed", `{"id":"cs_1","status":"complete"}`, domain.EventPaymentFailed},
		{"payment_intent.payment_failed", `{"id":"pi_1","status":"requires_payment_method"}`, domain.EventPaymentFailed},
		{"payment_intent.canceled", `{"id":"pi_1","status":"canceled"}`, domain.EventPaymentFailed},
		{"customer.created", `{"id":"cus_1"}`, domain.EventUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			payload := []byte(fmt.Sprintf(`{"id":"evt_k","type":%q,"created":1,"data":{"object":%s}}`, tt.typ, tt.obj))
			ev, err := ParseEvent(payload, sign(payload, testSecret, time.Now()), testSecret, DefaultTolerance)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.typ, ev.ProviderType)
		})
	}
}

func TestParseEvent_MalformedButSigned(t *testing.T) {
	payload := []byte(`{"id":"evt_3","type":"payment_intent.succeeded","data":{"object":"nope"}}`)

	_, err := ParseEvent(payload, sign(payload, testSecret, time.Now()), testSecret, DefaultTolerance)
	assert.ErrorIs(t, err, gateway.ErrMalformedEvent)

	garbage := []byte(`not json`)
	_, err = ParseEvent(garbage, sign(garbage, testSecret, time.Now()), testSecret, DefaultTolerance)
	assert.ErrorIs(t, err, gateway.ErrMalformedEvent)
}
