package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrpawboutique/purr-paw-boutique/internal/session"
)

func TestCart_Flow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cart/items", capeItem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := rec.Header().Get(session.Header)
	require.NotEmpty(t, token)

	rec = s.do(t, http.MethodPost, "/api/cart/items", bowTieItem, session.Header, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, token, rec.Header().Get(session.Header))

	rec = s.do(t, http.MethodGet, "/api/cart", nil, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeBody[CartResponseDTO](t, rec)
	assert.Equal(t, 3, c.ItemCount)
	assert.Len(t, c.Items, 2)
	assert.Equal(t, "71.99", c.Subtotal.String())
	assert.Equal(t, "9.99", c.Shipping.String())
	assert.Equal(t, "14.40", c.Tax.String())
	assert.Equal(t, "96.38", c.Total.String())

	rec = s.do(t, http.MethodPut, "/api/cart/items/bow-tie?size=S", map[string]any{"quantity": 5}, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c = decodeBody[CartResponseDTO](t, rec)
	assert.Equal(t, 6, c.ItemCount)
	assert.Equal(t, "89.99", c.Subtotal.String())
	assert.Equal(t, "0.00", c.Shipping.String())

	rec = s.do(t, http.MethodDelete, "/api/cart/items/cape-royal?size=M", nil, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code)
	c = decodeBody[CartResponseDTO](t, rec)
	assert.Equal(t, 5, c.ItemCount)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "bow-tie", c.Items[0].ID)

	rec = s.do(t, http.MethodDelete, "/api/cart", nil, session.Header, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/cart", nil, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code)
	c = decodeBody[CartResponseDTO](t, rec)
	assert.Equal(t, 0, c.ItemCount)
	assert.Equal(t, "0.00", c.Total.String())
}

func TestCart_SessionsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/cart/items", capeItem)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[CartResponseDTO](t, rec).ItemCount)
}

func TestCart_InvalidToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/cart", nil, session.Header, "not-a-token")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_session", decodeBody[ErrorResponse](t, rec).Code)
}

func TestCart_Rejects(t *testing.T) {
	s := newTestServer(t)
	_, token, err := s.tokens.Issue()
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"zero quantity", http.MethodPost, "/api/cart/items", map[string]any{"id": "cape", "price": 1, "quantity": 0}, http.StatusBadRequest},
		{"too many", http.MethodPost, "/api/cart/items", map[string]any{"id": "cape", "price": 1, "quantity": 100}, http.StatusBadRequest},
		{"negative price", http.MethodPost, "/api/cart/items", map[string]any{"id": "cape", "price": -1, "quantity": 1}, http.StatusBadRequest},
		{"update missing item", http.MethodPut, "/api/cart/items/nope", map[string]any{"quantity": 2}, http.StatusNotFound},
		{"update bad quantity", http.MethodPut, "/api/cart/items/nope", map[string]any{"quantity": -1}, http.StatusBadRequest},
		{"checkout empty cart", http.MethodPost, "/api/cart/checkout", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body, session.Header, token)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 0, s.gw.Calls())
}

func TestCart_Checkout(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/cart/items", capeItem)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := rec.Header().Get(session.Header)

	body := map[string]any{"customerEmail": "whiskers@example.com"}
	rec = s.do(t, http.MethodPost, "/api/cart/checkout", body, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[CreateSessionResponseDTO](t, rec)
	require.NotNil(t, s.gw.LastSessionRequest)
	assert.Equal(t, int64(5999), s.gw.LastSessionRequest.Lines[0].UnitPrice)

	// a double submit from the same cart gets the same session back
	rec = s.do(t, http.MethodPost, "/api/cart/checkout", body, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.SessionID, decodeBody[CreateSessionResponseDTO](t, rec).SessionID)

	// an empty body is allowed and starts checkout without an email
	rec = s.do(t, http.MethodPost, "/api/cart/checkout", nil, session.Header, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, first.SessionID, decodeBody[CreateSessionResponseDTO](t, rec).SessionID)
}
