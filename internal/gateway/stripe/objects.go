package stripe

import (
	"bytes"
	"encoding/json"
	"time"

	stripeapi "github.com/stripe/stripe-go/v74"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

// Sessions are decoded from the raw JSON rather than the SDK struct so the
// same mapping serves API responses and webhook payloads, whatever API
// version the account pins.
type addressObject struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type shippingObject struct {
	Name    string         `json:"name"`
	Address *addressObject `json:"address"`
}

type sessionObject struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email"`
	PaymentIntent   json.RawMessage   `json:"payment_intent"`
	Metadata        map[string]string `json:"metadata"`
	ExpiresAt       int64             `json:"expires_at"`
	ShippingDetails *shippingObject   `json:"shipping_details"`
	CustomerDetails *struct {
		Email   string         `json:"email"`
		Name    string         `json:"name"`
		Phone   string         `json:"phone"`
		Address *addressObject `json:"address"`
	} `json:"customer_details"`
	CollectedInformation *struct {
		ShippingDetails *shippingObject `json:"shipping_details"`
	} `json:"collected_information"`
}

type intentObject struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

func sessionFromResponse(resp *stripeapi.APIResponse, id string) (*domain.PaymentSession, error) {
	if resp == nil || len(resp.RawJSON) == 0 {
		return nil, &gateway.Error{Code: "empty_response", Message: "no body for session " + id}
	}
	var obj sessionObject
	if err := json.Unmarshal(resp.RawJSON, &obj); err != nil {
		return nil, &gateway.Error{Code: "decode", Message: err.Error(), Err: err}
	}
	return obj.toDomain(), nil
}

func (o *sessionObject) toDomain() *domain.PaymentSession {
	s := &domain.PaymentSession{
		ID:            o.ID,
		URL:           o.URL,
		Status:        sessionStatus(o.Status),
		Paid:          o.PaymentStatus == "paid" || o.PaymentStatus == "no_payment_required",
		AmountTotal:   o.AmountTotal,
		Currency:      o.Currency,
		CustomerEmail: o.CustomerEmail,
		PaymentIntent: expandableID(o.PaymentIntent),
		Metadata:      o.Metadata,
	}
	if o.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(o.ExpiresAt, 0).UTC()
	}
	if cd := o.CustomerDetails; cd != nil {
		s.Customer = &domain.CustomerInfo{Email: cd.Email, Name: cd.Name, Phone: cd.Phone}
		if s.CustomerEmail == "" {
			s.CustomerEmail = cd.Email
		}
		s.Billing = cd.Address.toDomain(cd.Name)
	}
	shipping := o.ShippingDetails
	if shipping == nil && o.CollectedInformation != nil {
		shipping = o.CollectedInformation.ShippingDetails
	}
	if shipping != nil {
		s.Shipping = shipping.Address.toDomain(shipping.Name)
	}
	return s
}

func (a *addressObject) toDomain(name string) *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{
		Name:       name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (o *intentObject) toDomain() *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           o.ID,
		ClientSecret: o.ClientSecret,
		Status:       intentStatus(o.Status),
		Amount:       o.Amount,
		Currency:     o.Currency,
		Metadata:     o.Metadata,
	}
}

// expandableID reads a field that is either an id string or an expanded object.
func expandableID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			return id
		}
		return ""
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.ID
}

func sessionStatus(s string) domain.SessionStatus {
	switch s {
	case "complete", "completed":
		return domain.SessionStatusCompleted
	case "expired":
		return domain.SessionStatusExpired
	default:
		return domain.SessionStatusOpen
	}
}

func intentStatus(s string) domain.IntentStatus {
	switch s {
	case "requires_payment_method":
		return domain.IntentStatusRequiresPaymentMethod
	case "requires_confirmation", "requires_action":
		return domain.IntentStatusRequiresConfirmation
	case "processing", "requires_capture":
		return domain.IntentStatusProcessing
	case "succeeded":
		return domain.IntentStatusSucceeded
	case "canceled":
		return domain.IntentStatusCanceled
	default:
		return domain.IntentStatusProcessing
	}
}
