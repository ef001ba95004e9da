// Package stripe adapts the Stripe API to gateway.Gateway.
package stripe

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

type Config struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL, e.g. for stripe-mock.
	APIURL string
	// SiteURL prefixes relative product image paths.
	SiteURL          string
	Timeout          time.Duration
	WebhookTolerance time.Duration
}

type Gateway struct {
	api       *client.API
	siteURL   string
	tolerance time.Duration
	logger    *slog.Logger
}

var _ gateway.Gateway = (*Gateway)(nil)

func New(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = DefaultTolerance
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		// retries are decided by the checkout service, not the SDK
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &slogLeveledLogger{logger: logger.With("component", "stripe-sdk")},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripeapi.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	backends := &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
		Connect: stripeapi.GetBackendWithConfig(stripeapi.ConnectBackend, backendCfg),
		Uploads: stripeapi.GetBackendWithConfig(stripeapi.UploadsBackend, backendCfg),
	}

	return &Gateway{
		api:       client.New(cfg.SecretKey, backends),
		siteURL:   strings.TrimRight(cfg.SiteURL, "/"),
		tolerance: cfg.WebhookTolerance,
		logger:    logger,
	}
}

func (g *Gateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (*domain.PaymentSession, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		SuccessURL:         stripeapi.String(req.SuccessURL),
		CancelURL:          stripeapi.String(req.CancelURL),
	}
	for _, l := range req.Lines {
		product := &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripeapi.String(l.DisplayName),
		}
		if l.VariantKey != "" {
			product.Description = stripeapi.String("Size: " + l.VariantKey)
		}
		if img := g.imageURL(l.ImageRef); img != "" {
			product.Images = stripeapi.StringSlice([]string{img})
		}
		params.LineItems = append(params.LineItems, &stripeapi.CheckoutSessionLineItemParams{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripeapi.String(currency),
				ProductData: product,
				UnitAmount:  stripeapi.Int64(l.UnitPrice),
			},
			Quantity: stripeapi.Int64(int64(l.Quantity)),
		})
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(req.CustomerEmail)
	}
	if len(req.AllowedShippingCountries) > 0 {
		params.ShippingAddressCollection = &stripeapi.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripeapi.StringSlice(req.AllowedShippingCountries),
		}
	}
	if req.RequireBillingAddress {
		params.BillingAddressCollection = stripeapi.String(string(stripeapi.CheckoutSessionBillingAddressCollectionRequired))
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, toGatewayError(err)
	}
	return sessionFromResponse(s.LastResponse, s.ID)
}

func (g *Gateway) RetrieveSession(ctx context.Context, id string) (*domain.PaymentSession, error) {
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, toGatewayError(err)
	}
	return sessionFromResponse(s.LastResponse, s.ID)
}

func (g *Gateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*domain.PaymentIntent, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(req.Amount),
		Currency: stripeapi.String(currency),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, toGatewayError(err)
	}
	return intentFromAPI(pi), nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, toGatewayError(err)
	}
	return intentFromAPI(pi), nil
}

func (g *Gateway) VerifyWebhookSignature(rawBody []byte, signature, secret string) (*domain.Event, error) {
	return ParseEvent(rawBody, signature, secret, g.tolerance)
}

func (g *Gateway) imageURL(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if g.siteURL == "" {
		return ""
	}
	return g.siteURL + "/" + strings.TrimLeft(ref, "/")
}

func intentFromAPI(pi *stripeapi.PaymentIntent) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       intentStatus(string(pi.Status)),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
