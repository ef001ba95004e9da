package stripe

import (
	"errors"

	stripeapi "github.com/stripe/stripe-go/v74"

	"github.com/purrpawboutique/purr-paw-boutique/internal/gateway"
)

func toGatewayError(err error) error {
	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return gateway.Classify(err)
	}
	code := string(se.Code)
	if code == "" {
		code = string(se.Type)
	}
	retryable := gateway.RetryableStatus(se.HTTPStatusCode)
	// same idempotency key with different parameters
	if se.Type == stripeapi.ErrorTypeIdempotency {
		retryable = false
	}
	return &gateway.Error{
		Code:       code,
		Message:    se.Msg,
		StatusCode: se.HTTPStatusCode,
		Retryable:  retryable,
		Err:        err,
	}
}
