package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Error is a failed provider call. Message is provider text and is never
// shown to customers.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("payment gateway error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment gateway error %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify converts any error from a provider call into *Error. Timeouts,
// network failures, 429 and 5xx responses are retryable; other 4xx are not.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: "timeout", Message: err.Error(), Retryable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Code: "canceled", Message: err.Error(), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Code: "network", Message: err.Error(), Retryable: true, Err: err}
	}
	return &Error{Code: "unknown", Message: err.Error(), Err: err}
}

// RetryableStatus reports whether an HTTP status from the provider is worth retrying.
func RetryableStatus(code int) bool {
	return code == 0 || code == 429 || code >= 500
}

func IsRetryable(err error) bool {
	gwErr := Classify(err)
	return gwErr != nil && gwErr.Retryable
}
