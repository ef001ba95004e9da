package service

import (
	"errors"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
)

var (
	ErrInvalidCart         = domain.ErrInvalidCart
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrAmountTooSmall      = errors.New("amount below minimum chargeable")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrInvalidReference    = errors.New("unrecognised payment reference")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrOrderNotFound       = repository.ErrOrderNotFound
)
