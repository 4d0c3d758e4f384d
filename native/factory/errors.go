package factory

import "errors"

var (
	ErrNilState         = errors.New("factory: state not configured")
	ErrProductNotFound  = errors.New("factory: product not found")
	ErrNoImplementation = errors.New("factory: implementation not set")
	ErrInvalidPrices    = errors.New("factory: invalid prices")
	ErrInvalidPercent   = errors.New("factory: invalid percent")
	ErrInactiveProduct  = errors.New("factory: inactive product")
	ErrPaymentNotSet    = errors.New("factory: payment router not set")
)
