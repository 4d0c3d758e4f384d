package cashback

import "errors"

var (
	ErrNilState       = errors.New("cashback: state not configured")
	ErrInvalidAmount  = errors.New("cashback: invalid amount")
	ErrLengthMismatch = errors.New("cashback: products and amounts length mismatch")
)
