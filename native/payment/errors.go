package payment

import "errors"

var (
	ErrNilState         = errors.New("payment: state not configured")
	ErrNotConfigured    = errors.New("payment: router not configured")
	ErrAssetNotAccepted = errors.New("payment: asset not accepted")
	ErrInvalidAmounts   = errors.New("payment: invalid amounts")
	ErrTreasuryNotSet   = errors.New("payment: treasury not set")
	ErrLengthMismatch   = errors.New("payment: assets and configs length mismatch")
)
