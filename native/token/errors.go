package token

import "errors"

var (
	ErrUnknownToken          = errors.New("token: unknown token")
	ErrTokenExists           = errors.New("token: already deployed")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrNotOwner              = errors.New("token: caller is not the owner")
	ErrInvalidInit           = errors.New("token: invalid initializer payload")
	ErrTransferFailed        = errors.New("token: native transfer failed")
)
