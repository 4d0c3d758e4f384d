package farming

import "errors"

var (
	ErrNilState          = errors.New("farming: state not configured")
	ErrTokensNotSet      = errors.New("farming: tokens not set")
	ErrActivePool        = errors.New("farming: pool already has liquidity")
	ErrInvalidAmount     = errors.New("farming: invalid amount")
	ErrNoInvestment      = errors.New("farming: no investment")
	ErrNothingToClaim    = errors.New("farming: nothing to claim")
	ErrNothingToWithdraw = errors.New("farming: nothing to withdraw")
)
