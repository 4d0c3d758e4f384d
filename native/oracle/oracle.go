// Package oracle defines the price-conversion surface the payment router
// consumes. The time-weighted average price math itself lives behind the
// interface; this package only ships a static-rate reference implementation
// for local runs and tests.
package oracle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrPoolNotFound is returned when the oracle has no pricing source for the
// requested pair.
var ErrPoolNotFound = errors.New("oracle: pool not found")

// PriceOracle converts amountIn of assetIn into assetOut terms. poolFee
// selects the fee tier of the pricing pool and secondsAgo the lookback window
// of the averaged observation.
type PriceOracle interface {
	Quote(assetIn, assetOut common.Address, amountIn *big.Int, poolFee uint32, secondsAgo uint32) (*big.Int, error)
}

type rate struct {
	num *big.Int
	den *big.Int
}

// StaticOracle answers quotes from an operator-maintained fixed-rate table.
type StaticOracle struct {
	rates map[[2]common.Address]rate
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{rates: make(map[[2]common.Address]rate)}
}

// SetRate fixes the conversion for assetIn→assetOut at num/den. The inverse
// direction is not derived automatically.
func (o *StaticOracle) SetRate(assetIn, assetOut common.Address, num, den *big.Int) {
	if o == nil || num == nil || den == nil || den.Sign() == 0 {
		return
	}
	o.rates[[2]common.Address{assetIn, assetOut}] = rate{
		num: new(big.Int).Set(num),
		den: new(big.Int).Set(den),
	}
}

// Quote implements PriceOracle. Same-asset quotes are identity conversions.
func (o *StaticOracle) Quote(assetIn, assetOut common.Address, amountIn *big.Int, poolFee uint32, secondsAgo uint32) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if assetIn == assetOut {
		return new(big.Int).Set(amountIn), nil
	}
	r, ok := o.rates[[2]common.Address{assetIn, assetOut}]
	if !ok {
		return nil, ErrPoolNotFound
	}
	out := new(big.Int).Mul(amountIn, r.num)
	return out.Quo(out, r.den), nil
}
