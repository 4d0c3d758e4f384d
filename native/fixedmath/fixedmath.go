// Package fixedmath holds the shared decimal-normalization and percentage
// arithmetic used by the commerce modules. Percentages are fixed-point
// integers in a 1e27 base (1e27 == 100%); token amounts are normalized to an
// 18-decimal internal unit. All division floors.
package fixedmath

import "math/big"

// StandardDecimals is the internal decimal granularity amounts are
// normalized to.
const StandardDecimals = 18

// PercentBase returns the fixed-point representation of 100%.
func PercentBase() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
}

// ValidPercent reports whether p is a well-formed percentage in [0, 100%].
func ValidPercent(p *big.Int) bool {
	return p != nil && p.Sign() >= 0 && p.Cmp(PercentBase()) <= 0
}

// Percent computes amount·p/1e27, flooring. Nil inputs are treated as zero.
func Percent(amount, p *big.Int) *big.Int {
	if amount == nil || p == nil || amount.Sign() == 0 || p.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, p)
	return out.Quo(out, PercentBase())
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// To18 converts amount from a token's native decimal granularity to the
// 18-decimal internal unit. Precision beyond 18 decimals is floored away.
func To18(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	switch {
	case decimals == StandardDecimals:
		return new(big.Int).Set(amount)
	case decimals < StandardDecimals:
		return new(big.Int).Mul(amount, pow10(StandardDecimals-decimals))
	default:
		return new(big.Int).Quo(amount, pow10(decimals-StandardDecimals))
	}
}

// From18 converts an 18-decimal internal amount back to the token's native
// granularity. For tokens with fewer than 18 decimals the conversion floors.
func From18(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	switch {
	case decimals == StandardDecimals:
		return new(big.Int).Set(amount)
	case decimals < StandardDecimals:
		return new(big.Int).Quo(amount, pow10(StandardDecimals-decimals))
	default:
		return new(big.Int).Mul(amount, pow10(decimals-StandardDecimals))
	}
}

// Min returns the smaller of a and b, treating nil as zero.
func Min(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
