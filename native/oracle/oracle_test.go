package oracle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	usd  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	usdt = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestQuoteIdentity(t *testing.T) {
	o := NewStaticOracle()
	out, err := o.Quote(usd, usd, big.NewInt(500), 0, 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), out)
}

func TestQuoteUnknownPair(t *testing.T) {
	o := NewStaticOracle()
	_, err := o.Quote(usd, usdt, big.NewInt(500), 3000, 600)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestQuoteRate(t *testing.T) {
	o := NewStaticOracle()
	// 18-decimal terms into 6-decimal units.
	o.SetRate(usd, usdt, big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil))

	in := new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil) // 100 in 18-dec
	out, err := o.Quote(usd, usdt, in, 3000, 600)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100_000_000), out)

	// The inverse direction is not derived.
	_, err = o.Quote(usdt, usd, big.NewInt(1), 3000, 600)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestQuoteZeroAmount(t *testing.T) {
	o := NewStaticOracle()
	out, err := o.Quote(usd, usdt, big.NewInt(0), 0, 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), out)
}
