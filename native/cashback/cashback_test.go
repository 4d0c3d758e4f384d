package cashback

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"productchain/core/state"
	nativecommon "productchain/native/common"
	"productchain/storage"
)

var (
	productA = common.HexToHash("0x8ae85d849167ff996c04040c44924fd364217285e4cad818292c7ac37c0a345b")
	productB = common.HexToHash("0x73ad2146b3d3a286642c794379d750360a2d53a3459a11b3e5d6cc900f55f44a")

	router = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	ivan   = common.HexToAddress("0x0000000000000000000000000000000000000C02")
	oleg   = common.HexToAddress("0x0000000000000000000000000000000000000C03")
)

func wei(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return out.Mul(out, big.NewInt(n))
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	require.NoError(t, manager.GrantRole(state.RolePaymentContract, router))

	ledger := NewLedger()
	ledger.SetState(manager)
	ledger.SetRoles(manager)
	return ledger
}

func claimable(t *testing.T, l *Ledger, product common.Hash, account common.Address) *big.Int {
	t.Helper()
	out, err := l.AccountCashback(product, account)
	require.NoError(t, err)
	return out
}

func TestMintRequiresPaymentRole(t *testing.T) {
	l := newLedger(t)
	err := l.MintPoints(ivan, productA, wei(100), ivan)
	require.ErrorIs(t, err, nativecommon.ErrForbidden)

	_, err = l.UseCashback(ivan, nil, nil, ivan)
	require.ErrorIs(t, err, nativecommon.ErrForbidden)
}

func TestMintRejectsZeroAmount(t *testing.T) {
	l := newLedger(t)
	err := l.MintPoints(router, productA, big.NewInt(0), ivan)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSingleProductTwoAccounts(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.MintPoints(router, productA, wei(100), ivan))
	total, err := l.PoolTotal(productA)
	require.NoError(t, err)
	require.Equal(t, wei(100), total)
	require.Equal(t, big.NewInt(0), claimable(t, l, productA, ivan))

	require.NoError(t, l.MintPoints(router, productA, wei(50), oleg))
	require.Equal(t, wei(50), claimable(t, l, productA, ivan))
	require.Equal(t, big.NewInt(0), claimable(t, l, productA, oleg))

	ivanRow, err := l.AccountInfo(productA, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(100), ivanRow.Points)
	require.Equal(t, big.NewInt(0), ivanRow.PendingCashback)
}

func TestPoolsAreIndependent(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.MintPoints(router, productA, wei(100), ivan))
	require.NoError(t, l.MintPoints(router, productA, wei(200), oleg))
	require.NoError(t, l.MintPoints(router, productB, wei(400), ivan))
	require.NoError(t, l.MintPoints(router, productB, wei(600), oleg))

	require.Equal(t, wei(200), claimable(t, l, productA, ivan))
	require.Equal(t, big.NewInt(0), claimable(t, l, productA, oleg))
	require.Equal(t, wei(600), claimable(t, l, productB, ivan))
	require.Equal(t, big.NewInt(0), claimable(t, l, productB, oleg))

	batch, err := l.AccountCashbacks([]common.Hash{productA, productB}, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(200), batch[0])
	require.Equal(t, wei(600), batch[1])
}

func TestRemintSettlesBeforeOwnMint(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.MintPoints(router, productA, wei(200), ivan))
	require.NoError(t, l.MintPoints(router, productA, wei(100), oleg))
	require.NoError(t, l.MintPoints(router, productA, wei(300), ivan))
	require.NoError(t, l.MintPoints(router, productA, wei(1200), oleg))

	total, err := l.PoolTotal(productA)
	require.NoError(t, err)
	require.Equal(t, wei(1800), total)

	require.Equal(t, wei(1300), claimable(t, l, productA, ivan))
	require.Equal(t, wei(300), claimable(t, l, productA, oleg))

	ivanRow, err := l.AccountInfo(productA, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(500), ivanRow.Points)
	olegRow, err := l.AccountInfo(productA, oleg)
	require.NoError(t, err)
	require.Equal(t, wei(1300), olegRow.Points)
}

func TestNonSelfAttribution(t *testing.T) {
	l := newLedger(t)

	// No sequence of own mints may raise the minter's own claimable balance.
	for _, amount := range []int64{100, 200, 50, 1} {
		require.NoError(t, l.MintPoints(router, productA, wei(amount), ivan))
		require.Equal(t, big.NewInt(0), claimable(t, l, productA, ivan))
	}

	require.NoError(t, l.MintPoints(router, productA, wei(40), oleg))
	require.Equal(t, wei(40), claimable(t, l, productA, ivan))

	// A further own mint settles the accrual but adds nothing of its own.
	require.NoError(t, l.MintPoints(router, productA, wei(999), ivan))
	require.Equal(t, wei(40), claimable(t, l, productA, ivan))
}

func TestUseCashbackPartialAndClamped(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.MintPoints(router, productA, wei(100), ivan))
	require.NoError(t, l.MintPoints(router, productA, wei(300), oleg))
	require.NoError(t, l.MintPoints(router, productB, wei(400), ivan))
	require.NoError(t, l.MintPoints(router, productB, wei(600), oleg))

	require.Equal(t, wei(300), claimable(t, l, productA, ivan))
	require.Equal(t, wei(600), claimable(t, l, productB, ivan))

	redeemed, err := l.UseCashback(router,
		[]common.Hash{productA, productB},
		[]*big.Int{wei(100), wei(200)}, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(300), redeemed)
	require.Equal(t, wei(200), claimable(t, l, productA, ivan))
	require.Equal(t, wei(400), claimable(t, l, productB, ivan))

	// Oversized requests drain what is left and stop.
	redeemed, err = l.UseCashback(router,
		[]common.Hash{productA, productB},
		[]*big.Int{wei(99999999), wei(99999999)}, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(600), redeemed)
	require.Equal(t, big.NewInt(0), claimable(t, l, productA, ivan))
	require.Equal(t, big.NewInt(0), claimable(t, l, productB, ivan))

	// Exhausted balances are silent no-ops.
	redeemed, err = l.UseCashback(router,
		[]common.Hash{productA, productB},
		[]*big.Int{wei(99999999), wei(99999999)}, ivan)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), redeemed)
}

func TestUseCashbackSkipsZeroRequests(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.MintPoints(router, productA, wei(100), ivan))
	require.NoError(t, l.MintPoints(router, productA, wei(300), oleg))

	redeemed, err := l.UseCashback(router,
		[]common.Hash{productA}, []*big.Int{big.NewInt(0)}, ivan)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), redeemed)
	require.Equal(t, wei(300), claimable(t, l, productA, ivan))
}

func TestUseCashbackLengthMismatch(t *testing.T) {
	l := newLedger(t)
	_, err := l.UseCashback(router, []common.Hash{productA}, nil, ivan)
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestUseForUnknownAccountIsNoop(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.MintPoints(router, productA, wei(100), oleg))

	redeemed, err := l.UseCashback(router,
		[]common.Hash{productA}, []*big.Int{wei(50)}, ivan)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), redeemed)

	// An account that never minted holds no claim on the pool.
	require.Equal(t, big.NewInt(0), claimable(t, l, productA, ivan))
}

func TestMintAfterFullRedemption(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.MintPoints(router, productA, wei(100), ivan))
	require.NoError(t, l.MintPoints(router, productA, wei(200), oleg))

	redeemed, err := l.UseCashback(router, []common.Hash{productA}, []*big.Int{wei(9999)}, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(200), redeemed)

	require.NoError(t, l.MintPoints(router, productA, wei(300), oleg))
	require.Equal(t, wei(300), claimable(t, l, productA, ivan))

	redeemed, err = l.UseCashback(router, []common.Hash{productA}, []*big.Int{wei(150)}, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(150), redeemed)
	require.Equal(t, wei(150), claimable(t, l, productA, ivan))
}
