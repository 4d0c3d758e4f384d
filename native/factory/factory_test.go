package factory

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"productchain/core/state"
	"productchain/native/cashback"
	nativecommon "productchain/native/common"
	"productchain/native/payment"
	"productchain/native/token"
	"productchain/storage"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000A0")
	routerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000B0")
	operator    = common.HexToAddress("0x0000000000000000000000000000000000000F01")
	ivan        = common.HexToAddress("0x0000000000000000000000000000000000000F02")
	treasury    = common.HexToAddress("0x0000000000000000000000000000000000000F03")
	sink        = common.HexToAddress("0x0000000000000000000000000000000000000F04")
	impl        = common.HexToAddress("0x0000000000000000000000000000000000000F05")

	usd = common.HexToAddress("0x0000000000000000000000000000000000000F10")

	erc20Alias = common.HexToHash("0x9b9b0454cadcb5884dd3faa6ba975da4d2459aa3f11d31291a25a8358f84946d")
)

func wei(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return out.Mul(out, big.NewInt(n))
}

// pct renders a whole-number percentage in the 1e27 fixed-point base.
func pct(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(25), nil)
	return out.Mul(out, big.NewInt(n))
}

type fixture struct {
	manager  *state.Manager
	registry *token.Registry
	points   *cashback.Ledger
	router   *payment.Engine
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	registry := token.NewRegistry(manager)
	require.NoError(t, registry.Deploy(usd, token.Metadata{Symbol: "USD", Decimals: 18, Owner: operator}))

	require.NoError(t, manager.GrantRole(state.RoleOperator, operator))
	require.NoError(t, manager.GrantRole(state.RoleFactoryContract, factoryAddr))
	require.NoError(t, manager.GrantRole(state.RolePaymentContract, routerAddr))

	points := cashback.NewLedger()
	points.SetState(manager)
	points.SetRoles(manager)

	router := payment.NewEngine(routerAddr)
	router.SetState(manager)
	router.SetRoles(manager)
	router.SetLedger(registry)
	router.SetNativeLedger(registry)
	router.SetCashback(points)
	require.NoError(t, router.Setup(operator, payment.Config{
		SettlementAsset: usd,
		Treasury:        treasury,
		RewardSink:      sink,
	}))

	engine := NewEngine(factoryAddr)
	engine.SetState(manager)
	engine.SetRoles(manager)
	engine.SetPayment(router)
	engine.SetDeployer(registry)
	return &fixture{manager: manager, registry: registry, points: points, router: router, engine: engine}
}

func (f *fixture) setupERC20(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.SetupProduct(operator, erc20Alias, impl, wei(100), wei(60), pct(20), pct(10), true))
}

func (f *fixture) fund(t *testing.T, account common.Address, amount *big.Int) {
	t.Helper()
	require.NoError(t, f.registry.Mint(usd, operator, account, amount))
	require.NoError(t, f.registry.Approve(usd, account, routerAddr, token.MaxApproval()))
}

func initData(symbol string) []byte {
	return token.EncodeInitData(token.InitData{
		Name:          "Product " + symbol,
		Symbol:        symbol,
		Decimals:      18,
		InitialSupply: wei(1000),
	})
}

func TestAddProductIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.AddProduct(operator, erc20Alias))
	require.NoError(t, f.engine.AddProduct(operator, erc20Alias))

	products, err := f.engine.Products()
	require.NoError(t, err)
	require.Equal(t, []common.Hash{erc20Alias}, products)

	require.ErrorIs(t, f.engine.AddProduct(ivan, erc20Alias), nativecommon.ErrForbidden)
}

func TestSetupProduct(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)

	product, err := f.engine.ProductOf(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, impl, product.Implementation)
	require.Equal(t, wei(100), product.CurrentPrice)
	require.Equal(t, wei(60), product.MinPrice)
	require.Equal(t, pct(20), product.DecreasePercent)
	require.Equal(t, pct(10), product.CashbackPercent)
	require.True(t, product.IsActive)
	require.Zero(t, product.SalesCount)
}

func TestSetterValidation(t *testing.T) {
	f := newFixture(t)

	err := f.engine.SetImplementation(operator, erc20Alias, impl)
	require.ErrorIs(t, err, ErrProductNotFound)

	require.NoError(t, f.engine.AddProduct(operator, erc20Alias))

	// Prices need an implementation to be bound first.
	err = f.engine.SetPrices(operator, erc20Alias, wei(100), wei(50))
	require.ErrorIs(t, err, ErrNoImplementation)

	require.NoError(t, f.engine.SetImplementation(operator, erc20Alias, impl))
	err = f.engine.SetPrices(operator, erc20Alias, wei(49), wei(50))
	require.ErrorIs(t, err, ErrInvalidPrices)
	require.NoError(t, f.engine.SetPrices(operator, erc20Alias, wei(50), wei(50)))

	over := new(big.Int).Add(pct(100), big.NewInt(1))
	require.ErrorIs(t, f.engine.SetPercents(operator, erc20Alias, over, pct(50)), ErrInvalidPercent)
	require.ErrorIs(t, f.engine.SetPercents(operator, erc20Alias, pct(100), over), ErrInvalidPercent)
	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, pct(100), big.NewInt(0)))
}

func TestGetNewPrice(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.AddProduct(operator, erc20Alias))
	require.NoError(t, f.engine.SetImplementation(operator, erc20Alias, impl))

	require.NoError(t, f.engine.SetPrices(operator, erc20Alias, wei(100), wei(50)))
	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, pct(10), big.NewInt(0)))
	next, err := f.engine.GetNewPrice(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, wei(90), next)

	// Floored at the minimum price.
	require.NoError(t, f.engine.SetPrices(operator, erc20Alias, wei(100), wei(95)))
	next, err = f.engine.GetNewPrice(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, wei(95), next)

	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, big.NewInt(0), big.NewInt(0)))
	next, err = f.engine.GetNewPrice(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, wei(100), next)

	require.NoError(t, f.engine.SetPrices(operator, erc20Alias, big.NewInt(0), big.NewInt(0)))
	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, pct(10), big.NewInt(0)))
	next, err = f.engine.GetNewPrice(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), next)
}

func TestGetCashback(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.AddProduct(operator, erc20Alias))
	require.NoError(t, f.engine.SetImplementation(operator, erc20Alias, impl))

	require.NoError(t, f.engine.SetPrices(operator, erc20Alias, wei(100), big.NewInt(0)))
	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, big.NewInt(0), pct(10)))
	quote, err := f.engine.GetCashback(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, wei(10), quote)

	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, big.NewInt(0), big.NewInt(0)))
	quote, err = f.engine.GetCashback(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), quote)

	require.NoError(t, f.engine.SetPrices(operator, erc20Alias, big.NewInt(0), big.NewInt(0)))
	require.NoError(t, f.engine.SetPercents(operator, erc20Alias, big.NewInt(0), pct(10)))
	quote, err = f.engine.GetCashback(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), quote)
}

func TestPotentialAddressStability(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)
	f.fund(t, ivan, wei(1000))
	payload := initData("AAA")

	potential, err := f.engine.PotentialContractAddress(erc20Alias, payload)
	require.NoError(t, err)

	contract, err := f.engine.Deploy(ivan, erc20Alias, usd, payload, nil, nil)
	require.NoError(t, err)
	require.Equal(t, potential, contract)

	// The derivation does not move once a sale has happened.
	after, err := f.engine.PotentialContractAddress(erc20Alias, payload)
	require.NoError(t, err)
	require.Equal(t, potential, after)

	// A different initializer payload lands elsewhere.
	other, err := f.engine.PotentialContractAddress(erc20Alias, initData("BBB"))
	require.NoError(t, err)
	require.NotEqual(t, potential, other)

	// A different implementation moves the address.
	require.NoError(t, f.engine.SetImplementation(operator, erc20Alias, ivan))
	moved, err := f.engine.PotentialContractAddress(erc20Alias, payload)
	require.NoError(t, err)
	require.NotEqual(t, potential, moved)
}

func TestDeployInstantiatesForBuyer(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)
	f.fund(t, ivan, wei(1000))

	contract, err := f.engine.Deploy(ivan, erc20Alias, usd, initData("AAA"), nil, nil)
	require.NoError(t, err)

	meta, err := f.registry.Metadata(contract)
	require.NoError(t, err)
	require.Equal(t, "AAA", meta.Symbol)
	require.Equal(t, ivan, meta.Owner)
	require.Equal(t, wei(1000), meta.TotalSupply)

	bal, err := f.registry.BalanceOf(contract, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(1000), bal)

	// Proceeds split and points minted.
	treasuryBal, err := f.registry.BalanceOf(usd, treasury)
	require.NoError(t, err)
	require.Equal(t, wei(90), treasuryBal)
	sinkBal, err := f.registry.BalanceOf(usd, sink)
	require.NoError(t, err)
	require.Equal(t, wei(10), sinkBal)

	row, err := f.points.AccountInfo(erc20Alias, ivan)
	require.NoError(t, err)
	require.Equal(t, wei(10), row.Points)
}

func TestDeployAppliesDecay(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)
	f.fund(t, ivan, wei(1000))

	expected := []int64{80, 64, 60}
	for i, want := range expected {
		_, err := f.engine.Deploy(ivan, erc20Alias, usd, initData(fmt.Sprintf("P%d", i)), nil, nil)
		require.NoError(t, err)

		product, err := f.engine.ProductOf(erc20Alias)
		require.NoError(t, err)
		require.Equal(t, wei(want), product.CurrentPrice)
		require.Equal(t, uint64(i+1), product.SalesCount)
	}
}

func TestDeployInactiveProduct(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)
	require.NoError(t, f.engine.SetStatus(operator, erc20Alias, false))

	_, err := f.engine.Deploy(ivan, erc20Alias, usd, initData("AAA"), nil, nil)
	require.ErrorIs(t, err, ErrInactiveProduct)
}

func TestDeployAtomicOnPaymentFailure(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)
	// Ivan has no balance and no allowance, so the payment leg fails.
	payload := initData("AAA")
	potential, err := f.engine.PotentialContractAddress(erc20Alias, payload)
	require.NoError(t, err)

	_, err = f.engine.Deploy(ivan, erc20Alias, usd, payload, nil, nil)
	require.Error(t, err)

	product, err := f.engine.ProductOf(erc20Alias)
	require.NoError(t, err)
	require.Equal(t, wei(100), product.CurrentPrice)
	require.Zero(t, product.SalesCount)
	require.False(t, f.registry.Exists(potential))

	// The same purchase succeeds once funded, at the same address.
	f.fund(t, ivan, wei(1000))
	contract, err := f.engine.Deploy(ivan, erc20Alias, usd, payload, nil, nil)
	require.NoError(t, err)
	require.Equal(t, potential, contract)
}

func TestDeployNative(t *testing.T) {
	f := newFixture(t)
	f.setupERC20(t)

	wnat := common.HexToAddress("0x0000000000000000000000000000000000000F11")
	require.NoError(t, f.registry.Deploy(wnat, token.Metadata{Symbol: "WNAT", Decimals: 18, Owner: operator}))
	require.NoError(t, f.router.Setup(operator, payment.Config{
		SettlementAsset: wnat,
		Treasury:        treasury,
		RewardSink:      sink,
		WrappedNative:   wnat,
	}))
	require.NoError(t, f.registry.NativeMint(ivan, wei(500)))

	contract, err := f.engine.DeployNative(ivan, erc20Alias, initData("AAA"), nil, nil)
	require.NoError(t, err)

	meta, err := f.registry.Metadata(contract)
	require.NoError(t, err)
	require.Equal(t, ivan, meta.Owner)

	nativeBal, err := f.registry.NativeBalanceOf(ivan)
	require.NoError(t, err)
	require.Equal(t, wei(400), nativeBal)

	treasuryBal, err := f.registry.BalanceOf(wnat, treasury)
	require.NoError(t, err)
	require.Equal(t, wei(90), treasuryBal)
	sinkBal, err := f.registry.BalanceOf(wnat, sink)
	require.NoError(t, err)
	require.Equal(t, wei(10), sinkBal)
}
