// Package payment routes sale proceeds. Prices are quoted in a single
// settlement asset; the buyer pays in any accepted asset, with the price
// oracle converting between the two. Each settled payment splits into a
// treasury leg and a reward-sink leg and mints loyalty points for the payer.
package payment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"productchain/core/events"
	"productchain/core/state"
	nativecommon "productchain/native/common"
	"productchain/native/fixedmath"
	"productchain/native/oracle"
	"productchain/native/token"
)

// Config is the router's operator-set wiring.
type Config struct {
	SettlementAsset common.Address
	Treasury        common.Address
	RewardSink      common.Address
	WrappedNative   common.Address
}

// TokenConfig holds the oracle parameters and swap venue for one accepted
// payment asset.
type TokenConfig struct {
	Venue      common.Address
	PoolFee    uint32
	SecondsAgo uint32
}

type cashbackLedger interface {
	MintPoints(caller common.Address, product common.Hash, amount *big.Int, account common.Address) error
	UseCashback(caller common.Address, products []common.Hash, amounts []*big.Int, account common.Address) (*big.Int, error)
}

type routerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine is the payment router.
type Engine struct {
	st            routerState
	roles         nativecommon.RoleView
	ledger        token.Ledger
	native        *token.Registry
	cashback      cashbackLedger
	oracle        oracle.PriceOracle
	moduleAddress common.Address
	emitter       events.Emitter
}

// NewEngine constructs a payment router holding in-flight funds at moduleAddr.
func NewEngine(moduleAddr common.Address) *Engine {
	return &Engine{moduleAddress: moduleAddr, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(st routerState)          { e.st = st }
func (e *Engine) SetRoles(r nativecommon.RoleView) { e.roles = r }
func (e *Engine) SetLedger(l token.Ledger)         { e.ledger = l }
func (e *Engine) SetCashback(c cashbackLedger)     { e.cashback = c }
func (e *Engine) SetOracle(o oracle.PriceOracle)   { e.oracle = o }

// SetNativeLedger wires the registry used for native-currency moves in
// PayNative. It is usually the same object as the token ledger.
func (e *Engine) SetNativeLedger(r *token.Registry) { e.native = r }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// ModuleAddress returns the router's fund-holding address. It must hold the
// payment-contract capability so it can mint and redeem cashback.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

var (
	keyConfig = []byte("payment/config")
	keyAssets = []byte("payment/assets")
)

func tokenKey(asset common.Address) []byte {
	return []byte("payment/token/" + asset.Hex())
}

// Setup wires the router's collaborator addresses. Operator-gated.
func (e *Engine) Setup(caller common.Address, cfg Config) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleOperator, caller); err != nil {
		return err
	}
	return e.st.KVPut(keyConfig, &cfg)
}

// Configuration returns the router's current wiring.
func (e *Engine) Configuration() (Config, error) {
	var cfg Config
	ok, err := e.st.KVGet(keyConfig, &cfg)
	if err != nil {
		return cfg, err
	}
	if !ok || cfg.SettlementAsset == (common.Address{}) {
		return cfg, ErrNotConfigured
	}
	return cfg, nil
}

// SetPaymentTokens enables, reconfigures or disables accepted payment assets.
// Enabling an asset grants its swap venue unlimited spend over the router's
// balance; disabling revokes the grant and removes the asset. Operator-gated.
func (e *Engine) SetPaymentTokens(caller common.Address, assets []common.Address, configs []TokenConfig, enabled []bool) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleOperator, caller); err != nil {
		return err
	}
	if len(assets) != len(enabled) {
		return ErrLengthMismatch
	}
	for i, asset := range assets {
		if enabled[i] {
			if i >= len(configs) {
				return ErrLengthMismatch
			}
			if err := e.enableToken(asset, configs[i]); err != nil {
				return err
			}
		} else if err := e.disableToken(asset); err != nil {
			return err
		}
		e.emitter.Emit(events.PaymentTokenSet{Asset: asset, Enabled: enabled[i]})
	}
	return nil
}

func (e *Engine) enableToken(asset common.Address, cfg TokenConfig) error {
	var prev TokenConfig
	had, err := e.st.KVGet(tokenKey(asset), &prev)
	if err != nil {
		return err
	}
	if had && prev.Venue != cfg.Venue && prev.Venue != (common.Address{}) {
		if err := e.ledger.Approve(asset, e.moduleAddress, prev.Venue, nil); err != nil {
			return err
		}
	}
	if err := e.st.KVPut(tokenKey(asset), &cfg); err != nil {
		return err
	}
	if cfg.Venue != (common.Address{}) && (!had || prev.Venue != cfg.Venue) {
		if err := e.ledger.Approve(asset, e.moduleAddress, cfg.Venue, token.MaxApproval()); err != nil {
			return err
		}
	}
	if !had {
		list, err := e.acceptedAssets()
		if err != nil {
			return err
		}
		return e.st.KVPut(keyAssets, append(list, asset))
	}
	return nil
}

func (e *Engine) disableToken(asset common.Address) error {
	var prev TokenConfig
	had, err := e.st.KVGet(tokenKey(asset), &prev)
	if err != nil {
		return err
	}
	if !had {
		return nil
	}
	if prev.Venue != (common.Address{}) {
		if err := e.ledger.Approve(asset, e.moduleAddress, prev.Venue, nil); err != nil {
			return err
		}
	}
	if err := e.st.KVDelete(tokenKey(asset)); err != nil {
		return err
	}
	list, err := e.acceptedAssets()
	if err != nil {
		return err
	}
	for i, a := range list {
		if a == asset {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	return e.st.KVPut(keyAssets, list)
}

func (e *Engine) acceptedAssets() ([]common.Address, error) {
	var list []common.Address
	if _, err := e.st.KVGet(keyAssets, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// PaymentTokens returns the accepted payment assets in enablement order.
func (e *Engine) PaymentTokens() ([]common.Address, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	return e.acceptedAssets()
}

// TokenConfigOf returns the configuration of one accepted asset.
func (e *Engine) TokenConfigOf(asset common.Address) (TokenConfig, bool, error) {
	var cfg TokenConfig
	ok, err := e.st.KVGet(tokenKey(asset), &cfg)
	return cfg, ok, err
}

// Pay settles a sale. price and cashbackAmount are in settlement-asset terms;
// the payer is charged in payAsset. Accrued cashback named by the discount
// arrays is redeemed first and reduces the amount collected. The reward sink
// receives the cashback-equivalent portion, the treasury the rest, and the
// payer is credited cashbackAmount of new loyalty points. Only factory
// contracts may call.
func (e *Engine) Pay(caller common.Address, product common.Hash, payAsset, payer common.Address, price, cashbackAmount *big.Int, discountRefs []common.Hash, discountAmounts []*big.Int) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleFactoryContract, caller); err != nil {
		return err
	}
	cfg, err := e.Configuration()
	if err != nil {
		return err
	}
	tokenCfg, accepted, err := e.TokenConfigOf(payAsset)
	if err != nil {
		return err
	}
	if !accepted && payAsset != cfg.SettlementAsset {
		return ErrAssetNotAccepted
	}
	snapshot := e.st.Snapshot()
	if err := e.settle(cfg, tokenCfg, product, payAsset, payer, price, cashbackAmount, discountRefs, discountAmounts, false); err != nil {
		e.st.RevertToSnapshot(snapshot)
		return err
	}
	return nil
}

// PayNative settles a sale against the payer's native-currency balance,
// wrapping the collected value into the configured wrapped token before
// splitting. An insufficient native balance surfaces the ledger's transfer
// failure.
func (e *Engine) PayNative(caller common.Address, product common.Hash, payer common.Address, price, cashbackAmount *big.Int, discountRefs []common.Hash, discountAmounts []*big.Int) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleFactoryContract, caller); err != nil {
		return err
	}
	cfg, err := e.Configuration()
	if err != nil {
		return err
	}
	if cfg.WrappedNative == (common.Address{}) {
		return ErrAssetNotAccepted
	}
	tokenCfg, accepted, err := e.TokenConfigOf(cfg.WrappedNative)
	if err != nil {
		return err
	}
	if !accepted && cfg.WrappedNative != cfg.SettlementAsset {
		return ErrAssetNotAccepted
	}
	snapshot := e.st.Snapshot()
	if err := e.settle(cfg, tokenCfg, product, cfg.WrappedNative, payer, price, cashbackAmount, discountRefs, discountAmounts, true); err != nil {
		e.st.RevertToSnapshot(snapshot)
		return err
	}
	return nil
}

func (e *Engine) settle(cfg Config, tokenCfg TokenConfig, product common.Hash, payAsset, payer common.Address, price, cashbackAmount *big.Int, discountRefs []common.Hash, discountAmounts []*big.Int, native bool) error {
	if price == nil {
		price = big.NewInt(0)
	}
	if cashbackAmount == nil {
		cashbackAmount = big.NewInt(0)
	}
	if price.Sign() < 0 || cashbackAmount.Sign() < 0 || cashbackAmount.Cmp(price) > 0 {
		return ErrInvalidAmounts
	}

	// Discount legs, denominated in the settlement asset.
	discounted := big.NewInt(0)
	if len(discountRefs) > 0 && e.cashback != nil {
		redeemed, err := e.cashback.UseCashback(e.moduleAddress, discountRefs, discountAmounts, payer)
		if err != nil {
			return err
		}
		discounted = redeemed
	}
	net := new(big.Int).Sub(price, fixedmath.Min(discounted, price))

	collect, err := e.convert(cfg, tokenCfg, payAsset, net)
	if err != nil {
		return err
	}
	sinkAmount, err := e.convert(cfg, tokenCfg, payAsset, cashbackAmount)
	if err != nil {
		return err
	}
	// Discounts can push the collected amount below the cashback quote.
	sinkAmount = fixedmath.Min(sinkAmount, collect)
	treasuryAmount := new(big.Int).Sub(collect, sinkAmount)

	if collect.Sign() > 0 && cfg.Treasury == (common.Address{}) {
		return ErrTreasuryNotSet
	}

	if collect.Sign() > 0 {
		if native {
			if e.native == nil {
				return ErrNilState
			}
			if err := e.native.NativeTransfer(payer, e.moduleAddress, collect); err != nil {
				return err
			}
			if err := e.native.Deposit(payAsset, e.moduleAddress, collect); err != nil {
				return err
			}
		} else if err := e.ledger.TransferFrom(payAsset, e.moduleAddress, payer, e.moduleAddress, collect); err != nil {
			return err
		}
		if err := e.ledger.Transfer(payAsset, e.moduleAddress, cfg.RewardSink, sinkAmount); err != nil {
			return err
		}
		if err := e.ledger.Transfer(payAsset, e.moduleAddress, cfg.Treasury, treasuryAmount); err != nil {
			return err
		}
	}

	if cashbackAmount.Sign() > 0 && e.cashback != nil {
		if err := e.cashback.MintPoints(e.moduleAddress, product, cashbackAmount, payer); err != nil {
			return err
		}
	}

	e.emitter.Emit(events.PaymentSettled{
		Product:    product,
		Payer:      payer,
		PayAsset:   payAsset,
		Price:      new(big.Int).Set(price),
		Cashback:   new(big.Int).Set(cashbackAmount),
		Discounted: discounted,
		Collected:  collect,
		ToTreasury: treasuryAmount,
		ToSink:     sinkAmount,
	})
	return nil
}

// convert prices amount (settlement-asset terms) in payAsset terms.
func (e *Engine) convert(cfg Config, tokenCfg TokenConfig, payAsset common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if payAsset == cfg.SettlementAsset {
		return new(big.Int).Set(amount), nil
	}
	if e.oracle == nil {
		return nil, oracle.ErrPoolNotFound
	}
	return e.oracle.Quote(cfg.SettlementAsset, payAsset, amount, tokenCfg.PoolFee, tokenCfg.SecondsAgo)
}
