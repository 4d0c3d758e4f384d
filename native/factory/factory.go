// Package factory owns the product catalog: per-product price schedules that
// decay on every sale, cashback quotes, and the pay-then-instantiate pipeline
// that turns a purchase into a new asset instance at a deterministically
// derived address.
package factory

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"productchain/core/events"
	"productchain/core/state"
	nativecommon "productchain/native/common"
	"productchain/native/fixedmath"
)

// Product is one sellable product type, keyed by its alias.
type Product struct {
	Alias           common.Hash
	Implementation  common.Address
	CurrentPrice    *big.Int
	MinPrice        *big.Int
	DecreasePercent *big.Int
	CashbackPercent *big.Int
	IsActive        bool
	SalesCount      uint64
}

type paymentRouter interface {
	Pay(caller common.Address, product common.Hash, payAsset, payer common.Address, price, cashbackAmount *big.Int, discountRefs []common.Hash, discountAmounts []*big.Int) error
	PayNative(caller common.Address, product common.Hash, payer common.Address, price, cashbackAmount *big.Int, discountRefs []common.Hash, discountAmounts []*big.Int) error
}

type instantiator interface {
	Instantiate(asset common.Address, initData []byte, owner common.Address) error
}

type factoryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine is the pricing factory.
type Engine struct {
	st            factoryState
	roles         nativecommon.RoleView
	payment       paymentRouter
	deployer      instantiator
	moduleAddress common.Address
	emitter       events.Emitter
}

// NewEngine constructs a factory whose deterministic addresses are derived
// from moduleAddr.
func NewEngine(moduleAddr common.Address) *Engine {
	return &Engine{moduleAddress: moduleAddr, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(st factoryState)         { e.st = st }
func (e *Engine) SetRoles(r nativecommon.RoleView) { e.roles = r }
func (e *Engine) SetPayment(p paymentRouter)       { e.payment = p }
func (e *Engine) SetDeployer(d instantiator)       { e.deployer = d }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// ModuleAddress returns the factory's address. It must hold the
// factory-contract capability so it may initiate payments.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

var keyAliases = []byte("factory/aliases")

func productKey(alias common.Hash) []byte {
	return []byte("factory/product/" + alias.Hex())
}

// AddProduct registers an empty product row for alias. Re-adding an existing
// alias is a no-op. Operator-gated.
func (e *Engine) AddProduct(caller common.Address, alias common.Hash) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleOperator, caller); err != nil {
		return err
	}
	ok, err := e.st.KVGet(productKey(alias), nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	product := &Product{
		Alias:           alias,
		CurrentPrice:    big.NewInt(0),
		MinPrice:        big.NewInt(0),
		DecreasePercent: big.NewInt(0),
		CashbackPercent: big.NewInt(0),
	}
	if err := e.st.KVPut(productKey(alias), product); err != nil {
		return err
	}
	var aliases []common.Hash
	if _, err := e.st.KVGet(keyAliases, &aliases); err != nil {
		return err
	}
	if err := e.st.KVPut(keyAliases, append(aliases, alias)); err != nil {
		return err
	}
	e.emitter.Emit(events.ProductRegistered{Alias: alias})
	return nil
}

// SetupProduct registers and fully configures a product in one call.
// Operator-gated.
func (e *Engine) SetupProduct(caller common.Address, alias common.Hash, implementation common.Address, currentPrice, minPrice, decreasePercent, cashbackPercent *big.Int, active bool) error {
	if err := e.AddProduct(caller, alias); err != nil {
		return err
	}
	if err := e.SetImplementation(caller, alias, implementation); err != nil {
		return err
	}
	if err := e.SetPrices(caller, alias, currentPrice, minPrice); err != nil {
		return err
	}
	if err := e.SetPercents(caller, alias, decreasePercent, cashbackPercent); err != nil {
		return err
	}
	return e.SetStatus(caller, alias, active)
}

// SetImplementation binds the asset implementation a sale instantiates.
// Changing it changes all future deterministic addresses. Operator-gated.
func (e *Engine) SetImplementation(caller common.Address, alias common.Hash, implementation common.Address) error {
	return e.mutate(caller, alias, "implementation", func(p *Product) error {
		p.Implementation = implementation
		return nil
	})
}

// SetPrices sets the current and minimum price. The implementation must be
// bound first so a product can never be sold without something to deploy.
// Operator-gated.
func (e *Engine) SetPrices(caller common.Address, alias common.Hash, currentPrice, minPrice *big.Int) error {
	return e.mutate(caller, alias, "prices", func(p *Product) error {
		if p.Implementation == (common.Address{}) {
			return ErrNoImplementation
		}
		if currentPrice == nil || minPrice == nil || currentPrice.Sign() < 0 || minPrice.Sign() < 0 || minPrice.Cmp(currentPrice) > 0 {
			return ErrInvalidPrices
		}
		p.CurrentPrice = new(big.Int).Set(currentPrice)
		p.MinPrice = new(big.Int).Set(minPrice)
		return nil
	})
}

// SetPercents sets the per-sale decay and cashback percentages, both in the
// 1e27 fixed-point base. Operator-gated.
func (e *Engine) SetPercents(caller common.Address, alias common.Hash, decreasePercent, cashbackPercent *big.Int) error {
	return e.mutate(caller, alias, "percents", func(p *Product) error {
		if !fixedmath.ValidPercent(decreasePercent) || !fixedmath.ValidPercent(cashbackPercent) {
			return ErrInvalidPercent
		}
		p.DecreasePercent = new(big.Int).Set(decreasePercent)
		p.CashbackPercent = new(big.Int).Set(cashbackPercent)
		return nil
	})
}

// SetStatus toggles whether the product can be sold. Operator-gated.
func (e *Engine) SetStatus(caller common.Address, alias common.Hash, active bool) error {
	return e.mutate(caller, alias, "status", func(p *Product) error {
		p.IsActive = active
		return nil
	})
}

func (e *Engine) mutate(caller common.Address, alias common.Hash, field string, fn func(*Product) error) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleOperator, caller); err != nil {
		return err
	}
	product, err := e.ProductOf(alias)
	if err != nil {
		return err
	}
	if err := fn(product); err != nil {
		return err
	}
	if err := e.st.KVPut(productKey(alias), product); err != nil {
		return err
	}
	e.emitter.Emit(events.ProductUpdated{Alias: alias, Field: field})
	return nil
}

// Products returns all registered aliases in registration order.
func (e *Engine) Products() ([]common.Hash, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	var aliases []common.Hash
	if _, err := e.st.KVGet(keyAliases, &aliases); err != nil {
		return nil, err
	}
	return aliases, nil
}

// ProductOf returns a copy of the product row.
func (e *Engine) ProductOf(alias common.Hash) (*Product, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	product := &Product{}
	ok, err := e.st.KVGet(productKey(alias), product)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	for _, field := range []**big.Int{&product.CurrentPrice, &product.MinPrice, &product.DecreasePercent, &product.CashbackPercent} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return product, nil
}

// GetNewPrice returns the price the product will carry after its next sale:
// the current price reduced by the decay percentage, floored at the minimum.
func (e *Engine) GetNewPrice(alias common.Hash) (*big.Int, error) {
	product, err := e.ProductOf(alias)
	if err != nil {
		return nil, err
	}
	return nextPrice(product), nil
}

func nextPrice(p *Product) *big.Int {
	decayed := new(big.Int).Sub(p.CurrentPrice, fixedmath.Percent(p.CurrentPrice, p.DecreasePercent))
	if decayed.Cmp(p.MinPrice) < 0 {
		return new(big.Int).Set(p.MinPrice)
	}
	return decayed
}

// GetCashback returns the cashback quote for a sale at the current price.
func (e *Engine) GetCashback(alias common.Hash) (*big.Int, error) {
	product, err := e.ProductOf(alias)
	if err != nil {
		return nil, err
	}
	return fixedmath.Percent(product.CurrentPrice, product.CashbackPercent), nil
}

// PotentialContractAddress computes the address a deployment of alias with
// initData would instantiate at, without deploying. The derivation binds the
// factory address, the alias as salt, and the implementation together with
// the initializer payload, so it is stable until the implementation changes.
func (e *Engine) PotentialContractAddress(alias common.Hash, initData []byte) (common.Address, error) {
	product, err := e.ProductOf(alias)
	if err != nil {
		return common.Address{}, err
	}
	if product.Implementation == (common.Address{}) {
		return common.Address{}, ErrNoImplementation
	}
	return deriveAddress(e.moduleAddress, alias, product.Implementation, initData), nil
}

func deriveAddress(factory common.Address, salt common.Hash, implementation common.Address, initData []byte) common.Address {
	codeHash := crypto.Keccak256(implementation.Bytes(), initData)
	raw := crypto.Keccak256([]byte{0xff}, factory.Bytes(), salt.Bytes(), codeHash)
	return common.BytesToAddress(raw[12:])
}

// Deploy sells one instance of alias to buyer. The quoted price and cashback
// are settled through the payment router, the purchased asset is instantiated
// at the deterministic address with ownership assigned to buyer, and only
// then does the price decay apply and the sales counter advance. Any failure
// reverts every effect of the call.
func (e *Engine) Deploy(buyer common.Address, alias common.Hash, payAsset common.Address, initData []byte, discountRefs []common.Hash, discountAmounts []*big.Int) (common.Address, error) {
	return e.deploy(buyer, alias, payAsset, initData, discountRefs, discountAmounts, false)
}

// DeployNative is Deploy paid from the buyer's native-currency balance.
func (e *Engine) DeployNative(buyer common.Address, alias common.Hash, initData []byte, discountRefs []common.Hash, discountAmounts []*big.Int) (common.Address, error) {
	return e.deploy(buyer, alias, common.Address{}, initData, discountRefs, discountAmounts, true)
}

func (e *Engine) deploy(buyer common.Address, alias common.Hash, payAsset common.Address, initData []byte, discountRefs []common.Hash, discountAmounts []*big.Int, native bool) (common.Address, error) {
	if e == nil || e.st == nil {
		return common.Address{}, ErrNilState
	}
	if e.payment == nil || e.deployer == nil {
		return common.Address{}, ErrPaymentNotSet
	}
	product, err := e.ProductOf(alias)
	if err != nil {
		return common.Address{}, err
	}
	if !product.IsActive {
		return common.Address{}, ErrInactiveProduct
	}
	if product.Implementation == (common.Address{}) {
		return common.Address{}, ErrNoImplementation
	}

	// Quote from current state before anything mutates.
	price := new(big.Int).Set(product.CurrentPrice)
	cashbackAmount := fixedmath.Percent(product.CurrentPrice, product.CashbackPercent)
	contract := deriveAddress(e.moduleAddress, alias, product.Implementation, initData)

	snapshot := e.st.Snapshot()
	if err := e.runSale(product, buyer, payAsset, initData, contract, price, cashbackAmount, discountRefs, discountAmounts, native); err != nil {
		e.st.RevertToSnapshot(snapshot)
		return common.Address{}, err
	}

	e.emitter.Emit(events.ProductDeployed{
		Alias:    alias,
		Buyer:    buyer,
		Contract: contract,
		Price:    price,
		Cashback: cashbackAmount,
		Sales:    product.SalesCount,
	})
	return contract, nil
}

func (e *Engine) runSale(product *Product, buyer common.Address, payAsset common.Address, initData []byte, contract common.Address, price, cashbackAmount *big.Int, discountRefs []common.Hash, discountAmounts []*big.Int, native bool) error {
	var err error
	if native {
		err = e.payment.PayNative(e.moduleAddress, product.Alias, buyer, price, cashbackAmount, discountRefs, discountAmounts)
	} else {
		err = e.payment.Pay(e.moduleAddress, product.Alias, payAsset, buyer, price, cashbackAmount, discountRefs, discountAmounts)
	}
	if err != nil {
		return err
	}
	if err := e.deployer.Instantiate(contract, initData, buyer); err != nil {
		return err
	}
	product.CurrentPrice = nextPrice(product)
	product.SalesCount++
	return e.st.KVPut(productKey(product.Alias), product)
}
