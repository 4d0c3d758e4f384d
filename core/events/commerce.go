package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeProductRegistered is emitted when a product row is first added to
	// the pricing factory.
	TypeProductRegistered = "factory.product.registered"
	// TypeProductUpdated is emitted when an operator mutates a product's
	// price, percent, implementation or status configuration.
	TypeProductUpdated = "factory.product.updated"
	// TypeProductDeployed is emitted when a sale completes and the purchased
	// asset is instantiated.
	TypeProductDeployed = "factory.product.deployed"
	// TypePaymentSettled is emitted after the payment router has split a
	// sale's proceeds between the treasury and the reward sink.
	TypePaymentSettled = "payment.settled"
	// TypePaymentTokenSet is emitted when an accepted payment asset is
	// enabled, reconfigured or disabled.
	TypePaymentTokenSet = "payment.token.set"
	// TypeCashbackMinted is emitted when loyalty points are credited.
	TypeCashbackMinted = "cashback.minted"
	// TypeCashbackUsed is emitted when accrued cashback is redeemed.
	TypeCashbackUsed = "cashback.used"
	// TypeFarmingInvested is emitted when a depositor joins or grows a
	// farming position.
	TypeFarmingInvested = "farming.invested"
	// TypeFarmingSupplied is emitted when rewards are fed into the pool.
	TypeFarmingSupplied = "farming.supplied"
	// TypeFarmingClaimed is emitted when pending rewards are paid out.
	TypeFarmingClaimed = "farming.claimed"
	// TypeFarmingWithdrawn is emitted when invested principal leaves the pool.
	TypeFarmingWithdrawn = "farming.withdrawn"
)

type ProductRegistered struct {
	Alias common.Hash
}

func (ProductRegistered) EventType() string { return TypeProductRegistered }

type ProductUpdated struct {
	Alias common.Hash
	Field string
}

func (ProductUpdated) EventType() string { return TypeProductUpdated }

type ProductDeployed struct {
	Alias    common.Hash
	Buyer    common.Address
	Contract common.Address
	Price    *big.Int
	Cashback *big.Int
	Sales    uint64
}

func (ProductDeployed) EventType() string { return TypeProductDeployed }

type PaymentSettled struct {
	Product    common.Hash
	Payer      common.Address
	PayAsset   common.Address
	Price      *big.Int
	Cashback   *big.Int
	Discounted *big.Int
	Collected  *big.Int
	ToTreasury *big.Int
	ToSink     *big.Int
}

func (PaymentSettled) EventType() string { return TypePaymentSettled }

type PaymentTokenSet struct {
	Asset   common.Address
	Enabled bool
}

func (PaymentTokenSet) EventType() string { return TypePaymentTokenSet }

type CashbackMinted struct {
	Product common.Hash
	Account common.Address
	Amount  *big.Int
}

func (CashbackMinted) EventType() string { return TypeCashbackMinted }

type CashbackUsed struct {
	Product common.Hash
	Account common.Address
	Amount  *big.Int
}

func (CashbackUsed) EventType() string { return TypeCashbackUsed }

type FarmingInvested struct {
	Account    common.Address
	AmountRaw  *big.Int
	Normalized *big.Int
}

func (FarmingInvested) EventType() string { return TypeFarmingInvested }

type FarmingSupplied struct {
	Supplier common.Address
	Amount   *big.Int
}

func (FarmingSupplied) EventType() string { return TypeFarmingSupplied }

type FarmingClaimed struct {
	Account common.Address
	Amount  *big.Int
}

func (FarmingClaimed) EventType() string { return TypeFarmingClaimed }

type FarmingWithdrawn struct {
	Account   common.Address
	Recipient common.Address
	AmountRaw *big.Int
}

func (FarmingWithdrawn) EventType() string { return TypeFarmingWithdrawn }
