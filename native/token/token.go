// Package token models the fungible asset surface the commerce modules
// consume. Assets live in the shared state manager as balance/allowance rows
// keyed by asset address, so purchased product instances, payment tokens and
// reward tokens all share one ledger implementation.
package token

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the narrow asset surface consumed by the payment, farming and
// factory modules.
type Ledger interface {
	Decimals(asset common.Address) (uint8, error)
	BalanceOf(asset, account common.Address) (*big.Int, error)
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
	Approve(asset, owner, spender common.Address, amount *big.Int) error
	Allowance(asset, owner, spender common.Address) (*big.Int, error)
}

// Metadata describes a deployed token instance.
type Metadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	Owner       common.Address
	TotalSupply *big.Int
}

// InitData is the initializer payload bound into a deterministic deployment.
type InitData struct {
	Name          string         `json:"name"`
	Symbol        string         `json:"symbol"`
	Decimals      uint8          `json:"decimals"`
	InitialSupply *big.Int       `json:"initialSupply"`
	InitialHolder common.Address `json:"initialHolder"`
}

// DecodeInitData parses the raw initializer payload carried by a deployment.
func DecodeInitData(raw []byte) (InitData, error) {
	var init InitData
	if len(raw) == 0 {
		return init, ErrInvalidInit
	}
	if err := json.Unmarshal(raw, &init); err != nil {
		return init, fmt.Errorf("%w: %v", ErrInvalidInit, err)
	}
	if init.Symbol == "" {
		return init, ErrInvalidInit
	}
	return init, nil
}

// EncodeInitData renders an initializer payload. Helper for tests and tooling.
func EncodeInitData(init InitData) []byte {
	raw, _ := json.Marshal(init)
	return raw
}

// MaxApproval is the sentinel allowance meaning "unlimited"; it is never
// decremented by TransferFrom.
func MaxApproval() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Registry is the in-state token ledger.
type Registry struct {
	st ledgerState
}

// NewRegistry creates a token registry backed by the provided state manager.
func NewRegistry(st ledgerState) *Registry {
	return &Registry{st: st}
}

func metaKey(asset common.Address) []byte {
	return []byte("token/meta/" + asset.Hex())
}

func balanceKey(asset, account common.Address) []byte {
	return []byte("token/bal/" + asset.Hex() + "/" + account.Hex())
}

func allowanceKey(asset, owner, spender common.Address) []byte {
	return []byte("token/allow/" + asset.Hex() + "/" + owner.Hex() + "/" + spender.Hex())
}

func nativeKey(account common.Address) []byte {
	return []byte("native/bal/" + account.Hex())
}

// Exists reports whether a token is deployed at the address.
func (r *Registry) Exists(asset common.Address) bool {
	if r == nil || r.st == nil {
		return false
	}
	ok, err := r.st.KVGet(metaKey(asset), nil)
	return err == nil && ok
}

// Deploy registers a new token instance at the given address.
func (r *Registry) Deploy(asset common.Address, meta Metadata) error {
	if r.Exists(asset) {
		return ErrTokenExists
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return r.st.KVPut(metaKey(asset), &meta)
}

// Instantiate deploys a token at a deterministically derived address from an
// initializer payload, assigning ownership to owner and minting the initial
// supply to the configured holder. This is the factory's product
// instantiation path.
func (r *Registry) Instantiate(asset common.Address, raw []byte, owner common.Address) error {
	init, err := DecodeInitData(raw)
	if err != nil {
		return err
	}
	supply := init.InitialSupply
	if supply == nil {
		supply = big.NewInt(0)
	}
	meta := Metadata{
		Name:        init.Name,
		Symbol:      init.Symbol,
		Decimals:    init.Decimals,
		Owner:       owner,
		TotalSupply: new(big.Int).Set(supply),
	}
	if err := r.Deploy(asset, meta); err != nil {
		return err
	}
	if supply.Sign() > 0 {
		holder := init.InitialHolder
		if holder == (common.Address{}) {
			holder = owner
		}
		return r.credit(asset, holder, supply)
	}
	return nil
}

// Metadata returns a copy of the token's metadata.
func (r *Registry) Metadata(asset common.Address) (*Metadata, error) {
	meta := &Metadata{}
	ok, err := r.st.KVGet(metaKey(asset), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownToken
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return meta, nil
}

// Decimals returns the token's decimal granularity.
func (r *Registry) Decimals(asset common.Address) (uint8, error) {
	meta, err := r.Metadata(asset)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// BalanceOf returns the account's balance of the asset.
func (r *Registry) BalanceOf(asset, account common.Address) (*big.Int, error) {
	if !r.Exists(asset) {
		return nil, ErrUnknownToken
	}
	return r.loadAmount(balanceKey(asset, account))
}

func (r *Registry) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := r.st.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (r *Registry) credit(asset, account common.Address, amount *big.Int) error {
	bal, err := r.loadAmount(balanceKey(asset, account))
	if err != nil {
		return err
	}
	return r.st.KVPut(balanceKey(asset, account), new(big.Int).Add(bal, amount))
}

func (r *Registry) debit(asset, account common.Address, amount *big.Int) error {
	bal, err := r.loadAmount(balanceKey(asset, account))
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return r.st.KVPut(balanceKey(asset, account), new(big.Int).Sub(bal, amount))
}

// Mint creates new supply. Only the token owner may mint.
func (r *Registry) Mint(asset, caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := r.Metadata(asset)
	if err != nil {
		return err
	}
	if meta.Owner != caller {
		return ErrNotOwner
	}
	meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, amount)
	if err := r.st.KVPut(metaKey(asset), meta); err != nil {
		return err
	}
	return r.credit(asset, to, amount)
}

// Transfer moves amount from one holder to another. Zero-amount transfers are
// permitted no-ops so callers don't have to special-case empty legs.
func (r *Registry) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if !r.Exists(asset) {
		return ErrUnknownToken
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := r.debit(asset, from, amount); err != nil {
		return err
	}
	return r.credit(asset, to, amount)
}

// Approve sets spender's allowance over owner's balance.
func (r *Registry) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	if !r.Exists(asset) {
		return ErrUnknownToken
	}
	if amount == nil || amount.Sign() == 0 {
		return r.st.KVDelete(allowanceKey(asset, owner, spender))
	}
	return r.st.KVPut(allowanceKey(asset, owner, spender), amount)
}

// Allowance returns spender's remaining allowance over owner's balance.
func (r *Registry) Allowance(asset, owner, spender common.Address) (*big.Int, error) {
	if !r.Exists(asset) {
		return nil, ErrUnknownToken
	}
	return r.loadAmount(allowanceKey(asset, owner, spender))
}

// TransferFrom moves amount from `from` to `to` on spender's authority,
// consuming allowance unless the unlimited sentinel is set.
func (r *Registry) TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if spender != from {
		allowance, err := r.Allowance(asset, from, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if allowance.Cmp(MaxApproval()) < 0 {
			remaining := new(big.Int).Sub(allowance, amount)
			if err := r.Approve(asset, from, spender, remaining); err != nil {
				return err
			}
		}
	}
	return r.Transfer(asset, from, to, amount)
}

// --- Native currency ---

// NativeBalanceOf returns the account's native-currency balance.
func (r *Registry) NativeBalanceOf(account common.Address) (*big.Int, error) {
	return r.loadAmount(nativeKey(account))
}

// NativeMint credits native currency to an account. Genesis/test helper.
func (r *Registry) NativeMint(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := r.loadAmount(nativeKey(account))
	if err != nil {
		return err
	}
	return r.st.KVPut(nativeKey(account), new(big.Int).Add(bal, amount))
}

// NativeTransfer moves native currency between accounts.
func (r *Registry) NativeTransfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	bal, err := r.loadAmount(nativeKey(from))
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrTransferFailed
	}
	if err := r.st.KVPut(nativeKey(from), new(big.Int).Sub(bal, amount)); err != nil {
		return err
	}
	toBal, err := r.loadAmount(nativeKey(to))
	if err != nil {
		return err
	}
	return r.st.KVPut(nativeKey(to), new(big.Int).Add(toBal, amount))
}

// Deposit wraps native currency: it moves amount of native value from the
// account to the wrapped token's address and credits the same amount of
// wrapped tokens to the account.
func (r *Registry) Deposit(wrapped, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := r.Metadata(wrapped)
	if err != nil {
		return err
	}
	if err := r.NativeTransfer(account, wrapped, amount); err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, amount)
	if err := r.st.KVPut(metaKey(wrapped), meta); err != nil {
		return err
	}
	return r.credit(wrapped, account, amount)
}

// WithdrawNative unwraps: burns the caller's wrapped tokens and returns the
// equivalent native value.
func (r *Registry) WithdrawNative(wrapped, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := r.Metadata(wrapped)
	if err != nil {
		return err
	}
	if err := r.debit(wrapped, account, amount); err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Sub(meta.TotalSupply, amount)
	if err := r.st.KVPut(metaKey(wrapped), meta); err != nil {
		return err
	}
	return r.NativeTransfer(wrapped, account, amount)
}
