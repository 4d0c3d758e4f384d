// Package cashback tracks loyalty points in a shared per-product pool.
// Every sale mints points into the pool; an account's claimable cashback is
// the pool growth contributed by other accounts since its last settlement.
// Minting to yourself never raises your own claimable balance, so the pool
// only ever rewards repeat customers for demand generated by others.
package cashback

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"productchain/core/events"
	"productchain/core/state"
	nativecommon "productchain/native/common"
	"productchain/native/fixedmath"
)

// Pool is the shared per-product point pool. TotalPoints only ever grows.
type Pool struct {
	TotalPoints *big.Int
}

// Account is a per-(product, account) row. Points is the account's own
// cumulative contribution; PendingCashback is settled, spendable balance;
// PoolCheckpoint is the pool size at the account's last settlement.
type Account struct {
	Points          *big.Int
	PendingCashback *big.Int
	PoolCheckpoint  *big.Int
}

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is the cashback accounting engine.
type Ledger struct {
	st      ledgerState
	roles   nativecommon.RoleView
	emitter events.Emitter
}

// NewLedger constructs an unwired ledger.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(st ledgerState) { l.st = st }

// SetRoles wires the capability registry gating mint and redemption.
func (l *Ledger) SetRoles(r nativecommon.RoleView) { l.roles = r }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func poolKey(product common.Hash) []byte {
	return []byte("cashback/pool/" + product.Hex())
}

func accountKey(product common.Hash, account common.Address) []byte {
	return []byte("cashback/acct/" + product.Hex() + "/" + account.Hex())
}

// MintPoints credits amount of loyalty points to account inside product's
// pool. Only payment contracts may mint. The account's prior pool share is
// settled first and its checkpoint rebased past the new mint, so an account
// never accrues cashback from its own purchase.
func (l *Ledger) MintPoints(caller common.Address, product common.Hash, amount *big.Int, account common.Address) error {
	if l == nil || l.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(l.roles, state.RolePaymentContract, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := l.loadPool(product)
	if err != nil {
		return err
	}
	acct, existed, err := l.loadAccount(product, account)
	if err != nil {
		return err
	}
	if existed {
		settle(acct, pool)
	}
	pool.TotalPoints = new(big.Int).Add(pool.TotalPoints, amount)
	acct.Points = new(big.Int).Add(acct.Points, amount)
	acct.PoolCheckpoint = new(big.Int).Set(pool.TotalPoints)

	if err := l.st.KVPut(poolKey(product), pool); err != nil {
		return err
	}
	if err := l.st.KVPut(accountKey(product, account), acct); err != nil {
		return err
	}
	l.emitter.Emit(events.CashbackMinted{Product: product, Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}

// UseCashback redeems up to amounts[i] of account's claimable cashback from
// each products[i] pool and returns the total redeemed. Exhausted balances
// and zero requests are skipped, never errors, so the payment router can pass
// discount wishes through unfiltered. Only payment contracts may redeem.
func (l *Ledger) UseCashback(caller common.Address, products []common.Hash, amounts []*big.Int, account common.Address) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(l.roles, state.RolePaymentContract, caller); err != nil {
		return nil, err
	}
	if len(products) != len(amounts) {
		return nil, ErrLengthMismatch
	}
	total := big.NewInt(0)
	for i, product := range products {
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			continue
		}
		acct, existed, err := l.loadAccount(product, account)
		if err != nil {
			return nil, err
		}
		if !existed {
			continue
		}
		pool, err := l.loadPool(product)
		if err != nil {
			return nil, err
		}
		settle(acct, pool)
		take := fixedmath.Min(amounts[i], acct.PendingCashback)
		if take.Sign() > 0 {
			acct.PendingCashback = new(big.Int).Sub(acct.PendingCashback, take)
			total.Add(total, take)
			l.emitter.Emit(events.CashbackUsed{Product: product, Account: account, Amount: take})
		}
		if err := l.st.KVPut(accountKey(product, account), acct); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// AccountCashback returns the account's currently claimable cashback for the
// product: settled balance plus pool growth since the last settlement.
func (l *Ledger) AccountCashback(product common.Hash, account common.Address) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, ErrNilState
	}
	acct, existed, err := l.loadAccount(product, account)
	if err != nil {
		return nil, err
	}
	if !existed {
		return big.NewInt(0), nil
	}
	pool, err := l.loadPool(product)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Sub(pool.TotalPoints, acct.PoolCheckpoint)
	return out.Add(out, acct.PendingCashback), nil
}

// AccountCashbacks is the batch form of AccountCashback.
func (l *Ledger) AccountCashbacks(products []common.Hash, account common.Address) ([]*big.Int, error) {
	out := make([]*big.Int, len(products))
	for i, product := range products {
		claimable, err := l.AccountCashback(product, account)
		if err != nil {
			return nil, err
		}
		out[i] = claimable
	}
	return out, nil
}

// PoolTotal returns product's shared pool size.
func (l *Ledger) PoolTotal(product common.Hash) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, ErrNilState
	}
	pool, err := l.loadPool(product)
	if err != nil {
		return nil, err
	}
	return pool.TotalPoints, nil
}

// AccountInfo returns a copy of the raw account row.
func (l *Ledger) AccountInfo(product common.Hash, account common.Address) (*Account, error) {
	if l == nil || l.st == nil {
		return nil, ErrNilState
	}
	acct, _, err := l.loadAccount(product, account)
	return acct, err
}

// settle moves the pool growth since the last checkpoint into the account's
// spendable balance and rebases the checkpoint.
func settle(acct *Account, pool *Pool) {
	grown := new(big.Int).Sub(pool.TotalPoints, acct.PoolCheckpoint)
	if grown.Sign() > 0 {
		acct.PendingCashback = new(big.Int).Add(acct.PendingCashback, grown)
	}
	acct.PoolCheckpoint = new(big.Int).Set(pool.TotalPoints)
}

func (l *Ledger) loadPool(product common.Hash) (*Pool, error) {
	pool := &Pool{}
	if _, err := l.st.KVGet(poolKey(product), pool); err != nil {
		return nil, err
	}
	if pool.TotalPoints == nil {
		pool.TotalPoints = big.NewInt(0)
	}
	return pool, nil
}

func (l *Ledger) loadAccount(product common.Hash, account common.Address) (*Account, bool, error) {
	acct := &Account{}
	ok, err := l.st.KVGet(accountKey(product, account), acct)
	if err != nil {
		return nil, false, err
	}
	if acct.Points == nil {
		acct.Points = big.NewInt(0)
	}
	if acct.PendingCashback == nil {
		acct.PendingCashback = big.NewInt(0)
	}
	if acct.PoolCheckpoint == nil {
		acct.PoolCheckpoint = big.NewInt(0)
	}
	return acct, ok, nil
}
