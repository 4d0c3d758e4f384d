// Package farming distributes an arbitrary reward asset pro rata to
// depositors of an investment asset. Invested amounts are normalized to an
// 18-decimal internal unit so pools can host assets of any decimal
// granularity; rewards stay in their native units. The cumulative-sum
// accumulator floors on every division, so rounding dust always favours the
// pool and the sum of claims never exceeds the sum of supplies.
package farming

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"productchain/core/events"
	"productchain/core/state"
	"productchain/native/common"
	"productchain/native/fixedmath"
	"productchain/native/token"
)

// Scale is the fixed-point base of the reward-per-unit accumulator. It is
// large enough that dividing reward increments by the total invested amount
// loses negligible precision for any supported decimal granularity.
func Scale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(25), nil)
}

// AccountInfo is a depositor's position.
type AccountInfo struct {
	Amount                *big.Int // 18-decimal normalized
	CumulativeSumSnapshot *big.Int
	PendingRewards        *big.Int // native reward-asset units
}

// Global is the pool-wide accumulator state.
type Global struct {
	CumulativeSum          *big.Int // scaled by Scale
	TotalInvested          *big.Int // 18-decimal normalized
	TotalRewardOutstanding *big.Int // native reward-asset units
}

// Tokens binds the pool to its investment and reward assets.
type Tokens struct {
	InvestToken common.Address
	RewardToken common.Address
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine orchestrates the farming pool's state transitions.
type Engine struct {
	st            engineState
	ledger        token.Ledger
	roles         nativecommon.RoleView
	moduleAddress common.Address
	emitter       events.Emitter
}

// NewEngine constructs a farming engine holding pool funds at moduleAddr.
func NewEngine(moduleAddr common.Address) *Engine {
	return &Engine{moduleAddress: moduleAddr, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(st engineState) { e.st = st }

// SetLedger wires the engine to the token ledger.
func (e *Engine) SetLedger(l token.Ledger) { e.ledger = l }

// SetRoles wires the capability registry used for operator gating.
func (e *Engine) SetRoles(r nativecommon.RoleView) { e.roles = r }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// ModuleAddress returns the address holding pooled funds. The payment router
// targets it as the reward sink.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

var (
	keyGlobal = []byte("farming/global")
	keyTokens = []byte("farming/tokens")
)

func accountKey(addr common.Address) []byte {
	return []byte("farming/acct/" + addr.Hex())
}

// SetTokens binds the pool's investment and reward assets. Operator-gated and
// rejected once the pool holds liquidity or owes rewards.
func (e *Engine) SetTokens(caller, investToken, rewardToken common.Address) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleOperator, caller); err != nil {
		return err
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	if global.TotalInvested.Sign() > 0 || global.TotalRewardOutstanding.Sign() > 0 {
		return ErrActivePool
	}
	return e.st.KVPut(keyTokens, &Tokens{InvestToken: investToken, RewardToken: rewardToken})
}

// PoolTokens returns the configured asset pair.
func (e *Engine) PoolTokens() (Tokens, error) {
	var tokens Tokens
	ok, err := e.st.KVGet(keyTokens, &tokens)
	if err != nil {
		return tokens, err
	}
	if !ok || tokens.InvestToken == (common.Address{}) || tokens.RewardToken == (common.Address{}) {
		return tokens, ErrTokensNotSet
	}
	return tokens, nil
}

// Invest pulls amountRaw of the investment asset from the caller and adds the
// normalized amount to the caller's position, settling any accrued rewards
// first.
func (e *Engine) Invest(caller common.Address, amountRaw *big.Int) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	tokens, err := e.PoolTokens()
	if err != nil {
		return err
	}
	decimals, err := e.ledger.Decimals(tokens.InvestToken)
	if err != nil {
		return err
	}
	normalized := fixedmath.To18(amountRaw, decimals)
	if normalized.Sign() == 0 {
		return ErrInvalidAmount
	}

	if err := e.ledger.TransferFrom(tokens.InvestToken, e.moduleAddress, caller, e.moduleAddress, amountRaw); err != nil {
		return err
	}

	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	account, err := e.ensureAccount(caller)
	if err != nil {
		return err
	}
	settle(account, global)
	account.Amount = new(big.Int).Add(account.Amount, normalized)
	global.TotalInvested = new(big.Int).Add(global.TotalInvested, normalized)

	if err := e.st.KVPut(accountKey(caller), account); err != nil {
		return err
	}
	if err := e.st.KVPut(keyGlobal, global); err != nil {
		return err
	}

	e.emitter.Emit(events.FarmingInvested{Account: caller, AmountRaw: new(big.Int).Set(amountRaw), Normalized: normalized})
	return nil
}

// Supply pulls amountRaw of the reward asset from the caller and spreads it
// over current depositors by advancing the accumulator.
func (e *Engine) Supply(caller common.Address, amountRaw *big.Int) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	tokens, err := e.PoolTokens()
	if err != nil {
		return err
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	if global.TotalInvested.Sign() == 0 {
		return ErrNoInvestment
	}
	if amountRaw == nil || amountRaw.Sign() == 0 {
		return ErrInvalidAmount
	}

	if err := e.ledger.TransferFrom(tokens.RewardToken, e.moduleAddress, caller, e.moduleAddress, amountRaw); err != nil {
		return err
	}

	delta := new(big.Int).Mul(amountRaw, Scale())
	delta.Quo(delta, global.TotalInvested)
	global.CumulativeSum = new(big.Int).Add(global.CumulativeSum, delta)
	global.TotalRewardOutstanding = new(big.Int).Add(global.TotalRewardOutstanding, amountRaw)

	if err := e.st.KVPut(keyGlobal, global); err != nil {
		return err
	}

	e.emitter.Emit(events.FarmingSupplied{Supplier: caller, Amount: new(big.Int).Set(amountRaw)})
	return nil
}

// Claim settles and pays out the account's pending rewards.
func (e *Engine) Claim(account common.Address) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	tokens, err := e.PoolTokens()
	if err != nil {
		return err
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	info, err := e.ensureAccount(account)
	if err != nil {
		return err
	}
	settle(info, global)
	if info.PendingRewards.Sign() == 0 {
		return ErrNothingToClaim
	}
	payout := info.PendingRewards
	info.PendingRewards = big.NewInt(0)
	global.TotalRewardOutstanding = new(big.Int).Sub(global.TotalRewardOutstanding, payout)

	if err := e.ledger.Transfer(tokens.RewardToken, e.moduleAddress, account, payout); err != nil {
		return err
	}
	if err := e.st.KVPut(accountKey(account), info); err != nil {
		return err
	}
	if err := e.st.KVPut(keyGlobal, global); err != nil {
		return err
	}

	e.emitter.Emit(events.FarmingClaimed{Account: account, Amount: payout})
	return nil
}

// Withdraw settles and pays out pending rewards, then returns up to
// amountRaw of the caller's invested principal to recipient. Oversized
// requests are clamped to the position, so a sentinel max value withdraws
// everything.
func (e *Engine) Withdraw(caller common.Address, amountRaw *big.Int, recipient common.Address) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if amountRaw == nil || amountRaw.Sign() == 0 {
		return ErrInvalidAmount
	}
	tokens, err := e.PoolTokens()
	if err != nil {
		return err
	}
	global, err := e.ensureGlobal()
	if err != nil {
		return err
	}
	info, err := e.ensureAccount(caller)
	if err != nil {
		return err
	}
	if info.Amount.Sign() == 0 {
		return ErrNothingToWithdraw
	}
	settle(info, global)
	if info.PendingRewards.Sign() > 0 {
		payout := info.PendingRewards
		info.PendingRewards = big.NewInt(0)
		global.TotalRewardOutstanding = new(big.Int).Sub(global.TotalRewardOutstanding, payout)
		if err := e.ledger.Transfer(tokens.RewardToken, e.moduleAddress, recipient, payout); err != nil {
			return err
		}
	}

	decimals, err := e.ledger.Decimals(tokens.InvestToken)
	if err != nil {
		return err
	}
	requested := fixedmath.To18(amountRaw, decimals)
	take := fixedmath.Min(requested, info.Amount)
	rawOut := fixedmath.From18(take, decimals)

	info.Amount = new(big.Int).Sub(info.Amount, take)
	global.TotalInvested = new(big.Int).Sub(global.TotalInvested, take)

	if err := e.ledger.Transfer(tokens.InvestToken, e.moduleAddress, recipient, rawOut); err != nil {
		return err
	}
	if err := e.st.KVPut(accountKey(caller), info); err != nil {
		return err
	}
	if err := e.st.KVPut(keyGlobal, global); err != nil {
		return err
	}

	e.emitter.Emit(events.FarmingWithdrawn{Account: caller, Recipient: recipient, AmountRaw: rawOut})
	return nil
}

// WithdrawStuckERC20 sweeps asset balance held by the module in excess of its
// tracked obligations. Operator-gated.
func (e *Engine) WithdrawStuckERC20(caller, asset, recipient common.Address, amountRaw *big.Int) error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.roles, state.RoleOperator, caller); err != nil {
		return err
	}
	balance, err := e.ledger.BalanceOf(asset, e.moduleAddress)
	if err != nil {
		return err
	}
	available := new(big.Int).Set(balance)

	tokens, tokensErr := e.PoolTokens()
	if tokensErr == nil {
		global, err := e.ensureGlobal()
		if err != nil {
			return err
		}
		switch asset {
		case tokens.InvestToken:
			decimals, err := e.ledger.Decimals(tokens.InvestToken)
			if err != nil {
				return err
			}
			available.Sub(available, fixedmath.From18(global.TotalInvested, decimals))
		case tokens.RewardToken:
			available.Sub(available, global.TotalRewardOutstanding)
		}
	}

	take := fixedmath.Min(amountRaw, available)
	if take.Sign() <= 0 {
		return ErrNothingToWithdraw
	}
	return e.ledger.Transfer(asset, e.moduleAddress, recipient, take)
}

// --- Views ---

// CumulativeSum returns the scaled reward-per-unit accumulator.
func (e *Engine) CumulativeSum() (*big.Int, error) {
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	return global.CumulativeSum, nil
}

// TotalInvested returns the pool's invested principal in the investment
// asset's native units.
func (e *Engine) TotalInvested() (*big.Int, error) {
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	tokens, err := e.PoolTokens()
	if err != nil {
		return nil, err
	}
	decimals, err := e.ledger.Decimals(tokens.InvestToken)
	if err != nil {
		return nil, err
	}
	return fixedmath.From18(global.TotalInvested, decimals), nil
}

// TotalRewardOutstanding returns rewards owed but not yet claimed, in the
// reward asset's native units.
func (e *Engine) TotalRewardOutstanding() (*big.Int, error) {
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	return global.TotalRewardOutstanding, nil
}

// Investment returns the account's invested principal in native units.
func (e *Engine) Investment(account common.Address) (*big.Int, error) {
	info, err := e.ensureAccount(account)
	if err != nil {
		return nil, err
	}
	tokens, err := e.PoolTokens()
	if err != nil {
		return nil, err
	}
	decimals, err := e.ledger.Decimals(tokens.InvestToken)
	if err != nil {
		return nil, err
	}
	return fixedmath.From18(info.Amount, decimals), nil
}

// Rewards returns the account's currently claimable reward amount.
func (e *Engine) Rewards(account common.Address) (*big.Int, error) {
	global, err := e.ensureGlobal()
	if err != nil {
		return nil, err
	}
	info, err := e.ensureAccount(account)
	if err != nil {
		return nil, err
	}
	pending := new(big.Int).Set(info.PendingRewards)
	return pending.Add(pending, accrued(info, global)), nil
}

// AccountInfo returns a copy of the raw position row.
func (e *Engine) AccountInfo(account common.Address) (*AccountInfo, error) {
	return e.ensureAccount(account)
}

// --- internals ---

// settle captures the accumulator delta into the position's pending rewards
// and rebases the snapshot. Always called before any mutation of the position.
func settle(info *AccountInfo, global *Global) {
	info.PendingRewards = new(big.Int).Add(info.PendingRewards, accrued(info, global))
	info.CumulativeSumSnapshot = new(big.Int).Set(global.CumulativeSum)
}

func accrued(info *AccountInfo, global *Global) *big.Int {
	if info.Amount.Sign() == 0 {
		return big.NewInt(0)
	}
	delta := new(big.Int).Sub(global.CumulativeSum, info.CumulativeSumSnapshot)
	if delta.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(info.Amount, delta)
	return out.Quo(out, Scale())
}

func (e *Engine) ensureGlobal() (*Global, error) {
	global := &Global{}
	if _, err := e.st.KVGet(keyGlobal, global); err != nil {
		return nil, err
	}
	if global.CumulativeSum == nil {
		global.CumulativeSum = big.NewInt(0)
	}
	if global.TotalInvested == nil {
		global.TotalInvested = big.NewInt(0)
	}
	if global.TotalRewardOutstanding == nil {
		global.TotalRewardOutstanding = big.NewInt(0)
	}
	return global, nil
}

func (e *Engine) ensureAccount(addr common.Address) (*AccountInfo, error) {
	info := &AccountInfo{}
	if _, err := e.st.KVGet(accountKey(addr), info); err != nil {
		return nil, err
	}
	if info.Amount == nil {
		info.Amount = big.NewInt(0)
	}
	if info.CumulativeSumSnapshot == nil {
		info.CumulativeSumSnapshot = big.NewInt(0)
	}
	if info.PendingRewards == nil {
		info.PendingRewards = big.NewInt(0)
	}
	return info, nil
}
