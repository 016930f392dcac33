package pool

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/common"
)

var (
	errNilState = errors.New("pool engine: state not configured")
	errNilBank  = errors.New("pool engine: asset ledger not configured")
)

const moduleName = "pool"

type engineState interface {
	GetPool() (*State, error)
	PutPool(pool *State) error
	GetLender(addr crypto.Address) (*LenderPosition, error)
	PutLender(position *LenderPosition) error
}

// assetLedger moves the pooled asset between accounts. Transfers fail without
// side effects when the sender cannot cover the amount.
type assetLedger interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
}

// Engine owns the pool's liquidity accounting. It is the only component that
// moves pooled funds.
type Engine struct {
	state     engineState
	bank      assetLedger
	address   crypto.Address
	emitter   events.Emitter
	pauses    common.PauseView
	timestamp uint64
}

// NewEngine constructs a pool engine whose funds are held by moduleAddr.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{address: moduleAddr, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank wires the asset ledger used for fund movements.
func (e *Engine) SetBank(bank assetLedger) { e.bank = bank }

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures where pool events are published.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetTimestamp records the call's clock reading in unix seconds.
func (e *Engine) SetTimestamp(ts uint64) {
	if e == nil {
		return
	}
	e.timestamp = ts
}

// Address returns the account holding pooled funds.
func (e *Engine) Address() crypto.Address { return e.address }

// Initialize zeroes the pool totals and registers the loan manager allowed to
// borrow and repay.
func (e *Engine) Initialize(loanManager crypto.Address, asset string, baseRateBps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.GetPool()
	if err != nil {
		return err
	}
	if existing != nil {
		return common.ErrAlreadyInitialized
	}
	if loanManager.IsZero() {
		return fmt.Errorf("%w: loan manager address required", common.ErrUnauthorized)
	}
	pool := &State{
		BaseRateBps:       baseRateBps,
		MaxUtilizationBps: DefaultMaxUtilizationBps,
		LoanManager:       loanManager,
		Asset:             strings.ToUpper(strings.TrimSpace(asset)),
	}
	pool.ensureDefaults()
	return e.state.PutPool(pool)
}

// Deposit moves amount from the lender into the pool and credits the lender's
// principal. Interest accrued on the previous principal is carried forward so
// that the checkpoint can be rebased to the new principal.
func (e *Engine) Deposit(lender crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return err
	}

	nextPool := pool.Clone()
	nextPosition := position.Clone()
	if nextPosition.Principal.Sign() == 0 {
		nextPosition.DepositTimestamp = e.timestamp
	}

	carried := pendingInterest(position, pool.AccInterestPerShare)
	principal, err := common.CheckedAdd(position.Principal, amount)
	if err != nil {
		return err
	}
	liquidity, err := common.CheckedAdd(pool.TotalLiquidity, amount)
	if err != nil {
		return err
	}
	nextPosition.Principal = principal
	nextPosition.UnclaimedInterest = carried
	nextPosition.InterestCheckpoint = accruedFor(principal, pool.AccInterestPerShare)
	if pool.TotalLiquidity.Sign() == 0 {
		nextPosition.ShareBps = 10_000
	} else {
		nextPosition.ShareBps = shareBps(principal, liquidity)
	}
	nextPool.TotalLiquidity = liquidity

	if err := e.bank.Transfer(lender, e.address, amount); err != nil {
		return err
	}
	if err := e.state.PutLender(nextPosition); err != nil {
		return err
	}
	if err := e.state.PutPool(nextPool); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolDeposit{Lender: lender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Withdraw returns amount of principal to the lender together with all
// interest owed to the position. The settled interest is returned.
func (e *Engine) Withdraw(lender crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.RequirePositive(amount); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	position, err := e.state.GetLender(lender)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, fmt.Errorf("%w: lender position", common.ErrNotFound)
	}
	position.ensureDefaults()
	if amount.Cmp(position.Principal) > 0 {
		return nil, common.ErrInsufficientBalance
	}
	if amount.Cmp(available(pool)) > 0 {
		return nil, common.ErrInsufficientLiquidity
	}

	liquidity := new(big.Int).Sub(pool.TotalLiquidity, amount)
	if liquidity.Sign() > 0 {
		projected := utilizationBps(pool.TotalBorrowed, liquidity)
		if projected.Cmp(big.NewInt(int64(pool.MaxUtilizationBps))) > 0 {
			return nil, common.ErrMaxUtilizationExceeded
		}
	}

	pending := pendingInterest(position, pool.AccInterestPerShare)
	payout := new(big.Int).Set(amount)
	nextPool := pool.Clone()
	nextPosition := position.Clone()
	if pending.Sign() > 0 {
		payout.Add(payout, pending)
		nextPool.TotalInterestPaid = new(big.Int).Add(pool.TotalInterestPaid, pending)
	}
	nextPosition.UnclaimedInterest = big.NewInt(0)
	nextPosition.Principal = new(big.Int).Sub(position.Principal, amount)
	nextPosition.InterestCheckpoint = accruedFor(nextPosition.Principal, pool.AccInterestPerShare)
	nextPosition.ShareBps = shareBps(nextPosition.Principal, liquidity)
	nextPool.TotalLiquidity = liquidity

	if err := e.bank.Transfer(e.address, lender, payout); err != nil {
		return nil, err
	}
	if err := e.state.PutLender(nextPosition); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(nextPool); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PoolWithdraw{Lender: lender, Amount: new(big.Int).Set(amount), Interest: pending})
	return pending, nil
}

// ClaimInterest pays out the interest owed to a lender without touching the
// principal. Claiming with nothing owed is a no-op returning zero.
func (e *Engine) ClaimInterest(lender crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	position, err := e.state.GetLender(lender)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, fmt.Errorf("%w: lender position", common.ErrNotFound)
	}
	position.ensureDefaults()

	pending := pendingInterest(position, pool.AccInterestPerShare)
	if pending.Sign() == 0 {
		return pending, nil
	}
	nextPosition := position.Clone()
	nextPosition.UnclaimedInterest = big.NewInt(0)
	nextPosition.InterestCheckpoint = accruedFor(position.Principal, pool.AccInterestPerShare)
	nextPool := pool.Clone()
	nextPool.TotalInterestPaid = new(big.Int).Add(pool.TotalInterestPaid, pending)

	if err := e.bank.Transfer(e.address, lender, pending); err != nil {
		return nil, err
	}
	if err := e.state.PutLender(nextPosition); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(nextPool); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PoolInterestClaimed{Lender: lender, Amount: new(big.Int).Set(pending)})
	return pending, nil
}

// Borrow releases amount to the borrower of loanID. Only the registered loan
// manager may call it, and the resulting utilisation must stay within the cap.
func (e *Engine) Borrow(caller crypto.Address, amount *big.Int, borrower crypto.Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if caller != pool.LoanManager {
		return common.ErrUnauthorized
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	if amount.Cmp(available(pool)) > 0 {
		return common.ErrInsufficientLiquidity
	}
	borrowed := new(big.Int).Add(pool.TotalBorrowed, amount)
	projected := utilizationBps(borrowed, pool.TotalLiquidity)
	if projected.Cmp(big.NewInt(int64(pool.MaxUtilizationBps))) > 0 {
		return common.ErrMaxUtilizationExceeded
	}

	nextPool := pool.Clone()
	nextPool.TotalBorrowed = borrowed

	if err := e.bank.Transfer(e.address, borrower, amount); err != nil {
		return err
	}
	if err := e.state.PutPool(nextPool); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolBorrow{LoanID: loanID, Borrower: borrower, Amount: new(big.Int).Set(amount)})
	return nil
}

// Repay books a loan payment that the loan manager has already moved into the
// pool. Interest is distributed lazily through the per-share accumulator.
func (e *Engine) Repay(caller crypto.Address, principal, interest *big.Int, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if caller != pool.LoanManager {
		return common.ErrUnauthorized
	}
	if err := common.RequireNonNegative(principal); err != nil {
		return err
	}
	if err := common.RequireNonNegative(interest); err != nil {
		return err
	}
	if principal.Cmp(pool.TotalBorrowed) > 0 {
		return fmt.Errorf("%w: principal exceeds total borrowed", common.ErrInvalidAmount)
	}
	earned, err := common.CheckedAdd(pool.TotalInterestEarned, interest)
	if err != nil {
		return err
	}

	nextPool := pool.Clone()
	nextPool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, principal)
	nextPool.TotalInterestEarned = earned
	if interest.Sign() > 0 && pool.TotalLiquidity.Sign() > 0 {
		inc := interestIndexIncrement(interest, pool.TotalLiquidity)
		nextPool.AccInterestPerShare = new(big.Int).Add(pool.AccInterestPerShare, inc)
	}

	if err := e.state.PutPool(nextPool); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolRepay{LoanID: loanID, Principal: new(big.Int).Set(principal), Interest: new(big.Int).Set(interest)})
	return nil
}

// AvailableLiquidity returns TotalLiquidity - TotalBorrowed.
func (e *Engine) AvailableLiquidity() (*big.Int, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return available(pool), nil
}

// UtilizationRate returns TotalBorrowed/TotalLiquidity in basis points, zero
// for an empty pool.
func (e *Engine) UtilizationRate() (uint32, error) {
	pool, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	util := utilizationBps(pool.TotalBorrowed, pool.TotalLiquidity)
	if !util.IsUint64() || util.Uint64() > 1<<32-1 {
		return 1<<32 - 1, nil
	}
	return uint32(util.Uint64()), nil
}

// LenderInfo returns the lender's position with its share refreshed against
// the current liquidity. Unknown lenders yield a zero-valued record.
func (e *Engine) LenderInfo(lender crypto.Address) (*LenderPosition, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return nil, err
	}
	out := position.Clone()
	out.ShareBps = shareBps(out.Principal, pool.TotalLiquidity)
	return out, nil
}

// PendingInterest reports the interest a withdraw or claim would settle now.
func (e *Engine) PendingInterest(lender crypto.Address) (*big.Int, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return nil, err
	}
	return pendingInterest(position, pool.AccInterestPerShare), nil
}

// Pool returns a copy of the global pool state.
func (e *Engine) Pool() (*State, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return common.Guard(e.pauses, moduleName)
}

func (e *Engine) loadPool() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: pool", common.ErrNotInitialized)
	}
	pool.ensureDefaults()
	return pool, nil
}

func (e *Engine) loadPosition(lender crypto.Address) (*LenderPosition, error) {
	position, err := e.state.GetLender(lender)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &LenderPosition{Lender: lender}
	}
	position.ensureDefaults()
	return position, nil
}

func available(pool *State) *big.Int {
	liquidity := new(big.Int).Sub(pool.TotalLiquidity, pool.TotalBorrowed)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}
