package events

import (
	"math/big"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	// TypePoolDeposit is emitted when a lender adds liquidity.
	TypePoolDeposit = "pool.deposit"
	// TypePoolWithdraw is emitted when a lender removes liquidity.
	TypePoolWithdraw = "pool.withdraw"
	// TypePoolBorrow is emitted when an approved loan draws from the pool.
	TypePoolBorrow = "pool.borrow"
	// TypePoolRepay is emitted when a loan payment is booked against the pool.
	TypePoolRepay = "pool.repay"
	// TypePoolInterestClaimed is emitted when accrued interest is paid to a lender.
	TypePoolInterestClaimed = "pool.interestClaimed"
)

// PoolDeposit captures a lender deposit.
type PoolDeposit struct {
	Lender crypto.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (PoolDeposit) EventType() string { return TypePoolDeposit }

// Event converts the payload into a broadcastable event.
func (e PoolDeposit) Event() *types.Event {
	return &types.Event{Type: TypePoolDeposit, Attributes: map[string]string{
		"lender": e.Lender.String(),
		"amount": formatAmount(e.Amount),
	}}
}

// PoolWithdraw captures a lender withdrawal. Interest is the accrued interest
// settled alongside the principal.
type PoolWithdraw struct {
	Lender   crypto.Address
	Amount   *big.Int
	Interest *big.Int
}

// EventType satisfies the Event interface.
func (PoolWithdraw) EventType() string { return TypePoolWithdraw }

// Event converts the payload into a broadcastable event.
func (e PoolWithdraw) Event() *types.Event {
	attrs := map[string]string{
		"lender": e.Lender.String(),
		"amount": formatAmount(e.Amount),
	}
	if e.Interest != nil && e.Interest.Sign() > 0 {
		attrs["interest"] = e.Interest.String()
	}
	return &types.Event{Type: TypePoolWithdraw, Attributes: attrs}
}

// PoolBorrow captures funds released to a borrower.
type PoolBorrow struct {
	LoanID   uint64
	Borrower crypto.Address
	Amount   *big.Int
}

// EventType satisfies the Event interface.
func (PoolBorrow) EventType() string { return TypePoolBorrow }

// Event converts the payload into a broadcastable event.
func (e PoolBorrow) Event() *types.Event {
	return &types.Event{Type: TypePoolBorrow, Attributes: map[string]string{
		"loanId":   formatUint(e.LoanID),
		"borrower": e.Borrower.String(),
		"amount":   formatAmount(e.Amount),
	}}
}

// PoolRepay captures a repayment split booked by the pool.
type PoolRepay struct {
	LoanID    uint64
	Principal *big.Int
	Interest  *big.Int
}

// EventType satisfies the Event interface.
func (PoolRepay) EventType() string { return TypePoolRepay }

// Total returns principal plus interest.
func (e PoolRepay) Total() *big.Int {
	total := new(big.Int)
	if e.Principal != nil {
		total.Add(total, e.Principal)
	}
	if e.Interest != nil {
		total.Add(total, e.Interest)
	}
	return total
}

// Event converts the payload into a broadcastable event.
func (e PoolRepay) Event() *types.Event {
	return &types.Event{Type: TypePoolRepay, Attributes: map[string]string{
		"loanId":    formatUint(e.LoanID),
		"amount":    e.Total().String(),
		"principal": formatAmount(e.Principal),
		"interest":  formatAmount(e.Interest),
	}}
}

// PoolInterestClaimed captures an interest-only payout.
type PoolInterestClaimed struct {
	Lender crypto.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (PoolInterestClaimed) EventType() string { return TypePoolInterestClaimed }

// Event converts the payload into a broadcastable event.
func (e PoolInterestClaimed) Event() *types.Event {
	return &types.Event{Type: TypePoolInterestClaimed, Attributes: map[string]string{
		"lender": e.Lender.String(),
		"amount": formatAmount(e.Amount),
	}}
}
