package events

import (
	"math/big"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	TypeLoanRequested = "loan.requested"
	TypeLoanApproved  = "loan.approved"
	TypePaymentMade   = "loan.paymentMade"
	TypePaymentMissed = "loan.paymentMissed"
	TypeLoanRepaid    = "loan.repaid"
	TypeLoanDefaulted = "loan.defaulted"
)

// LoanRequested is emitted when a borrower opens a pending loan.
type LoanRequested struct {
	Borrower  crypto.Address
	LoanID    uint64
	Principal *big.Int
	APRBps    uint32
}

func (LoanRequested) EventType() string { return TypeLoanRequested }

func (e LoanRequested) Event() *types.Event {
	attrs := map[string]string{
		"borrower": e.Borrower.String(),
		"loanId":   formatUint(e.LoanID),
	}
	if e.Principal != nil {
		attrs["principal"] = e.Principal.String()
	}
	if e.APRBps > 0 {
		attrs["aprBps"] = formatUint(uint64(e.APRBps))
	}
	return &types.Event{Type: TypeLoanRequested, Attributes: attrs}
}

// LoanApproved is emitted once the loan is funded and active.
type LoanApproved struct {
	LoanID uint64
}

func (LoanApproved) EventType() string { return TypeLoanApproved }

func (e LoanApproved) Event() *types.Event {
	return &types.Event{Type: TypeLoanApproved, Attributes: map[string]string{
		"loanId": formatUint(e.LoanID),
	}}
}

// PaymentMade records a booked payment and its split.
type PaymentMade struct {
	LoanID    uint64
	Amount    *big.Int
	Principal *big.Int
	Interest  *big.Int
}

func (PaymentMade) EventType() string { return TypePaymentMade }

func (e PaymentMade) Event() *types.Event {
	return &types.Event{Type: TypePaymentMade, Attributes: map[string]string{
		"loanId":    formatUint(e.LoanID),
		"amount":    formatAmount(e.Amount),
		"principal": formatAmount(e.Principal),
		"interest":  formatAmount(e.Interest),
	}}
}

// PaymentMissed records the running missed-payment count.
type PaymentMissed struct {
	LoanID uint64
	Count  uint32
}

func (PaymentMissed) EventType() string { return TypePaymentMissed }

func (e PaymentMissed) Event() *types.Event {
	return &types.Event{Type: TypePaymentMissed, Attributes: map[string]string{
		"loanId": formatUint(e.LoanID),
		"count":  formatUint(uint64(e.Count)),
	}}
}

// LoanRepaid is emitted when the outstanding balance reaches zero.
type LoanRepaid struct {
	LoanID       uint64
	CollateralID uint64
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{Type: TypeLoanRepaid, Attributes: map[string]string{
		"loanId":       formatUint(e.LoanID),
		"collateralId": formatUint(e.CollateralID),
	}}
}

// LoanDefaulted is emitted on the transition to Defaulted. The collateral stays
// locked to the loan.
type LoanDefaulted struct {
	LoanID       uint64
	CollateralID uint64
	Outstanding  *big.Int
}

func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

func (e LoanDefaulted) Event() *types.Event {
	return &types.Event{Type: TypeLoanDefaulted, Attributes: map[string]string{
		"loanId":       formatUint(e.LoanID),
		"collateralId": formatUint(e.CollateralID),
		"outstanding":  formatAmount(e.Outstanding),
	}}
}
