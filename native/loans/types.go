package loans

import (
	"fmt"
	"math/big"

	"remitlend/crypto"
)

// Status is the lifecycle state of a loan.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusRepaid
	StatusDefaulted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether the loan can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusRepaid, StatusDefaulted:
		return true
	case StatusPending, StatusActive:
		return false
	default:
		return true
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive
	case StatusActive:
		return next == StatusRepaid || next == StatusDefaulted
	case StatusRepaid, StatusDefaulted:
		return false
	default:
		return false
	}
}

// ParseStatus maps the String form back to a Status.
func ParseStatus(raw string) (Status, error) {
	switch raw {
	case "pending":
		return StatusPending, nil
	case "active":
		return StatusActive, nil
	case "repaid":
		return StatusRepaid, nil
	case "defaulted":
		return StatusDefaulted, nil
	default:
		return 0, fmt.Errorf("loans: unknown status %q", raw)
	}
}

// Loan is a single borrower obligation backed by a staked credential.
type Loan struct {
	ID           uint64
	Borrower     crypto.Address
	CollateralID uint64
	Principal    *big.Int
	// Outstanding is the principal still owed.
	Outstanding    *big.Int
	TotalRepaid    *big.Int
	APRBps         uint32
	DurationMonths uint32
	MonthlyPayment *big.Int
	StartTime      uint64
	NextDue        uint64
	Status         Status
	PaymentsMade   uint32
	PaymentsMissed uint32
}

// Config holds the loan manager's registered peers and policy toggles.
type Config struct {
	// Verifier is the only identity allowed to trigger automatic repayments
	// and report missed payments.
	Verifier crypto.Address
	// Approvers may move a pending loan to active.
	Approvers []crypto.Address
	// RequireCoverage rejects requests whose principal exceeds the appraised
	// collateral value.
	RequireCoverage bool
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = copyInt(l.Principal)
	clone.Outstanding = copyInt(l.Outstanding)
	clone.TotalRepaid = copyInt(l.TotalRepaid)
	clone.MonthlyPayment = copyInt(l.MonthlyPayment)
	return &clone
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Approvers = append([]crypto.Address(nil), c.Approvers...)
	return &clone
}

func (c *Config) isApprover(addr crypto.Address) bool {
	for _, approver := range c.Approvers {
		if approver == addr {
			return true
		}
	}
	return false
}

func (l *Loan) ensureDefaults() {
	if l.Principal == nil {
		l.Principal = big.NewInt(0)
	}
	if l.Outstanding == nil {
		l.Outstanding = big.NewInt(0)
	}
	if l.TotalRepaid == nil {
		l.TotalRepaid = big.NewInt(0)
	}
	if l.MonthlyPayment == nil {
		l.MonthlyPayment = big.NewInt(0)
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
