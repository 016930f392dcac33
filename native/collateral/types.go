package collateral

import (
	"math/big"

	"remitlend/crypto"
)

// HistoryWindow is the number of most recent payment records kept per
// credential.
const HistoryWindow = 24

// AdvanceRateBps is the share of appraised value usable as loan principal.
const AdvanceRateBps = 7_000

// Credential is a remittance-history token used as non-liquid collateral.
type Credential struct {
	ID            uint64
	Owner         crypto.Address
	MonthlyAmount *big.Int
	// Score is the reliability score in [0, 100].
	Score                  uint32
	HistoryMonths          uint32
	TotalSent              *big.Int
	LastRemittance         uint64
	LifetimeMissedPayments uint32
	Staked                 bool
	// StakedLoan is the loan the credential is locked to while Staked.
	StakedLoan uint64
}

// PaymentRecord is one month in a credential's rolling history.
type PaymentRecord struct {
	MonthIndex uint32 `json:"monthIndex"`
	Paid       bool   `json:"paid"`
}

// Valuation is the read-only view consumed by the loan manager.
type Valuation struct {
	Owner         crypto.Address
	Score         uint32
	MonthlyAmount *big.Int
	HistoryMonths uint32
	TotalSent     *big.Int
}

// Authorities names the identities allowed to mutate credentials.
type Authorities struct {
	// Verifier mints credentials and records remittances and misses.
	Verifier crypto.Address
	// LoanManager stakes and unstakes credentials.
	LoanManager crypto.Address
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	clone := *c
	clone.MonthlyAmount = copyInt(c.MonthlyAmount)
	clone.TotalSent = copyInt(c.TotalSent)
	return &clone
}

// Valuation projects the fields a lender cares about.
func (c *Credential) Valuation() *Valuation {
	return &Valuation{
		Owner:         c.Owner,
		Score:         c.Score,
		MonthlyAmount: copyInt(c.MonthlyAmount),
		HistoryMonths: c.HistoryMonths,
		TotalSent:     copyInt(c.TotalSent),
	}
}

func (c *Credential) ensureDefaults() {
	if c.MonthlyAmount == nil {
		c.MonthlyAmount = big.NewInt(0)
	}
	if c.TotalSent == nil {
		c.TotalSent = big.NewInt(0)
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
