package pool

import (
	"math/big"

	"remitlend/crypto"
)

// DefaultMaxUtilizationBps caps borrowing at 90% of pooled liquidity.
const DefaultMaxUtilizationBps uint32 = 9_000

// State captures the global accounting state of the liquidity pool. Amounts
// are signed 128-bit values in the asset's smallest unit held as big integers.
type State struct {
	// TotalLiquidity is the sum of every lender's principal.
	TotalLiquidity *big.Int
	// TotalBorrowed is the principal currently lent out to active loans.
	TotalBorrowed *big.Int
	// TotalInterestEarned accumulates every interest payment booked by repay.
	TotalInterestEarned *big.Int
	// TotalInterestPaid accumulates interest settled out to lenders.
	TotalInterestPaid *big.Int
	// AccInterestPerShare is the running interest per unit of principal,
	// scaled by 1e9.
	AccInterestPerShare *big.Int
	// BaseRateBps is the advertised base lending rate in basis points.
	BaseRateBps uint32
	// MaxUtilizationBps bounds TotalBorrowed/TotalLiquidity.
	MaxUtilizationBps uint32
	// LoanManager is the only identity allowed to borrow and repay.
	LoanManager crypto.Address
	// Asset names the pooled asset.
	Asset string
}

// LenderPosition maintains the pool position of an individual lender.
type LenderPosition struct {
	Lender crypto.Address
	// Principal is the amount deposited and not yet withdrawn.
	Principal *big.Int
	// DepositTimestamp is the unix time the position was (re)opened.
	DepositTimestamp uint64
	// InterestCheckpoint is Principal*AccInterestPerShare/1e9 at the last
	// principal change; interest above it is owed to the lender.
	InterestCheckpoint *big.Int
	// UnclaimedInterest carries interest settled during a deposit, payable on
	// the next withdraw or claim.
	UnclaimedInterest *big.Int
	// ShareBps is the lender's share of total liquidity in basis points.
	ShareBps uint32
}

// Clone returns a deep copy of the pool state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalLiquidity = copyInt(s.TotalLiquidity)
	clone.TotalBorrowed = copyInt(s.TotalBorrowed)
	clone.TotalInterestEarned = copyInt(s.TotalInterestEarned)
	clone.TotalInterestPaid = copyInt(s.TotalInterestPaid)
	clone.AccInterestPerShare = copyInt(s.AccInterestPerShare)
	return &clone
}

// Clone returns a deep copy of the lender position.
func (p *LenderPosition) Clone() *LenderPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Principal = copyInt(p.Principal)
	clone.InterestCheckpoint = copyInt(p.InterestCheckpoint)
	clone.UnclaimedInterest = copyInt(p.UnclaimedInterest)
	return &clone
}

func (s *State) ensureDefaults() {
	if s.TotalLiquidity == nil {
		s.TotalLiquidity = big.NewInt(0)
	}
	if s.TotalBorrowed == nil {
		s.TotalBorrowed = big.NewInt(0)
	}
	if s.TotalInterestEarned == nil {
		s.TotalInterestEarned = big.NewInt(0)
	}
	if s.TotalInterestPaid == nil {
		s.TotalInterestPaid = big.NewInt(0)
	}
	if s.AccInterestPerShare == nil {
		s.AccInterestPerShare = big.NewInt(0)
	}
	if s.MaxUtilizationBps == 0 {
		s.MaxUtilizationBps = DefaultMaxUtilizationBps
	}
}

func (p *LenderPosition) ensureDefaults() {
	if p.Principal == nil {
		p.Principal = big.NewInt(0)
	}
	if p.InterestCheckpoint == nil {
		p.InterestCheckpoint = big.NewInt(0)
	}
	if p.UnclaimedInterest == nil {
		p.UnclaimedInterest = big.NewInt(0)
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
