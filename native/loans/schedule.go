package loans

import (
	"math/big"

	"remitlend/native/common"
)

// PaymentInterval is the fixed 30-day step between due dates.
const PaymentInterval uint64 = 30 * 24 * 60 * 60

// APRForScore maps a reliability score to the tiered annual rate. Scores
// above 100 are treated as 100.
func APRForScore(score uint32) uint32 {
	if score > 100 {
		score = 100
	}
	switch {
	case score >= 90:
		return 1_500
	case score >= 80:
		return 2_000
	case score >= 70:
		return 3_000
	default:
		return 4_000
	}
}

// Schedule is the flat repayment plan of a loan.
type Schedule struct {
	TotalInterest  *big.Int
	MonthlyPayment *big.Int
}

// FlatSchedule computes principal*apr*months/120000 of interest spread evenly
// over the term with truncating division.
func FlatSchedule(principal *big.Int, aprBps, months uint32) Schedule {
	if months == 0 {
		return Schedule{TotalInterest: big.NewInt(0), MonthlyPayment: big.NewInt(0)}
	}
	interest := new(big.Int).Mul(common.Copy(principal), new(big.Int).SetUint64(uint64(aprBps)))
	interest.Mul(interest, new(big.Int).SetUint64(uint64(months)))
	interest.Quo(interest, big.NewInt(12*10_000))
	monthly := new(big.Int).Add(common.Copy(principal), interest)
	monthly.Quo(monthly, new(big.Int).SetUint64(uint64(months)))
	return Schedule{TotalInterest: interest, MonthlyPayment: monthly}
}

// MonthlyInterest is outstanding*(apr/12)/10000 using the truncated monthly
// rate.
func MonthlyInterest(outstanding *big.Int, aprBps uint32) *big.Int {
	if outstanding == nil || outstanding.Sign() <= 0 {
		return big.NewInt(0)
	}
	return common.Bps(outstanding, uint64(aprBps/12))
}

// Split divides a payment into the interest and principal it settles. Interest
// is paid first; principal is capped at what is outstanding.
func Split(outstanding *big.Int, aprBps uint32, amount *big.Int) (principal, interest *big.Int) {
	due := MonthlyInterest(outstanding, aprBps)
	interest = common.MinInt(due, amount)
	principal = new(big.Int).Sub(amount, interest)
	if principal.Sign() < 0 {
		principal.SetInt64(0)
	}
	if principal.Cmp(common.Copy(outstanding)) > 0 {
		principal = common.Copy(outstanding)
	}
	return principal, interest
}
