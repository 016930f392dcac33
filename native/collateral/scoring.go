package collateral

import (
	"math/big"

	"remitlend/native/common"
)

// HistoryScore is paid*100/total over the supplied records, 100 for an empty
// history.
func HistoryScore(history []PaymentRecord) uint32 {
	if len(history) == 0 {
		return 100
	}
	var paid uint32
	for _, record := range history {
		if record.Paid {
			paid++
		}
	}
	return paid * 100 / uint32(len(history))
}

// LifetimePenalty grows with every missed payment: 2, 3 and 4 points for the
// first three, then 5 for each one after.
func LifetimePenalty(missed uint32) uint32 {
	switch missed {
	case 0:
		return 0
	case 1:
		return 2
	case 2:
		return 5
	case 3:
		return 9
	default:
		return 9 + (missed-3)*5
	}
}

// ReliabilityScore combines the rolling history with the lifetime penalty.
func ReliabilityScore(history []PaymentRecord, lifetimeMissed uint32) uint32 {
	recent := HistoryScore(history)
	penalty := LifetimePenalty(lifetimeMissed)
	if recent > penalty {
		return recent - penalty
	}
	return 0
}

// CountMissed returns the number of unpaid records.
func CountMissed(history []PaymentRecord) uint32 {
	var missed uint32
	for _, record := range history {
		if !record.Paid {
			missed++
		}
	}
	return missed
}

// Value computes monthly*months*score/100*70/100, truncating at each step.
func Value(monthly *big.Int, months uint32, score uint32) *big.Int {
	base := new(big.Int).Mul(common.Copy(monthly), new(big.Int).SetUint64(uint64(months)))
	adjusted := base.Mul(base, new(big.Int).SetUint64(uint64(score)))
	adjusted.Quo(adjusted, big.NewInt(100))
	return common.Bps(adjusted, AdvanceRateBps)
}

func appendRecord(history []PaymentRecord, record PaymentRecord) []PaymentRecord {
	out := make([]PaymentRecord, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, record)
	if len(out) > HistoryWindow {
		out = out[len(out)-HistoryWindow:]
	}
	return out
}
