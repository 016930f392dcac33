package pool

import (
	"math/big"

	"remitlend/native/common"
)

// accScale is the fixed-point scale of the interest-per-share accumulator.
var accScale = big.NewInt(1_000_000_000)

// interestIndexIncrement returns interest*1e9/liquidity, or zero when there is
// nothing to distribute.
func interestIndexIncrement(interest, liquidity *big.Int) *big.Int {
	if interest == nil || interest.Sign() <= 0 || liquidity == nil || liquidity.Sign() <= 0 {
		return big.NewInt(0)
	}
	inc := new(big.Int).Mul(interest, accScale)
	return inc.Quo(inc, liquidity)
}

// accruedFor is principal*acc/1e9.
func accruedFor(principal, acc *big.Int) *big.Int {
	if principal == nil || principal.Sign() <= 0 || acc == nil || acc.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(principal, acc)
	return out.Quo(out, accScale)
}

// pendingInterest is everything owed to the position beyond its principal.
func pendingInterest(pos *LenderPosition, acc *big.Int) *big.Int {
	pending := accruedFor(pos.Principal, acc)
	pending.Sub(pending, pos.InterestCheckpoint)
	if pending.Sign() < 0 {
		pending.SetInt64(0)
	}
	if pos.UnclaimedInterest != nil {
		pending.Add(pending, pos.UnclaimedInterest)
	}
	return pending
}

// shareBps is principal*10000/liquidity, zero for an empty pool.
func shareBps(principal, liquidity *big.Int) uint32 {
	if liquidity == nil || liquidity.Sign() <= 0 || principal == nil || principal.Sign() <= 0 {
		return 0
	}
	share := new(big.Int).Mul(principal, common.BasisPoints)
	share.Quo(share, liquidity)
	if !share.IsUint64() || share.Uint64() > 10_000 {
		return 10_000
	}
	return uint32(share.Uint64())
}

// utilizationBps is borrowed*10000/liquidity, zero for an empty pool.
func utilizationBps(borrowed, liquidity *big.Int) *big.Int {
	if liquidity == nil || liquidity.Sign() <= 0 || borrowed == nil || borrowed.Sign() <= 0 {
		return big.NewInt(0)
	}
	util := new(big.Int).Mul(borrowed, common.BasisPoints)
	return util.Quo(util, liquidity)
}
