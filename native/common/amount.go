package common

import (
	"fmt"
	"math/big"
)

var (
	// MaxAmount and MinAmount bound every monetary value to a signed 128-bit
	// integer in the asset's smallest unit.
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	MinAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))

	// BasisPoints is 100% expressed in basis points.
	BasisPoints = big.NewInt(10_000)
)

// InRange reports whether v fits the signed 128-bit amount domain.
func InRange(v *big.Int) bool {
	if v == nil {
		return false
	}
	return v.Cmp(MinAmount) >= 0 && v.Cmp(MaxAmount) <= 0
}

// RequirePositive validates a caller supplied amount.
func RequirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !InRange(amount) {
		return fmt.Errorf("%w: exceeds 128-bit range", ErrInvalidAmount)
	}
	return nil
}

// RequireNonNegative validates an amount that may legitimately be zero.
func RequireNonNegative(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if !InRange(amount) {
		return fmt.Errorf("%w: exceeds 128-bit range", ErrInvalidAmount)
	}
	return nil
}

// CheckedAdd returns a+b or ErrInvalidAmount when the sum leaves the amount domain.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(zeroIfNil(a), zeroIfNil(b))
	if !InRange(sum) {
		return nil, fmt.Errorf("%w: overflow", ErrInvalidAmount)
	}
	return sum, nil
}

// Copy returns a detached copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	return new(big.Int).Set(zeroIfNil(v))
}

// MinInt returns the smaller of a and b as a fresh value.
func MinInt(a, b *big.Int) *big.Int {
	if zeroIfNil(a).Cmp(zeroIfNil(b)) <= 0 {
		return Copy(a)
	}
	return Copy(b)
}

// Bps computes value*bps/10000 with truncation toward zero.
func Bps(value *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(zeroIfNil(value), new(big.Int).SetUint64(bps))
	return out.Quo(out, BasisPoints)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
