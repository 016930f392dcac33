package state

import (
	"fmt"
	"math/big"

	"remitlend/native/common"
)

// amount is the stored form of a signed 128-bit value. RLP only encodes
// non-negative integers, so the sign travels separately.
type amount struct {
	Neg bool
	Abs *big.Int
}

func encodeAmount(v *big.Int) amount {
	if v == nil {
		return amount{Abs: big.NewInt(0)}
	}
	return amount{Neg: v.Sign() < 0, Abs: new(big.Int).Abs(v)}
}

func (a amount) decode() (*big.Int, error) {
	out := new(big.Int)
	if a.Abs != nil {
		out.Set(a.Abs)
	}
	if a.Neg {
		out.Neg(out)
	}
	if !common.InRange(out) {
		return nil, fmt.Errorf("state: stored amount %s outside 128-bit range", out)
	}
	return out, nil
}

// amountDecoder decodes several amounts and keeps the first error.
type amountDecoder struct {
	err error
}

func (d *amountDecoder) amount(a amount) *big.Int {
	if d.err != nil {
		return nil
	}
	v, err := a.decode()
	if err != nil {
		d.err = err
		return nil
	}
	return v
}
