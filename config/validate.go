package config

import (
	"fmt"
	"strings"
)

// MaxBaseRateBps bounds the advertised base rate.
var MaxBaseRateBps = uint32(10_000)

func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis: nil")
	}
	if strings.TrimSpace(g.Pool.Asset) == "" {
		return fmt.Errorf("pool: asset required")
	}
	if g.Pool.BaseRateBps > MaxBaseRateBps {
		return fmt.Errorf("pool: base_rate_bps %d above %d", g.Pool.BaseRateBps, MaxBaseRateBps)
	}
	if _, err := g.ApproverAddresses(); err != nil {
		return err
	}
	operators, err := g.OperatorAddresses()
	if err != nil {
		return err
	}
	if len(operators) == 0 {
		return fmt.Errorf("verifier: at least one operator required")
	}
	seen := make(map[string]struct{}, len(operators))
	for _, op := range operators {
		key := op.Hex()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("verifier: duplicate operator %s", op)
		}
		seen[key] = struct{}{}
	}
	if _, err := g.Balances(); err != nil {
		return err
	}
	return nil
}
