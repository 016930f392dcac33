package config

import (
	"math/big"

	"remitlend/crypto"
)

const (
	DefaultAsset       = "USDC"
	DefaultBaseRateBps = uint32(500)
)

// Pool seeds the liquidity pool.
type Pool struct {
	Asset       string `toml:"Asset"`
	BaseRateBps uint32 `toml:"BaseRateBps"`
}

// Loans configures the loan manager.
type Loans struct {
	RequireCoverage bool     `toml:"RequireCoverage"`
	Approvers       []string `toml:"Approvers"`
}

// Verifier lists the oracle operators allowed to attest remittances.
type Verifier struct {
	Operators []string `toml:"Operators"`
}

type Pauses struct {
	Pool       bool `toml:"Pool"`
	Loans      bool `toml:"Loans"`
	Collateral bool `toml:"Collateral"`
	Verifier   bool `toml:"Verifier"`
}

// Allocation credits an account at genesis. Amount is a base-10 integer in
// the asset's smallest unit.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Balance is a parsed allocation.
type Balance struct {
	Address crypto.Address
	Amount  *big.Int
}
