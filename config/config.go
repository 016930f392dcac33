package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"remitlend/crypto"
	"remitlend/native/common"
)

// Genesis describes the protocol parameters and balances a fresh ledger is
// bootstrapped with.
type Genesis struct {
	Pool     Pool         `toml:"Pool"`
	Loans    Loans        `toml:"Loans"`
	Verifier Verifier     `toml:"Verifier"`
	Pauses   Pauses       `toml:"Pauses"`
	Alloc    []Allocation `toml:"Alloc"`
}

// LoadGenesis loads the genesis document from path. A missing file is created
// with defaults so a development ledger can start without preparation.
func LoadGenesis(path string) (*Genesis, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("genesis %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	g.EnsureDefaults()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// EnsureDefaults fills zero-valued knobs.
func (g *Genesis) EnsureDefaults() {
	if g == nil {
		return
	}
	g.Pool.Asset = strings.ToUpper(strings.TrimSpace(g.Pool.Asset))
	if g.Pool.Asset == "" {
		g.Pool.Asset = DefaultAsset
	}
	if g.Pool.BaseRateBps == 0 {
		g.Pool.BaseRateBps = DefaultBaseRateBps
	}
	if g.Loans.Approvers == nil {
		g.Loans.Approvers = []string{}
	}
	if g.Verifier.Operators == nil {
		g.Verifier.Operators = []string{}
	}
}

// ApproverAddresses parses the configured loan approvers.
func (g *Genesis) ApproverAddresses() ([]crypto.Address, error) {
	return parseAddresses("loans.approvers", g.Loans.Approvers)
}

// OperatorAddresses parses the configured oracle operators.
func (g *Genesis) OperatorAddresses() ([]crypto.Address, error) {
	return parseAddresses("verifier.operators", g.Verifier.Operators)
}

// PauseSet converts the pause toggles into the view consumed by module guards.
func (g *Genesis) PauseSet() common.StaticPauses {
	return common.StaticPauses{
		"pool":       g.Pauses.Pool,
		"loans":      g.Pauses.Loans,
		"collateral": g.Pauses.Collateral,
		"verifier":   g.Pauses.Verifier,
	}
}

// Balances parses the allocation table.
func (g *Genesis) Balances() ([]Balance, error) {
	out := make([]Balance, 0, len(g.Alloc))
	for i, alloc := range g.Alloc {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("alloc[%d]: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("alloc[%d]: amount %q must be a positive integer", i, alloc.Amount)
		}
		out = append(out, Balance{Address: addr, Amount: amount})
	}
	return out, nil
}

func parseAddresses(field string, raw []string) ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(raw))
	for i, entry := range raw {
		addr, err := crypto.ParseAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// createDefault creates and saves a default genesis file. A fresh operator
// key is written next to it and registered as the only oracle operator and
// loan approver.
func createDefault(path string) (*Genesis, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(DefaultOperatorKeystorePath(path), key, ""); err != nil {
		return nil, err
	}
	operator := key.PubKey().Address().String()

	g := &Genesis{}
	g.Loans.RequireCoverage = true
	g.Loans.Approvers = []string{operator}
	g.Verifier.Operators = []string{operator}
	g.EnsureDefaults()
	if err := persist(path, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DefaultOperatorKeystorePath is where createDefault stores the generated
// operator key for the genesis at genesisPath.
func DefaultOperatorKeystorePath(genesisPath string) string {
	dir := filepath.Dir(genesisPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}

func persist(path string, g *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(g)
}
