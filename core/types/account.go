package types

import "math/big"

// Account is the asset-ledger record for a single address. Balances are in the
// pooled asset's smallest unit.
type Account struct {
	Balance *big.Int `json:"balance"`
	// Nonce counts committed outgoing transfers.
	Nonce uint64 `json:"nonce"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
