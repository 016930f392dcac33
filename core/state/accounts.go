package state

import (
	"remitlend/core/types"
	"remitlend/crypto"
)

const accountPrefix = "account/"

type storedAccount struct {
	Balance amount
	Nonce   uint64
}

func accountKey(addr crypto.Address) []byte {
	return append([]byte(accountPrefix), addr.Bytes()...)
}

// GetAccount returns the asset account of addr, nil if it was never written.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	var d amountDecoder
	account := &types.Account{Balance: d.amount(stored.Balance), Nonce: stored.Nonce}
	return account, d.err
}

// PutAccount stores the asset account of addr.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	return m.KVPut(accountKey(addr), storedAccount{
		Balance: encodeAmount(account.Balance),
		Nonce:   account.Nonce,
	})
}
