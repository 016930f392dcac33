package bank

import (
	"errors"
	"fmt"
	"math/big"

	"remitlend/core/events"
	"remitlend/core/types"
	"remitlend/crypto"
	"remitlend/native/common"
)

var errNilState = errors.New("bank: state not configured")

type ledgerState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Ledger keeps single-asset balances. Every movement is checked before either
// side is written so a failed transfer leaves both accounts untouched.
type Ledger struct {
	state   ledgerState
	asset   string
	emitter events.Emitter
}

// NewLedger returns a ledger for the named asset.
func NewLedger(asset string) *Ledger {
	return &Ledger{asset: asset, emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to persistence.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures where transfer events are published.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// Asset returns the symbol this ledger tracks.
func (l *Ledger) Asset() string { return l.asset }

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("%w: self transfer", common.ErrInvalidAmount)
	}
	sender, err := l.load(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return common.ErrInsufficientBalance
	}
	recipient, err := l.load(to)
	if err != nil {
		return err
	}
	credited, err := common.CheckedAdd(recipient.Balance, amount)
	if err != nil {
		return err
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	sender.Nonce++
	recipient.Balance = credited

	if err := l.state.PutAccount(from, sender); err != nil {
		return err
	}
	if err := l.state.PutAccount(to, recipient); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: l.asset, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Mint credits new units to an account. It backs genesis allocations and the
// admin faucet.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("%w: mint to zero address", common.ErrInvalidAmount)
	}
	account, err := l.load(to)
	if err != nil {
		return err
	}
	balance, err := common.CheckedAdd(account.Balance, amount)
	if err != nil {
		return err
	}
	account.Balance = balance
	if err := l.state.PutAccount(to, account); err != nil {
		return err
	}
	l.emitter.Emit(events.Mint{Asset: l.asset, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// BalanceOf returns the current balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	account, err := l.load(addr)
	if err != nil {
		return nil, err
	}
	return account.Balance, nil
}

func (l *Ledger) load(addr crypto.Address) (*types.Account, error) {
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	account = account.Clone()
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}
