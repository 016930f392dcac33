package bank

import (
	"errors"
	"math/big"
	"testing"

	"remitlend/core/events"
	"remitlend/core/types"
	"remitlend/crypto"
	"remitlend/native/common"
)

type mockLedgerState struct {
	accounts map[crypto.Address]*types.Account
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{accounts: make(map[crypto.Address]*types.Account)}
}

func (m *mockLedgerState) GetAccount(addr crypto.Address) (*types.Account, error) {
	return m.accounts[addr].Clone(), nil
}

func (m *mockLedgerState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

type countingEmitter struct {
	types []string
}

func (c *countingEmitter) Emit(e events.Event) { c.types = append(c.types, e.EventType()) }

func addr(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.BytesToAddress(raw)
}

func TestMintAndTransfer(t *testing.T) {
	state := newMockLedgerState()
	emitter := &countingEmitter{}
	ledger := NewLedger("USDC")
	ledger.SetState(state)
	ledger.SetEmitter(emitter)

	alice, bob := addr(1), addr(2)
	if err := ledger.Mint(alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.BalanceOf(alice)
	bobBal, _ := ledger.BalanceOf(bob)
	if aliceBal.Cmp(big.NewInt(300)) != 0 || bobBal.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
	if state.accounts[alice].Nonce != 1 {
		t.Fatalf("expected sender nonce to advance")
	}
	if len(emitter.types) != 2 || emitter.types[0] != events.TypeMint || emitter.types[1] != events.TypeTransfer {
		t.Fatalf("unexpected events: %v", emitter.types)
	}
}

func TestTransferFailuresLeaveBalances(t *testing.T) {
	state := newMockLedgerState()
	ledger := NewLedger("USDC")
	ledger.SetState(state)
	alice, bob := addr(1), addr(2)
	if err := ledger.Mint(alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(51)); !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(0)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := ledger.Transfer(alice, alice, big.NewInt(1)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected self transfer rejection, got %v", err)
	}
	if _, ok := state.accounts[bob]; ok {
		t.Fatalf("failed transfer created recipient account")
	}
	bal, _ := ledger.BalanceOf(alice)
	if bal.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("balance changed: %s", bal)
	}
}

func TestMintRejectsOverflow(t *testing.T) {
	ledger := NewLedger("USDC")
	ledger.SetState(newMockLedgerState())
	alice := addr(1)
	if err := ledger.Mint(alice, common.MaxAmount); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := ledger.Mint(alice, big.NewInt(1)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}
	if err := ledger.Mint(crypto.Address{}, big.NewInt(1)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected zero address rejection, got %v", err)
	}
}
