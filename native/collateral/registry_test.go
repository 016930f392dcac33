package collateral

import (
	"errors"
	"math/big"
	"testing"

	"remitlend/crypto"
	"remitlend/native/common"
)

type mockRegistryState struct {
	auth        *Authorities
	counter     uint64
	credentials map[uint64]*Credential
	history     map[uint64][]PaymentRecord
}

func newMockRegistryState() *mockRegistryState {
	return &mockRegistryState{
		credentials: make(map[uint64]*Credential),
		history:     make(map[uint64][]PaymentRecord),
	}
}

func (m *mockRegistryState) GetCollateralAuthorities() (*Authorities, error) { return m.auth, nil }

func (m *mockRegistryState) PutCollateralAuthorities(auth *Authorities) error {
	m.auth = auth
	return nil
}

func (m *mockRegistryState) NextCredentialID() (uint64, error) {
	m.counter++
	return m.counter, nil
}

func (m *mockRegistryState) GetCredential(id uint64) (*Credential, error) {
	return m.credentials[id].Clone(), nil
}

func (m *mockRegistryState) PutCredential(credential *Credential) error {
	m.credentials[credential.ID] = credential.Clone()
	return nil
}

func (m *mockRegistryState) GetPaymentHistory(id uint64) ([]PaymentRecord, error) {
	return append([]PaymentRecord(nil), m.history[id]...), nil
}

func (m *mockRegistryState) PutPaymentHistory(id uint64, history []PaymentRecord) error {
	m.history[id] = append([]PaymentRecord(nil), history...)
	return nil
}

func addr(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.BytesToAddress(raw)
}

var (
	verifier = addr(0xF0)
	manager  = addr(0xF1)
)

func newTestRegistry(t *testing.T) (*Registry, *mockRegistryState) {
	t.Helper()
	state := newMockRegistryState()
	registry := NewRegistry()
	registry.SetState(state)
	registry.SetTimestamp(1_700_000_000)
	if err := registry.Initialize(verifier, manager); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return registry, state
}

func mintDefault(t *testing.T, registry *Registry, owner crypto.Address, score uint32) uint64 {
	t.Helper()
	id, err := registry.Mint(verifier, owner, big.NewInt(50_000), score, 12, big.NewInt(600_000), nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return id
}

func TestCollateralValueAppliesAdvanceRate(t *testing.T) {
	registry, _ := newTestRegistry(t)
	id := mintDefault(t, registry, addr(1), 95)

	value, err := registry.CollateralValue(id, 12)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	// 50_000 * 12 * 95 / 100 * 70 / 100
	if value.Cmp(big.NewInt(399_000)) != 0 {
		t.Fatalf("unexpected value: %s", value)
	}
	val, err := registry.Valuation(id)
	if err != nil {
		t.Fatalf("valuation: %v", err)
	}
	if val.Owner != addr(1) || val.Score != 95 || val.HistoryMonths != 12 {
		t.Fatalf("unexpected valuation: %+v", val)
	}
}

func TestMintRequiresVerifier(t *testing.T) {
	registry, state := newTestRegistry(t)
	if _, err := registry.Mint(addr(9), addr(1), big.NewInt(1), 50, 1, big.NewInt(1), nil); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := registry.Mint(verifier, addr(1), big.NewInt(1), 101, 1, big.NewInt(1), nil); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected score rejection, got %v", err)
	}
	if len(state.credentials) != 0 {
		t.Fatalf("rejected mint stored a credential")
	}
}

func TestStakeGuards(t *testing.T) {
	registry, state := newTestRegistry(t)
	id := mintDefault(t, registry, addr(1), 80)

	if err := registry.Stake(addr(1), id, 7); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := registry.Unstake(manager, id); !errors.Is(err, common.ErrNotStaked) {
		t.Fatalf("expected not staked, got %v", err)
	}
	if err := registry.Stake(manager, id, 7); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if !state.credentials[id].Staked || state.credentials[id].StakedLoan != 7 {
		t.Fatalf("stake not recorded")
	}
	if err := registry.Stake(manager, id, 8); !errors.Is(err, common.ErrAlreadyStaked) {
		t.Fatalf("expected already staked, got %v", err)
	}
	if err := registry.Unstake(manager, id); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if state.credentials[id].Staked {
		t.Fatalf("unstake not recorded")
	}
	if err := registry.Stake(manager, 99, 1); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemittanceAndMissedPaymentRescore(t *testing.T) {
	registry, state := newTestRegistry(t)
	id := mintDefault(t, registry, addr(1), 100)

	if err := registry.RecordRemittance(verifier, id, big.NewInt(60_000)); err != nil {
		t.Fatalf("record: %v", err)
	}
	credential := state.credentials[id]
	if credential.MonthlyAmount.Cmp(big.NewInt(60_000)) != 0 || credential.TotalSent.Cmp(big.NewInt(660_000)) != 0 {
		t.Fatalf("unexpected amounts: %+v", credential)
	}
	if credential.HistoryMonths != 13 || credential.Score != 100 {
		t.Fatalf("unexpected history/score: %+v", credential)
	}

	if err := registry.MarkPaymentMissed(verifier, id); err != nil {
		t.Fatalf("missed: %v", err)
	}
	credential = state.credentials[id]
	// one paid, one missed: 50 recent, minus 2 for the first lifetime miss
	if credential.Score != 48 || credential.LifetimeMissedPayments != 1 {
		t.Fatalf("unexpected score after miss: %d (missed %d)", credential.Score, credential.LifetimeMissedPayments)
	}
	history, _ := registry.PaymentHistory(id)
	if len(history) != 2 || history[1].Paid || history[1].MonthIndex != 14 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if err := registry.MarkPaymentMissed(addr(3), id); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestHistoryWindowRolls(t *testing.T) {
	registry, state := newTestRegistry(t)
	history := make([]PaymentRecord, HistoryWindow)
	for i := range history {
		history[i] = PaymentRecord{MonthIndex: uint32(i + 1), Paid: i != 0}
	}
	id, err := registry.Mint(verifier, addr(1), big.NewInt(100), 95, HistoryWindow, big.NewInt(2_400), history)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if state.credentials[id].LifetimeMissedPayments != 1 {
		t.Fatalf("expected minted history to seed missed count")
	}
	if err := registry.RecordRemittance(verifier, id, big.NewInt(100)); err != nil {
		t.Fatalf("record: %v", err)
	}
	window := state.history[id]
	if len(window) != HistoryWindow {
		t.Fatalf("window not bounded: %d", len(window))
	}
	if window[0].MonthIndex != 2 || !window[0].Paid {
		t.Fatalf("oldest record not evicted: %+v", window[0])
	}
	// all 24 paid, lifetime penalty of 2 remains
	if state.credentials[id].Score != 98 {
		t.Fatalf("unexpected score: %d", state.credentials[id].Score)
	}
}

func TestLifetimePenaltyTable(t *testing.T) {
	want := map[uint32]uint32{0: 0, 1: 2, 2: 5, 3: 9, 4: 14, 5: 19, 10: 44}
	for missed, penalty := range want {
		if got := LifetimePenalty(missed); got != penalty {
			t.Fatalf("penalty(%d) = %d, want %d", missed, got, penalty)
		}
	}
	if ReliabilityScore([]PaymentRecord{{Paid: false}}, 30) != 0 {
		t.Fatalf("score must floor at zero")
	}
	if HistoryScore(nil) != 100 {
		t.Fatalf("empty history scores 100")
	}
}
