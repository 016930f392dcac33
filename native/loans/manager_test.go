package loans

import (
	"errors"
	"math/big"
	"testing"

	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
)

type mockManagerState struct {
	cfg       *Config
	counter   uint64
	loans     map[uint64]*Loan
	borrowers map[crypto.Address][]uint64
}

func newMockManagerState() *mockManagerState {
	return &mockManagerState{
		loans:     make(map[uint64]*Loan),
		borrowers: make(map[crypto.Address][]uint64),
	}
}

func (m *mockManagerState) GetLoanConfig() (*Config, error) { return m.cfg.Clone(), nil }

func (m *mockManagerState) PutLoanConfig(cfg *Config) error {
	m.cfg = cfg.Clone()
	return nil
}

func (m *mockManagerState) NextLoanID() (uint64, error) {
	m.counter++
	return m.counter, nil
}

func (m *mockManagerState) GetLoan(id uint64) (*Loan, error) { return m.loans[id].Clone(), nil }

func (m *mockManagerState) PutLoan(loan *Loan) error {
	m.loans[loan.ID] = loan.Clone()
	return nil
}

func (m *mockManagerState) GetBorrowerLoans(borrower crypto.Address) ([]uint64, error) {
	return m.borrowers[borrower], nil
}

func (m *mockManagerState) PutBorrowerLoans(borrower crypto.Address, ids []uint64) error {
	m.borrowers[borrower] = ids
	return nil
}

type repayCall struct {
	principal, interest *big.Int
}

type fakePool struct {
	addr      crypto.Address
	borrowErr error
	borrowed  *big.Int
	repays    []repayCall
}

func (p *fakePool) Address() crypto.Address { return p.addr }

func (p *fakePool) Borrow(_ crypto.Address, amount *big.Int, _ crypto.Address, _ uint64) error {
	if p.borrowErr != nil {
		return p.borrowErr
	}
	p.borrowed = new(big.Int).Add(p.borrowed, amount)
	return nil
}

func (p *fakePool) Repay(_ crypto.Address, principal, interest *big.Int, _ uint64) error {
	p.repays = append(p.repays, repayCall{principal: new(big.Int).Set(principal), interest: new(big.Int).Set(interest)})
	p.borrowed = new(big.Int).Sub(p.borrowed, principal)
	return nil
}

type fakeCollateral struct {
	valuations map[uint64]*collateral.Valuation
	staked     map[uint64]bool
}

func (c *fakeCollateral) Valuation(id uint64) (*collateral.Valuation, error) {
	val, ok := c.valuations[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return val, nil
}

func (c *fakeCollateral) CollateralValue(id uint64, months uint32) (*big.Int, error) {
	val, err := c.Valuation(id)
	if err != nil {
		return nil, err
	}
	return collateral.Value(val.MonthlyAmount, months, val.Score), nil
}

func (c *fakeCollateral) Stake(_ crypto.Address, id, _ uint64) error {
	if c.staked[id] {
		return common.ErrAlreadyStaked
	}
	c.staked[id] = true
	return nil
}

func (c *fakeCollateral) Unstake(_ crypto.Address, id uint64) error {
	if !c.staked[id] {
		return common.ErrNotStaked
	}
	c.staked[id] = false
	return nil
}

type fakeBank struct {
	moved *big.Int
}

func (b *fakeBank) Transfer(_, _ crypto.Address, amount *big.Int) error {
	b.moved = new(big.Int).Add(b.moved, amount)
	return nil
}

type fakeMonitor struct {
	watched []uint64
}

func (f *fakeMonitor) StartMonitoring(_ crypto.Address, loanID uint64) error {
	f.watched = append(f.watched, loanID)
	return nil
}

type recordingDefaults struct {
	loans []uint64
}

func (r *recordingDefaults) HandleDefault(loan *Loan) error {
	r.loans = append(r.loans, loan.ID)
	return nil
}

func addr(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.BytesToAddress(raw)
}

var (
	borrower = addr(0x01)
	verifier = addr(0xF0)
	approver = addr(0xF2)
)

type harness struct {
	manager    *Manager
	state      *mockManagerState
	pool       *fakePool
	collateral *fakeCollateral
	bank       *fakeBank
	monitor    *fakeMonitor
	defaults   *recordingDefaults
}

func newHarness(t *testing.T, score uint32) *harness {
	t.Helper()
	h := &harness{
		state: newMockManagerState(),
		pool:  &fakePool{addr: addr(0xA0), borrowed: big.NewInt(0)},
		collateral: &fakeCollateral{
			valuations: map[uint64]*collateral.Valuation{
				1: {Owner: borrower, Score: score, MonthlyAmount: big.NewInt(20_000), HistoryMonths: 24, TotalSent: big.NewInt(480_000)},
			},
			staked: make(map[uint64]bool),
		},
		bank:     &fakeBank{moved: big.NewInt(0)},
		monitor:  &fakeMonitor{},
		defaults: &recordingDefaults{},
	}
	h.manager = NewManager(crypto.ModuleAddress("loans"))
	h.manager.SetState(h.state)
	h.manager.SetPool(h.pool)
	h.manager.SetCollateral(h.collateral)
	h.manager.SetBank(h.bank)
	h.manager.SetMonitor(h.monitor)
	h.manager.SetDefaultHandler(h.defaults)
	h.manager.SetTimestamp(1_700_000_000)
	if err := h.manager.Initialize(Config{Verifier: verifier, Approvers: []crypto.Address{approver}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h
}

func (h *harness) activeLoan(t *testing.T) uint64 {
	t.Helper()
	id, err := h.manager.RequestLoan(borrower, 1, big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.manager.ApproveLoan(approver, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return id
}

func TestRequestLoanComputesFlatSchedule(t *testing.T) {
	h := newHarness(t, 95)
	id, err := h.manager.RequestLoan(borrower, 1, big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	loan, err := h.manager.Loan(id)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	if loan.APRBps != 1_500 {
		t.Fatalf("unexpected apr: %d", loan.APRBps)
	}
	if loan.MonthlyPayment.Cmp(big.NewInt(9_583)) != 0 {
		t.Fatalf("unexpected monthly payment: %s", loan.MonthlyPayment)
	}
	schedule := FlatSchedule(big.NewInt(100_000), 1_500, 12)
	if schedule.TotalInterest.Cmp(big.NewInt(15_000)) != 0 {
		t.Fatalf("unexpected total interest: %s", schedule.TotalInterest)
	}
	if loan.Status != StatusPending || loan.NextDue != 1_700_000_000+PaymentInterval {
		t.Fatalf("unexpected loan: %+v", loan)
	}
	loans, _ := h.manager.LoansByBorrower(borrower)
	if len(loans) != 1 || loans[0].ID != id {
		t.Fatalf("borrower index not updated: %v", loans)
	}
}

func TestRequestLoanValidation(t *testing.T) {
	h := newHarness(t, 75)
	if _, err := h.manager.RequestLoan(addr(0x02), 1, big.NewInt(1_000), 6); !errors.Is(err, common.ErrOwnershipMismatch) {
		t.Fatalf("expected ownership mismatch, got %v", err)
	}
	if _, err := h.manager.RequestLoan(borrower, 1, big.NewInt(0), 6); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := h.manager.RequestLoan(borrower, 1, big.NewInt(1_000), 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	if _, err := h.manager.RequestLoan(borrower, 9, big.NewInt(1_000), 6); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected missing collateral, got %v", err)
	}
	if len(h.state.loans) != 0 {
		t.Fatalf("rejected requests stored loans")
	}
}

func TestRequestLoanCoverageCheck(t *testing.T) {
	h := newHarness(t, 100)
	h.state.cfg.RequireCoverage = true
	// 20_000 * 6 * 100/100 * 70/100 = 84_000
	if _, err := h.manager.RequestLoan(borrower, 1, big.NewInt(84_001), 6); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected coverage rejection, got %v", err)
	}
	if _, err := h.manager.RequestLoan(borrower, 1, big.NewInt(84_000), 6); err != nil {
		t.Fatalf("covered request: %v", err)
	}
}

func TestAPRTiers(t *testing.T) {
	cases := map[uint32]uint32{100: 1_500, 90: 1_500, 89: 2_000, 80: 2_000, 79: 3_000, 70: 3_000, 69: 4_000, 0: 4_000, 250: 1_500}
	for score, want := range cases {
		if got := APRForScore(score); got != want {
			t.Fatalf("APRForScore(%d) = %d, want %d", score, got, want)
		}
	}
}

func TestApproveLoanActivates(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)
	loan, _ := h.manager.Loan(id)
	if loan.Status != StatusActive {
		t.Fatalf("expected active, got %s", loan.Status)
	}
	if h.pool.borrowed.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("pool not drawn: %s", h.pool.borrowed)
	}
	if !h.collateral.staked[1] {
		t.Fatalf("collateral not staked")
	}
	if len(h.monitor.watched) != 1 || h.monitor.watched[0] != id {
		t.Fatalf("loan not monitored: %v", h.monitor.watched)
	}
	if err := h.manager.ApproveLoan(approver, id); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state on second approval, got %v", err)
	}
}

func TestApproveLoanRequiresApprover(t *testing.T) {
	h := newHarness(t, 95)
	id, err := h.manager.RequestLoan(borrower, 1, big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.manager.ApproveLoan(borrower, id); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.manager.ApproveLoan(approver, 42); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApproveLoanPropagatesPoolFailure(t *testing.T) {
	h := newHarness(t, 95)
	id, err := h.manager.RequestLoan(borrower, 1, big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	h.pool.borrowErr = common.ErrMaxUtilizationExceeded
	if err := h.manager.ApproveLoan(approver, id); !errors.Is(err, common.ErrMaxUtilizationExceeded) {
		t.Fatalf("expected pool error, got %v", err)
	}
	if h.state.loans[id].Status != StatusPending {
		t.Fatalf("loan advanced despite pool failure")
	}
}

func TestMakePaymentSplitsInterestFirst(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)

	if err := h.manager.MakePayment(borrower, id, big.NewInt(9_583)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	loan, _ := h.manager.Loan(id)
	if loan.Outstanding.Cmp(big.NewInt(91_667)) != 0 {
		t.Fatalf("unexpected outstanding: %s", loan.Outstanding)
	}
	if loan.TotalRepaid.Cmp(big.NewInt(9_583)) != 0 || loan.PaymentsMade != 1 {
		t.Fatalf("unexpected repayment tally: %+v", loan)
	}
	if loan.NextDue != 1_700_000_000+2*PaymentInterval {
		t.Fatalf("due date not advanced: %d", loan.NextDue)
	}
	if len(h.pool.repays) != 1 {
		t.Fatalf("expected one pool repay, got %d", len(h.pool.repays))
	}
	call := h.pool.repays[0]
	if call.principal.Cmp(big.NewInt(8_333)) != 0 || call.interest.Cmp(big.NewInt(1_250)) != 0 {
		t.Fatalf("unexpected split: principal=%s interest=%s", call.principal, call.interest)
	}
}

func TestMakePaymentBelowInterestStillForwards(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)
	if err := h.manager.MakePayment(borrower, id, big.NewInt(500)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	loan, _ := h.manager.Loan(id)
	if loan.Outstanding.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("interest-only payment reduced principal: %s", loan.Outstanding)
	}
	call := h.pool.repays[0]
	if call.principal.Sign() != 0 || call.interest.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected split: principal=%s interest=%s", call.principal, call.interest)
	}
}

func TestPayoffRepaysAndUnstakes(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)
	if err := h.manager.MakePayment(borrower, id, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	loan, _ := h.manager.Loan(id)
	if loan.Status != StatusRepaid || loan.Outstanding.Sign() != 0 {
		t.Fatalf("expected repaid loan, got %+v", loan)
	}
	// 1_250 interest plus the full principal
	if h.bank.moved.Cmp(big.NewInt(101_250)) != 0 {
		t.Fatalf("overpayment charged: %s", h.bank.moved)
	}
	if h.collateral.staked[1] {
		t.Fatalf("collateral still staked")
	}
	if h.pool.borrowed.Sign() != 0 {
		t.Fatalf("pool books not reconciled: %s", h.pool.borrowed)
	}
	if err := h.manager.MakePayment(borrower, id, big.NewInt(1)); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state on repaid loan, got %v", err)
	}
	if err := h.manager.ApproveLoan(approver, id); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state on approve, got %v", err)
	}
}

func TestMakePaymentChecks(t *testing.T) {
	h := newHarness(t, 95)
	id, err := h.manager.RequestLoan(borrower, 1, big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.manager.MakePayment(borrower, id, big.NewInt(10)); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state on pending loan, got %v", err)
	}
	if err := h.manager.ApproveLoan(approver, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := h.manager.MakePayment(addr(0x09), id, big.NewInt(10)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.manager.MakePayment(borrower, id, big.NewInt(-1)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestAutomaticRepaymentReturnsLeftover(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)

	if _, err := h.manager.ProcessAutomaticRepayment(borrower, id, big.NewInt(20_000)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	leftover, err := h.manager.ProcessAutomaticRepayment(verifier, id, big.NewInt(20_000))
	if err != nil {
		t.Fatalf("auto repay: %v", err)
	}
	if leftover.Cmp(big.NewInt(10_417)) != 0 {
		t.Fatalf("unexpected leftover: %s", leftover)
	}
	leftover, err = h.manager.ProcessAutomaticRepayment(verifier, id, big.NewInt(4_000))
	if err != nil {
		t.Fatalf("partial auto repay: %v", err)
	}
	if leftover.Sign() != 0 {
		t.Fatalf("expected no leftover, got %s", leftover)
	}
	loan, _ := h.manager.Loan(id)
	if loan.PaymentsMade != 2 {
		t.Fatalf("expected two payments, got %d", loan.PaymentsMade)
	}
}

func TestFinalAutomaticRepaymentReturnsUnchargedRemittance(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)
	// 1_250 interest, 98_750 principal
	if err := h.manager.MakePayment(borrower, id, big.NewInt(100_000)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	loan, _ := h.manager.Loan(id)
	if loan.Outstanding.Cmp(big.NewInt(1_250)) != 0 {
		t.Fatalf("unexpected outstanding: %s", loan.Outstanding)
	}

	// monthly 9_583 is capped to 15 interest plus the 1_250 still owed
	leftover, err := h.manager.ProcessAutomaticRepayment(verifier, id, big.NewInt(20_000))
	if err != nil {
		t.Fatalf("auto repay: %v", err)
	}
	if leftover.Cmp(big.NewInt(18_735)) != 0 {
		t.Fatalf("unexpected leftover: %s", leftover)
	}
	loan, _ = h.manager.Loan(id)
	if loan.Status != StatusRepaid || loan.TotalRepaid.Cmp(big.NewInt(101_265)) != 0 {
		t.Fatalf("unexpected final loan: status=%s repaid=%s", loan.Status, loan.TotalRepaid)
	}
	if h.bank.moved.Cmp(big.NewInt(101_265)) != 0 {
		t.Fatalf("borrower charged %s", h.bank.moved)
	}
}

func TestSecondMissDefaults(t *testing.T) {
	h := newHarness(t, 95)
	id := h.activeLoan(t)

	if err := h.manager.MarkPaymentMissed(borrower, id); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.manager.MarkPaymentMissed(verifier, id); err != nil {
		t.Fatalf("first miss: %v", err)
	}
	loan, _ := h.manager.Loan(id)
	if loan.Status != StatusActive || loan.PaymentsMissed != 1 {
		t.Fatalf("unexpected loan after first miss: %+v", loan)
	}
	if err := h.manager.MarkPaymentMissed(verifier, id); err != nil {
		t.Fatalf("second miss: %v", err)
	}
	loan, _ = h.manager.Loan(id)
	if loan.Status != StatusDefaulted {
		t.Fatalf("expected defaulted, got %s", loan.Status)
	}
	if len(h.defaults.loans) != 1 || h.defaults.loans[0] != id {
		t.Fatalf("default handler not invoked: %v", h.defaults.loans)
	}
	if !h.collateral.staked[1] {
		t.Fatalf("collateral must remain locked on default")
	}
	if err := h.manager.MarkPaymentMissed(verifier, id); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state on defaulted loan, got %v", err)
	}
	if err := h.manager.MakePayment(borrower, id, big.NewInt(100)); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state on payment, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusActive, StatusRepaid, StatusDefaulted}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusActive}:   true,
		{StatusActive, StatusRepaid}:    true,
		{StatusActive, StatusDefaulted}: true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]Status{from, to}] {
				t.Fatalf("%s -> %s: got %v", from, to, got)
			}
		}
		parsed, err := ParseStatus(from.String())
		if err != nil || parsed != from {
			t.Fatalf("status %s does not round trip", from)
		}
	}
	if !StatusRepaid.Terminal() || !StatusDefaulted.Terminal() || StatusActive.Terminal() {
		t.Fatalf("unexpected terminal classification")
	}
}
