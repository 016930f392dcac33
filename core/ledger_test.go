package core

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"remitlend/config"
	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
	"remitlend/native/loans"
	"remitlend/storage"
)

type captureSink struct {
	seen []events.Event
}

func (c *captureSink) Emit(e events.Event) { c.seen = append(c.seen, e) }

func (c *captureSink) count(kind string) int {
	n := 0
	for _, e := range c.seen {
		if e.EventType() == kind {
			n++
		}
	}
	return n
}

type ledgerFixture struct {
	ledger   *Ledger
	db       *storage.MemDB
	sink     *captureSink
	operator crypto.Address
	lender   crypto.Address
	borrower crypto.Address
	now      time.Time
}

func addr(b byte) crypto.Address {
	var raw [20]byte
	raw[0] = b
	raw[19] = b
	return crypto.BytesToAddress(raw[:])
}

func amount(v int64) *big.Int { return big.NewInt(v) }

func newLedgerFixture(t *testing.T, mutate func(g *config.Genesis)) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		db:       storage.NewMemDB(),
		sink:     &captureSink{},
		operator: addr(0x01),
		lender:   addr(0x02),
		borrower: addr(0x03),
		now:      time.Unix(1_700_000_000, 0),
	}
	g := &config.Genesis{
		Pool:     config.Pool{Asset: "usdc", BaseRateBps: 800},
		Loans:    config.Loans{RequireCoverage: true, Approvers: []string{f.operator.String()}},
		Verifier: config.Verifier{Operators: []string{f.operator.String()}},
		Alloc: []config.Allocation{
			{Address: f.lender.String(), Amount: "1000000"},
			{Address: f.borrower.String(), Amount: "50000"},
		},
	}
	if mutate != nil {
		mutate(g)
	}
	ledger, err := New(f.db, WithEmitter(f.sink), WithPauses(g.PauseSet()), WithClock(func() time.Time { return f.now }))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.Bootstrap(context.Background(), g); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	f.ledger = ledger
	return f
}

func paidHistory(months int) []collateral.PaymentRecord {
	out := make([]collateral.PaymentRecord, months)
	for i := range out {
		out[i] = collateral.PaymentRecord{MonthIndex: uint32(i + 1), Paid: true}
	}
	return out
}

// credential verifies user with a clean history and returns the credential id.
func (f *ledgerFixture) credential(t *testing.T, user crypto.Address, monthly int64) uint64 {
	t.Helper()
	ctx := context.Background()
	if err := f.ledger.RequestVerification(ctx, user, "wise", "acct-"+user.Hex()); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	id, err := f.ledger.SubmitVerification(ctx, f.operator, user, amount(monthly), 20, amount(monthly*20), paidHistory(20))
	if err != nil {
		t.Fatalf("submit verification: %v", err)
	}
	return id
}

func (f *ledgerFixture) balance(t *testing.T, who crypto.Address) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), who)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestLedgerLendingLifecycle(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := context.Background()

	if err := f.ledger.Deposit(ctx, f.lender, amount(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	info, err := f.ledger.LenderInfo(ctx, f.lender)
	if err != nil {
		t.Fatalf("lender info: %v", err)
	}
	if info.Position.ShareBps != 10_000 {
		t.Fatalf("expected full share, got %d", info.Position.ShareBps)
	}

	credID := f.credential(t, f.borrower, 20_000)
	loanID, err := f.ledger.RequestLoan(ctx, f.borrower, credID, amount(100_000), 12)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	loan, err := f.ledger.Loan(ctx, loanID)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	if loan.APRBps != 1_500 || loan.MonthlyPayment.Int64() != 9_583 || loan.Status != loans.StatusPending {
		t.Fatalf("unexpected loan terms: apr=%d monthly=%s status=%s", loan.APRBps, loan.MonthlyPayment, loan.Status)
	}

	if err := f.ledger.ApproveLoan(ctx, f.operator, loanID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	summary, err := f.ledger.Pool(ctx)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if summary.State.TotalBorrowed.Int64() != 100_000 || summary.UtilizationBps != 1_000 {
		t.Fatalf("unexpected pool after approve: borrowed=%s util=%d", summary.State.TotalBorrowed, summary.UtilizationBps)
	}
	if got := f.balance(t, f.borrower); got != 150_000 {
		t.Fatalf("expected borrower funded, got %d", got)
	}
	cred, _, err := f.ledger.Credential(ctx, credID)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if !cred.Staked || cred.StakedLoan != loanID {
		t.Fatalf("expected credential staked to loan %d: %+v", loanID, cred)
	}

	if err := f.ledger.MakePayment(ctx, f.borrower, loanID, amount(9_583)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	loan, _ = f.ledger.Loan(ctx, loanID)
	if loan.Outstanding.Int64() != 91_667 {
		t.Fatalf("expected outstanding 91667, got %s", loan.Outstanding)
	}

	f.now = f.now.Add(30 * 24 * time.Hour)
	leftover, err := f.ledger.ReportRemittance(ctx, f.operator, f.borrower, credID, amount(20_000), loanID, "wise-tx-1")
	if err != nil {
		t.Fatalf("report remittance: %v", err)
	}
	if leftover.Int64() != 10_417 {
		t.Fatalf("expected leftover 10417, got %s", leftover)
	}
	loan, _ = f.ledger.Loan(ctx, loanID)
	if loan.Outstanding.Int64() != 83_229 || loan.PaymentsMade != 2 {
		t.Fatalf("unexpected loan after remittance: outstanding=%s made=%d", loan.Outstanding, loan.PaymentsMade)
	}
	if got := f.balance(t, f.borrower); got != 130_834 {
		t.Fatalf("unexpected borrower balance %d", got)
	}
	if got := f.balance(t, f.ledger.Modules().Pool); got != 919_166 {
		t.Fatalf("unexpected pool balance %d", got)
	}

	if _, err := f.ledger.ReportRemittance(ctx, f.operator, f.borrower, credID, amount(20_000), loanID, "wise-tx-1"); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected replay rejected, got %v", err)
	}
	loan, _ = f.ledger.Loan(ctx, loanID)
	if loan.PaymentsMade != 2 {
		t.Fatalf("replay must not book a payment, made=%d", loan.PaymentsMade)
	}

	info, err = f.ledger.LenderInfo(ctx, f.lender)
	if err != nil {
		t.Fatalf("lender info: %v", err)
	}
	if info.Pending.Int64() != 2_395 {
		t.Fatalf("expected pending interest 2395, got %s", info.Pending)
	}
	claimed, err := f.ledger.ClaimInterest(ctx, f.lender)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Int64() != 2_395 || f.balance(t, f.lender) != 2_395 {
		t.Fatalf("unexpected claim %s balance %d", claimed, f.balance(t, f.lender))
	}

	loansByBorrower, err := f.ledger.LoansByBorrower(ctx, f.borrower)
	if err != nil || len(loansByBorrower) != 1 || loansByBorrower[0].ID != loanID {
		t.Fatalf("unexpected borrower index %v %v", loansByBorrower, err)
	}
}

func TestLedgerRejectsRemittanceFromAnotherBorrower(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := context.Background()
	other := addr(0x04)
	if err := f.ledger.Deposit(ctx, f.lender, amount(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	credID := f.credential(t, f.borrower, 20_000)
	otherCred := f.credential(t, other, 20_000)
	loanID, err := f.ledger.RequestLoan(ctx, f.borrower, credID, amount(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := f.ledger.ApproveLoan(ctx, f.operator, loanID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	before := f.balance(t, f.borrower)

	if _, err := f.ledger.ReportRemittance(ctx, f.operator, other, otherCred, amount(9_583), loanID, "wise-x-1"); !errors.Is(err, common.ErrOwnershipMismatch) {
		t.Fatalf("expected ownership mismatch, got %v", err)
	}
	if got := f.balance(t, f.borrower); got != before {
		t.Fatalf("borrower debited by a foreign report: %d -> %d", before, got)
	}
	cred, _, err := f.ledger.Credential(ctx, otherCred)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.HistoryMonths != 20 {
		t.Fatalf("foreign report must not extend history, months=%d", cred.HistoryMonths)
	}
	loan, _ := f.ledger.Loan(ctx, loanID)
	if loan.PaymentsMade != 0 {
		t.Fatalf("foreign report booked a payment, made=%d", loan.PaymentsMade)
	}
}

func TestLedgerSecondMissDefaultsAndRollsBackLateReports(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := context.Background()
	if err := f.ledger.Deposit(ctx, f.lender, amount(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	credID := f.credential(t, f.borrower, 20_000)
	loanID, err := f.ledger.RequestLoan(ctx, f.borrower, credID, amount(100_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := f.ledger.ApproveLoan(ctx, f.operator, loanID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.ledger.ReportMissedPayment(ctx, f.operator, loanID, credID); err != nil {
			t.Fatalf("miss %d: %v", i+1, err)
		}
	}
	loan, _ := f.ledger.Loan(ctx, loanID)
	if loan.Status != loans.StatusDefaulted || loan.PaymentsMissed != 2 {
		t.Fatalf("expected default after second miss: %+v", loan)
	}
	if f.sink.count(events.TypeLoanDefaulted) != 1 {
		t.Fatalf("expected one default event")
	}

	if err := f.ledger.ReportMissedPayment(ctx, f.operator, loanID, credID); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("expected invalid state for defaulted loan, got %v", err)
	}
	cred, _, err := f.ledger.Credential(ctx, credID)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.LifetimeMissedPayments != 2 {
		t.Fatalf("failed report must not touch the credential, misses=%d", cred.LifetimeMissedPayments)
	}
	if !cred.Staked {
		t.Fatalf("defaulted collateral stays staked")
	}
}

func TestLedgerApproveFailureLeavesNoTrace(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := context.Background()
	if err := f.ledger.Deposit(ctx, f.lender, amount(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	credID := f.credential(t, f.borrower, 200_000)
	loanID, err := f.ledger.RequestLoan(ctx, f.borrower, credID, amount(950_000), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	before := len(f.sink.seen)

	if err := f.ledger.ApproveLoan(ctx, f.operator, loanID); !errors.Is(err, common.ErrMaxUtilizationExceeded) {
		t.Fatalf("expected utilisation cap, got %v", err)
	}
	if len(f.sink.seen) != before {
		t.Fatalf("failed call must not publish events")
	}
	cred, _, _ := f.ledger.Credential(ctx, credID)
	if cred.Staked {
		t.Fatalf("stake must roll back with the failed borrow")
	}
	loan, _ := f.ledger.Loan(ctx, loanID)
	if loan.Status != loans.StatusPending {
		t.Fatalf("expected loan still pending, got %s", loan.Status)
	}
	summary, _ := f.ledger.Pool(ctx)
	if summary.State.TotalBorrowed.Sign() != 0 {
		t.Fatalf("expected nothing borrowed, got %s", summary.State.TotalBorrowed)
	}
	if got := f.balance(t, f.borrower); got != 50_000 {
		t.Fatalf("borrower balance changed: %d", got)
	}
}

func TestLedgerRejectsBadCalls(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := context.Background()

	if err := f.ledger.Deposit(ctx, f.lender, amount(0)); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := f.ledger.Deposit(ctx, f.borrower, amount(60_000)); !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := f.ledger.Withdraw(ctx, f.lender, amount(1)); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected unknown lender, got %v", err)
	}
	if _, err := f.ledger.Loan(ctx, 42); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected missing loan, got %v", err)
	}
	if _, err := f.ledger.SubmitVerification(ctx, f.borrower, f.borrower, amount(1), 1, amount(1), nil); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected non-operator rejected, got %v", err)
	}
	if _, err := f.ledger.CollateralValue(ctx, 1, 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected zero duration rejected, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := f.ledger.Deposit(cancelled, f.lender, amount(10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled context, got %v", err)
	}
}

func TestLedgerHonoursPauses(t *testing.T) {
	f := newLedgerFixture(t, func(g *config.Genesis) { g.Pauses.Loans = true })
	ctx := context.Background()
	credID := f.credential(t, f.borrower, 20_000)
	if _, err := f.ledger.RequestLoan(ctx, f.borrower, credID, amount(10_000), 6); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected paused loans module, got %v", err)
	}
	if err := f.ledger.Deposit(ctx, f.lender, amount(10)); err != nil {
		t.Fatalf("pool must stay open: %v", err)
	}
}

func TestLedgerReopenKeepsState(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx := context.Background()
	if err := f.ledger.Deposit(ctx, f.lender, amount(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	reopened, err := New(f.db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Asset() != "USDC" {
		t.Fatalf("expected asset restored, got %q", reopened.Asset())
	}
	summary, err := reopened.Pool(ctx)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if summary.State.TotalLiquidity.Int64() != 500 {
		t.Fatalf("unexpected liquidity %s", summary.State.TotalLiquidity)
	}
	g := &config.Genesis{Verifier: config.Verifier{Operators: []string{f.operator.String()}}}
	if err := reopened.Bootstrap(ctx, g); !errors.Is(err, common.ErrAlreadyInitialized) {
		t.Fatalf("expected second bootstrap refused, got %v", err)
	}
}
