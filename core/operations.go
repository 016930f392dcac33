package core

import (
	"context"
	"fmt"
	"math/big"

	"remitlend/config"
	"remitlend/core/state"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
	"remitlend/native/loans"
	"remitlend/native/pool"
	"remitlend/native/verifier"
)

// PoolSummary is the pool state together with its derived figures.
type PoolSummary struct {
	State          *pool.State
	Available      *big.Int
	UtilizationBps uint32
}

// LenderSummary is a lender position with the interest a claim would pay now.
type LenderSummary struct {
	Position *pool.LenderPosition
	Pending  *big.Int
}

// Bootstrap initialises every module from genesis and credits the
// allocations. It fails with ErrAlreadyInitialized on a bootstrapped ledger.
func (l *Ledger) Bootstrap(ctx context.Context, g *config.Genesis) error {
	if g == nil {
		return fmt.Errorf("ledger: genesis required")
	}
	g.EnsureDefaults()
	if err := g.Validate(); err != nil {
		return err
	}
	approvers, err := g.ApproverAddresses()
	if err != nil {
		return err
	}
	operators, err := g.OperatorAddresses()
	if err != nil {
		return err
	}
	balances, err := g.Balances()
	if err != nil {
		return err
	}
	previous := l.asset
	err = l.execute(ctx, "bootstrap", func(s *session) error {
		if err := s.pool.Initialize(l.modules.Loans, g.Pool.Asset, g.Pool.BaseRateBps); err != nil {
			return fmt.Errorf("pool: %w", err)
		}
		if err := s.collateral.Initialize(l.modules.Verifier, l.modules.Loans); err != nil {
			return fmt.Errorf("collateral: %w", err)
		}
		if err := s.loans.Initialize(loans.Config{
			Verifier:        l.modules.Verifier,
			Approvers:       approvers,
			RequireCoverage: g.Loans.RequireCoverage,
		}); err != nil {
			return fmt.Errorf("loans: %w", err)
		}
		if err := s.verifier.Initialize(verifier.Config{
			Operators:   operators,
			LoanManager: l.modules.Loans,
		}); err != nil {
			return fmt.Errorf("verifier: %w", err)
		}
		for _, balance := range balances {
			if err := s.bank.Mint(balance.Address, balance.Amount); err != nil {
				return fmt.Errorf("alloc %s: %w", balance.Address, err)
			}
		}
		if err := s.manager.SetStateVersion(state.StateVersion); err != nil {
			return err
		}
		l.asset = g.Pool.Asset
		return nil
	})
	if err != nil {
		l.asset = previous
	}
	return err
}

// Mint credits to from nowhere. The HTTP layer restricts it to admins.
func (l *Ledger) Mint(ctx context.Context, to crypto.Address, amount *big.Int) error {
	return l.execute(ctx, "mint", func(s *session) error {
		return s.bank.Mint(to, amount)
	})
}

func (l *Ledger) BalanceOf(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := l.view(ctx, func(s *session) error {
		balance, err := s.bank.BalanceOf(addr)
		out = balance
		return err
	})
	return out, err
}

// Deposit moves amount from lender into the pool.
func (l *Ledger) Deposit(ctx context.Context, lender crypto.Address, amount *big.Int) error {
	return l.execute(ctx, "deposit", func(s *session) error {
		return s.pool.Deposit(lender, amount)
	})
}

// Withdraw returns principal plus settled interest to lender and reports the
// interest part.
func (l *Ledger) Withdraw(ctx context.Context, lender crypto.Address, amount *big.Int) (*big.Int, error) {
	var interest *big.Int
	err := l.execute(ctx, "withdraw", func(s *session) error {
		paid, err := s.pool.Withdraw(lender, amount)
		interest = paid
		return err
	})
	return interest, err
}

func (l *Ledger) ClaimInterest(ctx context.Context, lender crypto.Address) (*big.Int, error) {
	var interest *big.Int
	err := l.execute(ctx, "claim_interest", func(s *session) error {
		paid, err := s.pool.ClaimInterest(lender)
		interest = paid
		return err
	})
	return interest, err
}

func (l *Ledger) Pool(ctx context.Context) (*PoolSummary, error) {
	out := &PoolSummary{}
	err := l.view(ctx, func(s *session) error {
		st, err := s.pool.Pool()
		if err != nil {
			return err
		}
		available, err := s.pool.AvailableLiquidity()
		if err != nil {
			return err
		}
		util, err := s.pool.UtilizationRate()
		if err != nil {
			return err
		}
		out.State, out.Available, out.UtilizationBps = st, available, util
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) LenderInfo(ctx context.Context, lender crypto.Address) (*LenderSummary, error) {
	out := &LenderSummary{}
	err := l.view(ctx, func(s *session) error {
		position, err := s.pool.LenderInfo(lender)
		if err != nil {
			return err
		}
		pending, err := s.pool.PendingInterest(lender)
		if err != nil {
			return err
		}
		out.Position, out.Pending = position, pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequestLoan records a pending loan for borrower against its credential.
func (l *Ledger) RequestLoan(ctx context.Context, borrower crypto.Address, collateralID uint64, amount *big.Int, months uint32) (uint64, error) {
	var id uint64
	err := l.execute(ctx, "request_loan", func(s *session) error {
		loanID, err := s.loans.RequestLoan(borrower, collateralID, amount, months)
		id = loanID
		return err
	})
	return id, err
}

// ApproveLoan stakes the collateral, funds the borrower from the pool and
// starts remittance monitoring in one atomic step.
func (l *Ledger) ApproveLoan(ctx context.Context, caller crypto.Address, loanID uint64) error {
	return l.execute(ctx, "approve_loan", func(s *session) error {
		return s.loans.ApproveLoan(caller, loanID)
	})
}

func (l *Ledger) MakePayment(ctx context.Context, caller crypto.Address, loanID uint64, amount *big.Int) error {
	return l.execute(ctx, "make_payment", func(s *session) error {
		return s.loans.MakePayment(caller, loanID, amount)
	})
}

func (l *Ledger) Loan(ctx context.Context, loanID uint64) (*loans.Loan, error) {
	var out *loans.Loan
	err := l.view(ctx, func(s *session) error {
		loan, err := s.loans.Loan(loanID)
		out = loan
		return err
	})
	return out, err
}

func (l *Ledger) LoansByBorrower(ctx context.Context, borrower crypto.Address) ([]*loans.Loan, error) {
	var out []*loans.Loan
	err := l.view(ctx, func(s *session) error {
		list, err := s.loans.LoansByBorrower(borrower)
		out = list
		return err
	})
	return out, err
}

func (l *Ledger) RequestVerification(ctx context.Context, user crypto.Address, provider, accountID string) error {
	return l.execute(ctx, "request_verification", func(s *session) error {
		return s.verifier.RequestVerification(user, provider, accountID)
	})
}

// SubmitVerification scores the attested history and mints the user's
// credential. It returns the credential id.
func (l *Ledger) SubmitVerification(ctx context.Context, operator, user crypto.Address, monthly *big.Int, historyMonths uint32, totalSent *big.Int, history []collateral.PaymentRecord) (uint64, error) {
	var id uint64
	err := l.execute(ctx, "submit_verification", func(s *session) error {
		credentialID, err := s.verifier.SubmitVerification(operator, user, monthly, historyMonths, totalSent, history)
		id = credentialID
		return err
	})
	return id, err
}

func (l *Ledger) RejectVerification(ctx context.Context, operator, user crypto.Address, reason string) error {
	return l.execute(ctx, "reject_verification", func(s *session) error {
		return s.verifier.RejectVerification(operator, user, reason)
	})
}

func (l *Ledger) Verification(ctx context.Context, user crypto.Address) (*verifier.Request, error) {
	var out *verifier.Request
	err := l.view(ctx, func(s *session) error {
		req, err := s.verifier.Verification(user)
		out = req
		return err
	})
	return out, err
}

func (l *Ledger) StartMonitoring(ctx context.Context, caller crypto.Address, loanID uint64) error {
	return l.execute(ctx, "start_monitoring", func(s *session) error {
		return s.verifier.StartMonitoring(caller, loanID)
	})
}

// ReportRemittance records an observed remittance and applies it to the loan.
// It returns the part of the remittance the loan did not consume.
func (l *Ledger) ReportRemittance(ctx context.Context, operator, user crypto.Address, credentialID uint64, amount *big.Int, loanID uint64, reference string) (*big.Int, error) {
	var leftover *big.Int
	err := l.execute(ctx, "report_remittance", func(s *session) error {
		rest, err := s.verifier.ReportRemittance(operator, user, credentialID, amount, loanID, reference)
		leftover = rest
		return err
	})
	return leftover, err
}

func (l *Ledger) ReportMissedPayment(ctx context.Context, operator crypto.Address, loanID, credentialID uint64) error {
	return l.execute(ctx, "report_missed_payment", func(s *session) error {
		return s.verifier.ReportMissedPayment(operator, loanID, credentialID)
	})
}

func (l *Ledger) Credential(ctx context.Context, id uint64) (*collateral.Credential, []collateral.PaymentRecord, error) {
	var (
		cred    *collateral.Credential
		history []collateral.PaymentRecord
	)
	err := l.view(ctx, func(s *session) error {
		c, err := s.collateral.Credential(id)
		if err != nil {
			return err
		}
		h, err := s.collateral.PaymentHistory(id)
		if err != nil {
			return err
		}
		cred, history = c, h
		return nil
	})
	return cred, history, err
}

// CollateralValue appraises a credential for a loan of the given duration.
func (l *Ledger) CollateralValue(ctx context.Context, id uint64, months uint32) (*big.Int, error) {
	if months == 0 {
		return nil, fmt.Errorf("%w: duration must be positive", common.ErrInvalidAmount)
	}
	var out *big.Int
	err := l.view(ctx, func(s *session) error {
		value, err := s.collateral.CollateralValue(id, months)
		out = value
		return err
	})
	return out, err
}
