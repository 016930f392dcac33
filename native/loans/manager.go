package loans

import (
	"errors"
	"fmt"
	"math/big"

	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
)

var (
	errNilState = errors.New("loan manager: state not configured")
	errNotWired = errors.New("loan manager: pool, collateral and bank must be configured")
)

const moduleName = "loans"

// DefaultThreshold is the number of missed payments that defaults a loan.
const DefaultThreshold uint32 = 2

type managerState interface {
	GetLoanConfig() (*Config, error)
	PutLoanConfig(cfg *Config) error
	NextLoanID() (uint64, error)
	GetLoan(id uint64) (*Loan, error)
	PutLoan(loan *Loan) error
	GetBorrowerLoans(borrower crypto.Address) ([]uint64, error)
	PutBorrowerLoans(borrower crypto.Address, ids []uint64) error
}

type poolLedger interface {
	Address() crypto.Address
	Borrow(caller crypto.Address, amount *big.Int, borrower crypto.Address, loanID uint64) error
	Repay(caller crypto.Address, principal, interest *big.Int, loanID uint64) error
}

type collateralRegistry interface {
	Valuation(id uint64) (*collateral.Valuation, error)
	CollateralValue(id uint64, durationMonths uint32) (*big.Int, error)
	Stake(caller crypto.Address, id, loanID uint64) error
	Unstake(caller crypto.Address, id uint64) error
}

type assetLedger interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
}

// Monitor is notified when a loan becomes active so remittances for it can be
// matched to automatic repayments.
type Monitor interface {
	StartMonitoring(caller crypto.Address, loanID uint64) error
}

// DefaultHandler is invoked inside the defaulting call. Returning an error
// aborts the transition. The collateral stays staked to the loan.
type DefaultHandler interface {
	HandleDefault(loan *Loan) error
}

// Manager owns loan records and drives their state machine.
type Manager struct {
	state      managerState
	pool       poolLedger
	collateral collateralRegistry
	bank       assetLedger
	monitor    Monitor
	onDefault  DefaultHandler
	address    crypto.Address
	emitter    events.Emitter
	pauses     common.PauseView
	timestamp  uint64
}

// NewManager constructs a loan manager acting as moduleAddr towards the pool
// and the collateral registry.
func NewManager(moduleAddr crypto.Address) *Manager {
	return &Manager{address: moduleAddr, emitter: events.NoopEmitter{}}
}

func (m *Manager) SetState(state managerState)               { m.state = state }
func (m *Manager) SetPool(pool poolLedger)                   { m.pool = pool }
func (m *Manager) SetCollateral(registry collateralRegistry) { m.collateral = registry }
func (m *Manager) SetBank(bank assetLedger)                  { m.bank = bank }
func (m *Manager) SetMonitor(monitor Monitor)                { m.monitor = monitor }
func (m *Manager) SetDefaultHandler(handler DefaultHandler)  { m.onDefault = handler }
func (m *Manager) SetPauses(p common.PauseView)              { m.pauses = p }
func (m *Manager) SetTimestamp(ts uint64)                    { m.timestamp = ts }

func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

// Address returns the identity the manager presents to its peers.
func (m *Manager) Address() crypto.Address { return m.address }

// Initialize registers the verifier and approvers.
func (m *Manager) Initialize(cfg Config) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	existing, err := m.state.GetLoanConfig()
	if err != nil {
		return err
	}
	if existing != nil {
		return common.ErrAlreadyInitialized
	}
	if cfg.Verifier.IsZero() {
		return fmt.Errorf("%w: verifier address required", common.ErrUnauthorized)
	}
	return m.state.PutLoanConfig(cfg.Clone())
}

// RequestLoan records a pending loan against a credential owned by borrower
// and returns its id.
func (m *Manager) RequestLoan(borrower crypto.Address, collateralID uint64, amount *big.Int, months uint32) (uint64, error) {
	cfg, err := m.ready()
	if err != nil {
		return 0, err
	}
	if err := common.RequirePositive(amount); err != nil {
		return 0, err
	}
	if months == 0 {
		return 0, fmt.Errorf("%w: duration must be at least one month", common.ErrInvalidAmount)
	}
	valuation, err := m.collateral.Valuation(collateralID)
	if err != nil {
		return 0, err
	}
	if valuation.Owner != borrower {
		return 0, common.ErrOwnershipMismatch
	}
	if cfg.RequireCoverage {
		value, err := m.collateral.CollateralValue(collateralID, months)
		if err != nil {
			return 0, err
		}
		if amount.Cmp(value) > 0 {
			return 0, fmt.Errorf("%w: principal %s exceeds collateral value %s", common.ErrInvalidAmount, amount, value)
		}
	}

	apr := APRForScore(valuation.Score)
	schedule := FlatSchedule(amount, apr, months)
	id, err := m.state.NextLoanID()
	if err != nil {
		return 0, err
	}
	loan := &Loan{
		ID:             id,
		Borrower:       borrower,
		CollateralID:   collateralID,
		Principal:      new(big.Int).Set(amount),
		Outstanding:    new(big.Int).Set(amount),
		TotalRepaid:    big.NewInt(0),
		APRBps:         apr,
		DurationMonths: months,
		MonthlyPayment: schedule.MonthlyPayment,
		StartTime:      m.timestamp,
		NextDue:        m.timestamp + PaymentInterval,
		Status:         StatusPending,
	}
	index, err := m.state.GetBorrowerLoans(borrower)
	if err != nil {
		return 0, err
	}
	index = append(append([]uint64(nil), index...), id)

	if err := m.state.PutLoan(loan); err != nil {
		return 0, err
	}
	if err := m.state.PutBorrowerLoans(borrower, index); err != nil {
		return 0, err
	}
	m.emitter.Emit(events.LoanRequested{Borrower: borrower, LoanID: id, Principal: new(big.Int).Set(amount), APRBps: apr})
	return id, nil
}

// ApproveLoan stakes the collateral and draws the principal from the pool.
// Any failure aborts the approval as a whole.
func (m *Manager) ApproveLoan(caller crypto.Address, loanID uint64) error {
	cfg, err := m.ready()
	if err != nil {
		return err
	}
	if !cfg.isApprover(caller) {
		return common.ErrUnauthorized
	}
	loan, err := m.load(loanID)
	if err != nil {
		return err
	}
	if !loan.Status.CanTransition(StatusActive) {
		return fmt.Errorf("%w: loan %d is %s", common.ErrInvalidState, loanID, loan.Status)
	}

	if err := m.collateral.Stake(m.address, loan.CollateralID, loan.ID); err != nil {
		return err
	}
	if err := m.pool.Borrow(m.address, loan.Principal, loan.Borrower, loan.ID); err != nil {
		return err
	}
	if m.monitor != nil {
		if err := m.monitor.StartMonitoring(m.address, loan.ID); err != nil {
			return err
		}
	}
	loan.Status = StatusActive
	if err := m.state.PutLoan(loan); err != nil {
		return err
	}
	m.emitter.Emit(events.LoanApproved{LoanID: loan.ID})
	return nil
}

// MakePayment settles a borrower payment against the loan.
func (m *Manager) MakePayment(caller crypto.Address, loanID uint64, amount *big.Int) error {
	if _, err := m.ready(); err != nil {
		return err
	}
	loan, err := m.load(loanID)
	if err != nil {
		return err
	}
	if caller != loan.Borrower {
		return common.ErrUnauthorized
	}
	_, err = m.pay(loan, amount)
	return err
}

// ProcessAutomaticRepayment applies up to one monthly payment out of a
// reported remittance and returns the remainder owed back to the payer.
func (m *Manager) ProcessAutomaticRepayment(caller crypto.Address, loanID uint64, remittance *big.Int) (*big.Int, error) {
	cfg, err := m.ready()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Verifier {
		return nil, common.ErrUnauthorized
	}
	if err := common.RequirePositive(remittance); err != nil {
		return nil, err
	}
	loan, err := m.load(loanID)
	if err != nil {
		return nil, err
	}
	payment := common.MinInt(remittance, loan.MonthlyPayment)
	charged, err := m.pay(loan, payment)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(remittance, charged), nil
}

// MarkPaymentMissed counts a missed payment and defaults the loan once the
// threshold is reached.
func (m *Manager) MarkPaymentMissed(caller crypto.Address, loanID uint64) error {
	cfg, err := m.ready()
	if err != nil {
		return err
	}
	if caller != cfg.Verifier {
		return common.ErrUnauthorized
	}
	loan, err := m.load(loanID)
	if err != nil {
		return err
	}
	if loan.Status != StatusActive {
		return fmt.Errorf("%w: loan %d is %s", common.ErrInvalidState, loanID, loan.Status)
	}
	loan.PaymentsMissed++
	defaulted := loan.PaymentsMissed >= DefaultThreshold
	if defaulted {
		loan.Status = StatusDefaulted
		if m.onDefault != nil {
			if err := m.onDefault.HandleDefault(loan.Clone()); err != nil {
				return err
			}
		}
	}
	if err := m.state.PutLoan(loan); err != nil {
		return err
	}
	m.emitter.Emit(events.PaymentMissed{LoanID: loan.ID, Count: loan.PaymentsMissed})
	if defaulted {
		m.emitter.Emit(events.LoanDefaulted{LoanID: loan.ID, CollateralID: loan.CollateralID, Outstanding: new(big.Int).Set(loan.Outstanding)})
	}
	return nil
}

// Loan returns a copy of the loan record.
func (m *Manager) Loan(loanID uint64) (*Loan, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	return m.load(loanID)
}

// LoansByBorrower returns every loan the borrower has requested, oldest first.
func (m *Manager) LoansByBorrower(borrower crypto.Address) ([]*Loan, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	ids, err := m.state.GetBorrowerLoans(borrower)
	if err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		loan, err := m.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}

// pay moves the payment into the pool and books it. It returns the amount
// actually charged, which is below amount only when the loan is paid off.
func (m *Manager) pay(loan *Loan, amount *big.Int) (*big.Int, error) {
	if loan.Status != StatusActive {
		return nil, fmt.Errorf("%w: loan %d is %s", common.ErrInvalidState, loan.ID, loan.Status)
	}
	if err := common.RequirePositive(amount); err != nil {
		return nil, err
	}
	principal, interest := Split(loan.Outstanding, loan.APRBps, amount)
	charged := new(big.Int).Add(principal, interest)
	repaid, err := common.CheckedAdd(loan.TotalRepaid, charged)
	if err != nil {
		return nil, err
	}

	loan.TotalRepaid = repaid
	loan.Outstanding = new(big.Int).Sub(loan.Outstanding, principal)
	loan.PaymentsMade++
	loan.NextDue += PaymentInterval
	repaidInFull := loan.Outstanding.Sign() <= 0
	if repaidInFull {
		loan.Status = StatusRepaid
	}

	if err := m.bank.Transfer(loan.Borrower, m.pool.Address(), charged); err != nil {
		return nil, err
	}
	if err := m.pool.Repay(m.address, principal, interest, loan.ID); err != nil {
		return nil, err
	}
	if repaidInFull {
		if err := m.collateral.Unstake(m.address, loan.CollateralID); err != nil {
			return nil, err
		}
	}
	if err := m.state.PutLoan(loan); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.PaymentMade{LoanID: loan.ID, Amount: new(big.Int).Set(charged), Principal: principal, Interest: interest})
	if repaidInFull {
		m.emitter.Emit(events.LoanRepaid{LoanID: loan.ID, CollateralID: loan.CollateralID})
	}
	return charged, nil
}

func (m *Manager) ready() (*Config, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if m.pool == nil || m.collateral == nil || m.bank == nil {
		return nil, errNotWired
	}
	if err := common.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := m.state.GetLoanConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: loan manager", common.ErrNotInitialized)
	}
	return cfg, nil
}

func (m *Manager) load(id uint64) (*Loan, error) {
	loan, err := m.state.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: loan %d", common.ErrNotFound, id)
	}
	loan = loan.Clone()
	loan.ensureDefaults()
	return loan, nil
}
