package verifier

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
	"remitlend/native/loans"
)

var (
	errNilState = errors.New("verifier: state not configured")
	errNotWired = errors.New("verifier: registry and loan manager must be configured")

	// ErrDuplicateReport is returned when a remittance report was already applied.
	ErrDuplicateReport = fmt.Errorf("%w: remittance already reported", common.ErrInvalidState)
)

const moduleName = "verifier"

type engineState interface {
	GetVerifierConfig() (*Config, error)
	PutVerifierConfig(cfg *Config) error
	GetVerification(user crypto.Address) (*Request, error)
	PutVerification(req *Request) error
	IsMonitored(loanID uint64) (bool, error)
	SetMonitored(loanID uint64) error
	HasReport(digest [32]byte) (bool, error)
	PutReport(digest [32]byte) error
}

type credentialRegistry interface {
	Mint(caller, owner crypto.Address, monthly *big.Int, score, historyMonths uint32, totalSent *big.Int, history []collateral.PaymentRecord) (uint64, error)
	Valuation(id uint64) (*collateral.Valuation, error)
	RecordRemittance(caller crypto.Address, id uint64, amount *big.Int) error
	MarkPaymentMissed(caller crypto.Address, id uint64) error
}

type loanManager interface {
	Loan(loanID uint64) (*loans.Loan, error)
	ProcessAutomaticRepayment(caller crypto.Address, loanID uint64, remittance *big.Int) (*big.Int, error)
	MarkPaymentMissed(caller crypto.Address, loanID uint64) error
}

// Engine attests remittance histories and relays observed remittances and
// misses to the credential registry and the loan manager.
type Engine struct {
	state     engineState
	registry  credentialRegistry
	loans     loanManager
	address   crypto.Address
	emitter   events.Emitter
	pauses    common.PauseView
	timestamp uint64
}

// NewEngine constructs a verifier acting as moduleAddr towards its peers.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{address: moduleAddr, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState)              { e.state = state }
func (e *Engine) SetRegistry(registry credentialRegistry) { e.registry = registry }
func (e *Engine) SetLoanManager(lm loanManager)           { e.loans = lm }
func (e *Engine) SetPauses(p common.PauseView)            { e.pauses = p }
func (e *Engine) SetTimestamp(ts uint64)                  { e.timestamp = ts }
func (e *Engine) Address() crypto.Address                 { return e.address }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Initialize stores the operator allow-list.
func (e *Engine) Initialize(cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.GetVerifierConfig()
	if err != nil {
		return err
	}
	if existing != nil {
		return common.ErrAlreadyInitialized
	}
	if len(cfg.Operators) == 0 {
		return fmt.Errorf("%w: at least one operator required", common.ErrUnauthorized)
	}
	return e.state.PutVerifierConfig(cfg.Clone())
}

// RequestVerification opens (or reopens) a pending request for user.
func (e *Engine) RequestVerification(user crypto.Address, provider, accountID string) error {
	if _, err := e.ready(); err != nil {
		return err
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	accountID = strings.TrimSpace(accountID)
	if provider == "" || accountID == "" {
		return fmt.Errorf("%w: provider and account id required", common.ErrInvalidAmount)
	}
	existing, err := e.state.GetVerification(user)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == StatusPending {
		return fmt.Errorf("%w: verification already pending", common.ErrInvalidState)
	}
	req := &Request{
		User:        user,
		Provider:    provider,
		AccountID:   accountID,
		RequestedAt: e.timestamp,
		Status:      StatusPending,
	}
	if err := e.state.PutVerification(req); err != nil {
		return err
	}
	e.emitter.Emit(events.VerificationRequested{User: user, Provider: provider})
	return nil
}

// SubmitVerification scores the attested history and mints a credential.
func (e *Engine) SubmitVerification(operator, user crypto.Address, monthly *big.Int, historyMonths uint32, totalSent *big.Int, history []collateral.PaymentRecord) (uint64, error) {
	if _, err := e.operatorCall(operator); err != nil {
		return 0, err
	}
	req, err := e.pendingRequest(user)
	if err != nil {
		return 0, err
	}
	score := collateral.HistoryScore(history)
	id, err := e.registry.Mint(e.address, user, monthly, score, historyMonths, totalSent, history)
	if err != nil {
		return 0, err
	}
	req.Status = StatusVerified
	req.CredentialID = id
	if err := e.state.PutVerification(req); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.VerificationComplete{User: user, CredentialID: id, Score: score})
	return id, nil
}

// RejectVerification closes a pending request without minting.
func (e *Engine) RejectVerification(operator, user crypto.Address, reason string) error {
	if _, err := e.operatorCall(operator); err != nil {
		return err
	}
	req, err := e.pendingRequest(user)
	if err != nil {
		return err
	}
	req.Status = StatusFailed
	if err := e.state.PutVerification(req); err != nil {
		return err
	}
	e.emitter.Emit(events.VerificationFailed{User: user, Reason: strings.TrimSpace(reason)})
	return nil
}

// Verification returns the user's latest request.
func (e *Engine) Verification(user crypto.Address) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, err := e.state.GetVerification(user)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: verification request", common.ErrNotFound)
	}
	return req.Clone(), nil
}

// StartMonitoring enrols a loan for automatic repayment. The loan manager or
// an operator may call it.
func (e *Engine) StartMonitoring(caller crypto.Address, loanID uint64) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	if caller != cfg.LoanManager && !cfg.IsOperator(caller) {
		return common.ErrUnauthorized
	}
	monitored, err := e.state.IsMonitored(loanID)
	if err != nil {
		return err
	}
	if monitored {
		return nil
	}
	if err := e.state.SetMonitored(loanID); err != nil {
		return err
	}
	e.emitter.Emit(events.MonitoringStarted{LoanID: loanID})
	return nil
}

// IsMonitored reports whether remittances for loanID are being watched.
func (e *Engine) IsMonitored(loanID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.IsMonitored(loanID)
}

// ReportRemittance records an observed remittance on the user's credential
// and applies it to the monitored loan. It returns the part of the remittance
// not consumed by the repayment.
func (e *Engine) ReportRemittance(operator, user crypto.Address, credentialID uint64, amount *big.Int, loanID uint64, reference string) (*big.Int, error) {
	if _, err := e.operatorCall(operator); err != nil {
		return nil, err
	}
	if err := common.RequirePositive(amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("%w: remittance reference required", common.ErrInvalidAmount)
	}
	monitored, err := e.state.IsMonitored(loanID)
	if err != nil {
		return nil, err
	}
	if !monitored {
		return nil, fmt.Errorf("%w: loan %d is not monitored", common.ErrInvalidState, loanID)
	}
	loan, err := e.loanFor(loanID, credentialID)
	if err != nil {
		return nil, err
	}
	if loan.Borrower != user {
		return nil, common.ErrOwnershipMismatch
	}
	valuation, err := e.registry.Valuation(credentialID)
	if err != nil {
		return nil, err
	}
	if valuation.Owner != user {
		return nil, common.ErrOwnershipMismatch
	}
	digest := ReportDigest(loanID, credentialID, amount, reference)
	seen, err := e.state.HasReport(digest)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, ErrDuplicateReport
	}

	if err := e.registry.RecordRemittance(e.address, credentialID, amount); err != nil {
		return nil, err
	}
	leftover, err := e.loans.ProcessAutomaticRepayment(e.address, loanID, amount)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutReport(digest); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.RemittanceReported{
		LoanID:       loanID,
		CredentialID: credentialID,
		Amount:       new(big.Int).Set(amount),
		Leftover:     new(big.Int).Set(leftover),
		Digest:       digest,
	})
	return leftover, nil
}

// ReportMissedPayment records a missed month on the credential and the loan.
func (e *Engine) ReportMissedPayment(operator crypto.Address, loanID, credentialID uint64) error {
	if _, err := e.operatorCall(operator); err != nil {
		return err
	}
	if _, err := e.loanFor(loanID, credentialID); err != nil {
		return err
	}
	if err := e.registry.MarkPaymentMissed(e.address, credentialID); err != nil {
		return err
	}
	if err := e.loans.MarkPaymentMissed(e.address, loanID); err != nil {
		return err
	}
	e.emitter.Emit(events.MissedPaymentReported{LoanID: loanID, CredentialID: credentialID})
	return nil
}

// loanFor loads the loan and checks that credentialID is the credential
// staked against it.
func (e *Engine) loanFor(loanID, credentialID uint64) (*loans.Loan, error) {
	loan, err := e.loans.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.CollateralID != credentialID {
		return nil, common.ErrOwnershipMismatch
	}
	return loan, nil
}

func (e *Engine) pendingRequest(user crypto.Address) (*Request, error) {
	req, err := e.state.GetVerification(user)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: verification request", common.ErrNotFound)
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: verification already %s", common.ErrInvalidState, req.Status)
	}
	return req.Clone(), nil
}

func (e *Engine) operatorCall(operator crypto.Address) (*Config, error) {
	cfg, err := e.ready()
	if err != nil {
		return nil, err
	}
	if !cfg.IsOperator(operator) {
		return nil, common.ErrUnauthorized
	}
	return cfg, nil
}

func (e *Engine) ready() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.registry == nil || e.loans == nil {
		return nil, errNotWired
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.state.GetVerifierConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: verifier", common.ErrNotInitialized)
	}
	return cfg, nil
}
