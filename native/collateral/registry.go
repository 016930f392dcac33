package collateral

import (
	"errors"
	"fmt"
	"math/big"

	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/common"
)

var errNilState = errors.New("collateral registry: state not configured")

const moduleName = "collateral"

type registryState interface {
	GetCollateralAuthorities() (*Authorities, error)
	PutCollateralAuthorities(auth *Authorities) error
	NextCredentialID() (uint64, error)
	GetCredential(id uint64) (*Credential, error)
	PutCredential(credential *Credential) error
	GetPaymentHistory(id uint64) ([]PaymentRecord, error)
	PutPaymentHistory(id uint64, history []PaymentRecord) error
}

// Registry manages remittance credentials and their collateral lock.
type Registry struct {
	state     registryState
	emitter   events.Emitter
	pauses    common.PauseView
	timestamp uint64
}

// NewRegistry constructs an unwired registry.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

func (r *Registry) SetState(state registryState) { r.state = state }

func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func (r *Registry) SetTimestamp(ts uint64) { r.timestamp = ts }

// Initialize records the verifier and loan manager identities.
func (r *Registry) Initialize(verifier, loanManager crypto.Address) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	existing, err := r.state.GetCollateralAuthorities()
	if err != nil {
		return err
	}
	if existing != nil {
		return common.ErrAlreadyInitialized
	}
	if verifier.IsZero() || loanManager.IsZero() {
		return fmt.Errorf("%w: verifier and loan manager required", common.ErrUnauthorized)
	}
	return r.state.PutCollateralAuthorities(&Authorities{Verifier: verifier, LoanManager: loanManager})
}

// Mint issues a credential to owner. Only the verifier may mint.
func (r *Registry) Mint(caller, owner crypto.Address, monthly *big.Int, score, historyMonths uint32, totalSent *big.Int, history []PaymentRecord) (uint64, error) {
	auth, err := r.authorities()
	if err != nil {
		return 0, err
	}
	if caller != auth.Verifier {
		return 0, common.ErrUnauthorized
	}
	if owner.IsZero() {
		return 0, fmt.Errorf("%w: owner required", common.ErrInvalidAmount)
	}
	if err := common.RequireNonNegative(monthly); err != nil {
		return 0, err
	}
	if err := common.RequireNonNegative(totalSent); err != nil {
		return 0, err
	}
	if score > 100 {
		return 0, fmt.Errorf("%w: score above 100", common.ErrInvalidAmount)
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	id, err := r.state.NextCredentialID()
	if err != nil {
		return 0, err
	}
	credential := &Credential{
		ID:                     id,
		Owner:                  owner,
		MonthlyAmount:          new(big.Int).Set(monthly),
		Score:                  score,
		HistoryMonths:          historyMonths,
		TotalSent:              new(big.Int).Set(totalSent),
		LastRemittance:         r.timestamp,
		LifetimeMissedPayments: CountMissed(history),
	}
	if err := r.state.PutCredential(credential); err != nil {
		return 0, err
	}
	if err := r.state.PutPaymentHistory(id, append([]PaymentRecord(nil), history...)); err != nil {
		return 0, err
	}
	r.emitter.Emit(events.CredentialMinted{Owner: owner, CredentialID: id, Score: score})
	return id, nil
}

// Stake locks the credential to loanID. Only the loan manager may stake.
func (r *Registry) Stake(caller crypto.Address, id, loanID uint64) error {
	auth, err := r.authorities()
	if err != nil {
		return err
	}
	if caller != auth.LoanManager {
		return common.ErrUnauthorized
	}
	credential, err := r.load(id)
	if err != nil {
		return err
	}
	if credential.Staked {
		return common.ErrAlreadyStaked
	}
	credential.Staked = true
	credential.StakedLoan = loanID
	if err := r.state.PutCredential(credential); err != nil {
		return err
	}
	r.emitter.Emit(events.CredentialStaked{CredentialID: id, LoanID: loanID})
	return nil
}

// Unstake releases the credential lock. Only the loan manager may unstake.
func (r *Registry) Unstake(caller crypto.Address, id uint64) error {
	auth, err := r.authorities()
	if err != nil {
		return err
	}
	if caller != auth.LoanManager {
		return common.ErrUnauthorized
	}
	credential, err := r.load(id)
	if err != nil {
		return err
	}
	if !credential.Staked {
		return common.ErrNotStaked
	}
	loanID := credential.StakedLoan
	credential.Staked = false
	credential.StakedLoan = 0
	if err := r.state.PutCredential(credential); err != nil {
		return err
	}
	r.emitter.Emit(events.CredentialUnstaked{CredentialID: id, LoanID: loanID})
	return nil
}

// RecordRemittance appends a paid month, sets the monthly amount to the
// observed remittance and rescores the credential.
func (r *Registry) RecordRemittance(caller crypto.Address, id uint64, amount *big.Int) error {
	if err := r.verifierCall(caller); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	credential, err := r.load(id)
	if err != nil {
		return err
	}
	total, err := common.CheckedAdd(credential.TotalSent, amount)
	if err != nil {
		return err
	}
	history, err := r.state.GetPaymentHistory(id)
	if err != nil {
		return err
	}
	history = appendRecord(history, PaymentRecord{MonthIndex: credential.HistoryMonths + 1, Paid: true})
	credential.MonthlyAmount = new(big.Int).Set(amount)
	credential.TotalSent = total
	credential.HistoryMonths++
	credential.LastRemittance = r.timestamp
	credential.Score = ReliabilityScore(history, credential.LifetimeMissedPayments)

	if err := r.state.PutCredential(credential); err != nil {
		return err
	}
	if err := r.state.PutPaymentHistory(id, history); err != nil {
		return err
	}
	r.emitter.Emit(events.CredentialUpdated{CredentialID: id, Amount: new(big.Int).Set(amount), Score: credential.Score})
	return nil
}

// MarkPaymentMissed appends an unpaid month and applies the lifetime penalty.
func (r *Registry) MarkPaymentMissed(caller crypto.Address, id uint64) error {
	if err := r.verifierCall(caller); err != nil {
		return err
	}
	credential, err := r.load(id)
	if err != nil {
		return err
	}
	history, err := r.state.GetPaymentHistory(id)
	if err != nil {
		return err
	}
	history = appendRecord(history, PaymentRecord{MonthIndex: credential.HistoryMonths + 1, Paid: false})
	credential.HistoryMonths++
	credential.LifetimeMissedPayments++
	credential.Score = ReliabilityScore(history, credential.LifetimeMissedPayments)

	if err := r.state.PutCredential(credential); err != nil {
		return err
	}
	if err := r.state.PutPaymentHistory(id, history); err != nil {
		return err
	}
	r.emitter.Emit(events.CredentialPaymentMissed{CredentialID: id, Score: credential.Score})
	return nil
}

// Credential returns a copy of the stored credential.
func (r *Registry) Credential(id uint64) (*Credential, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.load(id)
}

// Valuation returns the ownership and scoring view of a credential.
func (r *Registry) Valuation(id uint64) (*Valuation, error) {
	credential, err := r.Credential(id)
	if err != nil {
		return nil, err
	}
	return credential.Valuation(), nil
}

// CollateralValue appraises the credential over durationMonths after the
// advance-rate haircut.
func (r *Registry) CollateralValue(id uint64, durationMonths uint32) (*big.Int, error) {
	credential, err := r.Credential(id)
	if err != nil {
		return nil, err
	}
	return Value(credential.MonthlyAmount, durationMonths, credential.Score), nil
}

// PaymentHistory returns the rolling payment window, oldest first.
func (r *Registry) PaymentHistory(id uint64) ([]PaymentRecord, error) {
	if _, err := r.Credential(id); err != nil {
		return nil, err
	}
	history, err := r.state.GetPaymentHistory(id)
	if err != nil {
		return nil, err
	}
	return append([]PaymentRecord(nil), history...), nil
}

func (r *Registry) verifierCall(caller crypto.Address) error {
	auth, err := r.authorities()
	if err != nil {
		return err
	}
	if caller != auth.Verifier {
		return common.ErrUnauthorized
	}
	return nil
}

func (r *Registry) authorities() (*Authorities, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(r.pauses, moduleName); err != nil {
		return nil, err
	}
	auth, err := r.state.GetCollateralAuthorities()
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, fmt.Errorf("%w: collateral registry", common.ErrNotInitialized)
	}
	return auth, nil
}

func (r *Registry) load(id uint64) (*Credential, error) {
	credential, err := r.state.GetCredential(id)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, fmt.Errorf("%w: credential %d", common.ErrNotFound, id)
	}
	credential = credential.Clone()
	credential.ensureDefaults()
	return credential, nil
}
