package state

import (
	"strconv"

	"remitlend/crypto"
	"remitlend/native/loans"
)

var (
	loanConfigKey      = []byte("loans/config")
	loanCounterKey     = []byte("loans/counter")
	loanPrefix         = "loans/loan/"
	borrowerLoanPrefix = "loans/borrower/"
)

type storedLoan struct {
	ID             uint64
	Borrower       crypto.Address
	CollateralID   uint64
	Principal      amount
	Outstanding    amount
	TotalRepaid    amount
	APRBps         uint32
	DurationMonths uint32
	MonthlyPayment amount
	StartTime      uint64
	NextDue        uint64
	Status         uint8
	PaymentsMade   uint32
	PaymentsMissed uint32
}

func loanKey(id uint64) []byte {
	return []byte(loanPrefix + strconv.FormatUint(id, 10))
}

func borrowerLoansKey(addr crypto.Address) []byte {
	return append([]byte(borrowerLoanPrefix), addr.Bytes()...)
}

func (m *Manager) GetLoanConfig() (*loans.Config, error) {
	var cfg loans.Config
	ok, err := m.KVGet(loanConfigKey, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) PutLoanConfig(cfg *loans.Config) error {
	return m.KVPut(loanConfigKey, cfg)
}

// NextLoanID allocates the next sequential loan id.
func (m *Manager) NextLoanID() (uint64, error) {
	return m.nextCounter(loanCounterKey)
}

// GetLoan returns the loan, nil if it does not exist.
func (m *Manager) GetLoan(id uint64) (*loans.Loan, error) {
	var stored storedLoan
	ok, err := m.KVGet(loanKey(id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	var d amountDecoder
	out := &loans.Loan{
		ID:             stored.ID,
		Borrower:       stored.Borrower,
		CollateralID:   stored.CollateralID,
		Principal:      d.amount(stored.Principal),
		Outstanding:    d.amount(stored.Outstanding),
		TotalRepaid:    d.amount(stored.TotalRepaid),
		APRBps:         stored.APRBps,
		DurationMonths: stored.DurationMonths,
		MonthlyPayment: d.amount(stored.MonthlyPayment),
		StartTime:      stored.StartTime,
		NextDue:        stored.NextDue,
		Status:         loans.Status(stored.Status),
		PaymentsMade:   stored.PaymentsMade,
		PaymentsMissed: stored.PaymentsMissed,
	}
	return out, d.err
}

func (m *Manager) PutLoan(l *loans.Loan) error {
	return m.KVPut(loanKey(l.ID), storedLoan{
		ID:             l.ID,
		Borrower:       l.Borrower,
		CollateralID:   l.CollateralID,
		Principal:      encodeAmount(l.Principal),
		Outstanding:    encodeAmount(l.Outstanding),
		TotalRepaid:    encodeAmount(l.TotalRepaid),
		APRBps:         l.APRBps,
		DurationMonths: l.DurationMonths,
		MonthlyPayment: encodeAmount(l.MonthlyPayment),
		StartTime:      l.StartTime,
		NextDue:        l.NextDue,
		Status:         uint8(l.Status),
		PaymentsMade:   l.PaymentsMade,
		PaymentsMissed: l.PaymentsMissed,
	})
}

func (m *Manager) GetBorrowerLoans(borrower crypto.Address) ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(borrowerLoansKey(borrower), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) PutBorrowerLoans(borrower crypto.Address, ids []uint64) error {
	if ids == nil {
		ids = []uint64{}
	}
	return m.KVPut(borrowerLoansKey(borrower), ids)
}
