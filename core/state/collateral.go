package state

import (
	"strconv"

	"remitlend/crypto"
	"remitlend/native/collateral"
)

var (
	collateralAuthoritiesKey = []byte("collateral/authorities")
	credentialCounterKey     = []byte("collateral/counter")
	credentialPrefix         = "collateral/credential/"
	credentialHistoryPrefix  = "collateral/history/"
)

type storedCredential struct {
	ID                     uint64
	Owner                  crypto.Address
	MonthlyAmount          amount
	Score                  uint32
	HistoryMonths          uint32
	TotalSent              amount
	LastRemittance         uint64
	LifetimeMissedPayments uint32
	Staked                 bool
	StakedLoan             uint64
}

func credentialKey(id uint64) []byte {
	return []byte(credentialPrefix + strconv.FormatUint(id, 10))
}

func credentialHistoryKey(id uint64) []byte {
	return []byte(credentialHistoryPrefix + strconv.FormatUint(id, 10))
}

func (m *Manager) GetCollateralAuthorities() (*collateral.Authorities, error) {
	var auth collateral.Authorities
	ok, err := m.KVGet(collateralAuthoritiesKey, &auth)
	if err != nil || !ok {
		return nil, err
	}
	return &auth, nil
}

func (m *Manager) PutCollateralAuthorities(auth *collateral.Authorities) error {
	return m.KVPut(collateralAuthoritiesKey, auth)
}

// NextCredentialID allocates the next sequential credential id.
func (m *Manager) NextCredentialID() (uint64, error) {
	return m.nextCounter(credentialCounterKey)
}

// GetCredential returns the credential, nil if it does not exist.
func (m *Manager) GetCredential(id uint64) (*collateral.Credential, error) {
	var stored storedCredential
	ok, err := m.KVGet(credentialKey(id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	var d amountDecoder
	out := &collateral.Credential{
		ID:                     stored.ID,
		Owner:                  stored.Owner,
		MonthlyAmount:          d.amount(stored.MonthlyAmount),
		Score:                  stored.Score,
		HistoryMonths:          stored.HistoryMonths,
		TotalSent:              d.amount(stored.TotalSent),
		LastRemittance:         stored.LastRemittance,
		LifetimeMissedPayments: stored.LifetimeMissedPayments,
		Staked:                 stored.Staked,
		StakedLoan:             stored.StakedLoan,
	}
	return out, d.err
}

func (m *Manager) PutCredential(c *collateral.Credential) error {
	return m.KVPut(credentialKey(c.ID), storedCredential{
		ID:                     c.ID,
		Owner:                  c.Owner,
		MonthlyAmount:          encodeAmount(c.MonthlyAmount),
		Score:                  c.Score,
		HistoryMonths:          c.HistoryMonths,
		TotalSent:              encodeAmount(c.TotalSent),
		LastRemittance:         c.LastRemittance,
		LifetimeMissedPayments: c.LifetimeMissedPayments,
		Staked:                 c.Staked,
		StakedLoan:             c.StakedLoan,
	})
}

func (m *Manager) GetPaymentHistory(id uint64) ([]collateral.PaymentRecord, error) {
	var history []collateral.PaymentRecord
	if err := m.KVGetList(credentialHistoryKey(id), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (m *Manager) PutPaymentHistory(id uint64, history []collateral.PaymentRecord) error {
	if history == nil {
		history = []collateral.PaymentRecord{}
	}
	return m.KVPut(credentialHistoryKey(id), history)
}
