package state

import (
	"encoding/hex"
	"strconv"

	"remitlend/crypto"
	"remitlend/native/verifier"
)

var (
	verifierConfigKey      = []byte("verifier/config")
	verificationPrefix     = "verifier/request/"
	monitoredLoanPrefix    = "verifier/monitored/"
	remittanceReportPrefix = "verifier/report/"
)

type storedRequest struct {
	User         crypto.Address
	Provider     string
	AccountID    string
	RequestedAt  uint64
	Status       uint8
	CredentialID uint64
}

func verificationKey(user crypto.Address) []byte {
	return append([]byte(verificationPrefix), user.Bytes()...)
}

func monitoredKey(loanID uint64) []byte {
	return []byte(monitoredLoanPrefix + strconv.FormatUint(loanID, 10))
}

func reportKey(digest [32]byte) []byte {
	return []byte(remittanceReportPrefix + hex.EncodeToString(digest[:]))
}

func (m *Manager) GetVerifierConfig() (*verifier.Config, error) {
	var cfg verifier.Config
	ok, err := m.KVGet(verifierConfigKey, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) PutVerifierConfig(cfg *verifier.Config) error {
	return m.KVPut(verifierConfigKey, cfg)
}

func (m *Manager) GetVerification(user crypto.Address) (*verifier.Request, error) {
	var stored storedRequest
	ok, err := m.KVGet(verificationKey(user), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &verifier.Request{
		User:         stored.User,
		Provider:     stored.Provider,
		AccountID:    stored.AccountID,
		RequestedAt:  stored.RequestedAt,
		Status:       verifier.Status(stored.Status),
		CredentialID: stored.CredentialID,
	}, nil
}

func (m *Manager) PutVerification(req *verifier.Request) error {
	return m.KVPut(verificationKey(req.User), storedRequest{
		User:         req.User,
		Provider:     req.Provider,
		AccountID:    req.AccountID,
		RequestedAt:  req.RequestedAt,
		Status:       uint8(req.Status),
		CredentialID: req.CredentialID,
	})
}

func (m *Manager) IsMonitored(loanID uint64) (bool, error) {
	return m.KVGet(monitoredKey(loanID), nil)
}

func (m *Manager) SetMonitored(loanID uint64) error {
	return m.KVPut(monitoredKey(loanID), true)
}

func (m *Manager) HasReport(digest [32]byte) (bool, error) {
	return m.KVGet(reportKey(digest), nil)
}

func (m *Manager) PutReport(digest [32]byte) error {
	return m.KVPut(reportKey(digest), true)
}
