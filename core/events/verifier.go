package events

import (
	"encoding/hex"
	"math/big"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	TypeVerificationRequested = "verifier.requested"
	TypeVerificationComplete  = "verifier.complete"
	TypeVerificationFailed    = "verifier.failed"
	TypeMonitoringStarted     = "verifier.monitoringStarted"
	TypeRemittanceReported    = "verifier.remittanceReported"
	TypeMissedPaymentReported = "verifier.missedPaymentReported"
)

// VerificationRequested is emitted when a user asks to have a remittance
// account verified.
type VerificationRequested struct {
	User     crypto.Address
	Provider string
}

func (VerificationRequested) EventType() string { return TypeVerificationRequested }

func (e VerificationRequested) Event() *types.Event {
	return &types.Event{Type: TypeVerificationRequested, Attributes: map[string]string{
		"user":     e.User.String(),
		"provider": e.Provider,
	}}
}

// VerificationComplete is emitted once an operator attests the history.
type VerificationComplete struct {
	User         crypto.Address
	CredentialID uint64
	Score        uint32
}

func (VerificationComplete) EventType() string { return TypeVerificationComplete }

func (e VerificationComplete) Event() *types.Event {
	return &types.Event{Type: TypeVerificationComplete, Attributes: map[string]string{
		"user":         e.User.String(),
		"credentialId": formatUint(e.CredentialID),
		"score":        formatUint(uint64(e.Score)),
	}}
}

// VerificationFailed is emitted when an operator rejects a request.
type VerificationFailed struct {
	User   crypto.Address
	Reason string
}

func (VerificationFailed) EventType() string { return TypeVerificationFailed }

func (e VerificationFailed) Event() *types.Event {
	return &types.Event{Type: TypeVerificationFailed, Attributes: map[string]string{
		"user":   e.User.String(),
		"reason": e.Reason,
	}}
}

// MonitoringStarted is emitted when a loan is enrolled for automatic repayment.
type MonitoringStarted struct {
	LoanID uint64
}

func (MonitoringStarted) EventType() string { return TypeMonitoringStarted }

func (e MonitoringStarted) Event() *types.Event {
	return &types.Event{Type: TypeMonitoringStarted, Attributes: map[string]string{
		"loanId": formatUint(e.LoanID),
	}}
}

// RemittanceReported is emitted when an observed remittance is applied.
type RemittanceReported struct {
	LoanID       uint64
	CredentialID uint64
	Amount       *big.Int
	Leftover     *big.Int
	Digest       [32]byte
}

func (RemittanceReported) EventType() string { return TypeRemittanceReported }

func (e RemittanceReported) Event() *types.Event {
	return &types.Event{Type: TypeRemittanceReported, Attributes: map[string]string{
		"loanId":       formatUint(e.LoanID),
		"credentialId": formatUint(e.CredentialID),
		"amount":       formatAmount(e.Amount),
		"leftover":     formatAmount(e.Leftover),
		"digest":       "0x" + hex.EncodeToString(e.Digest[:]),
	}}
}

// MissedPaymentReported is emitted when an operator reports a missed remittance.
type MissedPaymentReported struct {
	LoanID       uint64
	CredentialID uint64
}

func (MissedPaymentReported) EventType() string { return TypeMissedPaymentReported }

func (e MissedPaymentReported) Event() *types.Event {
	return &types.Event{Type: TypeMissedPaymentReported, Attributes: map[string]string{
		"loanId":       formatUint(e.LoanID),
		"credentialId": formatUint(e.CredentialID),
	}}
}
