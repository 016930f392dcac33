package events

import (
	"math/big"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	TypeCredentialMinted        = "collateral.minted"
	TypeCredentialStaked        = "collateral.staked"
	TypeCredentialUnstaked      = "collateral.unstaked"
	TypeCredentialUpdated       = "collateral.updated"
	TypeCredentialPaymentMissed = "collateral.paymentMissed"
)

// CredentialMinted is emitted when a verified remittance history is tokenised.
type CredentialMinted struct {
	Owner        crypto.Address
	CredentialID uint64
	Score        uint32
}

func (CredentialMinted) EventType() string { return TypeCredentialMinted }

func (e CredentialMinted) Event() *types.Event {
	return &types.Event{Type: TypeCredentialMinted, Attributes: map[string]string{
		"owner":        e.Owner.String(),
		"credentialId": formatUint(e.CredentialID),
		"score":        formatUint(uint64(e.Score)),
	}}
}

// CredentialStaked is emitted when a credential is locked as loan collateral.
type CredentialStaked struct {
	CredentialID uint64
	LoanID       uint64
}

func (CredentialStaked) EventType() string { return TypeCredentialStaked }

func (e CredentialStaked) Event() *types.Event {
	return &types.Event{Type: TypeCredentialStaked, Attributes: map[string]string{
		"credentialId": formatUint(e.CredentialID),
		"loanId":       formatUint(e.LoanID),
	}}
}

// CredentialUnstaked is emitted when collateral is released.
type CredentialUnstaked struct {
	CredentialID uint64
	LoanID       uint64
}

func (CredentialUnstaked) EventType() string { return TypeCredentialUnstaked }

func (e CredentialUnstaked) Event() *types.Event {
	return &types.Event{Type: TypeCredentialUnstaked, Attributes: map[string]string{
		"credentialId": formatUint(e.CredentialID),
		"loanId":       formatUint(e.LoanID),
	}}
}

// CredentialUpdated records a new remittance and the resulting score.
type CredentialUpdated struct {
	CredentialID uint64
	Amount       *big.Int
	Score        uint32
}

func (CredentialUpdated) EventType() string { return TypeCredentialUpdated }

func (e CredentialUpdated) Event() *types.Event {
	return &types.Event{Type: TypeCredentialUpdated, Attributes: map[string]string{
		"credentialId": formatUint(e.CredentialID),
		"amount":       formatAmount(e.Amount),
		"score":        formatUint(uint64(e.Score)),
	}}
}

// CredentialPaymentMissed records a missed remittance and the penalised score.
type CredentialPaymentMissed struct {
	CredentialID uint64
	Score        uint32
}

func (CredentialPaymentMissed) EventType() string { return TypeCredentialPaymentMissed }

func (e CredentialPaymentMissed) Event() *types.Event {
	return &types.Event{Type: TypeCredentialPaymentMissed, Attributes: map[string]string{
		"credentialId": formatUint(e.CredentialID),
		"score":        formatUint(uint64(e.Score)),
	}}
}
