package verifier

import (
	"fmt"

	"remitlend/crypto"
)

// Status tracks a verification request.
type Status uint8

const (
	StatusPending Status = iota
	StatusVerified
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Request is a user's ask to have a remittance account attested.
type Request struct {
	User        crypto.Address
	Provider    string
	AccountID   string
	RequestedAt uint64
	Status      Status
	// CredentialID is set once the request is verified.
	CredentialID uint64
}

// Config holds the operator allow-list and the loan manager identity.
type Config struct {
	Operators   []crypto.Address
	LoanManager crypto.Address
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Operators = append([]crypto.Address(nil), c.Operators...)
	return &clone
}

// IsOperator reports whether addr is on the allow-list.
func (c *Config) IsOperator(addr crypto.Address) bool {
	if c == nil {
		return false
	}
	for _, op := range c.Operators {
		if op == addr {
			return true
		}
	}
	return false
}

// Clone returns a copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
