package common

import "errors"

// Ledger error kinds. Every failing entry point returns one of these (possibly
// wrapped with context) so callers can branch with errors.Is.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrMaxUtilizationExceeded = errors.New("max utilization exceeded")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidState           = errors.New("invalid state")
	ErrNotFound               = errors.New("not found")
	ErrOwnershipMismatch      = errors.New("ownership mismatch")
	ErrAlreadyInitialized     = errors.New("already initialized")
	ErrNotInitialized         = errors.New("not initialized")
	ErrAlreadyStaked          = errors.New("already staked")
	ErrNotStaked              = errors.New("not staked")
)

// Kinds lists the taxonomy in a stable order for metrics labels.
var Kinds = []error{
	ErrInvalidAmount,
	ErrInsufficientBalance,
	ErrInsufficientLiquidity,
	ErrMaxUtilizationExceeded,
	ErrUnauthorized,
	ErrInvalidState,
	ErrNotFound,
	ErrOwnershipMismatch,
	ErrAlreadyInitialized,
	ErrNotInitialized,
	ErrAlreadyStaked,
	ErrNotStaked,
	ErrModulePaused,
}

// Kind returns the taxonomy entry err wraps, or nil when err is outside it.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range Kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
