package ledger

import "errors"

var (
	ErrInvalidAmount   = errors.New("invalid deposit amount")
	ErrSelfReferral    = errors.New("cannot refer yourself")
	ErrUnknownReferrer = errors.New("referrer has no deposits")
	ErrContractPaused  = errors.New("ledger is paused")
	ErrBelowMinimum    = errors.New("below minimum withdrawal")
	ErrDepositInactive = errors.New("deposit is inactive")
	ErrDepositNotFound = errors.New("deposit not found")
	ErrUnauthorized    = errors.New("caller is not the owner")
	ErrInvalidTier     = errors.New("tier index out of range")
	ErrInvalidRate     = errors.New("daily rate must be positive")
	ErrInvalidAddress  = errors.New("address is required")

	// ErrIntegrity marks a broken internal invariant detected mid-operation.
	// The operation is rolled back before it is returned.
	ErrIntegrity = errors.New("ledger integrity fault")

	// ErrCommit is returned when the persistence layer refused a change set.
	ErrCommit = errors.New("failed to commit change set")
)
