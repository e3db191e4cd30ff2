package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Store outcomes the redemption flow reacts to.
	ErrConflict  = errors.New("conditional update rejected")
	ErrDuplicate = errors.New("redemption ledger slot already taken")
	ErrTransient = errors.New("transient store failure")

	ErrCommitContention = errors.New("redemption commit kept conflicting")
	ErrIssueIncomplete  = errors.New("some codes in the batch could not be issued")
	ErrUnknownBenefit   = errors.New("unknown benefit kind")
	ErrBenefitPending   = errors.New("redemption committed but benefit not yet applied")
)
