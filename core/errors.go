package core

import "golang.org/x/xerrors"

// The error kinds of the ledger. Operations wrap one of them so that callers
// can classify a failure with errors.Is.
var (
	// ErrInvalidInput is returned when an argument is malformed or out of
	// bounds.
	ErrInvalidInput = xerrors.New("invalid input")

	// ErrNotFound is returned when the referenced account, auction, listing or
	// offer does not exist. It is a refinement of an invalid input.
	ErrNotFound = xerrors.New("not found")

	// ErrUnauthorized is returned when the caller lacks the role required by
	// the operation.
	ErrUnauthorized = xerrors.New("unauthorized")

	// ErrAccountFrozen is returned when a frozen account tries to move funds.
	ErrAccountFrozen = xerrors.New("account frozen")

	// ErrInsufficientFunds is returned when a balance cannot cover a debit.
	ErrInsufficientFunds = xerrors.New("insufficient funds")

	// ErrLimitExceeded is returned when a rate or size limit would be crossed.
	ErrLimitExceeded = xerrors.New("limit exceeded")

	// ErrAlreadyFinalized is returned when a terminal auction, listing or offer
	// is asked to transition again.
	ErrAlreadyFinalized = xerrors.New("already finalized")

	// ErrReentrancyDetected is returned when a protected operation is entered
	// while another one is in progress in the same call chain.
	ErrReentrancyDetected = xerrors.New("reentrancy detected")

	// ErrArithmeticOverflow is returned when a checked arithmetic operation
	// cannot represent its result.
	ErrArithmeticOverflow = xerrors.New("arithmetic overflow")

	// ErrExternalCallFailed is returned when an outbound transfer fails.
	ErrExternalCallFailed = xerrors.New("external call failed")
)
