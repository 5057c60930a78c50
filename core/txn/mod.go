// Package txn defines the abstraction of transactions.
//
// A transaction is the input of a state-mutating operation. Besides the
// arguments of the operation, it carries what the environment supplies: the
// calling principal, the value attached to the call and the logical clock.
// The clock is made of a height, against which the deadlines are evaluated,
// and a time in seconds used for the daily withdrawal buckets.
package txn

import (
	"strconv"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"golang.org/x/xerrors"
)

// Transaction is what triggers an operation by passing it as part of the
// input.
type Transaction interface {
	// GetID returns the unique identifier for the transaction.
	GetID() []byte

	// GetIdentity returns the principal that created the transaction.
	GetIdentity() access.Principal

	// GetValue returns the value attached to the transaction.
	GetValue() uint64

	// GetHeight returns the logical height at which the transaction executes.
	GetHeight() uint64

	// GetTime returns the logical time in seconds at which the transaction
	// executes.
	GetTime() uint64

	// GetArg is a getter for the arguments of the transaction.
	GetArg(key string) []byte
}

// Arg is a generic argument that can be stored in a transaction.
type Arg struct {
	Key   string
	Value []byte
}

// GetUint returns the argument parsed as a decimal unsigned number.
func GetUint(tx Transaction, key string) (uint64, error) {
	arg := tx.GetArg(key)
	if len(arg) == 0 {
		return 0, xerrors.Errorf("missing argument '%s': %w", key, core.ErrInvalidInput)
	}

	value, err := strconv.ParseUint(string(arg), 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("malformed argument '%s': %w", key, core.ErrInvalidInput)
	}

	return value, nil
}

// GetOptionalUint returns the argument parsed as a decimal unsigned number, or
// zero when the argument is not set.
func GetOptionalUint(tx Transaction, key string) (uint64, error) {
	if len(tx.GetArg(key)) == 0 {
		return 0, nil
	}

	return GetUint(tx, key)
}

// GetPrincipal returns the argument as a valid principal.
func GetPrincipal(tx Transaction, key string) (access.Principal, error) {
	p := access.Principal(tx.GetArg(key))
	if !p.Valid() {
		return p, xerrors.Errorf("invalid principal '%s' in argument '%s': %w", p, key,
			core.ErrInvalidInput)
	}

	return p, nil
}
