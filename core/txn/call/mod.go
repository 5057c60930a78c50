// Package call implements the transaction built from the inputs of a call:
// caller, attached value, logical clock and arguments.
package call

import (
	"sort"
	"strconv"

	"github.com/rs/xid"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/txn"
)

// Transaction is a call to an operation.
//
// - implements txn.Transaction
type Transaction struct {
	id       xid.ID
	identity access.Principal
	value    uint64
	height   uint64
	time     uint64
	args     map[string][]byte
}

// TransactionOption is the type of options to create a transaction.
type TransactionOption func(*Transaction)

// WithArg is an option to set an argument with the key and the value.
func WithArg(key string, value []byte) TransactionOption {
	return func(tx *Transaction) {
		tx.args[key] = value
	}
}

// WithArgs is an option to set a list of arguments.
func WithArgs(args ...txn.Arg) TransactionOption {
	return func(tx *Transaction) {
		for _, arg := range args {
			tx.args[arg.Key] = arg.Value
		}
	}
}

// WithUint is an option to set an argument to the decimal representation of
// the number.
func WithUint(key string, value uint64) TransactionOption {
	return WithArg(key, []byte(strconv.FormatUint(value, 10)))
}

// WithValue is an option to attach value to the transaction.
func WithValue(value uint64) TransactionOption {
	return func(tx *Transaction) {
		tx.value = value
	}
}

// WithClock is an option to set the logical height and time.
func WithClock(height, time uint64) TransactionOption {
	return func(tx *Transaction) {
		tx.height = height
		tx.time = time
	}
}

// NewTransaction creates a new transaction from the caller.
func NewTransaction(caller access.Principal, opts ...TransactionOption) Transaction {
	tx := Transaction{
		id:       xid.New(),
		identity: caller,
		args:     make(map[string][]byte),
	}

	for _, opt := range opts {
		opt(&tx)
	}

	return tx
}

// GetID implements txn.Transaction.
func (t Transaction) GetID() []byte {
	return t.id.Bytes()
}

// String returns the string representation of the identifier.
func (t Transaction) String() string {
	return t.id.String()
}

// GetIdentity implements txn.Transaction.
func (t Transaction) GetIdentity() access.Principal {
	return t.identity
}

// GetValue implements txn.Transaction.
func (t Transaction) GetValue() uint64 {
	return t.value
}

// GetHeight implements txn.Transaction.
func (t Transaction) GetHeight() uint64 {
	return t.height
}

// GetTime implements txn.Transaction.
func (t Transaction) GetTime() uint64 {
	return t.time
}

// GetArgs returns the sorted list of arguments available.
func (t Transaction) GetArgs() []string {
	args := make([]string, 0, len(t.args))
	for key := range t.args {
		args = append(args, key)
	}

	sort.Strings(args)

	return args
}

// GetArg implements txn.Transaction. It returns the value of the argument if it
// is set, otherwise nil.
func (t Transaction) GetArg(key string) []byte {
	return t.args[key]
}
