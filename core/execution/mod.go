// Package execution defines the service that executes the transactions of the
// custody.
package execution

import (
	"context"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/txn"
)

// Result is the result of an accepted transaction.
type Result struct {
	// Events are the events emitted by the transaction.
	Events []core.Event

	// Failures are the errors of the transfers of a multi-party batch that
	// failed and were recorded for a retry. The transaction itself is
	// accepted.
	Failures []error
}

// Service is the execution service that defines the primitives to execute a
// transaction.
type Service interface {
	// Execute must apply the transaction and return the result of it. A
	// rejected transaction returns an error and leaves the state untouched.
	Execute(ctx context.Context, tx txn.Transaction) (Result, error)
}
