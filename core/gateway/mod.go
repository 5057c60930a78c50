// Package gateway implements the single choke point for outbound value
// transfers.
//
// Every state-mutating operation runs inside Protect. The operation receives a
// staged snapshot and can only queue its external interactions: they are
// executed by the gateway after the staged writes are committed, which
// enforces the checks-effects-interactions ordering for every consumer. The
// gateway also owns the reentrancy lock: a receiver calling back into any
// protected operation during a transfer is rejected without mutation.
package gateway

import (
	"context"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

// Sender is the external collaborator moving value out of the ledger. A
// receiver calling back into the ledger must do it with the context it was
// given.
type Sender interface {
	Send(ctx context.Context, to access.Principal, amount uint64) error
}

// LockState is the state of the reentrancy lock.
type LockState int32

const (
	// Idle means no protected operation is running.
	Idle LockState = iota
	// Locked means a protected operation is running.
	Locked
)

func (s LockState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Mode defines how the failure of an interaction is handled.
type Mode int

const (
	// Atomic interactions belong to single-party operations: if one fails, the
	// earlier ones are compensated, the committed writes are undone and the
	// operation fails.
	Atomic Mode = iota

	// Independent interactions belong to multi-party batches: each outcome is
	// settled on its own and the batch continues.
	Independent
)

// Settle is called with the outcome of an independent interaction. It runs in
// its own protected stage; err is nil when the interaction succeeded.
type Settle func(tx *Tx, err error) error

// Compensate reverts a successful atomic interaction when a later one fails.
type Compensate func(ctx context.Context) error

type interaction struct {
	name       string
	to         access.Principal
	amount     uint64
	call       func(ctx context.Context) error
	mode       Mode
	settle     Settle
	compensate Compensate
}

// Option is the type of options when queuing an interaction.
type Option func(*interaction)

// WithSettle makes the interaction independent and sets the function called
// with its outcome.
func WithSettle(fn Settle) Option {
	return func(i *interaction) {
		i.mode = Independent
		i.settle = fn
	}
}

// WithCompensate sets the function that reverts the interaction when a later
// atomic interaction of the same operation fails.
func WithCompensate(fn Compensate) Option {
	return func(i *interaction) {
		i.compensate = fn
	}
}

// Tx is the handle of a protected operation. It embeds the staged snapshot the
// operation reads and writes, and collects the events and the interactions to
// perform once the writes are committed.
//
// - implements store.Snapshot
type Tx struct {
	store.Snapshot

	txn          txn.Transaction
	events       []core.Event
	interactions []interaction
	sealed       bool
	err          error
}

func newTx(snap store.Snapshot, t txn.Transaction) *Tx {
	return &Tx{
		Snapshot: snap,
		txn:      t,
	}
}

// GetTransaction returns the transaction being executed.
func (tx *Tx) GetTransaction() txn.Transaction {
	return tx.txn
}

// Caller returns the principal of the transaction.
func (tx *Tx) Caller() access.Principal {
	return tx.txn.GetIdentity()
}

// Height returns the logical height of the transaction.
func (tx *Tx) Height() uint64 {
	return tx.txn.GetHeight()
}

// Time returns the logical time of the transaction.
func (tx *Tx) Time() uint64 {
	return tx.txn.GetTime()
}

// Emit records an event that is published if the operation succeeds.
func (tx *Tx) Emit(typ core.EventType, subject string, principal access.Principal, amount uint64) {
	tx.events = append(tx.events, core.Event{
		Type:      typ,
		Subject:   subject,
		Principal: principal.String(),
		Amount:    amount,
		Timestamp: tx.txn.GetTime(),
	})
}

// Pay queues an outbound transfer of value. A zero amount is ignored.
func (tx *Tx) Pay(to access.Principal, amount uint64, opts ...Option) {
	if amount == 0 {
		return
	}

	tx.queue(interaction{name: "pay", to: to, amount: amount}, opts)
}

// Call queues a generic external interaction, like the transfer of an asset.
func (tx *Tx) Call(name string, fn func(ctx context.Context) error, opts ...Option) {
	tx.queue(interaction{name: name, call: fn}, opts)
}

func (tx *Tx) queue(i interaction, opts []Option) {
	if tx.sealed {
		tx.err = xerrors.Errorf("interaction '%s' queued during settlement", i.name)
		return
	}

	for _, opt := range opts {
		opt(&i)
	}

	tx.interactions = append(tx.interactions, i)
}

// Events returns the events recorded so far.
func (tx *Tx) Events() []core.Event {
	return append([]core.Event{}, tx.events...)
}

// Receipt is the outcome of a protected operation.
type Receipt struct {
	// Events are the events published by the operation and its settlements.
	Events []core.Event

	// Failures are the errors of the independent interactions that failed.
	Failures []error
}
