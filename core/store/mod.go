// Package store defines the primitives of a simple key/value storage.
//
// Every ledger operation runs against a staged snapshot. The writes only reach
// the store once the operation succeeds, which gives the all-or-nothing
// semantic to the operations. A committed stage can be reverted with the undo
// function, which is how an operation compensates when its outbound transfer
// fails.
package store

// Readable is the interface for a readable store. A missing key returns a nil
// value and no error.
type Readable interface {
	Get(key []byte) ([]byte, error)
}

// Writable is the interface for a writable store.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Snapshot is a state of the store that can be read and write independently. A
// write is applied only to the snapshot reference.
type Snapshot interface {
	Readable
	Writable
}

// Undo restores the values overwritten by a committed stage.
type Undo func() error

// Store is a readable store that applies staged writes atomically.
type Store interface {
	Readable

	// Stage executes the function on a snapshot of the store. The writes are
	// applied to the store only if the function returns nil. The undo function
	// restores the previous values of the keys written by the stage.
	Stage(fn func(Snapshot) error) (Undo, error)
}
