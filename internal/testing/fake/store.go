package fake

import "go.dedis.ch/custody/core/store"

// InMemorySnapshot is a fake implementation of a store snapshot.
//
// - implements store.Snapshot
type InMemorySnapshot struct {
	values    map[string][]byte
	ErrRead   error
	ErrWrite  error
	ErrDelete error
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values: make(map[string][]byte),
	}
}

// NewBadSnapshot creates a new empty snapshot that will always return an error.
func NewBadSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values:    make(map[string][]byte),
		ErrRead:   fakeErr,
		ErrWrite:  fakeErr,
		ErrDelete: fakeErr,
	}
}

// Get implements store.Snapshot.
func (snap *InMemorySnapshot) Get(key []byte) ([]byte, error) {
	return snap.values[string(key)], snap.ErrRead
}

// Set implements store.Snapshot.
func (snap *InMemorySnapshot) Set(key, value []byte) error {
	snap.values[string(key)] = value

	return snap.ErrWrite
}

// Delete implements store.Snapshot.
func (snap *InMemorySnapshot) Delete(key []byte) error {
	delete(snap.values, string(key))

	return snap.ErrDelete
}

// Len returns the number of keys in the snapshot.
func (snap *InMemorySnapshot) Len() int {
	return len(snap.values)
}

// InMemoryStore is a fake store that stages on a copy of its snapshot.
//
// - implements store.Store
type InMemoryStore struct {
	*InMemorySnapshot

	ErrStage error
}

// NewStore returns a new empty store.
func NewStore() *InMemoryStore {
	return &InMemoryStore{InMemorySnapshot: NewSnapshot()}
}

// NewBadStore returns a store that fails to stage.
func NewBadStore() *InMemoryStore {
	return &InMemoryStore{InMemorySnapshot: NewSnapshot(), ErrStage: fakeErr}
}

// Stage implements store.Store.
func (s *InMemoryStore) Stage(fn func(store.Snapshot) error) (store.Undo, error) {
	if s.ErrStage != nil {
		return nil, s.ErrStage
	}

	staged := NewSnapshot()
	for k, v := range s.values {
		staged.values[k] = v
	}

	err := fn(staged)
	if err != nil {
		return nil, err
	}

	prev := s.values
	s.values = staged.values

	undo := func() error {
		s.values = prev
		return nil
	}

	return undo, nil
}
