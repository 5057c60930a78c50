// Package mem implements an in-memory store and the staging layer used by the
// store implementations.
package mem

import (
	"sort"
	"sync"

	"go.dedis.ch/custody/core/store"
	"golang.org/x/xerrors"
)

type item struct {
	value   []byte
	deleted bool
}

// Layer is a writable snapshot on top of a readable parent. It keeps the
// updates in an internal map and only reads the parent when a key has not been
// touched.
//
// - implements store.Snapshot
type Layer struct {
	parent store.Readable
	items  map[string]item
}

// NewLayer returns an empty layer on top of the parent.
func NewLayer(parent store.Readable) *Layer {
	return &Layer{
		parent: parent,
		items:  make(map[string]item),
	}
}

// Get implements store.Readable.
func (l *Layer) Get(key []byte) ([]byte, error) {
	it, found := l.items[string(key)]
	if found {
		if it.deleted {
			return nil, nil
		}

		return it.value, nil
	}

	if l.parent == nil {
		return nil, nil
	}

	val, err := l.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to read parent: %v", err)
	}

	return val, nil
}

// Set implements store.Writable.
func (l *Layer) Set(key, value []byte) error {
	if len(key) == 0 {
		return xerrors.New("empty key")
	}

	l.items[string(key)] = item{value: append([]byte{}, value...)}

	return nil
}

// Delete implements store.Writable.
func (l *Layer) Delete(key []byte) error {
	l.items[string(key)] = item{deleted: true}

	return nil
}

// Len returns the number of keys touched by the layer.
func (l *Layer) Len() int {
	return len(l.items)
}

// Apply writes the updates of the layer into the given snapshot in a
// deterministic order.
func (l *Layer) Apply(dst store.Writable) error {
	keys := make([]string, 0, len(l.items))
	for k := range l.items {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		it := l.items[k]

		var err error
		if it.deleted {
			err = dst.Delete([]byte(k))
		} else {
			err = dst.Set([]byte(k), it.value)
		}

		if err != nil {
			return xerrors.Errorf("failed to apply key %#x: %v", k, err)
		}
	}

	return nil
}

// Inverse returns a layer that restores the values the updates would
// overwrite in the source.
func (l *Layer) Inverse(src store.Readable) (*Layer, error) {
	inv := NewLayer(nil)

	for k := range l.items {
		prev, err := src.Get([]byte(k))
		if err != nil {
			return nil, xerrors.Errorf("failed to read key %#x: %v", k, err)
		}

		if prev == nil {
			inv.items[k] = item{deleted: true}
		} else {
			inv.items[k] = item{value: append([]byte{}, prev...)}
		}
	}

	return inv, nil
}

// Store is an in-memory implementation of a store.
//
// - implements store.Store
type Store struct {
	sync.RWMutex

	data map[string][]byte
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Get implements store.Readable. It returns a copy of the value.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	val, found := s.data[string(key)]
	if !found {
		return nil, nil
	}

	return append([]byte{}, val...), nil
}

// Stage implements store.Store. The function runs without holding the lock so
// that it can read the store, the updates are applied afterwards in one step.
func (s *Store) Stage(fn func(store.Snapshot) error) (store.Undo, error) {
	layer := NewLayer(s)

	err := fn(layer)
	if err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	inv, err := layer.Inverse(unlocked{s})
	if err != nil {
		return nil, xerrors.Errorf("failed to prepare undo: %v", err)
	}

	err = layer.Apply(unlocked{s})
	if err != nil {
		return nil, xerrors.Errorf("failed to commit: %v", err)
	}

	undo := func() error {
		s.Lock()
		defer s.Unlock()

		return inv.Apply(unlocked{s})
	}

	return undo, nil
}

// Len returns the number of keys in the store.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.data)
}

// unlocked gives access to the map of a store for which the caller already
// holds the lock.
type unlocked struct {
	s *Store
}

func (u unlocked) Get(key []byte) ([]byte, error) {
	return u.s.data[string(key)], nil
}

func (u unlocked) Set(key, value []byte) error {
	u.s.data[string(key)] = value

	return nil
}

func (u unlocked) Delete(key []byte) error {
	delete(u.s.data, string(key))

	return nil
}
