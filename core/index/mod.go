// Package index implements append-only lists persisted in a store and the
// pagination of their enumeration.
//
// The contracts keep the participants of their records in lists rather than
// iterating over an implicit range of keys, and a caller can only read them by
// pages of a bounded size.
package index

import (
	"encoding/binary"
	"fmt"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/arith"
	"go.dedis.ch/custody/core/store"
	"golang.org/x/xerrors"
)

// MaxPageSize is the maximum number of items returned by a single page.
const MaxPageSize = 100

// Page is a range of indices requested by a caller.
type Page struct {
	Offset uint64
	Limit  uint64
}

// NewPage returns a page.
func NewPage(offset, limit uint64) Page {
	return Page{Offset: offset, Limit: limit}
}

// Validate returns an error if the limit is zero or above the maximum page
// size.
func (p Page) Validate() error {
	if p.Limit == 0 {
		return xerrors.Errorf("page limit is zero: %w", core.ErrInvalidInput)
	}

	if p.Limit > MaxPageSize {
		return xerrors.Errorf("page limit %d above %d: %w", p.Limit, MaxPageSize,
			core.ErrLimitExceeded)
	}

	return nil
}

// Bounds returns the range [from, to) of the page within a list of the given
// length.
func (p Page) Bounds(length uint64) (uint64, uint64) {
	if p.Offset >= length {
		return length, length
	}

	to := length
	if length-p.Offset > p.Limit {
		to = p.Offset + p.Limit
	}

	return p.Offset, to
}

// List is an append-only list of values stored under a key prefix.
type List struct {
	prefix string
}

// NewList returns the list stored under the prefix.
func NewList(prefix string, args ...interface{}) List {
	if len(args) > 0 {
		prefix = fmt.Sprintf(prefix, args...)
	}

	return List{prefix: prefix}
}

// Len returns the number of values in the list.
func (l List) Len(snap store.Readable) (uint64, error) {
	data, err := snap.Get(l.lenKey())
	if err != nil {
		return 0, xerrors.Errorf("failed to read length of '%s': %v", l.prefix, err)
	}

	if len(data) == 0 {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, xerrors.Errorf("malformed length of '%s'", l.prefix)
	}

	return binary.BigEndian.Uint64(data), nil
}

// Append adds the value at the end of the list and returns the new length.
func (l List) Append(snap store.Snapshot, value []byte) (uint64, error) {
	length, err := l.Len(snap)
	if err != nil {
		return 0, err
	}

	next, err := arith.Add(length, 1)
	if err != nil {
		return 0, xerrors.Errorf("list '%s' is full: %w", l.prefix, err)
	}

	err = snap.Set(l.itemKey(length), value)
	if err != nil {
		return 0, xerrors.Errorf("failed to write item of '%s': %v", l.prefix, err)
	}

	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, next)

	err = snap.Set(l.lenKey(), buffer)
	if err != nil {
		return 0, xerrors.Errorf("failed to write length of '%s': %v", l.prefix, err)
	}

	return next, nil
}

// Get returns the value at the index, or a not found error if the index is out
// of the list.
func (l List) Get(snap store.Readable, i uint64) ([]byte, error) {
	data, err := snap.Get(l.itemKey(i))
	if err != nil {
		return nil, xerrors.Errorf("failed to read item of '%s': %v", l.prefix, err)
	}

	if data == nil {
		return nil, xerrors.Errorf("item %d of '%s': %w", i, l.prefix, core.ErrNotFound)
	}

	return data, nil
}

// Set replaces the value at an existing index.
func (l List) Set(snap store.Snapshot, i uint64, value []byte) error {
	length, err := l.Len(snap)
	if err != nil {
		return err
	}

	if i >= length {
		return xerrors.Errorf("item %d of '%s': %w", i, l.prefix, core.ErrNotFound)
	}

	err = snap.Set(l.itemKey(i), value)
	if err != nil {
		return xerrors.Errorf("failed to write item of '%s': %v", l.prefix, err)
	}

	return nil
}

// Range returns the values of the page.
func (l List) Range(snap store.Readable, page Page) ([][]byte, error) {
	err := page.Validate()
	if err != nil {
		return nil, err
	}

	length, err := l.Len(snap)
	if err != nil {
		return nil, err
	}

	from, to := page.Bounds(length)

	values := make([][]byte, 0, to-from)
	for i := from; i < to; i++ {
		value, err := l.Get(snap, i)
		if err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, nil
}

func (l List) lenKey() []byte {
	return []byte(l.prefix + "/len")
}

// itemKey returns the key of an item. The index is encoded in big endian so
// that the keys of a list are sorted in the order of the list.
func (l List) itemKey(i uint64) []byte {
	key := make([]byte, 0, len(l.prefix)+9)
	key = append(key, l.prefix...)
	key = append(key, '/')

	return binary.BigEndian.AppendUint64(key, i)
}
