package kv

import (
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/mem"
	"golang.org/x/xerrors"
)

// Store is a store persisted in a bucket of a database. The updates of a stage
// are written in a single database transaction.
//
// - implements store.Store
type Store struct {
	db     DB
	bucket []byte
}

// NewStore returns a store using the bucket of the database. The bucket is
// created if necessary.
func NewStore(db DB, bucket []byte) (*Store, error) {
	err := db.Update(bucket, func(Bucket) error { return nil })
	if err != nil {
		return nil, xerrors.Errorf("failed to prepare bucket: %v", err)
	}

	s := &Store{
		db:     db,
		bucket: append([]byte{}, bucket...),
	}

	return s, nil
}

// Get implements store.Readable. It returns a copy of the value.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(s.bucket, func(b Bucket) error {
		v := b.Get(key)
		if v != nil {
			value = append([]byte{}, v...)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read db: %v", err)
	}

	return value, nil
}

// Stage implements store.Store. The function is executed on a layer reading
// the database, the updates are then committed in one write transaction.
func (s *Store) Stage(fn func(store.Snapshot) error) (store.Undo, error) {
	layer := mem.NewLayer(s)

	err := fn(layer)
	if err != nil {
		return nil, err
	}

	var inv *mem.Layer

	err = s.db.Update(s.bucket, func(b Bucket) error {
		snap := bucketSnapshot{Bucket: b}

		inv, err = layer.Inverse(snap)
		if err != nil {
			return err
		}

		return layer.Apply(snap)
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to commit: %v", err)
	}

	undo := func() error {
		err := s.db.Update(s.bucket, func(b Bucket) error {
			return inv.Apply(bucketSnapshot{Bucket: b})
		})
		if err != nil {
			return xerrors.Errorf("failed to revert: %v", err)
		}

		return nil
	}

	return undo, nil
}

// bucketSnapshot exposes a bucket of a writable transaction as a snapshot.
//
// - implements store.Snapshot
type bucketSnapshot struct {
	Bucket
}

// Get implements store.Readable.
func (s bucketSnapshot) Get(key []byte) ([]byte, error) {
	return s.Bucket.Get(key), nil
}
