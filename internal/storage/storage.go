package storage

import (
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Reader is the read side shared by the store, snapshots and transactions.
type Reader interface {
	// Get returns the value for key, or nil if the key does not exist.
	Get(key []byte) ([]byte, error)
	// IteratePrefix visits every pair whose key starts with prefix, in key order.
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
}

// Storage provides a key-value store backed by Pebble.
// All writes go through Update and are synced before Update returns.
type Storage struct {
	db      *pebble.DB // db is the underlying Pebble database
	writeMu sync.Mutex // writeMu serializes read-modify-write transactions
}

// New creates a new Storage instance at the given path.
func New(path string) (*Storage, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20), // 32 MB cache
		MemTableSize:                16 << 20,                  // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	return getCopy(s.db.Get(key))
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
// Uses Pebble's iterator bounds for efficient prefix scanning.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(prefixOptions(prefix))
	if err != nil {
		return err
	}

	return walk(iter, fn)
}

// Update runs fn inside a read-modify-write transaction.
// Reads inside fn observe fn's own writes. Transactions are applied one at a
// time; if fn returns an error nothing it wrote becomes visible.
// Hooks registered with OnCommit run after the commit, in registration
// order, before the next transaction starts.
func (s *Storage) Update(fn func(txn *Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	txn := &Txn{batch: batch}
	if err := fn(txn); err != nil {
		return err
	}

	if !batch.Empty() {
		if err := batch.Commit(pebble.Sync); err != nil {
			return err
		}
	}

	for _, hook := range txn.onCommit {
		hook()
	}

	return nil
}

// View runs fn against a consistent point-in-time snapshot.
// It never waits for writers.
func (s *Storage) View(fn func(r Reader) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	return fn(&snapshotReader{snap: snap})
}

// Close waits for an in-flight transaction and closes the database.
func (s *Storage) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Close()
}

// Txn is an in-flight transaction created by Update.
type Txn struct {
	batch    *pebble.Batch // batch is an indexed batch over the live database
	onCommit []func()      // onCommit runs once the batch is durable
}

// OnCommit registers fn to run after the transaction commits.
// It is dropped if the transaction is discarded.
func (t *Txn) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// Get returns the value for key as seen by this transaction.
func (t *Txn) Get(key []byte) ([]byte, error) {
	return getCopy(t.batch.Get(key))
}

// Set stages a write.
func (t *Txn) Set(key, value []byte) error {
	return t.batch.Set(key, value, nil)
}

// Delete stages a deletion.
func (t *Txn) Delete(key []byte) error {
	return t.batch.Delete(key, nil)
}

// IteratePrefix visits committed and staged pairs under prefix.
func (t *Txn) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := t.batch.NewIter(prefixOptions(prefix))
	if err != nil {
		return err
	}

	return walk(iter, fn)
}

// snapshotReader adapts a Pebble snapshot to Reader.
type snapshotReader struct {
	snap *pebble.Snapshot
}

func (r *snapshotReader) Get(key []byte) ([]byte, error) {
	return getCopy(r.snap.Get(key))
}

func (r *snapshotReader) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := r.snap.NewIter(prefixOptions(prefix))
	if err != nil {
		return err
	}

	return walk(iter, fn)
}

// getCopy converts a Pebble Get result into an owned slice.
// Returns nil, nil for a missing key.
func getCopy(value []byte, closer io.Closer, err error) ([]byte, error) {
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// walk drains iter into fn and closes it.
func walk(iter *pebble.Iterator, fn func(key, value []byte) error) error {
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(key, value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixOptions bounds an iterator to keys starting with prefix.
// A nil prefix scans the whole keyspace.
func prefixOptions(prefix []byte) *pebble.IterOptions {
	if len(prefix) == 0 {
		return nil
	}

	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	}
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil // all 0xFF → unbounded
}
