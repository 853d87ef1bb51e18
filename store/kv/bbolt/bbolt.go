// Package bbolt implements kv.Store on an embedded, single-file BoltDB
// database, grounded on the teacher pack's WorkflowStore
// (orchestrator/persistence.go): a single bucket holding opaque
// key/value pairs, with an in-process mutex map standing in for
// RunExclusive since BoltDB's own transactions don't span the duration of
// an entire run's execution.
package bbolt

import (
	"context"
	"sync"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/store/kv"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("runengine")

var _ kv.Store = (*Store)(nil)

// Store wraps a bbolt.DB as a kv.Store.
type Store struct {
	db *bolt.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if necessary) a BoltDB file at path and ensures the
// engine's bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindDependency, "failed to open bbolt database", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, enginerr.Wrap(enginerr.KindDependency, "failed to create bucket", err)
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored at key, or found=false if absent.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, enginerr.Wrap(enginerr.KindDependency, "bbolt get failed", err)
	}
	return value, value != nil, nil
}

// Put stores value at key, overwriting any previous value.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
	if err != nil {
		return enginerr.Wrap(enginerr.KindDependency, "bbolt put failed", err)
	}
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		existed = b.Get([]byte(key)) != nil
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, enginerr.Wrap(enginerr.KindDependency, "bbolt delete failed", err)
	}
	return existed, nil
}

// List returns every key/value pair whose key has opts.Prefix.
func (s *Store) List(_ context.Context, opts kv.ListOptions) (map[string][]byte, error) {
	prefix := []byte(opts.Prefix)
	out := make(map[string][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			out[string(k)] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindDependency, "bbolt list failed", err)
	}
	return out, nil
}

// RunExclusive serialises closures per runID using an in-process mutex,
// mirroring the host's own executionQueue semantics for a backend that has
// no notion of a long-lived distributed lock. A nested call for the same
// runID from inside fn (same context chain) runs fn without locking again.
func (s *Store) RunExclusive(ctx context.Context, runID string, fn func(ctx context.Context) error) error {
	type heldKey struct {
		store *Store
		runID string
	}
	key := heldKey{store: s, runID: runID}
	if held, _ := ctx.Value(key).(bool); held {
		return fn(ctx)
	}
	lock := s.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()
	return fn(context.WithValue(ctx, key, true))
}

func (s *Store) lockFor(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[runID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[runID] = lock
	}
	return lock
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i := range prefix {
		if data[i] != prefix[i] {
			return false
		}
	}
	return true
}
