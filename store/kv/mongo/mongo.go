// Package mongo implements kv.Store as a flat document collection keyed by
// an opaque "_id" string, grounded on the teacher pack's run-record Mongo
// client (features/run/mongo/clients/mongo/client.go): a narrow collection
// interface sits between Store and *mongo.Collection so tests can supply a
// fake collection without a live database, with upsert-on-write semantics.
package mongo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/store/kv"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultOpTimeout = 5 * time.Second

// Options configures Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type kvDocument struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

type collection interface {
	FindOne(ctx context.Context, filter any) singleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOneOptions) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any) (*mongodriver.DeleteResult, error)
	Find(ctx context.Context, filter any) (cursor, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Close(ctx context.Context) error
}

// Store implements kv.Store over a MongoDB collection. RunExclusive is
// implemented with an in-process mutex map, same as the bbolt backend: the
// per-run critical section is a property of the RuntimeHost's own
// serialization, not of the storage backend.
type Store struct {
	coll    collection
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ kv.Store = (*Store)(nil)

// New constructs a Store over opts.Client, defaulting Collection to
// "runengine_kv" and Timeout to 5s.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, enginerr.New(enginerr.KindValidation, "mongo client is required")
	}
	if opts.Database == "" {
		return nil, enginerr.New(enginerr.KindValidation, "database name is required")
	}
	collectionName := opts.Collection
	if collectionName == "" {
		collectionName = "runengine_kv"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collectionName)
	return newStoreWithCollection(mongoCollection{coll: coll}, timeout), nil
}

func newStoreWithCollection(coll collection, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{coll: coll, timeout: timeout, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Get retrieves the value stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc kvDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if err == mongodriver.ErrNoDocuments {
			return nil, false, nil
		}
		return nil, false, enginerr.Wrap(enginerr.KindDependency, "mongo get failed", err)
	}
	return doc.Value, true, nil
}

// Put upserts value at key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"_id": key}
	update := bson.M{"$set": kvDocument{ID: key, Value: value}}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return enginerr.Wrap(enginerr.KindDependency, "mongo put failed", err)
	}
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return false, enginerr.Wrap(enginerr.KindDependency, "mongo delete failed", err)
	}
	return res.DeletedCount > 0, nil
}

// List returns every key/value pair whose key has opts.Prefix, implemented
// via a regex filter anchored at the start of "_id".
func (s *Store) List(ctx context.Context, opts kv.ListOptions) (map[string][]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if opts.Prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexEscape(opts.Prefix)}
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindDependency, "mongo list failed", err)
	}
	defer cur.Close(ctx)

	out := make(map[string][]byte)
	for cur.Next(ctx) {
		var doc kvDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, enginerr.Wrap(enginerr.KindDependency, "mongo list decode failed", err)
		}
		out[doc.ID] = doc.Value
	}
	return out, nil
}

// RunExclusive serialises closures per runID using an in-process mutex. A
// nested call for the same runID from inside fn (same context chain) runs fn
// without locking again.
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

func regexEscape(s string) string {
	special := `.*+?()|[]{}^$\`
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any) singleResult {
	return c.coll.FindOne(ctx, filter)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOneOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter)
}

func (c mongoCollection) Find(ctx context.Context, filter any) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return cur, nil
}
