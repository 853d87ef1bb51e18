// Package mongo implements cost.Ledger as an append-only MongoDB
// collection indexed by run_id and session_id, grounded on the teacher
// pack's Mongo client pattern (features/run/mongo/clients/mongo/client.go)
// adapted to an insert-only write path appropriate for immutable events; a
// narrow collection interface sits between Ledger and *mongo.Collection so
// tests can supply a fake collection without a live database.
package mongo

import (
	"context"
	"time"

	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/enginerr"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
)

const defaultOpTimeout = 5 * time.Second

// Options configures Ledger.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type eventDocument struct {
	ID               string    `bson:"_id"`
	RunID            string    `bson:"run_id"`
	SessionID        string    `bson:"session_id,omitempty"`
	Provider         string    `bson:"provider"`
	Model            string    `bson:"model"`
	PromptTokens     int       `bson:"prompt_tokens"`
	CompletionTokens int       `bson:"completion_tokens"`
	Cost             float64   `bson:"cost"`
	PricingSource    string    `bson:"pricing_source"`
	RecordedAt       time.Time `bson:"recorded_at"`
}

type collection interface {
	InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any) (cursor, error)
	Indexes() indexView
}

type indexView interface {
	CreateMany(ctx context.Context, models []mongodriver.IndexModel) ([]string, error)
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Close(ctx context.Context) error
}

// Ledger implements cost.Ledger over a MongoDB collection. Events are
// inserted, never updated, preserving the append-only invariant (I4) at
// the storage layer.
type Ledger struct {
	coll    collection
	timeout time.Duration
}

var _ cost.Ledger = (*Ledger)(nil)

// New constructs a Ledger over opts.Client, creating an index on run_id
// and session_id to serve Aggregate/AggregateSession efficiently.
func New(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.Client == nil {
		return nil, enginerr.New(enginerr.KindValidation, "mongo client is required")
	}
	if opts.Database == "" {
		return nil, enginerr.New(enginerr.KindValidation, "database name is required")
	}
	collectionName := opts.Collection
	if collectionName == "" {
		collectionName = "cost_events"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	mcoll := opts.Client.Database(opts.Database).Collection(collectionName)
	wrapped := mongoCollection{coll: mcoll}

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(idxCtx, wrapped); err != nil {
		return nil, err
	}
	return newLedgerWithCollection(wrapped, timeout), nil
}

func newLedgerWithCollection(coll collection, timeout time.Duration) *Ledger {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Ledger{coll: coll, timeout: timeout}
}

func ensureIndexes(ctx context.Context, coll collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	})
	if err != nil {
		return enginerr.Wrap(enginerr.KindDependency, "failed to create cost_events indexes", err)
	}
	return nil
}

// Append inserts e, assigning an ObjectID-derived ID and stamping
// RecordedAt if zero.
func (l *Ledger) Append(ctx context.Context, e cost.Event) (cost.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.ID = bson.NewObjectID().Hex()

	doc := eventDocument{
		ID:               e.ID,
		RunID:            e.RunID,
		SessionID:        e.SessionID,
		Provider:         e.Provider,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		Cost:             e.Cost,
		PricingSource:    string(e.PricingSource),
		RecordedAt:       e.RecordedAt,
	}
	if _, err := l.coll.InsertOne(ctx, doc); err != nil {
		return cost.Event{}, enginerr.Wrap(enginerr.KindDependency, "failed to insert cost event", err)
	}
	return e, nil
}

// Aggregate sums every event for runID.
func (l *Ledger) Aggregate(ctx context.Context, runID string) (cost.Aggregate, error) {
	return l.aggregate(ctx, bson.M{"run_id": runID})
}

// AggregateSession sums every event for sessionID.
func (l *Ledger) AggregateSession(ctx context.Context, sessionID string) (cost.Aggregate, error) {
	return l.aggregate(ctx, bson.M{"session_id": sessionID})
}

func (l *Ledger) aggregate(ctx context.Context, filter bson.M) (cost.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cur, err := l.coll.Find(ctx, filter)
	if err != nil {
		return cost.Aggregate{}, enginerr.Wrap(enginerr.KindDependency, "failed to query cost events", err)
	}
	defer cur.Close(ctx)

	agg := cost.Aggregate{ByModel: map[string]float64{}, ByProvider: map[string]float64{}}
	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return cost.Aggregate{}, enginerr.Wrap(enginerr.KindDependency, "failed to decode cost event", err)
		}
		agg.TotalCost += doc.Cost
		agg.TotalTokens += doc.PromptTokens + doc.CompletionTokens
		agg.EventCount++
		agg.ByModel[doc.Model] += doc.Cost
		agg.ByProvider[doc.Provider] += doc.Cost
	}
	return agg, nil
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc)
}

func (c mongoCollection) Find(ctx context.Context, filter any) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateMany(ctx context.Context, models []mongodriver.IndexModel) ([]string, error) {
	return v.view.CreateMany(ctx, models)
}
