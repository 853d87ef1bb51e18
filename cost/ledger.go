// Package cost implements the append-only CostEvent ledger, the pricing
// rate table, and the pricing resolver, per spec.md §4.9.
package cost

import (
	"context"
	"sync"
	"time"
)

// PricingSource records where a CostEvent's dollar figure came from.
type PricingSource string

const (
	SourceProvider PricingSource = "provider"
	SourceRegistry PricingSource = "registry"
	SourceUnknown  PricingSource = "unknown"
)

// Event is a single immutable usage record. Events are never mutated once
// appended (spec.md I4).
type Event struct {
	// ID is assigned by the Ledger implementation on Append.
	ID               string
	RunID            string
	SessionID        string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	PricingSource    PricingSource
	RecordedAt       time.Time
}

// Aggregate summarizes a run's (or session's) cost events.
type Aggregate struct {
	TotalCost   float64
	TotalTokens int
	EventCount  int
	ByModel     map[string]float64
	ByProvider  map[string]float64
}

// Ledger persists CostEvents and serves aggregate queries. Implementations
// must guarantee append-only semantics: Aggregate(runID).TotalCost always
// equals the sum of that run's appended events' Cost (I4).
type Ledger interface {
	Append(ctx context.Context, e Event) (Event, error)
	Aggregate(ctx context.Context, runID string) (Aggregate, error)
	// AggregateSession sums every event across runs sharing sessionID, used
	// by BudgetManager.loadSessionCosts.
	AggregateSession(ctx context.Context, sessionID string) (Aggregate, error)
}

// InmemLedger is a thread-safe, process-local Ledger implementation.
type InmemLedger struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// NewInmemLedger constructs an empty in-memory Ledger.
func NewInmemLedger() *InmemLedger {
	return &InmemLedger{}
}

// Append assigns a monotonic ID, stamps RecordedAt if zero, and stores the
// event. It never mutates a previously appended Event.
func (l *InmemLedger) Append(_ context.Context, e Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.ID = itoa(l.seq)
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	l.events = append(l.events, e)
	return e, nil
}

// Aggregate sums every event for runID.
func (l *InmemLedger) Aggregate(_ context.Context, runID string) (Aggregate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	agg := newAggregate()
	for _, e := range l.events {
		if e.RunID == runID {
			addToAggregate(&agg, e)
		}
	}
	return agg, nil
}

// AggregateSession sums every event across runs sharing sessionID.
func (l *InmemLedger) AggregateSession(_ context.Context, sessionID string) (Aggregate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	agg := newAggregate()
	for _, e := range l.events {
		if e.SessionID == sessionID {
			addToAggregate(&agg, e)
		}
	}
	return agg, nil
}

func newAggregate() Aggregate {
	return Aggregate{ByModel: map[string]float64{}, ByProvider: map[string]float64{}}
}

func addToAggregate(agg *Aggregate, e Event) {
	agg.TotalCost += e.Cost
	agg.TotalTokens += e.PromptTokens + e.CompletionTokens
	agg.EventCount++
	agg.ByModel[e.Model] += e.Cost
	agg.ByProvider[e.Provider] += e.Cost
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
