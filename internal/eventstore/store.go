// Package eventstore persists show events as an append-only log. The store
// is the single source of truth: aggregate state is rebuilt by replaying a
// stream, and the read model can always be rebuilt from the tagged stream
// starting at offset zero.
package eventstore

import (
	"context"
	"time"

	"github.com/joamik/cinema-reservation/internal/domain"
)

// TagShowEvent is attached to every persisted show event. The projection
// consumes the tagged stream across all aggregates.
const TagShowEvent = "show-event"

// Envelope wraps a persisted event with its position in the log. Seq is the
// per-aggregate sequence number, strictly increasing from 1. Offset is the
// store-global position used by tagged reads; offsets are monotonically
// increasing and stable for a given store instance.
type Envelope struct {
	AggregateID domain.ShowID
	Seq         uint64
	Offset      uint64
	Type        string
	Timestamp   time.Time
	Tags        []string
	Event       domain.ShowEvent
}

// Store is the append/read contract shared by the entity wrapper and the
// projection processor. Persisted events are immutable; nothing is ever
// updated or deleted.
type Store interface {
	// Append atomically persists events for one aggregate in the order
	// given. A batch is persisted completely or not at all.
	Append(ctx context.Context, aggregateID domain.ShowID, events []domain.ShowEvent) error

	// ReadAll returns the full history for one aggregate in append order.
	ReadAll(ctx context.Context, aggregateID domain.ShowID) ([]Envelope, error)

	// ReadByTag returns up to limit envelopes carrying tag with
	// Offset > fromOffset, ordered by offset ascending. An empty result
	// means the caller has reached the head of the stream.
	ReadByTag(ctx context.Context, tag string, fromOffset uint64, limit int) ([]Envelope, error)
}
