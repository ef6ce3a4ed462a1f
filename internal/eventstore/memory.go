package eventstore

import (
	"context"
	"sync"

	"github.com/joamik/cinema-reservation/internal/domain"
)

// MemoryStore is an in-process Store used by tests and single-node setups
// that do not need durability. All operations are guarded by one mutex; the
// global log slice preserves append order, which makes offsets trivially
// monotonic.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[domain.ShowID][]Envelope
	log     []Envelope
	offset  uint64
}

// NewMemoryStore returns an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[domain.ShowID][]Envelope)}
}

// Append implements Store. The whole batch is enveloped before anything is
// committed, so a codec failure persists nothing.
func (s *MemoryStore) Append(ctx context.Context, aggregateID domain.ShowID, events []domain.ShowEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := uint64(len(s.streams[aggregateID]))
	batch := make([]Envelope, 0, len(events))
	for i, ev := range events {
		eventType, err := EventType(ev)
		if err != nil {
			return err
		}
		batch = append(batch, Envelope{
			AggregateID: aggregateID,
			Seq:         seq + uint64(i) + 1,
			Offset:      s.offset + uint64(i) + 1,
			Type:        eventType,
			Timestamp:   ev.OccurredAt(),
			Tags:        []string{TagShowEvent},
			Event:       ev,
		})
	}

	s.streams[aggregateID] = append(s.streams[aggregateID], batch...)
	s.log = append(s.log, batch...)
	s.offset += uint64(len(batch))
	return nil
}

// ReadAll implements Store.
func (s *MemoryStore) ReadAll(ctx context.Context, aggregateID domain.ShowID) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	out := make([]Envelope, len(stream))
	copy(out, stream)
	return out, nil
}

// ReadByTag implements Store.
func (s *MemoryStore) ReadByTag(ctx context.Context, tag string, fromOffset uint64, limit int) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Envelope
	for _, env := range s.log {
		if env.Offset <= fromOffset {
			continue
		}
		if !hasTag(env.Tags, tag) {
			continue
		}
		out = append(out, env)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
