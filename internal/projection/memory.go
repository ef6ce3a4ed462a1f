package projection

import (
	"context"
	"sort"
	"sync"
)

// MemoryViewRepository keeps the read model in process memory. Used by
// tests and by deployments that run without MySQL; the model is rebuilt
// from the event stream on startup in that case.
type MemoryViewRepository struct {
	mu    sync.RWMutex
	views map[string]ShowView
}

// NewMemoryViewRepository returns an empty in-memory read model.
func NewMemoryViewRepository() *MemoryViewRepository {
	return &MemoryViewRepository{views: make(map[string]ShowView)}
}

// Save implements ViewRepository.
func (r *MemoryViewRepository) Save(ctx context.Context, showID string, availableSeats int, offset uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if view, ok := r.views[showID]; ok {
		// Redelivered creation: keep the row, only advance the watermark.
		if offset > view.LastOffset {
			view.LastOffset = offset
			r.views[showID] = view
		}
		return nil
	}
	r.views[showID] = ShowView{ShowID: showID, AvailableSeats: availableSeats, LastOffset: offset}
	return nil
}

// DecrementAvailability implements ViewRepository.
func (r *MemoryViewRepository) DecrementAvailability(ctx context.Context, showID string, offset uint64) error {
	return r.adjust(showID, -1, offset)
}

// IncrementAvailability implements ViewRepository.
func (r *MemoryViewRepository) IncrementAvailability(ctx context.Context, showID string, offset uint64) error {
	return r.adjust(showID, +1, offset)
}

func (r *MemoryViewRepository) adjust(showID string, delta int, offset uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[showID]
	if !ok {
		return ErrViewNotFound
	}
	if offset <= view.LastOffset {
		// Already applied; at-least-once redelivery is dropped here.
		return nil
	}
	view.AvailableSeats += delta
	view.LastOffset = offset
	r.views[showID] = view
	return nil
}

// FindByID implements ViewRepository.
func (r *MemoryViewRepository) FindByID(ctx context.Context, showID string) (ShowView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.views[showID]
	if !ok {
		return ShowView{}, ErrViewNotFound
	}
	return view, nil
}

// FindAvailable implements ViewRepository.
func (r *MemoryViewRepository) FindAvailable(ctx context.Context) ([]ShowView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ShowView
	for _, view := range r.views {
		if view.AvailableSeats > 0 {
			out = append(out, view)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShowID < out[j].ShowID })
	return out, nil
}

// MemoryOffsetStore keeps committed offsets in process memory.
type MemoryOffsetStore struct {
	mu      sync.Mutex
	offsets map[string]uint64
}

// NewMemoryOffsetStore returns an empty offset store.
func NewMemoryOffsetStore() *MemoryOffsetStore {
	return &MemoryOffsetStore{offsets: make(map[string]uint64)}
}

// LoadOffset implements OffsetStore; an unknown projection starts at zero.
func (s *MemoryOffsetStore) LoadOffset(ctx context.Context, projectionName string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[projectionName], nil
}

// SaveOffset implements OffsetStore.
func (s *MemoryOffsetStore) SaveOffset(ctx context.Context, projectionName string, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[projectionName] = offset
	return nil
}
