package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joamik/cinema-reservation/internal/domain"
	"github.com/joamik/cinema-reservation/internal/eventstore"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func createShow(t *testing.T, store *eventstore.MemoryStore, maxSeats int) domain.ShowID {
	t.Helper()
	id := domain.NewShowID()
	events, err := domain.Process(nil, domain.CreateShow{ID: id, Title: "projection test", MaxSeats: maxSeats}, domain.FixedClock(testNow))
	if err != nil {
		t.Fatalf("process create: %v", err)
	}
	if err := store.Append(context.Background(), id, events); err != nil {
		t.Fatalf("append create: %v", err)
	}
	return id
}

func appendSeatEvent(t *testing.T, store *eventstore.MemoryStore, ev domain.ShowEvent) {
	t.Helper()
	if err := store.Append(context.Background(), ev.ShowID(), []domain.ShowEvent{ev}); err != nil {
		t.Fatalf("append %T: %v", ev, err)
	}
}

func testOptions() Options {
	return Options{
		CommitBatch:    100,
		CommitInterval: 20 * time.Millisecond,
		RetryAttempts:  2,
		RetryBase:      time.Millisecond,
		RestartMin:     time.Millisecond,
		RestartMax:     10 * time.Millisecond,
		PageSize:       10,
		PollInterval:   time.Millisecond,
	}
}

func awaitView(t *testing.T, views ViewRepository, showID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		view, err := views.FindByID(context.Background(), showID)
		if err == nil && view.AvailableSeats == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("view for %s never reached %d available seats (last: %+v, err: %v)", showID, want, view, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessor_BuildsReadModel(t *testing.T) {
	store := eventstore.NewMemoryStore()
	views := NewMemoryViewRepository()
	offsets := NewMemoryOffsetStore()
	proc := NewProcessor("show-view", eventstore.TagShowEvent, store, offsets, NewShowViewHandler(views), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = proc.Run(ctx) }()

	// Two seats, both reserved: the view drains to zero.
	soldOut := createShow(t, store, 2)
	appendSeatEvent(t, store, domain.SeatReserved{ID: soldOut, At: testNow, SeatNumber: 1})
	appendSeatEvent(t, store, domain.SeatReserved{ID: soldOut, At: testNow, SeatNumber: 2})
	awaitView(t, views, soldOut.String(), 0)

	// Reserve then cancel: the count returns to the full capacity.
	relisted := createShow(t, store, 20)
	appendSeatEvent(t, store, domain.SeatReserved{ID: relisted, At: testNow, SeatNumber: 1})
	appendSeatEvent(t, store, domain.SeatReservationCancelled{ID: relisted, At: testNow, SeatNumber: 1})
	awaitView(t, views, relisted.String(), 20)

	available, err := views.FindAvailable(context.Background())
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(available) != 1 || available[0].ShowID != relisted.String() {
		t.Fatalf("available = %+v, want only %s", available, relisted)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop on cancel")
	}
}

func TestProcessor_CommitsOffsetsInBatches(t *testing.T) {
	store := eventstore.NewMemoryStore()
	views := NewMemoryViewRepository()
	offsets := NewMemoryOffsetStore()
	opts := testOptions()
	opts.CommitBatch = 3
	opts.CommitInterval = time.Hour // only the batch threshold commits
	proc := NewProcessor("show-view", eventstore.TagShowEvent, store, offsets, NewShowViewHandler(views), opts)

	id := createShow(t, store, 5)
	appendSeatEvent(t, store, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 1})
	appendSeatEvent(t, store, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 2})
	appendSeatEvent(t, store, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proc.Run(ctx) }()

	awaitView(t, views, id.String(), 2)

	deadline := time.Now().Add(2 * time.Second)
	for {
		committed, err := offsets.LoadOffset(context.Background(), "show-view")
		if err != nil {
			t.Fatalf("load offset: %v", err)
		}
		// Four events were processed but only the first full batch of three
		// may be committed; the fourth waits for the next threshold.
		if committed == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("committed offset = %d, want 3", committed)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// stumblingHandler fails a configured number of times per offset before
// delegating, recording every attempt.
type stumblingHandler struct {
	inner    Handler
	mu       sync.Mutex
	failures map[uint64]int
	attempts map[uint64]int
}

func (h *stumblingHandler) Handle(ctx context.Context, env eventstore.Envelope) error {
	h.mu.Lock()
	h.attempts[env.Offset]++
	fail := h.failures[env.Offset] > 0
	if fail {
		h.failures[env.Offset]--
	}
	h.mu.Unlock()
	if fail {
		return errors.New("read model briefly unavailable")
	}
	return h.inner.Handle(ctx, env)
}

func (h *stumblingHandler) attemptsFor(offset uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[offset]
}

func TestProcessor_RetriesThenRestartsStream(t *testing.T) {
	store := eventstore.NewMemoryStore()
	views := NewMemoryViewRepository()
	offsets := NewMemoryOffsetStore()

	id := createShow(t, store, 5)
	appendSeatEvent(t, store, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 1})

	// Offset 2 (the reservation) fails three times: more than one life's
	// retry budget of two attempts, so the stream must tear down, restart
	// from the committed offset and succeed in its second life.
	handler := &stumblingHandler{
		inner:    NewShowViewHandler(views),
		failures: map[uint64]int{2: 3},
		attempts: make(map[uint64]int),
	}
	opts := testOptions()
	opts.CommitInterval = time.Hour // keep offset 1 uncommitted so the restart redelivers it
	proc := NewProcessor("show-view", eventstore.TagShowEvent, store, offsets, handler, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proc.Run(ctx) }()

	awaitView(t, views, id.String(), 4)

	if got := handler.attemptsFor(2); got != 4 {
		t.Fatalf("attempts for offset 2 = %d, want 4 (two per life)", got)
	}
	// The creation event was redelivered after the restart and absorbed by
	// the watermark: the count stayed correct regardless.
	if got := handler.attemptsFor(1); got < 2 {
		t.Fatalf("attempts for offset 1 = %d, want at least 2 (redelivery)", got)
	}
}

func TestShowViewHandler_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	views := NewMemoryViewRepository()
	handler := NewShowViewHandler(views)

	id := createShow(t, store, 3)
	appendSeatEvent(t, store, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 1})

	envs, err := store.ReadByTag(ctx, eventstore.TagShowEvent, 0, 10)
	if err != nil {
		t.Fatalf("read by tag: %v", err)
	}

	// First delivery.
	for _, env := range envs {
		if err := handler.Handle(ctx, env); err != nil {
			t.Fatalf("handle offset %d: %v", env.Offset, err)
		}
	}
	// Full redelivery from offset zero must not change the counters.
	for _, env := range envs {
		if err := handler.Handle(ctx, env); err != nil {
			t.Fatalf("redeliver offset %d: %v", env.Offset, err)
		}
	}

	view, err := views.FindByID(ctx, id.String())
	if err != nil {
		t.Fatalf("find view: %v", err)
	}
	if view.AvailableSeats != 2 {
		t.Fatalf("available seats = %d, want 2", view.AvailableSeats)
	}
}

func TestShowViewHandler_SeatEventBeforeCreation(t *testing.T) {
	ctx := context.Background()
	views := NewMemoryViewRepository()
	handler := NewShowViewHandler(views)

	env := eventstore.Envelope{
		Offset: 1,
		Event:  domain.SeatReserved{ID: domain.NewShowID(), At: testNow, SeatNumber: 1},
	}
	if err := handler.Handle(ctx, env); !errors.Is(err, ErrViewNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrViewNotFound)
	}
}

// laggingStore hides chosen offsets from tagged reads until released,
// mimicking a SQL journal where an offset is allocated at insert time but
// only becomes visible once its transaction commits.
type laggingStore struct {
	eventstore.Store
	mu     sync.Mutex
	hidden map[uint64]bool
}

func newLaggingStore(inner eventstore.Store) *laggingStore {
	return &laggingStore{Store: inner, hidden: make(map[uint64]bool)}
}

func (s *laggingStore) hide(offset uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[offset] = true
}

func (s *laggingStore) release(offset uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hidden, offset)
}

func (s *laggingStore) ReadByTag(ctx context.Context, tag string, fromOffset uint64, limit int) ([]eventstore.Envelope, error) {
	envs, err := s.Store.ReadByTag(ctx, tag, fromOffset, limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var visible []eventstore.Envelope
	for _, env := range envs {
		if !s.hidden[env.Offset] {
			visible = append(visible, env)
		}
	}
	return visible, nil
}

// orderRecordingHandler records the offsets it handled, in order.
type orderRecordingHandler struct {
	inner Handler
	mu    sync.Mutex
	order []uint64
}

func (h *orderRecordingHandler) Handle(ctx context.Context, env eventstore.Envelope) error {
	h.mu.Lock()
	h.order = append(h.order, env.Offset)
	h.mu.Unlock()
	return h.inner.Handle(ctx, env)
}

func (h *orderRecordingHandler) offsets() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, len(h.order))
	copy(out, h.order)
	return out
}

func TestProcessor_WaitsForLaggingAppend(t *testing.T) {
	mem := eventstore.NewMemoryStore()
	store := newLaggingStore(mem)
	views := NewMemoryViewRepository()
	offsets := NewMemoryOffsetStore()
	handler := &orderRecordingHandler{inner: NewShowViewHandler(views)}

	opts := testOptions()
	opts.GapWait = 2 * time.Second // long enough that the test never skips

	// Creation is offset 1, the two reservations offsets 2 and 3.
	id := createShow(t, mem, 3)
	appendSeatEvent(t, mem, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 1})
	appendSeatEvent(t, mem, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 2})
	store.hide(2) // offset 2's transaction has not committed yet

	proc := NewProcessor("show-view", eventstore.TagShowEvent, store, offsets, handler, opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proc.Run(ctx) }()

	// Offset 1 is processed; offset 3 is visible beyond the hole but must
	// not be delivered while the reader holds at offset 2.
	awaitView(t, views, id.String(), 3)
	time.Sleep(50 * time.Millisecond)
	if got := handler.offsets(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("handled offsets = %v, want [1] while the hole is open", got)
	}

	// The lagging transaction lands: the stream resumes in order.
	store.release(2)
	awaitView(t, views, id.String(), 1)
	want := []uint64{1, 2, 3}
	got := handler.offsets()
	if len(got) != len(want) {
		t.Fatalf("handled offsets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handled offsets = %v, want %v", got, want)
		}
	}
}

func TestProcessor_StepsOverRolledBackOffset(t *testing.T) {
	mem := eventstore.NewMemoryStore()
	store := newLaggingStore(mem)
	views := NewMemoryViewRepository()
	offsets := NewMemoryOffsetStore()
	handler := &orderRecordingHandler{inner: NewShowViewHandler(views)}

	opts := testOptions()
	opts.GapWait = 30 * time.Millisecond

	// Creation is offset 1, the two reservations offsets 2 and 3.
	id := createShow(t, mem, 3)
	appendSeatEvent(t, mem, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 1})
	appendSeatEvent(t, mem, domain.SeatReserved{ID: id, At: testNow, SeatNumber: 2})
	store.hide(2) // this one rolled back and will never appear

	proc := NewProcessor("show-view", eventstore.TagShowEvent, store, offsets, handler, opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proc.Run(ctx) }()

	// After the wait expires the permanent hole is stepped over and the
	// rest of the stream is delivered: only the offset-3 reservation lands.
	awaitView(t, views, id.String(), 2)
	for _, offset := range handler.offsets() {
		if offset == 2 {
			t.Fatal("offset 2 was delivered although it never became visible")
		}
	}
}
