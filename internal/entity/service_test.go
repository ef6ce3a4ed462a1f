package entity

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

func newService(t *testing.T, store eventstore.Store, cfg Config) *ShowService {
	t.Helper()
	svc := NewShowService(store, domain.FixedClock(testNow), cfg)
	t.Cleanup(svc.Stop)
	return svc
}

// flakyStore fails a fixed number of appends before delegating to the inner
// store.
type flakyStore struct {
	eventstore.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Append(ctx context.Context, id domain.ShowID, events []domain.ShowEvent) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("storage is down")
	}
	return f.Store.Append(ctx, id, events)
}

// slowStore blocks appends until released, for exercising ask timeouts.
type slowStore struct {
	eventstore.Store
	release chan struct{}
}

func (s *slowStore) Append(ctx context.Context, id domain.ShowID, events []domain.ShowEvent) error {
	<-s.release
	return s.Store.Append(ctx, id, events)
}

func TestShowService_CommandFlow(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, eventstore.NewMemoryStore(), Config{})
	id := domain.NewShowID()

	if _, err := svc.FindShowBy(ctx, id); !errors.Is(err, ErrShowNotFound) {
		t.Fatalf("find before create: err = %v, want %v", err, ErrShowNotFound)
	}

	if err := svc.CreateShow(ctx, id, "Blade Runner", 10); err != nil {
		t.Fatalf("create show: %v", err)
	}

	show, err := svc.FindShowBy(ctx, id)
	if err != nil {
		t.Fatalf("find after create: %v", err)
	}
	if show.Title != "Blade Runner" || len(show.Seats) != 10 {
		t.Fatalf("show = %+v, want title Blade Runner with 10 seats", show)
	}

	if err := svc.ReserveSeat(ctx, id, 4); err != nil {
		t.Fatalf("reserve seat 4: %v", err)
	}

	show, err = svc.FindShowBy(ctx, id)
	if err != nil {
		t.Fatalf("find after reserve: %v", err)
	}
	if show.Seats[4].Status != domain.SeatStatusReserved {
		t.Fatalf("seat 4 status = %s, want %s", show.Seats[4].Status, domain.SeatStatusReserved)
	}
	if show.AvailableSeats() != 9 {
		t.Fatalf("available seats = %d, want 9", show.AvailableSeats())
	}

	if err := svc.CancelReservation(ctx, id, 4); err != nil {
		t.Fatalf("cancel seat 4: %v", err)
	}
	show, err = svc.FindShowBy(ctx, id)
	if err != nil {
		t.Fatalf("find after cancel: %v", err)
	}
	if show.AvailableSeats() != 10 {
		t.Fatalf("available seats = %d, want 10", show.AvailableSeats())
	}
}

func TestShowService_DomainRejections(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	svc := newService(t, store, Config{})
	id := domain.NewShowID()

	err := svc.ReserveSeat(ctx, id, 1)
	var cmdErr domain.CommandError
	if !errors.As(err, &cmdErr) || cmdErr != domain.ErrShowNotExists {
		t.Fatalf("reserve before create: err = %v, want %v", err, domain.ErrShowNotExists)
	}

	if err := svc.CreateShow(ctx, id, "Alien", 5); err != nil {
		t.Fatalf("create show: %v", err)
	}
	if err := svc.CreateShow(ctx, id, "Alien", 5); !errors.Is(err, domain.ErrShowAlreadyExists) {
		t.Fatalf("second create: err = %v, want %v", err, domain.ErrShowAlreadyExists)
	}
	if err := svc.ReserveSeat(ctx, id, 99); !errors.Is(err, domain.ErrSeatNotExists) {
		t.Fatalf("reserve unknown seat: err = %v, want %v", err, domain.ErrSeatNotExists)
	}
	if err := svc.CancelReservation(ctx, id, 2); !errors.Is(err, domain.ErrSeatNotReserved) {
		t.Fatalf("cancel available seat: err = %v, want %v", err, domain.ErrSeatNotReserved)
	}

	// Rejections never reach storage: only the ShowCreated event exists.
	history, err := store.ReadAll(ctx, id)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
}

func TestShowService_ConcurrentReservesSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, eventstore.NewMemoryStore(), Config{AskTimeout: 5 * time.Second})
	id := domain.NewShowID()
	if err := svc.CreateShow(ctx, id, "Heat", 10); err != nil {
		t.Fatalf("create show: %v", err)
	}

	const callers = 25
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ReserveSeat(ctx, id, 7)
		}()
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrSeatNotAvailable):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	if rejections != callers-1 {
		t.Fatalf("rejections = %d, want %d", rejections, callers-1)
	}
}

func TestShowService_AppendFailurePoisonsEntity(t *testing.T) {
	ctx := context.Background()
	inner := eventstore.NewMemoryStore()
	store := &flakyStore{Store: inner, failures: 0}
	svc := newService(t, store, Config{})
	id := domain.NewShowID()
	if err := svc.CreateShow(ctx, id, "Seven", 5); err != nil {
		t.Fatalf("create show: %v", err)
	}

	store.mu.Lock()
	store.failures = 1
	store.mu.Unlock()

	err := svc.ReserveSeat(ctx, id, 1)
	if err == nil {
		t.Fatal("expected infrastructure error from failed append")
	}
	var cmdErr domain.CommandError
	if errors.As(err, &cmdErr) {
		t.Fatalf("append failure surfaced as domain rejection %v", cmdErr)
	}

	// The failed append must not have advanced in-memory state: the seat is
	// still available after the entity re-replays from the log.
	if err := svc.ReserveSeat(ctx, id, 1); err != nil {
		t.Fatalf("reserve after recovery: %v", err)
	}
	show, err := svc.FindShowBy(ctx, id)
	if err != nil {
		t.Fatalf("find after recovery: %v", err)
	}
	if show.Seats[1].Status != domain.SeatStatusReserved {
		t.Fatalf("seat 1 status = %s, want %s", show.Seats[1].Status, domain.SeatStatusReserved)
	}

	history, err := inner.ReadAll(ctx, id)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
}

func TestShowService_AskTimeout(t *testing.T) {
	ctx := context.Background()
	store := &slowStore{Store: eventstore.NewMemoryStore(), release: make(chan struct{})}
	svc := newService(t, store, Config{AskTimeout: 50 * time.Millisecond})
	id := domain.NewShowID()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.CreateShow(ctx, id, "Tenet", 5) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrAskTimeout) {
			t.Fatalf("err = %v, want %v", err, ErrAskTimeout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("create did not time out")
	}

	// The timeout canceled the wait, not the work: once storage responds the
	// command still takes effect.
	close(store.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := svc.FindShowBy(ctx, id); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("show never became visible after release")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
