package domain

import "fmt"

// Seat bounds for a show. Enforced on CreateShow only; existing shows keep
// whatever seat count their ShowCreated event recorded.
const (
	MinSeats = 2
	MaxSeats = 100
)

// InitialPriceCents is the uniform price assigned to every seat at creation.
const InitialPriceCents uint32 = 10_000

// SeatNumber identifies a seat within a single show, contiguous from 1.
type SeatNumber int

// SeatStatus is the reservation state of a seat. Transitions happen only in
// Apply, never directly in command handling.
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusReserved  SeatStatus = "RESERVED"
)

// Seat is one seat in a show's seat map.
type Seat struct {
	Number     SeatNumber `json:"number"`
	Status     SeatStatus `json:"status"`
	PriceCents uint32     `json:"price_cents"`
}

// Available reports whether the seat can currently be reserved.
func (s Seat) Available() bool {
	return s.Status == SeatStatusAvailable
}

// Show is the aggregate root. A nil *Show represents the absent state: the
// aggregate before any ShowCreated event has been applied. Values returned
// by Apply are fresh snapshots; callers never mutate a Show in place.
type Show struct {
	ID    ShowID              `json:"id"`
	Title string              `json:"title"`
	Seats map[SeatNumber]Seat `json:"seats"`
}

// AvailableSeats counts seats currently in the AVAILABLE state.
func (s *Show) AvailableSeats() int {
	n := 0
	for _, seat := range s.Seats {
		if seat.Available() {
			n++
		}
	}
	return n
}

// Process validates command against the current state and returns the events
// it gives rise to. It is pure: no I/O, no mutation, time comes from clock.
// A nil show is the absent state and accepts only CreateShow. Rejections are
// CommandError values; no events are emitted alongside a rejection.
func Process(show *Show, command ShowCommand, clock Clock) ([]ShowEvent, error) {
	switch cmd := command.(type) {
	case CreateShow:
		return processCreateShow(show, cmd, clock)
	case ReserveSeat:
		return processReserveSeat(show, cmd, clock)
	case CancelSeatReservation:
		return processCancelReservation(show, cmd, clock)
	default:
		return nil, fmt.Errorf("unknown show command %T", command)
	}
}

func processCreateShow(show *Show, cmd CreateShow, clock Clock) ([]ShowEvent, error) {
	if show != nil {
		return nil, ErrShowAlreadyExists
	}
	if cmd.MaxSeats < MinSeats {
		return nil, ErrTooFewSeats
	}
	if cmd.MaxSeats > MaxSeats {
		return nil, ErrTooManySeats
	}
	created := ShowCreated{
		ID: cmd.ID,
		At: clock.Now(),
		InitialShow: Show{
			ID:    cmd.ID,
			Title: cmd.Title,
			Seats: createSeats(cmd.MaxSeats),
		},
	}
	return []ShowEvent{created}, nil
}

func processReserveSeat(show *Show, cmd ReserveSeat, clock Clock) ([]ShowEvent, error) {
	if show == nil {
		return nil, ErrShowNotExists
	}
	seat, ok := show.Seats[cmd.SeatNumber]
	if !ok {
		return nil, ErrSeatNotExists
	}
	if !seat.Available() {
		return nil, ErrSeatNotAvailable
	}
	return []ShowEvent{SeatReserved{ID: show.ID, At: clock.Now(), SeatNumber: cmd.SeatNumber}}, nil
}

func processCancelReservation(show *Show, cmd CancelSeatReservation, clock Clock) ([]ShowEvent, error) {
	if show == nil {
		return nil, ErrShowNotExists
	}
	seat, ok := show.Seats[cmd.SeatNumber]
	if !ok {
		return nil, ErrSeatNotExists
	}
	if seat.Available() {
		return nil, ErrSeatNotReserved
	}
	return []ShowEvent{SeatReservationCancelled{ID: show.ID, At: clock.Now(), SeatNumber: cmd.SeatNumber}}, nil
}

// Apply folds a single event into the state and returns the next state as a
// new snapshot. It is deterministic and side-effect free. An event that does
// not fit the current state (ShowCreated on a present show, a seat event on
// an absent show or for an unknown seat) indicates a corrupt or mis-routed
// event log; Apply refuses it with an error instead of guessing.
func Apply(show *Show, event ShowEvent) (*Show, error) {
	switch ev := event.(type) {
	case ShowCreated:
		if show != nil {
			return nil, fmt.Errorf("apply ShowCreated: show %s already exists", show.ID)
		}
		return cloneShow(&ev.InitialShow), nil
	case SeatReserved:
		return applySeatStatus(show, ev.SeatNumber, SeatStatusReserved, "SeatReserved")
	case SeatReservationCancelled:
		return applySeatStatus(show, ev.SeatNumber, SeatStatusAvailable, "SeatReservationCancelled")
	default:
		return nil, fmt.Errorf("unknown show event %T", event)
	}
}

// Replay rebuilds aggregate state by folding events in order, starting from
// the absent state. Returns nil for an empty history.
func Replay(events []ShowEvent) (*Show, error) {
	var show *Show
	for i, ev := range events {
		next, err := Apply(show, ev)
		if err != nil {
			return nil, fmt.Errorf("replay event %d: %w", i, err)
		}
		show = next
	}
	return show, nil
}

func applySeatStatus(show *Show, number SeatNumber, status SeatStatus, event string) (*Show, error) {
	if show == nil {
		return nil, fmt.Errorf("apply %s: show does not exist", event)
	}
	if _, ok := show.Seats[number]; !ok {
		return nil, fmt.Errorf("apply %s: show %s has no seat %d", event, show.ID, number)
	}
	next := cloneShow(show)
	seat := next.Seats[number]
	seat.Status = status
	next.Seats[number] = seat
	return next, nil
}

func cloneShow(show *Show) *Show {
	seats := make(map[SeatNumber]Seat, len(show.Seats))
	for n, seat := range show.Seats {
		seats[n] = seat
	}
	return &Show{ID: show.ID, Title: show.Title, Seats: seats}
}

// createSeats builds the contiguous seat map 1..maxSeats, all available at
// the uniform initial price.
func createSeats(maxSeats int) map[SeatNumber]Seat {
	seats := make(map[SeatNumber]Seat, maxSeats)
	for n := 1; n <= maxSeats; n++ {
		seats[SeatNumber(n)] = Seat{
			Number:     SeatNumber(n),
			Status:     SeatStatusAvailable,
			PriceCents: InitialPriceCents,
		}
	}
	return seats
}
