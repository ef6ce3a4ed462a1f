package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ShowID identifies a show aggregate. It is a UUID in canonical string form,
// assigned at creation and never reused.
type ShowID string

// NewShowID returns a freshly generated random ShowID.
func NewShowID() ShowID {
	return ShowID(uuid.NewString())
}

// ParseShowID validates that s is a well-formed UUID and returns it as a
// ShowID in canonical form.
func ParseShowID(s string) (ShowID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse show id %q: %w", s, err)
	}
	return ShowID(id.String()), nil
}

func (id ShowID) String() string {
	return string(id)
}

// ShowCommand is a request to mutate a single show aggregate. Each command
// carries the target ShowID so the gateway can route it to the owning
// entity. The variant set is closed; Process switches exhaustively over it.
type ShowCommand interface {
	ShowID() ShowID
	isShowCommand()
}

// CreateShow requests creation of a new show with seats 1..MaxSeats.
type CreateShow struct {
	ID       ShowID
	Title    string
	MaxSeats int
}

// ReserveSeat requests reservation of a single available seat.
type ReserveSeat struct {
	ID         ShowID
	SeatNumber SeatNumber
}

// CancelSeatReservation requests release of a previously reserved seat.
type CancelSeatReservation struct {
	ID         ShowID
	SeatNumber SeatNumber
}

func (c CreateShow) ShowID() ShowID            { return c.ID }
func (c ReserveSeat) ShowID() ShowID           { return c.ID }
func (c CancelSeatReservation) ShowID() ShowID { return c.ID }

func (CreateShow) isShowCommand()            {}
func (ReserveSeat) isShowCommand()           {}
func (CancelSeatReservation) isShowCommand() {}
