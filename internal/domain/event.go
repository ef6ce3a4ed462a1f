package domain

import "time"

// ShowEvent is an immutable fact recorded in the event log. Events are the
// only source of truth for aggregate state: Apply folds them into a Show and
// must always produce the same result for the same sequence.
type ShowEvent interface {
	ShowID() ShowID
	OccurredAt() time.Time
	isShowEvent()
}

// ShowCreated records the birth of a show. It embeds the complete initial
// seat map so that replay does not depend on the seat-generation code that
// was current when the show was created.
type ShowCreated struct {
	ID          ShowID    `json:"show_id"`
	At          time.Time `json:"occurred_at"`
	InitialShow Show      `json:"initial_show"`
}

// SeatReserved records a successful reservation of a single seat.
type SeatReserved struct {
	ID         ShowID     `json:"show_id"`
	At         time.Time  `json:"occurred_at"`
	SeatNumber SeatNumber `json:"seat_number"`
}

// SeatReservationCancelled records the release of a reserved seat.
type SeatReservationCancelled struct {
	ID         ShowID     `json:"show_id"`
	At         time.Time  `json:"occurred_at"`
	SeatNumber SeatNumber `json:"seat_number"`
}

func (e ShowCreated) ShowID() ShowID              { return e.ID }
func (e SeatReserved) ShowID() ShowID             { return e.ID }
func (e SeatReservationCancelled) ShowID() ShowID { return e.ID }

func (e ShowCreated) OccurredAt() time.Time              { return e.At }
func (e SeatReserved) OccurredAt() time.Time             { return e.At }
func (e SeatReservationCancelled) OccurredAt() time.Time { return e.At }

func (ShowCreated) isShowEvent()              {}
func (SeatReserved) isShowEvent()             {}
func (SeatReservationCancelled) isShowEvent() {}
