// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue name for seat activity messages. Reservations and cancellations
// accepted by the write side are mirrored here for downstream consumers.
const SeatActivityQueueName = "seat.activity"

// Seat activity actions.
const (
	ActionReserved             = "RESERVED"
	ActionReservationCancelled = "RESERVATION_CANCELLED"
)

// SeatActivityEvent is published when a seat reservation or cancellation is
// accepted. It contains enough information for downstream consumers to log,
// notify, or trigger analytics without querying the event journal.
type SeatActivityEvent struct {
	ShowID     string `json:"show_id"`
	ShowTitle  string `json:"show_title"`
	SeatNumber int    `json:"seat_number"`
	Action     string `json:"action"`
	OccurredAt string `json:"occurred_at"`
}
