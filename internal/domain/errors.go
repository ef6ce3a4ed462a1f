// Package domain contains the pure show aggregate: identifiers, commands,
// events and the Process/Apply state machine. Nothing in this package
// performs I/O; persistence and message passing live in other packages.
package domain

// CommandError is a domain-level rejection of a show command. These values
// are expected outcomes of validation, not faults: callers receive them as
// typed errors and can match them with errors.As. Infrastructure failures
// (storage, timeouts) are never represented as CommandError.
type CommandError string

const (
	ErrShowAlreadyExists CommandError = "SHOW_ALREADY_EXISTS"
	ErrShowNotExists     CommandError = "SHOW_NOT_EXISTS"
	ErrSeatNotAvailable  CommandError = "SEAT_NOT_AVAILABLE"
	ErrSeatNotReserved   CommandError = "SEAT_NOT_RESERVED"
	ErrSeatNotExists     CommandError = "SEAT_NOT_EXISTS"
	ErrTooFewSeats       CommandError = "TOO_FEW_SEATS"
	ErrTooManySeats      CommandError = "TOO_MANY_SEATS"
)

func (e CommandError) Error() string {
	return string(e)
}
