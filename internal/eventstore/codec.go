package eventstore

import (
	"encoding/json"
	"fmt"

	"github.com/joamik/cinema-reservation/internal/domain"
)

// Persisted event type discriminators. These strings are part of the storage
// format; renaming one breaks replay of existing logs.
const (
	TypeShowCreated              = "show.created"
	TypeSeatReserved             = "seat.reserved"
	TypeSeatReservationCancelled = "seat.reservation-cancelled"
)

// EventType returns the type discriminator persisted for event.
func EventType(event domain.ShowEvent) (string, error) {
	switch event.(type) {
	case domain.ShowCreated:
		return TypeShowCreated, nil
	case domain.SeatReserved:
		return TypeSeatReserved, nil
	case domain.SeatReservationCancelled:
		return TypeSeatReservationCancelled, nil
	default:
		return "", fmt.Errorf("unknown show event %T", event)
	}
}

// MarshalEvent serializes event to its persisted JSON payload and returns
// the payload together with its type discriminator.
func MarshalEvent(event domain.ShowEvent) (eventType string, payload []byte, err error) {
	eventType, err = EventType(event)
	if err != nil {
		return "", nil, err
	}
	payload, err = json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return eventType, payload, nil
}

// UnmarshalEvent decodes a persisted payload back into a domain event.
func UnmarshalEvent(eventType string, payload []byte) (domain.ShowEvent, error) {
	switch eventType {
	case TypeShowCreated:
		var ev domain.ShowCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return ev, nil
	case TypeSeatReserved:
		var ev domain.SeatReserved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return ev, nil
	case TypeSeatReservationCancelled:
		var ev domain.SeatReservationCancelled
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
