package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/joamik/cinema-reservation/internal/domain"
	"github.com/joamik/cinema-reservation/internal/eventstore"
)

// ErrViewNotFound is returned when a show has no read-model row yet.
var ErrViewNotFound = errors.New("show view not found")

// Handler processes one envelope from the tagged stream.
type Handler interface {
	Handle(ctx context.Context, env eventstore.Envelope) error
}

// ShowViewHandler maintains available-seat counts from show events. Offsets
// travel with every mutation so redelivered events are absorbed by the
// repository's watermark instead of corrupting the counters.
type ShowViewHandler struct {
	views ViewRepository
}

// NewShowViewHandler constructs a handler over the given repository.
func NewShowViewHandler(views ViewRepository) *ShowViewHandler {
	return &ShowViewHandler{views: views}
}

// Handle implements Handler.
func (h *ShowViewHandler) Handle(ctx context.Context, env eventstore.Envelope) error {
	switch ev := env.Event.(type) {
	case domain.ShowCreated:
		return h.views.Save(ctx, ev.ShowID().String(), len(ev.InitialShow.Seats), env.Offset)
	case domain.SeatReserved:
		return h.views.DecrementAvailability(ctx, ev.ShowID().String(), env.Offset)
	case domain.SeatReservationCancelled:
		return h.views.IncrementAvailability(ctx, ev.ShowID().String(), env.Offset)
	default:
		return fmt.Errorf("show view handler: unrecognized event %T at offset %d", env.Event, env.Offset)
	}
}
