package handler // handler package contains the HTTP handlers for shows

import (
	"context"  // context carries request deadlines to the gateway
	"errors"   // errors unwraps domain rejections from gateway errors
	"log"      // log reports best-effort publish failures
	"net/http" // http defines status codes
	"sort"     // sort orders seats in responses
	"strconv"  // strconv converts path params to integers
	"strings"  // strings helps with trimming and normalizing input
	"time"     // time formats event timestamps for queue messages

	"github.com/labstack/echo/v4" // echo provides the web context and JSON helpers

	"github.com/joamik/cinema-reservation/internal/domain"
	"github.com/joamik/cinema-reservation/internal/entity"
	"github.com/joamik/cinema-reservation/internal/projection"
	"github.com/joamik/cinema-reservation/internal/queue"
)

// Seat actions accepted by the PATCH endpoint.
const (
	actionReserve           = "RESERVE"
	actionCancelReservation = "CANCEL_RESERVATION"
)

// ShowHandler exposes the command and query endpoints for shows. Commands
// go through the gateway to the single-writer entities; the list endpoint
// reads from the projection's read model instead of replaying aggregates.
type ShowHandler struct {
	Shows *entity.ShowService       // command gateway to show entities
	Views projection.ViewRepository // read model for availability queries

	// PublishActivity mirrors accepted seat commands to the message broker.
	// Publishing is best effort: failures are logged, never surfaced to the
	// client. Nil disables publishing (used in tests).
	PublishActivity func(ctx context.Context, event queue.SeatActivityEvent) error
}

// NewShowHandler wires a handler with the default queue publisher.
func NewShowHandler(shows *entity.ShowService, views projection.ViewRepository) *ShowHandler {
	return &ShowHandler{
		Shows:           shows,
		Views:           views,
		PublishActivity: queue.PublishSeatActivity,
	}
}

// seatResponse is one seat in a show response.
type seatResponse struct {
	Number     int    `json:"number"`
	Status     string `json:"status"`
	PriceCents uint32 `json:"price_cents"`
}

// showResponse is the JSON shape of a show returned by GET and POST.
type showResponse struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	AvailableSeats int            `json:"available_seats"`
	Seats          []seatResponse `json:"seats"`
}

func toShowResponse(show *domain.Show) showResponse {
	seats := make([]seatResponse, 0, len(show.Seats))
	for _, seat := range show.Seats {
		seats = append(seats, seatResponse{
			Number:     int(seat.Number),
			Status:     string(seat.Status),
			PriceCents: seat.PriceCents,
		})
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].Number < seats[j].Number })
	return showResponse{
		ID:             string(show.ID),
		Title:          show.Title,
		AvailableSeats: show.AvailableSeats(),
		Seats:          seats,
	}
}

// CreateShow handles POST /v1/shows. It creates a show aggregate with the
// requested number of seats. The ID may be supplied by the client for
// idempotent retries; when omitted a fresh one is generated.
func (h *ShowHandler) CreateShow(c echo.Context) error {
	var body struct {
		ID       string `json:"id"`        // optional client-supplied show ID
		Title    string `json:"title"`     // movie title
		MaxSeats int    `json:"max_seats"` // number of seats to create
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}

	var id domain.ShowID
	if body.ID != "" {
		parsed, err := domain.ParseShowID(body.ID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid show id"})
		}
		id = parsed
	} else {
		id = domain.NewShowID()
	}

	if err := h.Shows.CreateShow(c.Request().Context(), id, title, body.MaxSeats); err != nil {
		return h.writeCommandError(c, err)
	}

	show, err := h.Shows.FindShowBy(c.Request().Context(), id)
	if err != nil {
		// The command was accepted; return the ID even if the follow-up read fails.
		return c.JSON(http.StatusCreated, map[string]string{"id": string(id)})
	}
	return c.JSON(http.StatusCreated, toShowResponse(show))
}

// GetShow handles GET /v1/shows/:id and returns the current aggregate state.
func (h *ShowHandler) GetShow(c echo.Context) error {
	id, err := domain.ParseShowID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid show id"})
	}
	show, err := h.Shows.FindShowBy(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "show not found"})
		}
		return h.writeCommandError(c, err)
	}
	return c.JSON(http.StatusOK, toShowResponse(show))
}

// PatchSeat handles PATCH /v1/shows/:id/seats/:seatNumber. The body carries
// an action: RESERVE or CANCEL_RESERVATION. Accepted commands reply 202; the
// read model catches up asynchronously.
func (h *ShowHandler) PatchSeat(c echo.Context) error {
	id, err := domain.ParseShowID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid show id"})
	}
	seatNumber, err := strconv.Atoi(c.Param("seatNumber"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid seat number"})
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	action := strings.ToUpper(strings.TrimSpace(body.Action))
	switch action {
	case actionReserve:
		err = h.Shows.ReserveSeat(c.Request().Context(), id, domain.SeatNumber(seatNumber))
	case actionCancelReservation:
		err = h.Shows.CancelReservation(c.Request().Context(), id, domain.SeatNumber(seatNumber))
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported action"})
	}
	if err != nil {
		return h.writeCommandError(c, err)
	}

	h.publishActivity(c.Request().Context(), id, seatNumber, action)
	return c.JSON(http.StatusAccepted, map[string]string{"id": string(id), "action": action})
}

// ListShows handles GET /v1/shows and returns availability from the read
// model. The list lags the write side by at most the projection delay.
func (h *ShowHandler) ListShows(c echo.Context) error {
	views, err := h.Views.FindAvailable(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load shows"})
	}
	items := make([]map[string]any, 0, len(views))
	for _, v := range views {
		items = append(items, map[string]any{
			"show_id":         v.ShowID,
			"available_seats": v.AvailableSeats,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// publishActivity mirrors an accepted seat command to the broker. Title is
// looked up best effort; an empty title is acceptable in the message.
func (h *ShowHandler) publishActivity(ctx context.Context, id domain.ShowID, seatNumber int, action string) {
	if h.PublishActivity == nil {
		return
	}
	title := ""
	if show, err := h.Shows.FindShowBy(ctx, id); err == nil {
		title = show.Title
	}
	queueAction := queue.ActionReserved
	if action == actionCancelReservation {
		queueAction = queue.ActionReservationCancelled
	}
	event := queue.SeatActivityEvent{
		ShowID:     string(id),
		ShowTitle:  title,
		SeatNumber: seatNumber,
		Action:     queueAction,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.PublishActivity(ctx, event); err != nil {
		log.Printf("show-handler: publish seat activity failed: %v", err)
	}
}

// writeCommandError translates gateway errors into HTTP responses. Domain
// rejections map to 4xx with the rejection code in the body; an ask timeout
// maps to 504 because the command may still complete; anything else is a 500.
func (h *ShowHandler) writeCommandError(c echo.Context, err error) error {
	var cmdErr domain.CommandError
	if errors.As(err, &cmdErr) {
		status := http.StatusBadRequest
		switch cmdErr {
		case domain.ErrShowNotExists:
			status = http.StatusNotFound
		case domain.ErrShowAlreadyExists:
			status = http.StatusConflict
		}
		return c.JSON(status, map[string]string{"error": string(cmdErr)})
	}
	if errors.Is(err, entity.ErrAskTimeout) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "command timed out, outcome unknown"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
