// Package projection consumes the tagged event stream and maintains the
// denormalized show_views read model. The read path is eventually
// consistent: it lags the write path by at most the offset-commit window or
// one retry cycle, and can always be rebuilt by replaying the stream from
// offset zero.
package projection

import "context"

// ShowView is one row of the read model: the number of available seats per
// show. It is derived data and never authoritative.
type ShowView struct {
	ShowID         string
	AvailableSeats int
	// LastOffset is the global offset of the last event applied to this
	// row. Events are delivered at least once; the repository uses this
	// watermark to drop redeliveries instead of double-counting them.
	LastOffset uint64
}

// ViewRepository stores ShowView rows. Every mutation carries the global
// offset of the event that caused it and must be a no-op when that offset
// has already been applied to the row (offset <= LastOffset).
type ViewRepository interface {
	// Save inserts a view row if absent. An existing row is left untouched
	// apart from advancing its offset watermark.
	Save(ctx context.Context, showID string, availableSeats int, offset uint64) error

	// DecrementAvailability decreases the available count by one.
	DecrementAvailability(ctx context.Context, showID string, offset uint64) error

	// IncrementAvailability increases the available count by one.
	IncrementAvailability(ctx context.Context, showID string, offset uint64) error

	// FindByID returns the row for showID, or ErrViewNotFound.
	FindByID(ctx context.Context, showID string) (ShowView, error)

	// FindAvailable lists shows that still have at least one free seat.
	FindAvailable(ctx context.Context) ([]ShowView, error)
}

// OffsetStore persists the projection's committed read position. Commits
// are batched, so on restart the stream resumes from the last committed
// offset and redelivers anything processed since.
type OffsetStore interface {
	LoadOffset(ctx context.Context, projectionName string) (uint64, error)
	SaveOffset(ctx context.Context, projectionName string, offset uint64) error
}
