package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MySQLViewRepository stores the read model in the show_views table. Every
// mutation is guarded by the row's last_offset watermark so redelivered
// events never double-apply.
type MySQLViewRepository struct {
	db *sql.DB
}

// NewMySQLViewRepository constructs a repository from an open DB handle.
func NewMySQLViewRepository(db *sql.DB) *MySQLViewRepository {
	return &MySQLViewRepository{db: db}
}

// Save implements ViewRepository. A redelivered creation leaves the seat
// count of an existing row untouched but still advances its watermark, the
// same insert-if-absent semantics the memory backend has.
func (r *MySQLViewRepository) Save(ctx context.Context, showID string, availableSeats int, offset uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO show_views (show_id, available_seats, last_offset) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE last_offset = GREATEST(last_offset, VALUES(last_offset))`,
		showID, availableSeats, offset)
	if err != nil {
		return fmt.Errorf("save show view %s: %w", showID, err)
	}
	return nil
}

// DecrementAvailability implements ViewRepository.
func (r *MySQLViewRepository) DecrementAvailability(ctx context.Context, showID string, offset uint64) error {
	return r.adjust(ctx, showID, -1, offset)
}

// IncrementAvailability implements ViewRepository.
func (r *MySQLViewRepository) IncrementAvailability(ctx context.Context, showID string, offset uint64) error {
	return r.adjust(ctx, showID, +1, offset)
}

// adjust applies a relative change only when the event's offset is newer
// than the row's watermark; the WHERE clause makes redelivery a no-op.
func (r *MySQLViewRepository) adjust(ctx context.Context, showID string, delta int, offset uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE show_views
		 SET available_seats = available_seats + ?, last_offset = ?
		 WHERE show_id = ? AND last_offset < ?`,
		delta, offset, showID, offset)
	if err != nil {
		return fmt.Errorf("adjust show view %s: %w", showID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust show view %s: rows affected: %w", showID, err)
	}
	if affected == 0 {
		// Either the row does not exist yet or the offset was already
		// applied. Distinguish so that a genuinely missing row fails and
		// gets retried after the creation event lands.
		var exists bool
		row := r.db.QueryRowContext(ctx, `SELECT 1 FROM show_views WHERE show_id = ?`, showID)
		if err := row.Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("adjust show view %s: %w", showID, ErrViewNotFound)
			}
			return fmt.Errorf("adjust show view %s: %w", showID, err)
		}
	}
	return nil
}

// FindByID implements ViewRepository.
func (r *MySQLViewRepository) FindByID(ctx context.Context, showID string) (ShowView, error) {
	var view ShowView
	row := r.db.QueryRowContext(ctx,
		`SELECT show_id, available_seats, last_offset FROM show_views WHERE show_id = ?`, showID)
	if err := row.Scan(&view.ShowID, &view.AvailableSeats, &view.LastOffset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ShowView{}, ErrViewNotFound
		}
		return ShowView{}, fmt.Errorf("find show view %s: %w", showID, err)
	}
	return view, nil
}

// FindAvailable implements ViewRepository.
func (r *MySQLViewRepository) FindAvailable(ctx context.Context) ([]ShowView, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT show_id, available_seats, last_offset FROM show_views
		 WHERE available_seats > 0 ORDER BY show_id`)
	if err != nil {
		return nil, fmt.Errorf("find available shows: %w", err)
	}
	defer rows.Close()

	var out []ShowView
	for rows.Next() {
		var view ShowView
		if err := rows.Scan(&view.ShowID, &view.AvailableSeats, &view.LastOffset); err != nil {
			return nil, fmt.Errorf("scan show view: %w", err)
		}
		out = append(out, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate show views: %w", err)
	}
	return out, nil
}

// MySQLOffsetStore persists committed projection offsets.
type MySQLOffsetStore struct {
	db *sql.DB
}

// NewMySQLOffsetStore constructs an offset store from an open DB handle.
func NewMySQLOffsetStore(db *sql.DB) *MySQLOffsetStore {
	return &MySQLOffsetStore{db: db}
}

// LoadOffset implements OffsetStore; an unknown projection starts at zero.
func (s *MySQLOffsetStore) LoadOffset(ctx context.Context, projectionName string) (uint64, error) {
	var offset uint64
	row := s.db.QueryRowContext(ctx,
		`SELECT current_offset FROM projection_offsets WHERE projection_name = ?`, projectionName)
	if err := row.Scan(&offset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load offset for %s: %w", projectionName, err)
	}
	return offset, nil
}

// SaveOffset implements OffsetStore.
func (s *MySQLOffsetStore) SaveOffset(ctx context.Context, projectionName string, offset uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projection_offsets (projection_name, current_offset) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE current_offset = VALUES(current_offset)`,
		projectionName, offset)
	if err != nil {
		return fmt.Errorf("save offset for %s: %w", projectionName, err)
	}
	return nil
}
