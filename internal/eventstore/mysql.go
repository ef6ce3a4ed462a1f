package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joamik/cinema-reservation/internal/domain"
)

// MySQLStore persists events in the `events` table. The AUTO_INCREMENT
// primary key doubles as the global offset for tagged reads, and the
// UNIQUE(aggregate_id, seq) constraint guards against two writers racing on
// the same aggregate: the loser's transaction fails and nothing is persisted.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore constructs a MySQLStore from an open DB handle.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Append implements Store. The batch is written inside one transaction so it
// is never partially persisted. The next per-aggregate sequence number is
// read under FOR UPDATE to serialize concurrent appends to one aggregate at
// the storage level as well.
func (s *MySQLStore) Append(ctx context.Context, aggregateID domain.ShowID, events []domain.ShowEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var lastSeq uint64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = ? FOR UPDATE`,
		aggregateID.String())
	if err := row.Scan(&lastSeq); err != nil {
		return fmt.Errorf("read last seq for %s: %w", aggregateID, err)
	}

	const insert = `INSERT INTO events (aggregate_id, seq, event_type, payload, tag, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	for i, ev := range events {
		eventType, payload, err := MarshalEvent(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert,
			aggregateID.String(), lastSeq+uint64(i)+1, eventType, payload, TagShowEvent, ev.OccurredAt()); err != nil {
			return fmt.Errorf("insert event %s seq %d: %w", eventType, lastSeq+uint64(i)+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	committed = true
	return nil
}

// ReadAll implements Store.
func (s *MySQLStore) ReadAll(ctx context.Context, aggregateID domain.ShowID) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT global_offset, aggregate_id, seq, event_type, payload, tag, occurred_at
		 FROM events WHERE aggregate_id = ? ORDER BY seq ASC`,
		aggregateID.String())
	if err != nil {
		return nil, fmt.Errorf("read events for %s: %w", aggregateID, err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

// ReadByTag implements Store. Offsets come from AUTO_INCREMENT: they are
// allocated at insert time but only become visible at commit time, so under
// concurrent appends a page can contain holes where a slower transaction
// has not landed yet. Readers must not treat the highest offset in a page
// as "everything below is visible"; the projection processor holds at holes
// for a bounded wait before stepping over them.
func (s *MySQLStore) ReadByTag(ctx context.Context, tag string, fromOffset uint64, limit int) ([]Envelope, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT global_offset, aggregate_id, seq, event_type, payload, tag, occurred_at
		 FROM events WHERE tag = ? AND global_offset > ? ORDER BY global_offset ASC LIMIT ?`,
		tag, fromOffset, limit)
	if err != nil {
		return nil, fmt.Errorf("read events by tag %s: %w", tag, err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]Envelope, error) {
	var out []Envelope
	for rows.Next() {
		var (
			env         Envelope
			aggregateID string
			payload     []byte
			tag         string
		)
		if err := rows.Scan(&env.Offset, &aggregateID, &env.Seq, &env.Type, &payload, &tag, &env.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		event, err := UnmarshalEvent(env.Type, payload)
		if err != nil {
			return nil, err
		}
		env.AggregateID = domain.ShowID(aggregateID)
		env.Tags = []string{tag}
		env.Event = event
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}
