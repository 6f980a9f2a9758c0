package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists domain events in an append-only table. The sequence
// column is a bigserial so ties on timestamp within a stream replay in
// insertion order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, ev *DomainEvent) error {
	var childID any
	if ev.ChildEntityID != 0 {
		childID = ev.ChildEntityID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO domain_events (id, event_data, username, event_type, timestamp, event_stream_id, child_entity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING sequence`,
		ev.ID, ev.EventData, ev.Username, string(ev.EventType), ev.Timestamp, ev.EventStreamID, childID,
	)
	if err := row.Scan(&ev.Sequence); err != nil {
		return fmt.Errorf("append domain event: %w", err)
	}
	return nil
}

func (s *PostgresStore) StreamSince(ctx context.Context, streamID uuid.UUID, since time.Time) ([]DomainEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_data, username, event_type, timestamp, event_stream_id, child_entity_id, sequence
		FROM domain_events
		WHERE event_stream_id = $1 AND timestamp > $2
		ORDER BY timestamp ASC, sequence ASC`,
		streamID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query event stream: %w", err)
	}
	defer rows.Close()

	var out []DomainEvent
	for rows.Next() {
		var (
			ev        DomainEvent
			eventType string
			childID   *int64
		)
		if err := rows.Scan(&ev.ID, &ev.EventData, &ev.Username, &eventType, &ev.Timestamp, &ev.EventStreamID, &childID, &ev.Sequence); err != nil {
			return nil, fmt.Errorf("scan domain event: %w", err)
		}
		ev.EventType = Type(eventType)
		if childID != nil {
			ev.ChildEntityID = *childID
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event stream: %w", err)
	}
	return out, nil
}
