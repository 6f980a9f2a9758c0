package audit

import (
	"context"
	"database/sql"
	"fmt"

	// Postgres driver for database/sql.
	_ "github.com/lib/pq"
)

// PostgresStore persists audit entries via database/sql. The audit trail
// lives in its own table with no foreign keys into the event store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	var dataAccess any
	if entry.DataAccess != "" {
		dataAccess = entry.DataAccess
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, audit_type, event_type, event_stream_id, event_id, data_access_type, username, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, string(entry.AuditType), string(entry.EventType), entry.EventStreamID,
		entry.EventID, dataAccess, entry.Username, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
