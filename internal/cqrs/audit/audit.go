// Package audit implements the permanent audit trail. Every mutation, every
// read attempt, and every refused action becomes one immutable AuditLogEntry,
// written by the recorder regardless of how the primary operation fared.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/event"
)

// EntryType classifies an audit entry.
type EntryType string

const (
	// EntryAccessDenied records an action the caller was refused.
	EntryAccessDenied EntryType = "AccessDenied"

	// EntryDomainEvent records a mutation that happened.
	EntryDomainEvent EntryType = "DomainEvent"

	// EntryDataAccess records a read attempt.
	EntryDataAccess EntryType = "DataAccess"
)

// Entry is one immutable audit record. EventID is deliberately NOT a foreign
// key into the event store: the audit trail and the event log must each stand
// on their own, so an entry survives even if the originating event row is
// later reinterpreted or purged.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	AuditType     EntryType  `json:"auditType"`
	EventType     event.Type `json:"domainEventType"`
	EventStreamID uuid.UUID  `json:"eventStreamId"`
	EventID       uuid.UUID  `json:"eventId"`
	DataAccess    string     `json:"dataAccessType,omitempty"`
	Username      string     `json:"username"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Store persists audit entries. Entries are append-only; there is no update
// or delete operation.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}
