// Package event defines the immutable domain event record, the explicit
// event-type registry, and the append-only event store contract.
package event

//go:generate mockgen -source=event.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type tags a domain event with both the action and the aggregate (or child)
// type it concerns, e.g. "CreateAgencyEvent". Values come from the Registry;
// nothing in the pipeline synthesizes or parses these strings at runtime.
type Type string

const (
	// TypeInvalid is the zero tag; it never appears on a persisted event.
	TypeInvalid Type = ""

	// TypeAccessDeniedAudit marks an audit notification recording a refused
	// action. It never appears in the event store.
	TypeAccessDeniedAudit Type = "AccessDeniedAuditEvent"

	// TypeDataAccessedAudit marks an audit notification recording a read.
	// It never appears in the event store.
	TypeDataAccessedAudit Type = "DataAccessedAuditLogEvent"
)

// DomainEvent is an immutable fact: created once by the command processor at
// append time, never mutated, never deleted. Sequence is assigned by the
// store on append and only breaks timestamp ties within a stream.
type DomainEvent struct {
	ID            uuid.UUID       `json:"id"`
	EventData     json.RawMessage `json:"eventData"`
	Username      string          `json:"username"`
	EventType     Type            `json:"domainEventType"`
	Timestamp     time.Time       `json:"timestamp"`
	EventStreamID uuid.UUID       `json:"eventStreamId"`
	ChildEntityID int64           `json:"childEntityId,omitempty"`
	Sequence      int64           `json:"-"`
}

// New builds a domain event stamped with the given time. The caller supplies
// the timestamp so request-scoped clocks work in tests.
func New(data json.RawMessage, username string, t Type, streamID uuid.UUID, ts time.Time) *DomainEvent {
	return &DomainEvent{
		ID:            uuid.New(),
		EventData:     data,
		Username:      username,
		EventType:     t,
		Timestamp:     ts,
		EventStreamID: streamID,
	}
}

// NewChild builds a domain event targeting a child entity within the parent
// stream.
func NewChild(data json.RawMessage, username string, t Type, streamID uuid.UUID, childID int64, ts time.Time) *DomainEvent {
	ev := New(data, username, t, streamID, ts)
	ev.ChildEntityID = childID
	return ev
}

// Store is the append-only ordered event log. Implementations must return
// events from StreamSince ordered by (timestamp, sequence) ascending and
// strictly newer than the given timestamp.
type Store interface {
	// Append durably adds one event to the log and assigns its Sequence.
	Append(ctx context.Context, ev *DomainEvent) error

	// StreamSince returns the events for one stream whose timestamp is
	// strictly greater than since.
	StreamSince(ctx context.Context, streamID uuid.UUID, since time.Time) ([]DomainEvent, error)
}
