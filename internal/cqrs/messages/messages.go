// Package messages defines the command, query, and notification contracts
// that travel across the bus. Constructors are the only place timestamps are
// set; everything downstream reads the stamped value so one request observes
// one clock.
package messages

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/pkg/requestcontext"
)

// Request key suffixes. A full key is "<AggregateTag>/<suffix>".
const (
	keyCreate      = "/create"
	keyCreateChild = "/create-child"
	keyModify      = "/modify"
	keyModifyChild = "/modify-child"
	keyDelete      = "/delete"
	keyCount       = "/count"
	keyList        = "/list"
	keySingle      = "/single"
	keyCreated     = "/created"
	keyUpdated     = "/updated"
)

// AuditKey is the notification key every audit notification publishes under,
// regardless of aggregate type. The audit recorder subscribes once.
const AuditKey = "audit"

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

// CreateCommand starts a new event stream for an aggregate of the tagged
// type.
type CreateCommand struct {
	Aggregate string
	EventData json.RawMessage
	Timestamp time.Time
}

func NewCreateCommand(ctx context.Context, tag string, data json.RawMessage) CreateCommand {
	return CreateCommand{Aggregate: tag, EventData: data, Timestamp: requestcontext.Now(ctx)}
}

func (c CreateCommand) RequestKey() string { return c.Aggregate + keyCreate }

// CreateChildCommand adds a new child entity to an existing aggregate. The
// event is appended to the parent's stream; children have no stream of their
// own.
type CreateChildCommand struct {
	Aggregate      string
	ParentStreamID uuid.UUID
	ChildType      string
	EventData      json.RawMessage
	Timestamp      time.Time
}

func NewCreateChildCommand(ctx context.Context, tag string, parent uuid.UUID, childType string, data json.RawMessage) CreateChildCommand {
	return CreateChildCommand{Aggregate: tag, ParentStreamID: parent, ChildType: childType, EventData: data, Timestamp: requestcontext.Now(ctx)}
}

func (c CreateChildCommand) RequestKey() string { return c.Aggregate + keyCreateChild }

// ModifyCommand modifies an existing aggregate root.
type ModifyCommand struct {
	Aggregate      string
	ParentStreamID uuid.UUID
	EventData      json.RawMessage
	Timestamp      time.Time
}

func NewModifyCommand(ctx context.Context, tag string, parent uuid.UUID, data json.RawMessage) ModifyCommand {
	return ModifyCommand{Aggregate: tag, ParentStreamID: parent, EventData: data, Timestamp: requestcontext.Now(ctx)}
}

func (c ModifyCommand) RequestKey() string { return c.Aggregate + keyModify }

// ModifyChildCommand modifies one child entity within an aggregate.
type ModifyChildCommand struct {
	Aggregate      string
	ParentStreamID uuid.UUID
	ChildID        int64
	ChildType      string
	EventData      json.RawMessage
	Timestamp      time.Time
}

func NewModifyChildCommand(ctx context.Context, tag string, parent uuid.UUID, childID int64, childType string, data json.RawMessage) ModifyChildCommand {
	return ModifyChildCommand{Aggregate: tag, ParentStreamID: parent, ChildID: childID, ChildType: childType, EventData: data, Timestamp: requestcontext.Now(ctx)}
}

func (c ModifyChildCommand) RequestKey() string { return c.Aggregate + keyModifyChild }

// DeleteCommand soft-deletes an aggregate: the stream records a modify event
// setting the status to Cancelled.
type DeleteCommand struct {
	Aggregate string
	StreamID  uuid.UUID
	Timestamp time.Time
}

func NewDeleteCommand(ctx context.Context, tag string, streamID uuid.UUID) DeleteCommand {
	return DeleteCommand{Aggregate: tag, StreamID: streamID, Timestamp: requestcontext.Now(ctx)}
}

func (c DeleteCommand) RequestKey() string { return c.Aggregate + keyDelete }

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// GetCountQuery asks for the number of aggregates of the tagged type.
type GetCountQuery struct {
	Aggregate string
	Timestamp time.Time
}

func NewGetCountQuery(ctx context.Context, tag string) GetCountQuery {
	return GetCountQuery{Aggregate: tag, Timestamp: requestcontext.Now(ctx)}
}

func (q GetCountQuery) RequestKey() string { return q.Aggregate + keyCount }

// GetListQuery asks for a page of aggregates of the tagged type.
type GetListQuery struct {
	Aggregate string
	Paging    paging.Parameters
	Timestamp time.Time
}

func NewGetListQuery(ctx context.Context, tag string, p paging.Parameters) GetListQuery {
	return GetListQuery{Aggregate: tag, Paging: p, Timestamp: requestcontext.Now(ctx)}
}

func (q GetListQuery) RequestKey() string { return q.Aggregate + keyList }

// GetSingleQuery asks for one aggregate by stream id.
type GetSingleQuery struct {
	Aggregate string
	StreamID  uuid.UUID
	Timestamp time.Time
}

func NewGetSingleQuery(ctx context.Context, tag string, streamID uuid.UUID) GetSingleQuery {
	return GetSingleQuery{Aggregate: tag, StreamID: streamID, Timestamp: requestcontext.Now(ctx)}
}

func (q GetSingleQuery) RequestKey() string { return q.Aggregate + keySingle }

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// DomainNotification is the shared shape of CreatedEvent and UpdatedEvent.
// The projector handles both through this interface.
type DomainNotification interface {
	StreamID() uuid.UUID
	DomainEventType() event.Type
	IsCreated() bool
}

// CreatedEvent announces that a creation event was appended to a brand-new
// stream.
type CreatedEvent struct {
	Aggregate     string
	EventType     event.Type
	EventData     json.RawMessage
	Username      string
	EventStreamID uuid.UUID
	EventID       uuid.UUID
	Timestamp     time.Time
}

func (e CreatedEvent) NotificationKey() string     { return e.Aggregate + keyCreated }
func (e CreatedEvent) StreamID() uuid.UUID         { return e.EventStreamID }
func (e CreatedEvent) DomainEventType() event.Type { return e.EventType }
func (e CreatedEvent) IsCreated() bool             { return true }

// UpdatedEvent announces that a modification event was appended to an
// existing stream. Child creations and soft deletes publish as updates on
// the parent aggregate.
type UpdatedEvent struct {
	Aggregate     string
	EventType     event.Type
	EventData     json.RawMessage
	Username      string
	EventStreamID uuid.UUID
	EventID       uuid.UUID
	Timestamp     time.Time
}

func (e UpdatedEvent) NotificationKey() string     { return e.Aggregate + keyUpdated }
func (e UpdatedEvent) StreamID() uuid.UUID         { return e.EventStreamID }
func (e UpdatedEvent) DomainEventType() event.Type { return e.EventType }
func (e UpdatedEvent) IsCreated() bool             { return false }

// AuditLogEvent asks the audit recorder to persist one audit entry. It is
// deliberately decoupled from the domain event record: the audit trail must
// stand on its own even if the event row is later reinterpreted or purged.
type AuditLogEvent struct {
	EventType event.Type
	Username  string
	StreamID  uuid.UUID
	EventID   uuid.UUID
	Timestamp time.Time

	// DataAccess tags read audits (e.g. "GetAgencyList"). Empty for
	// mutation audits.
	DataAccess string

	// AccessDeniedType preserves the event type the denied action would
	// have produced. Set only when EventType is TypeAccessDeniedAudit.
	AccessDeniedType event.Type
}

func (e AuditLogEvent) NotificationKey() string { return AuditKey }

// NewDomainAudit records a mutation that actually happened.
func NewDomainAudit(t event.Type, username string, streamID, eventID uuid.UUID, ts time.Time) AuditLogEvent {
	return AuditLogEvent{EventType: t, Username: username, StreamID: streamID, EventID: eventID, Timestamp: ts}
}

// NewAccessDeniedAudit records a refused mutation, tagged with the event
// type that was denied.
func NewAccessDeniedAudit(denied event.Type, username string, streamID uuid.UUID, ts time.Time) AuditLogEvent {
	return AuditLogEvent{
		EventType:        event.TypeAccessDeniedAudit,
		AccessDeniedType: denied,
		Username:         username,
		StreamID:         streamID,
		Timestamp:        ts,
	}
}

// NewDataAccessAudit records that a read was attempted.
func NewDataAccessAudit(dataAccess string, username string, streamID uuid.UUID, ts time.Time) AuditLogEvent {
	return AuditLogEvent{
		EventType:  event.TypeDataAccessedAudit,
		DataAccess: dataAccess,
		Username:   username,
		StreamID:   streamID,
		Timestamp:  ts,
	}
}

// NewDataAccessDeniedAudit records that a read was refused. The data-access
// tag rides along so operators can see which read was blocked.
func NewDataAccessDeniedAudit(dataAccess string, username string, streamID uuid.UUID, ts time.Time) AuditLogEvent {
	return AuditLogEvent{
		EventType:  event.TypeAccessDeniedAudit,
		DataAccess: dataAccess,
		Username:   username,
		StreamID:   streamID,
		Timestamp:  ts,
	}
}
