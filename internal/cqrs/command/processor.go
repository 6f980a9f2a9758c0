// Package command implements the generic command side of the pipeline. One
// Processor instance serves every mutation for one aggregate type; the
// aggregate contributes validation-free extension points (authorization and
// child descriptors) through its Spec, and the processor owns the shared
// sequence: validate, authorize, append, notify, audit.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/result"
	"fleetledger/pkg/requestcontext"
)

// cancelledData is the payload of the modify event a soft delete appends.
var cancelledData = json.RawMessage(`{"Status":"Cancelled"}`)

// Spec is the aggregate-specific contract a command processor is built on.
// Authorization outcomes use ServiceResult so a spec can attach advisory
// errors that ride along on an otherwise successful command.
type Spec[T aggregate.Root] interface {
	// Tag is the aggregate type tag, e.g. "Agency". It must be registered
	// with the event registry before the processor is constructed.
	Tag() string

	// AuthorizeCreate decides whether the caller may create a new aggregate.
	AuthorizeCreate(ctx context.Context) result.ServiceResult

	// AuthorizeModify decides whether the caller may change the aggregate,
	// including adding or changing its children.
	AuthorizeModify(ctx context.Context, streamID uuid.UUID) result.ServiceResult

	// AuthorizeDelete decides whether the caller may soft-delete the
	// aggregate.
	AuthorizeDelete(ctx context.Context, streamID uuid.UUID) result.ServiceResult

	// Children maps child type tags onto accessors for the matching child
	// collection. Aggregates without children return an empty map.
	Children() map[string]aggregate.ChildAccessor[T]
}

// Processor handles Create, CreateChild, Modify, ModifyChild, and Delete for
// one aggregate type. Events are appended before notifications are published,
// so a notification failure never loses the write; it surfaces as an internal
// error instead.
type Processor[T aggregate.Root] struct {
	spec      Spec[T]
	store     event.Store
	snapshots aggregate.SnapshotStore[T]
	bus       *bus.Bus
	registry  *event.Registry
	logger    *slog.Logger
	tracer    trace.Tracer

	children map[string]aggregate.ChildAccessor[T]
}

// NewProcessor builds a processor and fails fast when the spec's tag or any
// child tag is missing from the registry.
func NewProcessor[T aggregate.Root](
	spec Spec[T],
	store event.Store,
	snapshots aggregate.SnapshotStore[T],
	b *bus.Bus,
	registry *event.Registry,
	logger *slog.Logger,
) (*Processor[T], error) {
	tag := spec.Tag()
	for _, op := range []event.Op{event.OpCreate, event.OpModify, event.OpDelete} {
		if !registry.Knows(tag, op) {
			return nil, fmt.Errorf("command: tag %q not registered for %s", tag, op)
		}
	}
	children := spec.Children()
	for childTag := range children {
		if !registry.Knows(childTag, event.OpCreate) || !registry.Knows(childTag, event.OpModify) {
			return nil, fmt.Errorf("command: child tag %q of %q not registered", childTag, tag)
		}
	}
	return &Processor[T]{
		spec:      spec,
		store:     store,
		snapshots: snapshots,
		bus:       b,
		registry:  registry,
		logger:    logger.With(slog.String("aggregate", tag)),
		tracer:    otel.Tracer("fleetledger/command"),
		children:  children,
	}, nil
}

// Register wires the processor's five handlers onto the bus under the
// aggregate's request keys.
func (p *Processor[T]) Register(b *bus.Bus) error {
	tag := p.spec.Tag()
	handlers := map[string]bus.RequestHandler{
		tag + "/create": func(ctx context.Context, req bus.Request) (any, error) {
			return p.Create(ctx, req.(messages.CreateCommand)), nil
		},
		tag + "/create-child": func(ctx context.Context, req bus.Request) (any, error) {
			return p.CreateChild(ctx, req.(messages.CreateChildCommand)), nil
		},
		tag + "/modify": func(ctx context.Context, req bus.Request) (any, error) {
			return p.Modify(ctx, req.(messages.ModifyCommand)), nil
		},
		tag + "/modify-child": func(ctx context.Context, req bus.Request) (any, error) {
			return p.ModifyChild(ctx, req.(messages.ModifyChildCommand)), nil
		},
		tag + "/delete": func(ctx context.Context, req bus.Request) (any, error) {
			return p.Delete(ctx, req.(messages.DeleteCommand)), nil
		},
	}
	for key, h := range handlers {
		if err := b.HandleRequest(key, h); err != nil {
			return err
		}
	}
	return nil
}

// Create starts a new event stream and returns its id.
func (p *Processor[T]) Create(ctx context.Context, cmd messages.CreateCommand) result.CommandResult {
	ctx, span := p.span(ctx, "Create")
	defer span.End()

	eventType, err := p.registry.EventType(p.spec.Tag(), event.OpCreate)
	if err != nil {
		return p.internal(ctx, "resolve create event type", err)
	}
	if len(cmd.EventData) == 0 {
		commandOutcome(p.spec.Tag(), "create", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "event data is required")
	}

	authz := p.spec.AuthorizeCreate(ctx)
	if denied := p.checkAuthz(ctx, authz, eventType, uuid.Nil, cmd.Timestamp, "create"); denied != nil {
		return *denied
	}

	streamID := uuid.New()
	ev := event.New(cmd.EventData, requestcontext.Username(ctx), eventType, streamID, cmd.Timestamp)
	if err := p.store.Append(ctx, ev); err != nil {
		return p.internal(ctx, "append create event", err)
	}

	if err := p.publishAndAudit(ctx, ev, true); err != nil {
		return p.internal(ctx, "publish create notifications", err)
	}

	commandOutcome(p.spec.Tag(), "create", result.OkResourceCreated)
	res := result.NewCreatedResult(streamID)
	res.Errors = authz.Errors
	return res
}

// CreateChild appends a child creation event to the parent's stream. The
// returned stream id is the parent's: children never get a stream of their
// own.
func (p *Processor[T]) CreateChild(ctx context.Context, cmd messages.CreateChildCommand) result.CommandResult {
	ctx, span := p.span(ctx, "CreateChild")
	defer span.End()

	if cmd.ParentStreamID == uuid.Nil {
		commandOutcome(p.spec.Tag(), "create-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "parent stream id is required")
	}
	if len(cmd.EventData) == 0 {
		commandOutcome(p.spec.Tag(), "create-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "event data is required")
	}
	if _, ok := p.children[cmd.ChildType]; !ok {
		commandOutcome(p.spec.Tag(), "create-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, fmt.Sprintf("unknown child type %q", cmd.ChildType))
	}
	eventType, err := p.registry.EventType(cmd.ChildType, event.OpCreate)
	if err != nil {
		return p.internal(ctx, "resolve child create event type", err)
	}

	if res := p.requireParent(ctx, cmd.ParentStreamID, "create-child"); res != nil {
		return *res
	}

	authz := p.spec.AuthorizeModify(ctx, cmd.ParentStreamID)
	if denied := p.checkAuthz(ctx, authz, eventType, cmd.ParentStreamID, cmd.Timestamp, "create-child"); denied != nil {
		return *denied
	}

	ev := event.New(cmd.EventData, requestcontext.Username(ctx), eventType, cmd.ParentStreamID, cmd.Timestamp)
	if err := p.store.Append(ctx, ev); err != nil {
		return p.internal(ctx, "append child create event", err)
	}

	if err := p.publishAndAudit(ctx, ev, false); err != nil {
		return p.internal(ctx, "publish child create notifications", err)
	}

	commandOutcome(p.spec.Tag(), "create-child", result.OkResourceCreated)
	res := result.NewCreatedResult(cmd.ParentStreamID)
	res.Errors = authz.Errors
	return res
}

// Modify appends a modification event to an existing stream.
func (p *Processor[T]) Modify(ctx context.Context, cmd messages.ModifyCommand) result.CommandResult {
	ctx, span := p.span(ctx, "Modify")
	defer span.End()

	if cmd.ParentStreamID == uuid.Nil {
		commandOutcome(p.spec.Tag(), "modify", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "stream id is required")
	}
	if len(cmd.EventData) == 0 {
		commandOutcome(p.spec.Tag(), "modify", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "event data is required")
	}
	eventType, err := p.registry.EventType(p.spec.Tag(), event.OpModify)
	if err != nil {
		return p.internal(ctx, "resolve modify event type", err)
	}

	if res := p.requireParent(ctx, cmd.ParentStreamID, "modify"); res != nil {
		return *res
	}

	authz := p.spec.AuthorizeModify(ctx, cmd.ParentStreamID)
	if denied := p.checkAuthz(ctx, authz, eventType, cmd.ParentStreamID, cmd.Timestamp, "modify"); denied != nil {
		return *denied
	}

	ev := event.New(cmd.EventData, requestcontext.Username(ctx), eventType, cmd.ParentStreamID, cmd.Timestamp)
	if err := p.store.Append(ctx, ev); err != nil {
		return p.internal(ctx, "append modify event", err)
	}

	if err := p.publishAndAudit(ctx, ev, false); err != nil {
		return p.internal(ctx, "publish modify notifications", err)
	}

	commandOutcome(p.spec.Tag(), "modify", result.OkForCommand)
	res := result.NewCommandResult()
	res.Errors = authz.Errors
	return res
}

// ModifyChild appends a modification event targeting one child entity. The
// child must already exist in the parent's current snapshot.
func (p *Processor[T]) ModifyChild(ctx context.Context, cmd messages.ModifyChildCommand) result.CommandResult {
	ctx, span := p.span(ctx, "ModifyChild")
	defer span.End()

	if cmd.ParentStreamID == uuid.Nil {
		commandOutcome(p.spec.Tag(), "modify-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "parent stream id is required")
	}
	if cmd.ChildID < 1 {
		commandOutcome(p.spec.Tag(), "modify-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "child id must be positive")
	}
	if len(cmd.EventData) == 0 {
		commandOutcome(p.spec.Tag(), "modify-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "event data is required")
	}
	accessor, ok := p.children[cmd.ChildType]
	if !ok {
		commandOutcome(p.spec.Tag(), "modify-child", result.BadRequest)
		return result.FailedCommand(result.BadRequest, fmt.Sprintf("unknown child type %q", cmd.ChildType))
	}
	eventType, err := p.registry.EventType(cmd.ChildType, event.OpModify)
	if err != nil {
		return p.internal(ctx, "resolve child modify event type", err)
	}

	snapshot, found, err := p.snapshots.Get(ctx, cmd.ParentStreamID)
	if err != nil {
		return p.internal(ctx, "load parent snapshot", err)
	}
	if !found {
		commandOutcome(p.spec.Tag(), "modify-child", result.NothingFound)
		return result.FailedCommand(result.NothingFound, "aggregate not found")
	}
	if !childExists(accessor(snapshot), cmd.ChildID) {
		commandOutcome(p.spec.Tag(), "modify-child", result.NothingFound)
		return result.FailedCommand(result.NothingFound, fmt.Sprintf("%s %d not found", cmd.ChildType, cmd.ChildID))
	}

	authz := p.spec.AuthorizeModify(ctx, cmd.ParentStreamID)
	if denied := p.checkAuthz(ctx, authz, eventType, cmd.ParentStreamID, cmd.Timestamp, "modify-child"); denied != nil {
		return *denied
	}

	ev := event.NewChild(cmd.EventData, requestcontext.Username(ctx), eventType, cmd.ParentStreamID, cmd.ChildID, cmd.Timestamp)
	if err := p.store.Append(ctx, ev); err != nil {
		return p.internal(ctx, "append child modify event", err)
	}

	if err := p.publishAndAudit(ctx, ev, false); err != nil {
		return p.internal(ctx, "publish child modify notifications", err)
	}

	commandOutcome(p.spec.Tag(), "modify-child", result.OkForCommand)
	res := result.NewCommandResult()
	res.Errors = authz.Errors
	return res
}

// Delete soft-deletes the aggregate: the stream records a modify event setting
// the status to Cancelled, while the audit trail records a delete. Replaying
// the stream still reproduces the cancelled state; nothing is removed.
func (p *Processor[T]) Delete(ctx context.Context, cmd messages.DeleteCommand) result.CommandResult {
	ctx, span := p.span(ctx, "Delete")
	defer span.End()

	if cmd.StreamID == uuid.Nil {
		commandOutcome(p.spec.Tag(), "delete", result.BadRequest)
		return result.FailedCommand(result.BadRequest, "stream id is required")
	}
	modifyType, err := p.registry.EventType(p.spec.Tag(), event.OpModify)
	if err != nil {
		return p.internal(ctx, "resolve modify event type", err)
	}
	deleteType, err := p.registry.EventType(p.spec.Tag(), event.OpDelete)
	if err != nil {
		return p.internal(ctx, "resolve delete event type", err)
	}

	if res := p.requireParent(ctx, cmd.StreamID, "delete"); res != nil {
		return *res
	}

	authz := p.spec.AuthorizeDelete(ctx, cmd.StreamID)
	if denied := p.checkAuthz(ctx, authz, deleteType, cmd.StreamID, cmd.Timestamp, "delete"); denied != nil {
		return *denied
	}

	ev := event.New(cancelledData, requestcontext.Username(ctx), modifyType, cmd.StreamID, cmd.Timestamp)
	if err := p.store.Append(ctx, ev); err != nil {
		return p.internal(ctx, "append delete event", err)
	}

	if err := p.bus.Publish(ctx, messages.UpdatedEvent{
		Aggregate:     p.spec.Tag(),
		EventType:     ev.EventType,
		EventData:     ev.EventData,
		Username:      ev.Username,
		EventStreamID: ev.EventStreamID,
		EventID:       ev.ID,
		Timestamp:     ev.Timestamp,
	}); err != nil {
		return p.internal(ctx, "publish delete notification", err)
	}
	// The audit records the intent, not the mechanism.
	if err := p.bus.Publish(ctx, messages.NewDomainAudit(deleteType, ev.Username, ev.EventStreamID, ev.ID, ev.Timestamp)); err != nil {
		return p.internal(ctx, "publish delete audit", err)
	}

	commandOutcome(p.spec.Tag(), "delete", result.OkForCommand)
	res := result.NewCommandResult()
	res.Errors = authz.Errors
	return res
}

// checkAuthz converts a failing authorization into a command result. Denials
// are audited before they are returned; other failures pass through as-is.
func (p *Processor[T]) checkAuthz(ctx context.Context, authz result.ServiceResult, denied event.Type, streamID uuid.UUID, ts time.Time, op string) *result.CommandResult {
	if authz.ResultType.IsSuccess() {
		return nil
	}
	if authz.ResultType == result.AccessDenied {
		if err := p.bus.Publish(ctx, messages.NewAccessDeniedAudit(denied, requestcontext.Username(ctx), streamID, ts)); err != nil {
			res := p.internal(ctx, "publish access denied audit", err)
			return &res
		}
	}
	commandOutcome(p.spec.Tag(), op, authz.ResultType)
	res := result.FailedCommand(authz.ResultType, authz.Errors...)
	return &res
}

func (p *Processor[T]) requireParent(ctx context.Context, streamID uuid.UUID, op string) *result.CommandResult {
	_, found, err := p.snapshots.Get(ctx, streamID)
	if err != nil {
		res := p.internal(ctx, "load parent snapshot", err)
		return &res
	}
	if !found {
		commandOutcome(p.spec.Tag(), op, result.NothingFound)
		res := result.FailedCommand(result.NothingFound, "aggregate not found")
		return &res
	}
	return nil
}

func (p *Processor[T]) publishAndAudit(ctx context.Context, ev *event.DomainEvent, created bool) error {
	var notification bus.Notification
	if created {
		notification = messages.CreatedEvent{
			Aggregate:     p.spec.Tag(),
			EventType:     ev.EventType,
			EventData:     ev.EventData,
			Username:      ev.Username,
			EventStreamID: ev.EventStreamID,
			EventID:       ev.ID,
			Timestamp:     ev.Timestamp,
		}
	} else {
		notification = messages.UpdatedEvent{
			Aggregate:     p.spec.Tag(),
			EventType:     ev.EventType,
			EventData:     ev.EventData,
			Username:      ev.Username,
			EventStreamID: ev.EventStreamID,
			EventID:       ev.ID,
			Timestamp:     ev.Timestamp,
		}
	}
	if err := p.bus.Publish(ctx, notification); err != nil {
		return err
	}
	return p.bus.Publish(ctx, messages.NewDomainAudit(ev.EventType, ev.Username, ev.EventStreamID, ev.ID, ev.Timestamp))
}

func (p *Processor[T]) internal(ctx context.Context, msg string, err error) result.CommandResult {
	p.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	commandOutcome(p.spec.Tag(), "any", result.InternalServerError)
	return result.FailedCommand(result.InternalServerError, "internal error")
}

func (p *Processor[T]) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "command."+op,
		trace.WithAttributes(attribute.String("aggregate", p.spec.Tag())),
	)
}

func childExists(children []aggregate.ChildRef, id int64) bool {
	for _, c := range children {
		if c.ID == id {
			return true
		}
	}
	return false
}
