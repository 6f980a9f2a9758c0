// Package query implements the generic read side of the pipeline. Every read
// is audited the moment it arrives, before validation or authorization, so
// the trail records attempts rather than successes. A denied read produces a
// second, access-denied entry on top.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/internal/cqrs/result"
	"fleetledger/pkg/requestcontext"
)

// Spec is the aggregate-specific contract a query processor is built on.
// The type parameter is the read model handed back to clients.
type Spec[T any] interface {
	// Tag is the aggregate type tag, e.g. "Agency".
	Tag() string

	// AuthorizeRead decides whether the caller may perform the given kind
	// of read.
	AuthorizeRead(ctx context.Context, access event.Access) result.ServiceResult

	// Count returns the number of aggregates.
	Count(ctx context.Context) (int, error)

	// List returns one page of aggregates. A page size of zero means no
	// limit.
	List(ctx context.Context, p paging.Parameters) ([]T, error)

	// Single returns one aggregate by stream id, reporting found=false for
	// unknown streams.
	Single(ctx context.Context, streamID uuid.UUID) (T, bool, error)
}

// Processor handles Count, List, and Single for one aggregate type.
type Processor[T any] struct {
	spec     Spec[T]
	bus      *bus.Bus
	registry *event.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewProcessor builds a processor and fails fast when the spec's tag has no
// registered data-access tags.
func NewProcessor[T any](spec Spec[T], b *bus.Bus, registry *event.Registry, logger *slog.Logger) (*Processor[T], error) {
	for _, access := range []event.Access{event.AccessSingle, event.AccessList, event.AccessCount} {
		if _, err := registry.DataAccessTag(spec.Tag(), access); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
	}
	return &Processor[T]{
		spec:     spec,
		bus:      b,
		registry: registry,
		logger:   logger.With(slog.String("aggregate", spec.Tag())),
		tracer:   otel.Tracer("fleetledger/query"),
	}, nil
}

// Register wires the processor's three handlers onto the bus under the
// aggregate's request keys.
func (p *Processor[T]) Register(b *bus.Bus) error {
	tag := p.spec.Tag()
	handlers := map[string]bus.RequestHandler{
		tag + "/count": func(ctx context.Context, req bus.Request) (any, error) {
			return p.Count(ctx, req.(messages.GetCountQuery)), nil
		},
		tag + "/list": func(ctx context.Context, req bus.Request) (any, error) {
			return p.List(ctx, req.(messages.GetListQuery)), nil
		},
		tag + "/single": func(ctx context.Context, req bus.Request) (any, error) {
			return p.Single(ctx, req.(messages.GetSingleQuery)), nil
		},
	}
	for key, h := range handlers {
		if err := b.HandleRequest(key, h); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of aggregates of this type.
func (p *Processor[T]) Count(ctx context.Context, q messages.GetCountQuery) result.QueryCountResult {
	ctx, span := p.span(ctx, "Count")
	defer span.End()

	dataAccess := p.audit(ctx, event.AccessCount, uuid.Nil, q.Timestamp)
	if denied := p.authorize(ctx, event.AccessCount, dataAccess, uuid.Nil, q.Timestamp); denied != result.OkForQuery {
		return result.QueryCountResult{ResultType: denied}
	}

	count, err := p.spec.Count(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "count aggregates", slog.Any("error", err))
		queryOutcome(p.spec.Tag(), "count", result.InternalServerError)
		return result.QueryCountResult{ResultType: result.InternalServerError}
	}
	queryOutcome(p.spec.Tag(), "count", result.OkForQuery)
	return result.QueryCountResult{ResultType: result.OkForQuery, Count: count}
}

// List returns one page of aggregates.
func (p *Processor[T]) List(ctx context.Context, q messages.GetListQuery) result.QueryResultList[T] {
	ctx, span := p.span(ctx, "List")
	defer span.End()

	dataAccess := p.audit(ctx, event.AccessList, uuid.Nil, q.Timestamp)
	if denied := p.authorize(ctx, event.AccessList, dataAccess, uuid.Nil, q.Timestamp); denied != result.OkForQuery {
		return result.QueryResultList[T]{ResultType: denied}
	}

	items, err := p.spec.List(ctx, q.Paging)
	if err != nil {
		p.logger.ErrorContext(ctx, "list aggregates", slog.Any("error", err))
		queryOutcome(p.spec.Tag(), "list", result.InternalServerError)
		return result.QueryResultList[T]{ResultType: result.InternalServerError}
	}
	if items == nil {
		items = []T{}
	}
	queryOutcome(p.spec.Tag(), "list", result.OkForQuery)
	return result.QueryResultList[T]{ResultType: result.OkForQuery, Items: items}
}

// Single returns one aggregate by stream id.
func (p *Processor[T]) Single(ctx context.Context, q messages.GetSingleQuery) result.QueryResult[T] {
	ctx, span := p.span(ctx, "Single")
	defer span.End()

	dataAccess := p.audit(ctx, event.AccessSingle, q.StreamID, q.Timestamp)
	if q.StreamID == uuid.Nil {
		queryOutcome(p.spec.Tag(), "single", result.BadRequest)
		return result.QueryResult[T]{ResultType: result.BadRequest}
	}
	if denied := p.authorize(ctx, event.AccessSingle, dataAccess, q.StreamID, q.Timestamp); denied != result.OkForQuery {
		return result.QueryResult[T]{ResultType: denied}
	}

	item, found, err := p.spec.Single(ctx, q.StreamID)
	if err != nil {
		p.logger.ErrorContext(ctx, "load aggregate",
			slog.String("stream_id", q.StreamID.String()),
			slog.Any("error", err),
		)
		queryOutcome(p.spec.Tag(), "single", result.InternalServerError)
		return result.QueryResult[T]{ResultType: result.InternalServerError}
	}
	if !found {
		queryOutcome(p.spec.Tag(), "single", result.NothingFound)
		return result.QueryResult[T]{ResultType: result.NothingFound}
	}
	queryOutcome(p.spec.Tag(), "single", result.OkForQuery)
	return result.QueryResult[T]{ResultType: result.OkForQuery, Item: item}
}

// audit publishes the data-access entry for this read attempt and returns
// the resolved data-access tag. Audit publication failures are logged, not
// fatal: refusing a read because its audit could not be written would hide
// the outage behind user-facing errors.
func (p *Processor[T]) audit(ctx context.Context, access event.Access, streamID uuid.UUID, ts time.Time) string {
	dataAccess, err := p.registry.DataAccessTag(p.spec.Tag(), access)
	if err != nil {
		p.logger.ErrorContext(ctx, "resolve data access tag", slog.Any("error", err))
		return ""
	}
	n := messages.NewDataAccessAudit(dataAccess, requestcontext.Username(ctx), streamID, ts)
	if err := p.bus.Publish(ctx, n); err != nil {
		p.logger.ErrorContext(ctx, "publish data access audit", slog.Any("error", err))
	}
	return dataAccess
}

// authorize runs the read authorization and, on denial, publishes the second
// access-denied audit entry.
func (p *Processor[T]) authorize(ctx context.Context, access event.Access, dataAccess string, streamID uuid.UUID, ts time.Time) result.ResultType {
	authz := p.spec.AuthorizeRead(ctx, access)
	if authz.ResultType.IsSuccess() {
		return result.OkForQuery
	}
	if authz.ResultType == result.AccessDenied {
		n := messages.NewDataAccessDeniedAudit(dataAccess, requestcontext.Username(ctx), streamID, ts)
		if err := p.bus.Publish(ctx, n); err != nil {
			p.logger.ErrorContext(ctx, "publish access denied audit", slog.Any("error", err))
		}
	}
	queryOutcome(p.spec.Tag(), accessName(access), authz.ResultType)
	return authz.ResultType
}

func (p *Processor[T]) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "query."+op,
		trace.WithAttributes(attribute.String("aggregate", p.spec.Tag())),
	)
}

func accessName(access event.Access) string {
	switch access {
	case event.AccessSingle:
		return "single"
	case event.AccessList:
		return "list"
	default:
		return "count"
	}
}
