package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/internal/cqrs/result"
	"fleetledger/pkg/requestcontext"
)

type depotView struct {
	ID   uuid.UUID
	Name string
}

type depotQuerySpec struct {
	authz result.ServiceResult
	items map[uuid.UUID]depotView
	err   error

	lastPaging paging.Parameters
}

func newDepotQuerySpec() *depotQuerySpec {
	return &depotQuerySpec{authz: result.OK(), items: make(map[uuid.UUID]depotView)}
}

func (s *depotQuerySpec) Tag() string { return "Depot" }

func (s *depotQuerySpec) AuthorizeRead(context.Context, event.Access) result.ServiceResult {
	return s.authz
}

func (s *depotQuerySpec) Count(context.Context) (int, error) {
	return len(s.items), s.err
}

func (s *depotQuerySpec) List(_ context.Context, p paging.Parameters) ([]depotView, error) {
	s.lastPaging = p
	if s.err != nil {
		return nil, s.err
	}
	var out []depotView
	for _, v := range s.items {
		out = append(out, v)
	}
	return out, nil
}

func (s *depotQuerySpec) Single(_ context.Context, streamID uuid.UUID) (depotView, bool, error) {
	if s.err != nil {
		return depotView{}, false, s.err
	}
	v, ok := s.items[streamID]
	return v, ok, nil
}

type auditSpy struct {
	mu     sync.Mutex
	events []messages.AuditLogEvent
}

func (a *auditSpy) subscribe(b *bus.Bus) {
	b.Subscribe(messages.AuditKey, func(_ context.Context, n bus.Notification) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.events = append(a.events, n.(messages.AuditLogEvent))
		return nil
	})
}

func (a *auditSpy) all() []messages.AuditLogEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]messages.AuditLogEvent{}, a.events...)
}

type fixture struct {
	processor *Processor[depotView]
	spec      *depotQuerySpec
	bus       *bus.Bus
	audits    *auditSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := event.NewRegistry()
	require.NoError(t, registry.RegisterAggregate("Depot"))

	f := &fixture{
		spec:   newDepotQuerySpec(),
		bus:    bus.New(),
		audits: &auditSpy{},
	}
	f.audits.subscribe(f.bus)

	p, err := NewProcessor[depotView](f.spec, f.bus, registry, slog.Default())
	require.NoError(t, err)
	f.processor = p
	return f
}

func testContext() context.Context {
	ctx := requestcontext.WithUsername(context.Background(), "inspector")
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
}

func TestCount(t *testing.T) {
	t.Run("returns the count and audits the read", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		f.spec.items[uuid.New()] = depotView{Name: "North"}

		res := f.processor.Count(ctx, messages.NewGetCountQuery(ctx, "Depot"))

		assert.Equal(t, result.OkForQuery, res.ResultType)
		assert.Equal(t, 1, res.Count)

		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, event.TypeDataAccessedAudit, audits[0].EventType)
		assert.Equal(t, "GetDepotCount", audits[0].DataAccess)
		assert.Equal(t, "inspector", audits[0].Username)
	})

	t.Run("a store failure is an internal error, still audited", func(t *testing.T) {
		f := newFixture(t)
		f.spec.err = errors.New("backend down")
		ctx := testContext()

		res := f.processor.Count(ctx, messages.NewGetCountQuery(ctx, "Depot"))

		assert.Equal(t, result.InternalServerError, res.ResultType)
		assert.Len(t, f.audits.all(), 1)
	})
}

func TestList(t *testing.T) {
	t.Run("returns the page and forwards the paging parameters", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		f.spec.items[uuid.New()] = depotView{Name: "North"}
		p := paging.Parameters{Page: 2, PageSize: 5, SortColumn: "name", Ascending: true}

		res := f.processor.List(ctx, messages.NewGetListQuery(ctx, "Depot", p))

		assert.Equal(t, result.OkForQuery, res.ResultType)
		assert.Len(t, res.Items, 1)
		assert.Equal(t, p, f.spec.lastPaging)

		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, "GetDepotList", audits[0].DataAccess)
	})

	t.Run("an empty result is an empty list, not null", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.List(ctx, messages.NewGetListQuery(ctx, "Depot", paging.Default()))

		assert.Equal(t, result.OkForQuery, res.ResultType)
		require.NotNil(t, res.Items)
		assert.Empty(t, res.Items)
	})
}

func TestSingle(t *testing.T) {
	t.Run("returns the aggregate by stream id", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		id := uuid.New()
		f.spec.items[id] = depotView{ID: id, Name: "North"}

		res := f.processor.Single(ctx, messages.NewGetSingleQuery(ctx, "Depot", id))

		assert.Equal(t, result.OkForQuery, res.ResultType)
		assert.Equal(t, "North", res.Item.Name)

		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, "GetDepot", audits[0].DataAccess)
		assert.Equal(t, id, audits[0].StreamID)
	})

	t.Run("unknown stream is not found", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Single(ctx, messages.NewGetSingleQuery(ctx, "Depot", uuid.New()))

		assert.Equal(t, result.NothingFound, res.ResultType)
	})

	t.Run("nil stream id is a bad request but the attempt is still audited", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Single(ctx, messages.NewGetSingleQuery(ctx, "Depot", uuid.Nil))

		assert.Equal(t, result.BadRequest, res.ResultType)
		assert.Len(t, f.audits.all(), 1)
	})
}

func TestDeniedReadsAuditTwice(t *testing.T) {
	f := newFixture(t)
	f.spec.authz = result.Denied()
	ctx := testContext()

	res := f.processor.List(ctx, messages.NewGetListQuery(ctx, "Depot", paging.Default()))
	assert.Equal(t, result.AccessDenied, res.ResultType)

	audits := f.audits.all()
	require.Len(t, audits, 2, "a denied read records the attempt and the denial")
	assert.Equal(t, event.TypeDataAccessedAudit, audits[0].EventType)
	assert.Equal(t, event.TypeAccessDeniedAudit, audits[1].EventType)
	assert.Equal(t, "GetDepotList", audits[1].DataAccess)
}

func TestQueryRegister(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor.Register(f.bus))
	ctx := testContext()

	res, err := bus.RequestAs[result.QueryCountResult](ctx, f.bus, messages.NewGetCountQuery(ctx, "Depot"))
	require.NoError(t, err)
	assert.Equal(t, result.OkForQuery, res.ResultType)
}
