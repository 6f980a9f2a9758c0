package command

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/result"
	"fleetledger/pkg/requestcontext"
)

// depot is a minimal aggregate with one child collection, enough to exercise
// every processor path.
type depot struct {
	id      uuid.UUID
	version time.Time
	bays    []aggregate.ChildRef
}

func (d *depot) StreamID() uuid.UUID          { return d.id }
func (d *depot) SetStreamID(id uuid.UUID)     { d.id = id }
func (d *depot) EventVersion() time.Time      { return d.version }
func (d *depot) SetEventVersion(ts time.Time) { d.version = ts }

type depotSpec struct {
	create result.ServiceResult
	modify result.ServiceResult
	delete result.ServiceResult
}

func allowAll() *depotSpec {
	return &depotSpec{create: result.OK(), modify: result.OK(), delete: result.OK()}
}

func (s *depotSpec) Tag() string { return "Depot" }

func (s *depotSpec) AuthorizeCreate(context.Context) result.ServiceResult { return s.create }

func (s *depotSpec) AuthorizeModify(context.Context, uuid.UUID) result.ServiceResult {
	return s.modify
}

func (s *depotSpec) AuthorizeDelete(context.Context, uuid.UUID) result.ServiceResult {
	return s.delete
}

func (s *depotSpec) Children() map[string]aggregate.ChildAccessor[*depot] {
	return map[string]aggregate.ChildAccessor[*depot]{
		"Bay": func(d *depot) []aggregate.ChildRef { return d.bays },
	}
}

type snapshotStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*depot
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{snapshots: make(map[uuid.UUID]*depot)}
}

func (s *snapshotStore) Get(_ context.Context, streamID uuid.UUID) (*depot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.snapshots[streamID]
	return d, ok, nil
}

func (s *snapshotStore) Save(_ context.Context, d *depot, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[d.StreamID()] = d
	return nil
}

// auditSpy collects every audit notification the processor publishes.
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
	processor *Processor[*depot]
	spec      *depotSpec
	events    *event.MemoryStore
	snapshots *snapshotStore
	bus       *bus.Bus
	audits    *auditSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := event.NewRegistry()
	require.NoError(t, registry.RegisterAggregate("Depot", "Bay"))

	f := &fixture{
		spec:      allowAll(),
		events:    event.NewMemoryStore(),
		snapshots: newSnapshotStore(),
		bus:       bus.New(),
		audits:    &auditSpy{},
	}
	f.audits.subscribe(f.bus)

	p, err := NewProcessor[*depot](f.spec, f.events, f.snapshots, f.bus, registry, slog.Default())
	require.NoError(t, err)
	f.processor = p
	return f
}

func (f *fixture) seedDepot(t *testing.T, bays ...int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	d := &depot{id: id}
	for _, bayID := range bays {
		d.bays = append(d.bays, aggregate.ChildRef{ID: bayID})
	}
	require.NoError(t, f.snapshots.Save(context.Background(), d, true))
	return id
}

func testContext() context.Context {
	ctx := requestcontext.WithUsername(context.Background(), "inspector")
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
}

func TestCreate(t *testing.T) {
	t.Run("appends the event and returns the new stream id", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Create(ctx, messages.NewCreateCommand(ctx, "Depot", json.RawMessage(`{"name":"North"}`)))

		require.Equal(t, result.OkResourceCreated, res.ResultType)
		require.NotEqual(t, uuid.Nil, res.NewStreamID)

		all := f.events.All()
		require.Len(t, all, 1)
		assert.Equal(t, event.Type("CreateDepotEvent"), all[0].EventType)
		assert.Equal(t, res.NewStreamID, all[0].EventStreamID)
		assert.Equal(t, "inspector", all[0].Username)
		assert.Equal(t, requestcontext.Now(ctx), all[0].Timestamp)
	})

	t.Run("publishes exactly one domain audit", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Create(ctx, messages.NewCreateCommand(ctx, "Depot", json.RawMessage(`{}`)))
		require.True(t, res.ResultType.IsSuccess())

		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, event.Type("CreateDepotEvent"), audits[0].EventType)
		assert.Equal(t, res.NewStreamID, audits[0].StreamID)
		assert.Equal(t, "inspector", audits[0].Username)
	})

	t.Run("empty event data is a bad request and writes nothing", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Create(ctx, messages.NewCreateCommand(ctx, "Depot", nil))

		assert.Equal(t, result.BadRequest, res.ResultType)
		assert.Empty(t, f.events.All())
		assert.Empty(t, f.audits.all())
	})

	t.Run("denial audits the refused event type and writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.spec.create = result.Denied()
		ctx := testContext()

		res := f.processor.Create(ctx, messages.NewCreateCommand(ctx, "Depot", json.RawMessage(`{}`)))

		assert.Equal(t, result.AccessDenied, res.ResultType)
		assert.Empty(t, f.events.All())

		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, event.TypeAccessDeniedAudit, audits[0].EventType)
		assert.Equal(t, event.Type("CreateDepotEvent"), audits[0].AccessDeniedType)
	})

	t.Run("advisory authorization errors ride along on success", func(t *testing.T) {
		f := newFixture(t)
		f.spec.create = result.OK("licence expires soon")
		ctx := testContext()

		res := f.processor.Create(ctx, messages.NewCreateCommand(ctx, "Depot", json.RawMessage(`{}`)))

		assert.Equal(t, result.OkResourceCreated, res.ResultType)
		assert.Equal(t, []string{"licence expires soon"}, res.Errors)
	})

	t.Run("a failing notification subscriber surfaces as internal error", func(t *testing.T) {
		f := newFixture(t)
		f.bus.Subscribe("Depot/created", func(context.Context, bus.Notification) error {
			return errors.New("projection exploded")
		})
		ctx := testContext()

		res := f.processor.Create(ctx, messages.NewCreateCommand(ctx, "Depot", json.RawMessage(`{}`)))

		assert.Equal(t, result.InternalServerError, res.ResultType)
		// The event was appended before the notification failed.
		assert.Len(t, f.events.All(), 1)
	})
}

func TestCreateChild(t *testing.T) {
	t.Run("appends to the parent stream and returns the parent id", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t)

		res := f.processor.CreateChild(ctx, messages.NewCreateChildCommand(ctx, "Depot", parentID, "Bay", json.RawMessage(`{"number":4}`)))

		require.Equal(t, result.OkResourceCreated, res.ResultType)
		assert.Equal(t, parentID, res.NewStreamID)

		all := f.events.All()
		require.Len(t, all, 1)
		assert.Equal(t, event.Type("CreateBayEvent"), all[0].EventType)
		assert.Equal(t, parentID, all[0].EventStreamID)
		assert.Zero(t, all[0].ChildEntityID, "child ids are assigned by the fold, not the command")
	})

	t.Run("unknown parent is not found", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.CreateChild(ctx, messages.NewCreateChildCommand(ctx, "Depot", uuid.New(), "Bay", json.RawMessage(`{}`)))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.events.All())
	})

	t.Run("unknown parent wins over a denial and leaves no audit", func(t *testing.T) {
		f := newFixture(t)
		f.spec.modify = result.Denied()
		ctx := testContext()

		res := f.processor.CreateChild(ctx, messages.NewCreateChildCommand(ctx, "Depot", uuid.New(), "Bay", json.RawMessage(`{}`)))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.events.All())
		assert.Empty(t, f.audits.all())
	})

	t.Run("unknown child type is a bad request", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t)

		res := f.processor.CreateChild(ctx, messages.NewCreateChildCommand(ctx, "Depot", parentID, "Hangar", json.RawMessage(`{}`)))

		assert.Equal(t, result.BadRequest, res.ResultType)
	})

	t.Run("nil parent id is a bad request", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.CreateChild(ctx, messages.NewCreateChildCommand(ctx, "Depot", uuid.Nil, "Bay", json.RawMessage(`{}`)))

		assert.Equal(t, result.BadRequest, res.ResultType)
	})
}

func TestModify(t *testing.T) {
	t.Run("appends a modify event and returns no content", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t)

		res := f.processor.Modify(ctx, messages.NewModifyCommand(ctx, "Depot", parentID, json.RawMessage(`{"name":"South"}`)))

		assert.Equal(t, result.OkForCommand, res.ResultType)
		assert.Equal(t, uuid.Nil, res.NewStreamID)

		all := f.events.All()
		require.Len(t, all, 1)
		assert.Equal(t, event.Type("ModifyDepotEvent"), all[0].EventType)
	})

	t.Run("unknown stream is not found", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Modify(ctx, messages.NewModifyCommand(ctx, "Depot", uuid.New(), json.RawMessage(`{}`)))

		assert.Equal(t, result.NothingFound, res.ResultType)
	})

	t.Run("unknown stream wins over a denial and leaves no audit", func(t *testing.T) {
		f := newFixture(t)
		f.spec.modify = result.Denied()
		ctx := testContext()

		res := f.processor.Modify(ctx, messages.NewModifyCommand(ctx, "Depot", uuid.New(), json.RawMessage(`{}`)))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.audits.all())
	})

	t.Run("denial audits the modify event type", func(t *testing.T) {
		f := newFixture(t)
		f.spec.modify = result.Denied()
		ctx := testContext()
		parentID := f.seedDepot(t)

		res := f.processor.Modify(ctx, messages.NewModifyCommand(ctx, "Depot", parentID, json.RawMessage(`{}`)))

		assert.Equal(t, result.AccessDenied, res.ResultType)
		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, event.Type("ModifyDepotEvent"), audits[0].AccessDeniedType)
		assert.Equal(t, parentID, audits[0].StreamID)
	})
}

func TestModifyChild(t *testing.T) {
	t.Run("targets the child through its entity id", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t, 1, 2)

		res := f.processor.ModifyChild(ctx, messages.NewModifyChildCommand(ctx, "Depot", parentID, 2, "Bay", json.RawMessage(`{"number":7}`)))

		assert.Equal(t, result.OkForCommand, res.ResultType)

		all := f.events.All()
		require.Len(t, all, 1)
		assert.Equal(t, event.Type("ModifyBayEvent"), all[0].EventType)
		assert.Equal(t, int64(2), all[0].ChildEntityID)
	})

	t.Run("missing child is not found", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t, 1)

		res := f.processor.ModifyChild(ctx, messages.NewModifyChildCommand(ctx, "Depot", parentID, 9, "Bay", json.RawMessage(`{}`)))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.events.All())
	})

	t.Run("missing child wins over a denial and leaves no audit", func(t *testing.T) {
		f := newFixture(t)
		f.spec.modify = result.Denied()
		ctx := testContext()
		parentID := f.seedDepot(t, 1)

		res := f.processor.ModifyChild(ctx, messages.NewModifyChildCommand(ctx, "Depot", parentID, 9, "Bay", json.RawMessage(`{}`)))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.audits.all())
	})

	t.Run("non-positive child id is a bad request", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t, 1)

		res := f.processor.ModifyChild(ctx, messages.NewModifyChildCommand(ctx, "Depot", parentID, 0, "Bay", json.RawMessage(`{}`)))

		assert.Equal(t, result.BadRequest, res.ResultType)
	})
}

func TestDelete(t *testing.T) {
	t.Run("soft deletes through a modify event but audits a delete", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()
		parentID := f.seedDepot(t)

		res := f.processor.Delete(ctx, messages.NewDeleteCommand(ctx, "Depot", parentID))

		assert.Equal(t, result.OkForCommand, res.ResultType)

		all := f.events.All()
		require.Len(t, all, 1)
		assert.Equal(t, event.Type("ModifyDepotEvent"), all[0].EventType)
		assert.JSONEq(t, `{"Status":"Cancelled"}`, string(all[0].EventData))

		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, event.Type("DeleteDepotEvent"), audits[0].EventType)
	})

	t.Run("unknown stream is not found", func(t *testing.T) {
		f := newFixture(t)
		ctx := testContext()

		res := f.processor.Delete(ctx, messages.NewDeleteCommand(ctx, "Depot", uuid.New()))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.events.All())
	})

	t.Run("unknown stream wins over a denial and leaves no audit", func(t *testing.T) {
		f := newFixture(t)
		f.spec.delete = result.Denied()
		ctx := testContext()

		res := f.processor.Delete(ctx, messages.NewDeleteCommand(ctx, "Depot", uuid.New()))

		assert.Equal(t, result.NothingFound, res.ResultType)
		assert.Empty(t, f.events.All())
		assert.Empty(t, f.audits.all())
	})

	t.Run("denial audits the delete event type", func(t *testing.T) {
		f := newFixture(t)
		f.spec.delete = result.Denied()
		ctx := testContext()
		parentID := f.seedDepot(t)

		res := f.processor.Delete(ctx, messages.NewDeleteCommand(ctx, "Depot", parentID))

		assert.Equal(t, result.AccessDenied, res.ResultType)
		audits := f.audits.all()
		require.Len(t, audits, 1)
		assert.Equal(t, event.Type("DeleteDepotEvent"), audits[0].AccessDeniedType)
	})
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor.Register(f.bus))
	ctx := testContext()

	res, err := bus.RequestAs[result.CommandResult](ctx, f.bus, messages.NewCreateCommand(ctx, "Depot", json.RawMessage(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, result.OkResourceCreated, res.ResultType)

	// A second processor for the same tag must be rejected.
	assert.Error(t, f.processor.Register(f.bus))
}
