package agency_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/agency"
	"fleetledger/internal/authz"
	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/audit"
	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/command"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/projector"
	"fleetledger/internal/cqrs/query"
	"fleetledger/internal/cqrs/result"
	"fleetledger/pkg/requestcontext"
	"fleetledger/pkg/testutil"
)

// pipeline wires the full agency slice in memory: bus, command processor,
// projector, query processor, audit recorder.
type pipeline struct {
	bus    *bus.Bus
	events *event.MemoryStore
	store  *agency.MemoryStore
	audits *audit.MemoryStore
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := slog.Default()
	registry := event.NewRegistry()
	require.NoError(t, registry.RegisterAggregate(agency.Tag, agency.ContactTag))

	p := &pipeline{
		bus:    bus.New(),
		events: event.NewMemoryStore(),
		store:  agency.NewMemoryStore(),
		audits: audit.NewMemoryStore(),
	}

	service := agency.NewService(authz.NewChecker(), p.store)

	cp, err := command.NewProcessor[*agency.Agency](service, p.events, p.store, p.bus, registry, logger)
	require.NoError(t, err)
	require.NoError(t, cp.Register(p.bus))

	qp, err := query.NewProcessor[*agency.Agency](service, p.bus, registry, logger)
	require.NoError(t, err)
	require.NoError(t, qp.Register(p.bus))

	projector.New[*agency.Agency](agency.Applier{}, p.events, p.store, logger).Register(p.bus)
	audit.NewRecorder(p.audits, logger).Register(p.bus)
	return p
}

func superuserContext(at time.Time) context.Context {
	ctx := requestcontext.WithUsername(context.Background(), "ops")
	ctx = requestcontext.WithAccessClaims(ctx, []string{authz.Superuser})
	return requestcontext.WithTime(ctx, at)
}

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func create(t *testing.T, p *pipeline, ctx context.Context, body string) uuid.UUID {
	t.Helper()
	res, err := bus.RequestAs[result.CommandResult](ctx, p.bus, messages.NewCreateCommand(ctx, agency.Tag, json.RawMessage(body)))
	require.NoError(t, err)
	require.Equal(t, result.OkResourceCreated, res.ResultType)
	return res.NewStreamID
}

func TestCreateFoldGetRoundTrip(t *testing.T) {
	p := newPipeline(t)
	ctx := superuserContext(epoch)

	var streamID uuid.UUID
	testutil.Given(t, "a created agency", func(t *testing.T) {
		streamID = create(t, p, ctx, `{"name":"Northern Transit","region":"north"}`)
	})

	testutil.Then(t, "GetSingle returns the folded snapshot", func(t *testing.T) {
		res, err := bus.RequestAs[result.QueryResult[*agency.Agency]](ctx, p.bus, messages.NewGetSingleQuery(ctx, agency.Tag, streamID))
		require.NoError(t, err)
		require.Equal(t, result.OkForQuery, res.ResultType)
		assert.Equal(t, "Northern Transit", res.Item.Name)
		assert.Equal(t, aggregate.StatusNew, res.Item.Status)
		assert.Equal(t, epoch, res.Item.Version)
	})

	testutil.Then(t, "exactly one audit entry was recorded", func(t *testing.T) {
		entries := p.audits.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.EntryDomainEvent, entries[0].AuditType)
		assert.Equal(t, event.Type("CreateAgencyEvent"), entries[0].EventType)
	})
}

func TestContactLifecycle(t *testing.T) {
	p := newPipeline(t)
	ctx := superuserContext(epoch)
	streamID := create(t, p, ctx, `{"name":"Northern Transit"}`)

	later := superuserContext(epoch.Add(time.Minute))
	res, err := bus.RequestAs[result.CommandResult](later, p.bus,
		messages.NewCreateChildCommand(later, agency.Tag, streamID, agency.ContactTag, json.RawMessage(`{"name":"Ada"}`)))
	require.NoError(t, err)
	require.Equal(t, result.OkResourceCreated, res.ResultType)
	assert.Equal(t, streamID, res.NewStreamID, "child creation hands back the parent stream id")

	// The fold assigned id 1; modify it through that id.
	evenLater := superuserContext(epoch.Add(2 * time.Minute))
	modRes, err := bus.RequestAs[result.CommandResult](evenLater, p.bus,
		messages.NewModifyChildCommand(evenLater, agency.Tag, streamID, 1, agency.ContactTag, json.RawMessage(`{"email":"ada@north.example"}`)))
	require.NoError(t, err)
	require.Equal(t, result.OkForCommand, modRes.ResultType)

	got, found, err := p.store.Get(context.Background(), streamID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Contacts, 1)
	assert.Equal(t, int64(1), got.Contacts[0].ID)
	assert.Equal(t, "ada@north.example", got.Contacts[0].Email)
}

func TestSoftDelete(t *testing.T) {
	p := newPipeline(t)
	ctx := superuserContext(epoch)
	streamID := create(t, p, ctx, `{"name":"Northern Transit"}`)

	later := superuserContext(epoch.Add(time.Minute))
	res, err := bus.RequestAs[result.CommandResult](later, p.bus, messages.NewDeleteCommand(later, agency.Tag, streamID))
	require.NoError(t, err)
	require.Equal(t, result.OkForCommand, res.ResultType)

	testutil.Then(t, "the snapshot is cancelled, not gone", func(t *testing.T) {
		got, found, err := p.store.Get(context.Background(), streamID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, aggregate.StatusCancelled, got.Status)
	})

	testutil.Then(t, "the stream holds a modify event but the audit says delete", func(t *testing.T) {
		stream, err := p.events.StreamSince(context.Background(), streamID, time.Time{})
		require.NoError(t, err)
		require.Len(t, stream, 2)
		assert.Equal(t, event.Type("ModifyAgencyEvent"), stream[1].EventType)

		entries := p.audits.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, event.Type("DeleteAgencyEvent"), entries[1].EventType)
	})
}

func TestDeniedCommandLeavesNoTrace(t *testing.T) {
	p := newPipeline(t)
	ctx := requestcontext.WithUsername(context.Background(), "visitor")
	ctx = requestcontext.WithAccessClaims(ctx, []string{"viewagencylist"})
	ctx = requestcontext.WithTime(ctx, epoch)

	res, err := bus.RequestAs[result.CommandResult](ctx, p.bus, messages.NewCreateCommand(ctx, agency.Tag, json.RawMessage(`{"name":"X"}`)))
	require.NoError(t, err)
	assert.Equal(t, result.AccessDenied, res.ResultType)
	assert.Empty(t, p.events.All())

	entries := p.audits.ByType(audit.EntryAccessDenied)
	require.Len(t, entries, 1)
	assert.Equal(t, event.Type("CreateAgencyEvent"), entries[0].EventType)
	assert.Equal(t, "visitor", entries[0].Username)
}

func TestRacingModifiesConverge(t *testing.T) {
	p := newPipeline(t)
	ctx := superuserContext(epoch)
	streamID := create(t, p, ctx, `{"name":"Original","region":"north"}`)

	// Two writers race with different request clocks. Both must append; the
	// fold applies them in timestamp order, so the later one wins the field.
	first := superuserContext(epoch.Add(time.Minute))
	second := superuserContext(epoch.Add(2 * time.Minute))

	for _, c := range []struct {
		ctx  context.Context
		body string
	}{
		{second, `{"name":"Later"}`},
		{first, `{"name":"Earlier"}`},
	} {
		res, err := bus.RequestAs[result.CommandResult](c.ctx, p.bus, messages.NewModifyCommand(c.ctx, agency.Tag, streamID, json.RawMessage(c.body)))
		require.NoError(t, err)
		require.Equal(t, result.OkForCommand, res.ResultType)
	}

	stream, err := p.events.StreamSince(context.Background(), streamID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stream, 3, "racing writers both append; nothing is rejected")

	// Rebuild from scratch to prove the fold converges regardless of the
	// snapshot state the race left behind.
	fresh := agency.NewMemoryStore()
	proj := projector.New[*agency.Agency](agency.Applier{}, p.events, fresh, slog.Default())
	require.NoError(t, proj.Project(context.Background(), streamID))

	got, _, _ := fresh.Get(context.Background(), streamID)
	assert.Equal(t, "Later", got.Name)
	assert.Equal(t, epoch.Add(2*time.Minute), got.Version)
}
