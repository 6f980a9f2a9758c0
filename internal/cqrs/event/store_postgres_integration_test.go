//go:build integration

package event_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fleetledger/internal/cqrs/event"
	"fleetledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *event.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), "../../../migrations/001_init.sql")
	s.store = event.NewPostgresStore(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.Pool.Exec(context.Background(), "TRUNCATE domain_events")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) appendAt(streamID uuid.UUID, eventType string, at time.Time) *event.DomainEvent {
	ev := event.New(json.RawMessage(`{"name":"North"}`), "inspector", event.Type(eventType), streamID, at)
	s.Require().NoError(s.store.Append(context.Background(), ev))
	return ev
}

func (s *PostgresStoreSuite) TestAppendAssignsIncreasingSequence() {
	streamID := uuid.New()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first := s.appendAt(streamID, "CreateAgencyEvent", at)
	second := s.appendAt(streamID, "ModifyAgencyEvent", at.Add(time.Minute))

	s.Greater(second.Sequence, first.Sequence)
}

func (s *PostgresStoreSuite) TestStreamSinceIsStrictlyNewer() {
	streamID := uuid.New()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.appendAt(streamID, "CreateAgencyEvent", at)
	s.appendAt(streamID, "ModifyAgencyEvent", at.Add(time.Minute))

	events, err := s.store.StreamSince(context.Background(), streamID, at)
	s.Require().NoError(err)

	s.Require().Len(events, 1, "events at the boundary timestamp are already folded in")
	s.Equal(event.Type("ModifyAgencyEvent"), events[0].EventType)
}

func (s *PostgresStoreSuite) TestTimestampTiesReplayInInsertionOrder() {
	streamID := uuid.New()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.appendAt(streamID, "CreateAgencyEvent", at)
	first := s.appendAt(streamID, "ModifyAgencyEvent", at.Add(time.Minute))
	second := s.appendAt(streamID, "ModifyAgencyEvent", at.Add(time.Minute))

	events, err := s.store.StreamSince(context.Background(), streamID, time.Time{})
	s.Require().NoError(err)

	s.Require().Len(events, 3)
	s.Equal(first.ID, events[1].ID)
	s.Equal(second.ID, events[2].ID)
}

func (s *PostgresStoreSuite) TestStreamsAreIsolated() {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mine := uuid.New()
	other := uuid.New()
	s.appendAt(mine, "CreateAgencyEvent", at)
	s.appendAt(other, "CreateAgencyEvent", at)

	events, err := s.store.StreamSince(context.Background(), mine, time.Time{})
	s.Require().NoError(err)

	s.Require().Len(events, 1)
	s.Equal(mine, events[0].EventStreamID)
}
