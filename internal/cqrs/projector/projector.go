// Package projector folds domain events into materialized snapshots. The
// projector subscribes to the domain notifications the command side publishes
// and replays only the events strictly newer than the snapshot's version
// timestamp, so projecting the same stream twice is a no-op.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
)

// Applier is the aggregate-specific fold. Apply mutates the snapshot in
// place; an error from Apply aborts the whole projection and nothing is
// persisted.
type Applier[T aggregate.Root] interface {
	// Tag is the aggregate type tag the projector subscribes under.
	Tag() string

	// NewSnapshot returns an empty snapshot ready to fold into.
	NewSnapshot() T

	// Apply folds one event into the snapshot.
	Apply(snapshot T, ev event.DomainEvent) error
}

// Projector materializes one aggregate type's snapshots.
type Projector[T aggregate.Root] struct {
	applier   Applier[T]
	events    event.Store
	snapshots aggregate.SnapshotStore[T]
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New[T aggregate.Root](applier Applier[T], events event.Store, snapshots aggregate.SnapshotStore[T], logger *slog.Logger) *Projector[T] {
	return &Projector[T]{
		applier:   applier,
		events:    events,
		snapshots: snapshots,
		logger:    logger.With(slog.String("aggregate", applier.Tag())),
		tracer:    otel.Tracer("fleetledger/projector"),
	}
}

// Register subscribes the projector to the aggregate's created and updated
// notifications.
func (p *Projector[T]) Register(b *bus.Bus) {
	tag := p.applier.Tag()
	handler := func(ctx context.Context, n bus.Notification) error {
		domain, ok := n.(messages.DomainNotification)
		if !ok {
			return fmt.Errorf("projector: unexpected notification %T on key %q", n, n.NotificationKey())
		}
		return p.Project(ctx, domain.StreamID())
	}
	b.Subscribe(tag+"/created", handler)
	b.Subscribe(tag+"/updated", handler)
}

// Project brings the snapshot for one stream up to date. It loads the
// current snapshot (or starts an empty one), replays every event strictly
// newer than the snapshot's version, and persists the result once. A stream
// with no events at all is an error: something notified a projection for a
// stream that was never written.
func (p *Projector[T]) Project(ctx context.Context, streamID uuid.UUID) error {
	ctx, span := p.tracer.Start(ctx, "projector.Project",
		trace.WithAttributes(attribute.String("aggregate", p.applier.Tag())))
	defer span.End()
	timer := prometheus.NewTimer(foldDuration.WithLabelValues(p.applier.Tag()))
	defer timer.ObserveDuration()

	snapshot, found, err := p.snapshots.Get(ctx, streamID)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", streamID, err)
	}
	if !found {
		snapshot = p.applier.NewSnapshot()
		snapshot.SetStreamID(streamID)
	}

	since := snapshot.EventVersion()
	batch, err := p.events.StreamSince(ctx, streamID, since)
	if err != nil {
		return fmt.Errorf("read stream %s: %w", streamID, err)
	}
	if len(batch) == 0 {
		if !found {
			return fmt.Errorf("projector: stream %s has no events", streamID)
		}
		// Already up to date; a replayed notification is harmless.
		return nil
	}

	// The store contract already orders by (timestamp, sequence); sorting
	// again keeps a buggy store from corrupting snapshots.
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Timestamp.Equal(batch[j].Timestamp) {
			return batch[i].Sequence < batch[j].Sequence
		}
		return batch[i].Timestamp.Before(batch[j].Timestamp)
	})

	for _, ev := range batch {
		if err := p.applier.Apply(snapshot, ev); err != nil {
			p.logger.ErrorContext(ctx, "fold aborted",
				slog.String("stream_id", streamID.String()),
				slog.String("event_type", string(ev.EventType)),
				slog.Any("error", err),
			)
			return fmt.Errorf("apply %s to %s: %w", ev.EventType, streamID, err)
		}
	}
	snapshot.SetEventVersion(batch[len(batch)-1].Timestamp)

	if err := p.snapshots.Save(ctx, snapshot, !found); err != nil {
		return fmt.Errorf("save snapshot %s: %w", streamID, err)
	}
	projectionsTotal.WithLabelValues(p.applier.Tag()).Inc()
	return nil
}
