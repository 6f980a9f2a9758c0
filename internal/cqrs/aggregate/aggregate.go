// Package aggregate defines the capability contract aggregate snapshots
// implement, the shared entity status lifecycle, and the snapshot store
// contract the projector and query side share.
package aggregate

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Root is the capability interface every aggregate snapshot type implements.
// A snapshot belongs to exactly one event stream, and its version timestamp
// is the timestamp of the last event folded into it. The projector never
// re-applies an event at or before that boundary.
type Root interface {
	StreamID() uuid.UUID
	SetStreamID(id uuid.UUID)
	EventVersion() time.Time
	SetEventVersion(ts time.Time)
}

// Status is the lifecycle state shared by every entity in the domain. Soft
// delete means transitioning to StatusCancelled via a normal modify event;
// nothing is ever physically removed.
type Status string

const (
	StatusNew       Status = "New"
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
	StatusCancelled Status = "Cancelled"
)

// ChildRef is the uniform view of one entity inside an aggregate's child
// collection. Aggregate implementations expose their collections as ChildRef
// slices so the command processor can confirm a child exists without knowing
// the concrete child type.
type ChildRef struct {
	ID   int64
	Data any
}

// ChildAccessor returns the ChildRef view of one child collection on a
// snapshot.
type ChildAccessor[T Root] func(root T) []ChildRef

// SnapshotStore persists materialized aggregate snapshots. Get reports
// found=false for unknown streams; Save inserts when created is true and
// updates otherwise.
type SnapshotStore[T Root] interface {
	Get(ctx context.Context, streamID uuid.UUID) (T, bool, error)
	Save(ctx context.Context, snapshot T, created bool) error
}
