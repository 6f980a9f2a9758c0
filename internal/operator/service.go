package operator

import (
	"context"

	"github.com/google/uuid"

	"fleetledger/internal/authz"
	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/internal/cqrs/result"
)

// Store is the operator snapshot store plus the list shapes the query side
// needs.
type Store interface {
	aggregate.SnapshotStore[*Operator]
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, p paging.Parameters) ([]*Operator, error)
}

// WithSnapshots overlays snapshot reads and writes on a Store. Count and List
// stay on the store of record; Get and Save go through snapshots, typically
// the cached decorator.
func WithSnapshots(inner Store, snapshots aggregate.SnapshotStore[*Operator]) Store {
	return snapshotOverlay{Store: inner, snapshots: snapshots}
}

type snapshotOverlay struct {
	Store
	snapshots aggregate.SnapshotStore[*Operator]
}

func (o snapshotOverlay) Get(ctx context.Context, streamID uuid.UUID) (*Operator, bool, error) {
	return o.snapshots.Get(ctx, streamID)
}

func (o snapshotOverlay) Save(ctx context.Context, op *Operator, created bool) error {
	return o.snapshots.Save(ctx, op, created)
}

// Service supplies the aggregate-specific extension points for the generic
// processors. Same claim scheme as agencies; drivers and vehicles are covered
// by the operator's update claim.
type Service struct {
	checker authz.Checker
	store   Store
}

func NewService(checker authz.Checker, store Store) *Service {
	return &Service{checker: checker, store: store}
}

func (s *Service) Tag() string { return Tag }

func (s *Service) AuthorizeCreate(ctx context.Context) result.ServiceResult {
	if !s.checker.Allow(ctx, authz.Create(Tag)) {
		return result.Denied()
	}
	return result.OK()
}

func (s *Service) AuthorizeModify(ctx context.Context, _ uuid.UUID) result.ServiceResult {
	if !s.checker.Allow(ctx, authz.Update(Tag)) {
		return result.Denied()
	}
	return result.OK()
}

func (s *Service) AuthorizeDelete(ctx context.Context, _ uuid.UUID) result.ServiceResult {
	if !s.checker.Allow(ctx, authz.Delete(Tag)) {
		return result.Denied()
	}
	return result.OK()
}

func (s *Service) Children() map[string]aggregate.ChildAccessor[*Operator] {
	return map[string]aggregate.ChildAccessor[*Operator]{
		DriverTag:  driverRefs,
		VehicleTag: vehicleRefs,
	}
}

func (s *Service) AuthorizeRead(ctx context.Context, access event.Access) result.ServiceResult {
	claim := authz.ViewList(Tag)
	if access == event.AccessSingle {
		claim = authz.ViewDetails(Tag)
	}
	if !s.checker.Allow(ctx, claim) {
		return result.Denied()
	}
	return result.OK()
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) List(ctx context.Context, p paging.Parameters) ([]*Operator, error) {
	return s.store.List(ctx, p)
}

func (s *Service) Single(ctx context.Context, streamID uuid.UUID) (*Operator, bool, error) {
	return s.store.Get(ctx, streamID)
}
