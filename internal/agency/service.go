package agency

import (
	"context"

	"github.com/google/uuid"

	"fleetledger/internal/authz"
	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/internal/cqrs/result"
)

// Store is the agency snapshot store plus the list shapes the query side
// needs.
type Store interface {
	aggregate.SnapshotStore[*Agency]
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, p paging.Parameters) ([]*Agency, error)
}

// WithSnapshots overlays snapshot reads and writes on a Store. Count and List
// stay on the store of record; Get and Save go through snapshots, typically
// the cached decorator, so single lookups and invalidation share one path.
func WithSnapshots(inner Store, snapshots aggregate.SnapshotStore[*Agency]) Store {
	return snapshotOverlay{Store: inner, snapshots: snapshots}
}

type snapshotOverlay struct {
	Store
	snapshots aggregate.SnapshotStore[*Agency]
}

func (o snapshotOverlay) Get(ctx context.Context, streamID uuid.UUID) (*Agency, bool, error) {
	return o.snapshots.Get(ctx, streamID)
}

func (o snapshotOverlay) Save(ctx context.Context, a *Agency, created bool) error {
	return o.snapshots.Save(ctx, a, created)
}

// Service supplies the aggregate-specific extension points for the generic
// command and query processors. Authorization is claim checks only; denials
// are audited by the processors, never here.
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

func (s *Service) Children() map[string]aggregate.ChildAccessor[*Agency] {
	return map[string]aggregate.ChildAccessor[*Agency]{
		ContactTag: contactRefs,
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

func (s *Service) List(ctx context.Context, p paging.Parameters) ([]*Agency, error) {
	return s.store.List(ctx, p)
}

func (s *Service) Single(ctx context.Context, streamID uuid.UUID) (*Agency, bool, error) {
	return s.store.Get(ctx, streamID)
}
