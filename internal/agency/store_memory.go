package agency

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/paging"
)

// MemoryStore is an in-memory agency store for tests and single-process
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*Agency
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[uuid.UUID]*Agency)}
}

func (s *MemoryStore) Get(_ context.Context, streamID uuid.UUID) (*Agency, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.snapshots[streamID]
	if !ok {
		return nil, false, nil
	}
	copied := *a
	copied.Contacts = append([]Contact{}, a.Contacts...)
	return &copied, true, nil
}

func (s *MemoryStore) Save(_ context.Context, a *Agency, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	copied.Contacts = append([]Contact{}, a.Contacts...)
	s.snapshots[a.StreamID()] = &copied
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots), nil
}

func (s *MemoryStore) List(_ context.Context, p paging.Parameters) ([]*Agency, error) {
	s.mu.RLock()
	all := make([]*Agency, 0, len(s.snapshots))
	for _, a := range s.snapshots {
		if p.Filter != "" && !matchesFilter(a, p.Filter) {
			continue
		}
		copied := *a
		copied.Contacts = append([]Contact{}, a.Contacts...)
		all = append(all, &copied)
	}
	s.mu.RUnlock()

	sortAgencies(all, p.SortColumn, p.Ascending)

	if p.PageSize == 0 {
		return all, nil
	}
	start := p.Offset()
	if start >= len(all) {
		return []*Agency{}, nil
	}
	end := start + p.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func matchesFilter(a *Agency, filter string) bool {
	f := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(a.Name), f) ||
		strings.Contains(strings.ToLower(a.Region), f)
}

func sortAgencies(agencies []*Agency, column string, ascending bool) {
	less := func(i, j int) bool {
		switch column {
		case "region":
			return agencies[i].Region < agencies[j].Region
		case "status":
			return agencies[i].Status < agencies[j].Status
		default:
			return agencies[i].Name < agencies[j].Name
		}
	}
	if ascending {
		sort.SliceStable(agencies, less)
	} else {
		sort.SliceStable(agencies, func(i, j int) bool { return less(j, i) })
	}
}
