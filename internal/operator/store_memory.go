package operator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/paging"
)

// MemoryStore is an in-memory operator store for tests and single-process
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*Operator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[uuid.UUID]*Operator)}
}

func copyOperator(o *Operator) *Operator {
	copied := *o
	copied.Drivers = append([]Driver{}, o.Drivers...)
	copied.Vehicles = append([]Vehicle{}, o.Vehicles...)
	return &copied
}

func (s *MemoryStore) Get(_ context.Context, streamID uuid.UUID) (*Operator, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.snapshots[streamID]
	if !ok {
		return nil, false, nil
	}
	return copyOperator(o), true, nil
}

func (s *MemoryStore) Save(_ context.Context, o *Operator, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[o.StreamID()] = copyOperator(o)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots), nil
}

func (s *MemoryStore) List(_ context.Context, p paging.Parameters) ([]*Operator, error) {
	s.mu.RLock()
	all := make([]*Operator, 0, len(s.snapshots))
	for _, o := range s.snapshots {
		if p.Filter != "" && !matchesFilter(o, p.Filter) {
			continue
		}
		all = append(all, copyOperator(o))
	}
	s.mu.RUnlock()

	sortOperators(all, p.SortColumn, p.Ascending)

	if p.PageSize == 0 {
		return all, nil
	}
	start := p.Offset()
	if start >= len(all) {
		return []*Operator{}, nil
	}
	end := start + p.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func matchesFilter(o *Operator, filter string) bool {
	f := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(o.Name), f) ||
		strings.Contains(strings.ToLower(o.Licence), f) ||
		strings.Contains(strings.ToLower(o.Region), f)
}

func sortOperators(operators []*Operator, column string, ascending bool) {
	less := func(i, j int) bool {
		switch column {
		case "region":
			return operators[i].Region < operators[j].Region
		case "licenceNumber":
			return operators[i].Licence < operators[j].Licence
		case "status":
			return operators[i].Status < operators[j].Status
		default:
			return operators[i].Name < operators[j].Name
		}
	}
	if ascending {
		sort.SliceStable(operators, less)
	} else {
		sort.SliceStable(operators, func(i, j int) bool { return less(j, i) })
	}
}
