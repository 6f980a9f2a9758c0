package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-process
// deployments. Events are kept per stream in append order.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]DomainEvent
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[uuid.UUID][]DomainEvent)}
}

func (s *MemoryStore) Append(_ context.Context, ev *DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev.Sequence = s.seq
	s.streams[ev.EventStreamID] = append(s.streams[ev.EventStreamID], *ev)
	return nil
}

func (s *MemoryStore) StreamSince(_ context.Context, streamID uuid.UUID, since time.Time) ([]DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DomainEvent
	for _, ev := range s.streams[streamID] {
		if ev.Timestamp.After(since) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// All returns every event across all streams, for test assertions.
func (s *MemoryStore) All() []DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DomainEvent
	for _, evs := range s.streams {
		out = append(out, evs...)
	}
	return out
}
