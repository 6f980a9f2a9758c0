// Package cache decorates a snapshot store with a read-through Redis cache.
// Only Get is cached; Save writes through to the inner store and drops the
// cached copy so the next read observes the fold's result.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fleetledger/internal/cqrs/aggregate"
)

// Store wraps an aggregate.SnapshotStore with Redis caching. Cache failures
// are logged and treated as misses; the store of record always wins.
type Store[T aggregate.Root] struct {
	inner  aggregate.SnapshotStore[T]
	rdb    *redis.Client
	newFn  func() T
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func New[T aggregate.Root](inner aggregate.SnapshotStore[T], rdb *redis.Client, newFn func() T, prefix string, ttl time.Duration, logger *slog.Logger) *Store[T] {
	return &Store[T]{inner: inner, rdb: rdb, newFn: newFn, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *Store[T]) key(streamID uuid.UUID) string {
	return fmt.Sprintf("snapshot:%s:%s", s.prefix, streamID)
}

func (s *Store[T]) Get(ctx context.Context, streamID uuid.UUID) (T, bool, error) {
	payload, err := s.rdb.Get(ctx, s.key(streamID)).Bytes()
	if err == nil {
		snap := s.newFn()
		if err := json.Unmarshal(payload, snap); err == nil {
			return snap, true, nil
		}
		// A corrupt cache entry is dropped and re-read from the inner store.
		s.rdb.Del(ctx, s.key(streamID))
	} else if !errors.Is(err, redis.Nil) && s.logger != nil {
		s.logger.WarnContext(ctx, "snapshot cache read failed", "prefix", s.prefix, "error", err)
	}

	snap, found, err := s.inner.Get(ctx, streamID)
	if err != nil || !found {
		return snap, found, err
	}

	if encoded, err := json.Marshal(snap); err == nil {
		if err := s.rdb.Set(ctx, s.key(streamID), encoded, s.ttl).Err(); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "snapshot cache write failed", "prefix", s.prefix, "error", err)
		}
	}
	return snap, true, nil
}

func (s *Store[T]) Save(ctx context.Context, snapshot T, created bool) error {
	if err := s.inner.Save(ctx, snapshot, created); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(snapshot.StreamID())).Err(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "prefix", s.prefix, "error", err)
	}
	return nil
}
