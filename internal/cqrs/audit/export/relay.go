// Package export streams persisted audit entries to a Kafka topic so
// downstream compliance tooling can consume them without touching the
// primary audit store.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"fleetledger/internal/cqrs/audit"
)

const defaultInboxSize = 256

// Relay buffers audit entries in an inbox channel and produces them to
// Kafka from a single background loop. Enqueue never blocks the request
// path; when the inbox is full the entry is dropped and counted, the
// store of record is unaffected.
type Relay struct {
	client *kgo.Client
	topic  string
	inbox  chan audit.Entry
	logger *slog.Logger
}

type Option func(*Relay)

func WithInboxSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.inbox = make(chan audit.Entry, n)
		}
	}
}

func NewRelay(brokers []string, topic string, logger *slog.Logger, opts ...Option) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	r := &Relay{
		client: client,
		topic:  topic,
		inbox:  make(chan audit.Entry, defaultInboxSize),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EnsureTopic creates the export topic if it does not exist. Safe to call
// on every startup.
func (r *Relay) EnsureTopic(ctx context.Context, partitions int32, replicas int16) error {
	adm := kadm.NewClient(r.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicas, nil, r.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", r.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", r.topic, resp.Err)
	}
	return nil
}

// Enqueue hands an entry to the background loop without blocking.
func (r *Relay) Enqueue(entry audit.Entry) {
	select {
	case r.inbox <- entry:
	default:
		exportDropped.Inc()
		r.logger.Warn("audit export inbox full, entry dropped",
			slog.String("event_type", string(entry.EventType)),
			slog.String("stream_id", entry.EventStreamID.String()),
		)
	}
}

// Run produces queued entries until the context is cancelled. Produce
// failures are logged and counted, never retried here: the store of
// record already holds the entry.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry := <-r.inbox:
			r.produce(ctx, entry)
		}
	}
}

func (r *Relay) produce(ctx context.Context, entry audit.Entry) {
	value, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("marshal audit entry for export", slog.Any("error", err))
		return
	}
	record := &kgo.Record{
		Key:   []byte(entry.EventStreamID.String()),
		Value: value,
	}
	if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		exportFailed.Inc()
		r.logger.Error("produce audit entry",
			slog.Any("error", err),
			slog.String("event_type", string(entry.EventType)),
		)
		return
	}
	exportPublished.Inc()
}

func (r *Relay) Close() {
	r.client.Close()
}
