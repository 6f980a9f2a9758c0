package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/pkg/requestcontext"
)

// Recorder converts audit notifications into persisted entries. It is a pure
// sink: no retries and no validation beyond constructing the record. A store
// failure propagates to the publisher, which decides whether to treat the
// publish as fire-and-forget.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Register subscribes the recorder to the shared audit notification key.
func (r *Recorder) Register(b *bus.Bus) {
	b.Subscribe(messages.AuditKey, r.Handle)
}

// Handle persists one audit entry derived from the notification.
func (r *Recorder) Handle(ctx context.Context, n bus.Notification) error {
	note, ok := n.(messages.AuditLogEvent)
	if !ok {
		return fmt.Errorf("audit: unexpected notification %T", n)
	}

	entry := Entry{
		ID:            uuid.New(),
		AuditType:     classify(note),
		EventType:     entryEventType(note),
		EventStreamID: note.StreamID,
		EventID:       note.EventID,
		DataAccess:    note.DataAccess,
		Username:      note.Username,
		Timestamp:     note.Timestamp,
	}

	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("audit: append entry: %w", err)
	}
	entriesTotal.WithLabelValues(string(entry.AuditType)).Inc()

	if r.logger != nil {
		r.logger.InfoContext(ctx, string(entry.EventType),
			"log_type", "audit",
			"audit_type", entry.AuditType,
			"event_stream_id", entry.EventStreamID,
			"username", entry.Username,
			"data_access", entry.DataAccess,
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx),
			"device", requestcontext.Device(ctx),
		)
	}
	return nil
}

// classify maps the notification onto the entry taxonomy.
func classify(n messages.AuditLogEvent) EntryType {
	switch n.EventType {
	case event.TypeAccessDeniedAudit:
		return EntryAccessDenied
	case event.TypeDataAccessedAudit:
		return EntryDataAccess
	default:
		return EntryDomainEvent
	}
}

// entryEventType preserves the denied action's event type on denial entries;
// operators care about what was refused, not that the refusal itself has a
// type.
func entryEventType(n messages.AuditLogEvent) event.Type {
	if n.EventType == event.TypeAccessDeniedAudit && n.AccessDeniedType != event.TypeInvalid {
		return n.AccessDeniedType
	}
	return n.EventType
}
