package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder receives lifecycle events. Recording is best-effort and never
// fails the operation that triggered it.
type Recorder interface {
	Record(ctx context.Context, actor, action, resourceUUID string, metadata Metadata)
}

// StoreRecorder appends lifecycle events to a Store.
type StoreRecorder struct {
	store  *Store
	logger *slog.Logger
}

// NewStoreRecorder creates a StoreRecorder.
func NewStoreRecorder(store *Store, logger *slog.Logger) *StoreRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRecorder{store: store, logger: logger}
}

// Record implements Recorder.
func (r *StoreRecorder) Record(ctx context.Context, actor, action, resourceUUID string, metadata Metadata) {
	event := &EventRecord{
		ID:           uuid.NewString(),
		EventType:    EventLifecycle,
		Actor:        actor,
		ResourceType: "report_format",
		ResourceUUID: resourceUUID,
		Action:       action,
		Outcome:      OutcomeSuccess,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	if err := r.store.Append(event); err != nil {
		r.logger.Error("failed to write audit event", "error", err, "action", action, "uuid", resourceUUID)
	}
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, string, string, string, Metadata) {}
