package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"gigboard/internal/model"
	"gigboard/internal/queue"
)

// SnapshotProvider abstracts the repository read the worker needs.
// Workers don't depend on the DB layer directly.
type SnapshotProvider interface {
	// GetThread assembles the authoritative snapshot for a thread.
	GetThread(ctx context.Context, threadID string) (*model.Snapshot, error)
}

// SnapshotSink receives a freshly built snapshot.
// In production this is the Redis cache.
type SnapshotSink interface {
	Set(ctx context.Context, snapshot *model.Snapshot) error
}

// SnapshotBroadcaster pushes a snapshot to live subscribers.
type SnapshotBroadcaster interface {
	BroadcastSnapshot(ctx context.Context, snapshot *model.Snapshot) error
}

// Handler processes comment events from the queue. Every event type leads to
// the same work: rebuild the thread's snapshot from the database, cache it,
// and broadcast it. Rebuilding from scratch keeps the worker idempotent, so
// redelivered messages are harmless.
type Handler struct {
	provider    SnapshotProvider
	sink        SnapshotSink
	broadcaster SnapshotBroadcaster // Can be nil if pub/sub not wired
}

// NewHandler creates a new event handler.
func NewHandler(provider SnapshotProvider, sink SnapshotSink) *Handler {
	return &Handler{
		provider: provider,
		sink:     sink,
	}
}

// SetBroadcaster sets the pub/sub broadcaster (optional).
func (h *Handler) SetBroadcaster(b SnapshotBroadcaster) {
	h.broadcaster = b
}

// HandleEvent rebuilds and fans out the snapshot for the event's thread.
func (h *Handler) HandleEvent(ctx context.Context, event queue.CommentEvent) error {
	startTime := time.Now()

	switch event.Type {
	case queue.EventCommentCreated, queue.EventReplyCreated, queue.EventLikeToggled, queue.EventCommentDeleted:
		// All comment events invalidate the same thing
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if event.ThreadID == "" {
		return fmt.Errorf("event missing thread id")
	}

	snapshot, err := h.provider.GetThread(ctx, event.ThreadID)
	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s thread=%s err=%v", event.Type, event.ThreadID, err)
		return fmt.Errorf("rebuild snapshot: %w", err)
	}

	if err := h.sink.Set(ctx, snapshot); err != nil {
		// Cache failure is not fatal: subscribers still get the broadcast,
		// the next read just pays the DB cost again.
		log.Printf("[Worker] Snapshot cache write failed: thread=%s err=%v", event.ThreadID, err)
	}

	if h.broadcaster != nil {
		if err := h.broadcaster.BroadcastSnapshot(ctx, snapshot); err != nil {
			log.Printf("[Worker] Broadcast failed: thread=%s err=%v", event.ThreadID, err)
			return fmt.Errorf("broadcast snapshot: %w", err)
		}
	}

	log.Printf("[Worker] HandleEvent OK: type=%s thread=%s comments=%d duration=%v",
		event.Type, event.ThreadID, len(snapshot.Comments), time.Since(startTime))
	return nil
}
