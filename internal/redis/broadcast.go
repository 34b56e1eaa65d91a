package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"gigboard/internal/model"
	"gigboard/internal/realtime"
)

// Broadcaster publishes thread events to connected subscribers.
// The concrete implementation fans out over Redis pub/sub; the SSE handler on
// each server instance subscribes to the same channel and forwards frames.
type Broadcaster interface {
	// BroadcastSnapshot pushes the authoritative comment list to every
	// subscriber of the thread.
	BroadcastSnapshot(ctx context.Context, snapshot *model.Snapshot) error
}

// PubSubBroadcaster implements Broadcaster using Redis pub/sub.
type PubSubBroadcaster struct {
	client *Client
}

// NewBroadcaster creates a Broadcaster backed by Redis pub/sub.
func NewBroadcaster(client *Client) *PubSubBroadcaster {
	return &PubSubBroadcaster{client: client}
}

// BroadcastSnapshot publishes a snapshot envelope on the thread's channel.
// Delivery is best-effort: a thread with no subscribers drops the message,
// which is fine because every new subscriber receives a fresh snapshot on
// connect.
func (b *PubSubBroadcaster) BroadcastSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	startTime := time.Now()
	channel := realtime.ThreadChannel(snapshot.ThreadID)

	payload, err := realtime.EncodeEnvelope(realtime.EventTypeSnapshot, snapshot)
	if err != nil {
		log.Printf("[Broadcaster] BroadcastSnapshot FAILED: thread=%s err=%v", snapshot.ThreadID, err)
		return fmt.Errorf("encode snapshot: %w", err)
	}

	receivers, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		log.Printf("[Broadcaster] BroadcastSnapshot FAILED: thread=%s err=%v", snapshot.ThreadID, err)
		return fmt.Errorf("publish snapshot: %w", err)
	}

	log.Printf("[Broadcaster] BroadcastSnapshot OK: thread=%s comments=%d receivers=%d duration=%v",
		snapshot.ThreadID, len(snapshot.Comments), receivers, time.Since(startTime))
	return nil
}
