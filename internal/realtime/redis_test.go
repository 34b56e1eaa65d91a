package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gigboard/internal/model"
)

func setupTestRedis(t *testing.T) *goredis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	// Use DB 1 for testing to avoid conflicts with dev data
	opts.DB = 1

	client := goredis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	return client
}

func TestThreadChannelNaming(t *testing.T) {
	if got := ThreadChannel("job-9"); got != "thread:job-9:events" {
		t.Errorf("ThreadChannel = %q", got)
	}
}

func TestRedisSourceReceivesPublishedSnapshot(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source := NewRedisSource(client)
	events, err := source.Dial(ctx, "job-9")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// First event is the synthesized connected signal.
	select {
	case ev := <-events:
		if _, ok := ev.(ConnectedEvent); !ok {
			t.Fatalf("first event = %T, want ConnectedEvent", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for connected event")
	}

	snap := model.Snapshot{ThreadID: "job-9", Comments: []model.Comment{
		{ID: "c-1", ThreadID: "job-9", Body: "published over pub/sub"},
	}}
	payload, err := EncodeEnvelope(EventTypeSnapshot, snap)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	if err := client.Publish(ctx, ThreadChannel("job-9"), payload).Err(); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-events:
		se, ok := ev.(SnapshotEvent)
		if !ok {
			t.Fatalf("event = %T, want SnapshotEvent", ev)
		}
		if len(se.Snapshot.Comments) != 1 || se.Snapshot.Comments[0].ID != "c-1" {
			t.Errorf("snapshot = %+v", se.Snapshot)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for snapshot event")
	}

	// Cancelling the context closes the event channel.
	cancel()
	select {
	case _, open := <-events:
		if open {
			// Drain until closed; a buffered event may still be in flight.
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after cancel")
	}
}
