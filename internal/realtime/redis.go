package realtime

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// ThreadChannel returns the pub/sub channel name carrying one thread's
// events. The server's snapshot builders publish here and both the SSE
// bridge and RedisSource subscribe to it.
func ThreadChannel(threadID string) string {
	return "thread:" + threadID + ":events"
}

// RedisSource dials a thread channel directly over Redis pub/sub. Used when
// the client runs inside the platform's network and can skip the SSE hop.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource creates a pub/sub event source on an existing client.
func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

// Dial subscribes to the thread channel. Satisfies DialFunc.
func (s *RedisSource) Dial(ctx context.Context, threadID string) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, ThreadChannel(threadID))

	// Block until the subscription is confirmed so a nil error really means
	// the channel is live.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe thread channel: %w", err)
	}

	events := make(chan Event)
	go s.read(ctx, threadID, sub, events)
	return events, nil
}

func (s *RedisSource) read(ctx context.Context, threadID string, sub *redis.PubSub, events chan<- Event) {
	defer close(events)
	defer sub.Close()

	// Pub/sub has no server-side connected frame, so synthesize one once the
	// subscription is confirmed.
	select {
	case events <- ConnectedEvent{ThreadID: threadID}:
	case <-ctx.Done():
		return
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return // connection dropped
			}
			ev, err := ParseEnvelope([]byte(msg.Payload))
			if err != nil {
				log.Printf("[RedisSource] thread=%s dropping malformed payload: %v", threadID, err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
