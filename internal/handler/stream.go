package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gigboard/internal/realtime"
	"gigboard/internal/redis"
	"gigboard/internal/service"
)

const keepaliveInterval = 25 * time.Second

// StreamHandler serves the per-thread SSE channel. Each subscriber gets a
// connected frame, the current snapshot, then every snapshot the workers
// broadcast over Redis pub/sub until the client disconnects.
type StreamHandler struct {
	commentService *service.CommentService
	redisClient    *redis.Client
}

func NewStreamHandler(commentService *service.CommentService, redisClient *redis.Client) *StreamHandler {
	return &StreamHandler{
		commentService: commentService,
		redisClient:    redisClient,
	}
}

// Stream handles GET /threads/:id/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()

	// Subscribe before sending the initial snapshot so no broadcast falls in
	// the gap between the two.
	sub := h.redisClient.Subscribe(ctx, realtime.ThreadChannel(threadID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		log.Printf("[Stream] Subscribe failed: thread=%s err=%v", threadID, err)
		return
	}

	if err := writeFrame(w, realtime.EventTypeConnected, mustJSON(map[string]string{"thread_id": threadID})); err != nil {
		return
	}
	flusher.Flush()

	snapshot, err := h.commentService.GetThread(ctx, threadID)
	if err != nil {
		log.Printf("[Stream] Initial snapshot failed: thread=%s err=%v", threadID, err)
		return
	}
	snapData, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("[Stream] Marshal snapshot failed: thread=%s err=%v", threadID, err)
		return
	}
	if err := writeFrame(w, realtime.EventTypeSnapshot, snapData); err != nil {
		return
	}
	flusher.Flush()

	log.Printf("[Stream] Subscriber connected: thread=%s remote=%s", threadID, r.RemoteAddr)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Stream] Subscriber disconnected: thread=%s", threadID)
			return

		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case msg, ok := <-msgs:
			if !ok {
				log.Printf("[Stream] Pub/sub channel closed: thread=%s", threadID)
				return
			}

			// Pub/sub carries the {type, data} envelope; split it back into
			// an SSE event name and payload.
			var envelope struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil || envelope.Type == "" {
				log.Printf("[Stream] Dropping malformed broadcast: thread=%s err=%v", threadID, err)
				continue
			}
			if err := writeFrame(w, envelope.Type, envelope.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeFrame emits one SSE frame: event name, data line, blank separator.
func writeFrame(w http.ResponseWriter, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
