package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the comment stream
const (
	EventCommentCreated = "comment_created"
	EventReplyCreated   = "reply_created"
	EventLikeToggled    = "like_toggled"
	EventCommentDeleted = "comment_deleted"
)

// Stream names
const (
	StreamComments = "stream:comments"
)

// Consumer group name for snapshot workers
const (
	ConsumerGroupComments = "comment_workers"
)

// CommentEvent represents an event published to the comment stream.
// All comment-related events share this structure. The worker only needs the
// thread id to rebuild a snapshot; the remaining fields exist for logging and
// future consumers.
type CommentEvent struct {
	Type      string `json:"type"`      // EventCommentCreated, EventReplyCreated, ...
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred

	ThreadID string `json:"thread_id"`
	ActorID  int64  `json:"actor_id"`

	CommentID string  `json:"comment_id,omitempty"`
	ReplyID   *string `json:"reply_id,omitempty"`

	// Like event only
	Liked bool `json:"liked,omitempty"`
}

// NewCommentCreatedEvent creates an event for a new top-level comment.
// Worker will rebuild the thread snapshot and broadcast it.
func NewCommentCreatedEvent(threadID, commentID string, actorID int64) CommentEvent {
	return CommentEvent{
		Type:      EventCommentCreated,
		Timestamp: time.Now().Unix(),
		ThreadID:  threadID,
		ActorID:   actorID,
		CommentID: commentID,
	}
}

// NewReplyCreatedEvent creates an event for a new reply.
func NewReplyCreatedEvent(threadID, commentID, replyID string, actorID int64) CommentEvent {
	return CommentEvent{
		Type:      EventReplyCreated,
		Timestamp: time.Now().Unix(),
		ThreadID:  threadID,
		ActorID:   actorID,
		CommentID: commentID,
		ReplyID:   &replyID,
	}
}

// NewLikeToggledEvent creates an event for a like flip on a comment or reply.
func NewLikeToggledEvent(threadID, commentID string, replyID *string, actorID int64, liked bool) CommentEvent {
	return CommentEvent{
		Type:      EventLikeToggled,
		Timestamp: time.Now().Unix(),
		ThreadID:  threadID,
		ActorID:   actorID,
		CommentID: commentID,
		ReplyID:   replyID,
		Liked:     liked,
	}
}

// NewCommentDeletedEvent creates an event for a removed comment or reply.
func NewCommentDeletedEvent(threadID, commentID string, replyID *string, actorID int64) CommentEvent {
	return CommentEvent{
		Type:      EventCommentDeleted,
		Timestamp: time.Now().Unix(),
		ThreadID:  threadID,
		ActorID:   actorID,
		CommentID: commentID,
		ReplyID:   replyID,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e CommentEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseCommentEvent parses a CommentEvent from Redis stream message values.
func ParseCommentEvent(values map[string]interface{}) (CommentEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return CommentEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event CommentEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return CommentEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
