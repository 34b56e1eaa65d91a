package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gigboard/internal/cache"
	"gigboard/internal/model"
	"gigboard/internal/moderation"
	"gigboard/internal/queue"
	"gigboard/internal/repository"
)

// CommentService owns thread writes: validation, the moderation gate, the
// database write, and the event publish that drives snapshot fan-out.
type CommentService struct {
	commentRepo repository.CommentRepository
	snapCache   cache.SnapshotCache
	publisher   queue.Publisher
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	snapCache cache.SnapshotCache,
	publisher queue.Publisher,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		snapCache:   snapCache,
		publisher:   publisher,
	}
}

// Create adds a top-level comment. The moderation gate runs before anything
// is stored: rejected text never reaches the database or the stream.
func (s *CommentService) Create(ctx context.Context, threadID string, author model.UserRef, body, correlationID string) (*model.Comment, error) {
	if err := validateBody(body); err != nil {
		return nil, err
	}

	comment, err := s.commentRepo.CreateComment(ctx, threadID, author, body, correlationID)
	if err != nil {
		return nil, err
	}

	log.Printf("[CommentService] User %d commented on thread %s", author.ID, threadID)

	s.publishEvent(ctx, queue.NewCommentCreatedEvent(threadID, comment.ID, author.ID))
	return comment, nil
}

// CreateReply adds a reply under an existing top-level comment.
func (s *CommentService) CreateReply(ctx context.Context, threadID, commentID string, author model.UserRef, body, correlationID string) (*model.Reply, error) {
	if err := validateBody(body); err != nil {
		return nil, err
	}

	reply, err := s.commentRepo.CreateReply(ctx, threadID, commentID, author, body, correlationID)
	if err != nil {
		return nil, err
	}

	log.Printf("[CommentService] User %d replied to comment %s on thread %s", author.ID, commentID, threadID)

	s.publishEvent(ctx, queue.NewReplyCreatedEvent(threadID, commentID, reply.ID, author.ID))
	return reply, nil
}

// ToggleLike flips the user's like on a comment or reply and returns the
// resulting state.
func (s *CommentService) ToggleLike(ctx context.Context, threadID, commentID string, replyID *string, userID int64) (bool, error) {
	liked, err := s.commentRepo.ToggleLike(ctx, threadID, commentID, replyID, userID)
	if err != nil {
		return false, err
	}

	log.Printf("[CommentService] User %d toggled like on thread %s (liked=%t)", userID, threadID, liked)

	s.publishEvent(ctx, queue.NewLikeToggledEvent(threadID, commentID, replyID, userID, liked))
	return liked, nil
}

// Delete removes a comment with its replies, or a single reply.
func (s *CommentService) Delete(ctx context.Context, threadID, commentID string, replyID *string, userID int64) error {
	if err := s.commentRepo.Delete(ctx, threadID, commentID, replyID, userID); err != nil {
		return err
	}

	log.Printf("[CommentService] User %d deleted from thread %s (comment=%s)", userID, threadID, commentID)

	s.publishEvent(ctx, queue.NewCommentDeletedEvent(threadID, commentID, replyID, userID))
	return nil
}

// GetThread returns the thread snapshot, cache-first. A miss rebuilds from
// the database and warms the cache for the next reader.
func (s *CommentService) GetThread(ctx context.Context, threadID string) (*model.Snapshot, error) {
	if s.snapCache != nil {
		snap, err := s.snapCache.Get(ctx, threadID)
		if err != nil {
			log.Printf("[CommentService] Snapshot cache read failed, falling through to DB: %v", err)
		} else if snap != nil {
			return snap, nil
		}
	}

	snap, err := s.commentRepo.GetThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}

	if s.snapCache != nil {
		if err := s.snapCache.Set(ctx, snap); err != nil {
			log.Printf("[CommentService] Snapshot cache warm failed: %v", err)
		}
	}
	return snap, nil
}

// publishEvent pushes a stream event after a committed write, best-effort.
// The worker rebuilds and broadcasts the snapshot; a publish failure only
// delays subscribers until the next event or poll.
func (s *CommentService) publishEvent(ctx context.Context, event queue.CommentEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, queue.StreamComments, event); err != nil {
		log.Printf("[CommentService] Failed to publish %s event: %v", event.Type, err)
	}
}

// validateBody runs length checks then the moderation filter.
func validateBody(body string) error {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) == 0 {
		return model.ErrBodyRequired
	}
	if len(body) > model.MaxCommentLength {
		return model.ErrBodyTooLong
	}

	if result := moderation.Classify(body); result.Blocked {
		return &model.ModerationError{
			Body:    body,
			Reasons: result.ReasonStrings(),
		}
	}
	return nil
}
