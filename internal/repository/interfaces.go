package repository

import (
	"context"

	"gigboard/internal/model"
)

type CommentRepository interface {
	// CreateComment inserts a new top-level comment and returns the stored row.
	CreateComment(ctx context.Context, threadID string, author model.UserRef, body, correlationID string) (*model.Comment, error)
	// CreateReply inserts a reply under an existing top-level comment.
	// Returns ErrReplyDepth when commentID names a reply rather than a comment.
	CreateReply(ctx context.Context, threadID, commentID string, author model.UserRef, body, correlationID string) (*model.Reply, error)
	// ToggleLike flips the user's like on a comment (replyID nil) or a reply.
	// Returns the resulting liked state.
	ToggleLike(ctx context.Context, threadID, commentID string, replyID *string, userID int64) (bool, error)
	// Delete removes a comment with its replies, or a single reply.
	// Only the author can delete their own content.
	Delete(ctx context.Context, threadID, commentID string, replyID *string, userID int64) error
	// GetThread assembles the full snapshot: comments oldest-first with their
	// replies (oldest-first) and like sets.
	GetThread(ctx context.Context, threadID string) (*model.Snapshot, error)
}
