package model

// CreateCommentRequest is the request body for posting a top-level comment.
type CreateCommentRequest struct {
	Body string `json:"body"`
}

// CreateReplyRequest is the request body for replying to a comment.
type CreateReplyRequest struct {
	CommentID string `json:"comment_id"`
	Body      string `json:"body"`
}

// LikeRequest is the request body for toggling a like. ReplyID targets a
// reply under the comment in the URL; nil targets the comment itself.
type LikeRequest struct {
	ReplyID *string `json:"reply_id,omitempty"`
}

// LikeResponse reports the like state after a toggle.
type LikeResponse struct {
	Liked bool `json:"liked"`
}

// DeleteCommentRequest is the request body for deleting a comment or reply.
type DeleteCommentRequest struct {
	CommentID string  `json:"comment_id"`
	ReplyID   *string `json:"reply_id,omitempty"`
}

// DeleteResponse acknowledges a delete.
type DeleteResponse struct {
	OK bool `json:"ok"`
}
