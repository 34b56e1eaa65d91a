package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gigboard/internal/httputil"
	"gigboard/internal/model"
	"gigboard/internal/service"
	"gigboard/internal/transport/http/middleware"
)

type CommentHandler struct {
	commentService *service.CommentService
}

func NewCommentHandler(commentService *service.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// Create handles POST /threads/:id/comments
// Creates a top-level comment for the authenticated user. The optional
// X-Correlation-ID header is stored on the row and echoed in every snapshot
// so optimistic clients can match their pending write.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	threadID := chi.URLParam(r, "id")

	var req model.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")

	comment, err := h.commentService.Create(r.Context(), threadID, user, req.Body, correlationID)
	if err != nil {
		h.writeCommentError(w, err, "Create", threadID)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

// CreateReply handles PUT /threads/:id/comments
// Adds a reply under an existing top-level comment.
func (h *CommentHandler) CreateReply(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	threadID := chi.URLParam(r, "id")

	var req model.CreateReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.CommentID == "" {
		httputil.WriteBadRequest(w, "comment_id is required")
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")

	reply, err := h.commentService.CreateReply(r.Context(), threadID, req.CommentID, user, req.Body, correlationID)
	if err != nil {
		h.writeCommentError(w, err, "CreateReply", threadID)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, reply)
}

// ToggleLike handles POST /threads/:id/comments/:commentId/like
// Flips the caller's like on a comment (reply_id absent) or a reply.
func (h *CommentHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	threadID := chi.URLParam(r, "id")
	commentID := chi.URLParam(r, "commentId")

	var req model.LikeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteBadRequest(w, "Invalid request body")
			return
		}
	}

	liked, err := h.commentService.ToggleLike(r.Context(), threadID, commentID, req.ReplyID, user.ID)
	if err != nil {
		h.writeCommentError(w, err, "ToggleLike", threadID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, model.LikeResponse{Liked: liked})
}

// Delete handles DELETE /threads/:id/comments
// Removes a comment with its replies, or a single reply (only the author can).
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	threadID := chi.URLParam(r, "id")

	var req model.DeleteCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.CommentID == "" {
		httputil.WriteBadRequest(w, "comment_id is required")
		return
	}

	err := h.commentService.Delete(r.Context(), threadID, req.CommentID, req.ReplyID, user.ID)
	if err != nil {
		h.writeCommentError(w, err, "Delete", threadID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, model.DeleteResponse{OK: true})
}

// GetThread handles GET /threads/:id/comments
// Returns the full snapshot. This is the pull fallback for clients whose live
// channel is down, and the initial page load.
func (h *CommentHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")

	snapshot, err := h.commentService.GetThread(r.Context(), threadID)
	if err != nil {
		log.Printf("[ERROR] GetThread handler: thread=%s err=%v", threadID, err)
		httputil.WriteInternalError(w, "Failed to get thread")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

// writeCommentError maps service errors to HTTP responses.
func (h *CommentHandler) writeCommentError(w http.ResponseWriter, err error, op, threadID string) {
	var moderr *model.ModerationError
	switch {
	case errors.As(err, &moderr):
		httputil.WriteModerationRejected(w, moderr.Reasons)
	case errors.Is(err, model.ErrBodyRequired):
		httputil.WriteBadRequest(w, "Comment body is required")
	case errors.Is(err, model.ErrBodyTooLong):
		httputil.WriteBadRequest(w, "Comment body too long")
	case errors.Is(err, model.ErrReplyDepth):
		httputil.WriteBadRequest(w, "Replies to replies are not allowed")
	case errors.Is(err, model.ErrCommentNotFound):
		httputil.WriteNotFound(w, "Comment not found")
	case errors.Is(err, model.ErrReplyNotFound):
		httputil.WriteNotFound(w, "Reply not found")
	case errors.Is(err, model.ErrNotCommentOwner):
		httputil.WriteForbidden(w, "You can only delete your own comments")
	default:
		log.Printf("[ERROR] %s comment handler: thread=%s err=%v", op, threadID, err)
		httputil.WriteInternalError(w, "Comment operation failed")
	}
}
