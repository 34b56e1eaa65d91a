package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gigboard/internal/model"
)

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentRepository {
	return &commentRepository{db: db}
}

// CreateComment inserts a new top-level comment.
func (r *commentRepository) CreateComment(ctx context.Context, threadID string, author model.UserRef, body, correlationID string) (*model.Comment, error) {
	comment := model.Comment{
		ID:            uuid.NewString(),
		ThreadID:      threadID,
		Author:        author,
		Body:          body,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}

	query := `
		INSERT INTO thread_comments (id, thread_id, author_id, author_name, body, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		comment.ID, comment.ThreadID, author.ID, author.Name, comment.Body, comment.CorrelationID, comment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &comment, nil
}

// CreateReply inserts a reply under an existing top-level comment.
func (r *commentRepository) CreateReply(ctx context.Context, threadID, commentID string, author model.UserRef, body, correlationID string) (*model.Reply, error) {
	// The parent must be a top-level comment in this thread. A reply id here
	// means the caller tried to nest deeper than one level.
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM thread_comments WHERE id = $1 AND thread_id = $2)`, commentID, threadID)
	if err != nil {
		return nil, fmt.Errorf("check parent comment: %w", err)
	}
	if !exists {
		var isReply bool
		if err := r.db.GetContext(ctx, &isReply,
			`SELECT EXISTS(SELECT 1 FROM thread_replies WHERE id = $1 AND thread_id = $2)`, commentID, threadID); err != nil {
			return nil, fmt.Errorf("check parent reply: %w", err)
		}
		if isReply {
			return nil, model.ErrReplyDepth
		}
		return nil, model.ErrCommentNotFound
	}

	reply := model.Reply{
		ID:            uuid.NewString(),
		ParentID:      commentID,
		ThreadID:      threadID,
		Author:        author,
		Body:          body,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}

	query := `
		INSERT INTO thread_replies (id, parent_id, thread_id, author_id, author_name, body, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		reply.ID, reply.ParentID, reply.ThreadID, author.ID, author.Name, reply.Body, reply.CorrelationID, reply.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert reply: %w", err)
	}
	return &reply, nil
}

// ToggleLike flips the user's like on a comment or reply.
// Likes are keyed by target id, so one table covers both levels.
func (r *commentRepository) ToggleLike(ctx context.Context, threadID, commentID string, replyID *string, userID int64) (bool, error) {
	targetID, err := r.resolveTarget(ctx, threadID, commentID, replyID)
	if err != nil {
		return false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM comment_likes WHERE target_id = $1 AND user_id = $2`, targetID, userID)
	if err != nil {
		return false, fmt.Errorf("remove like: %w", err)
	}
	removed, _ := res.RowsAffected()

	liked := false
	if removed == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO comment_likes (target_id, thread_id, user_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (target_id, user_id) DO NOTHING
		`, targetID, threadID, userID, time.Now().UTC())
		if err != nil {
			return false, fmt.Errorf("insert like: %w", err)
		}
		liked = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return liked, nil
}

// Delete removes a comment with all its replies, or a single reply.
func (r *commentRepository) Delete(ctx context.Context, threadID, commentID string, replyID *string, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replyID != nil {
		var authorID int64
		err = tx.GetContext(ctx, &authorID, `
			SELECT author_id FROM thread_replies
			WHERE id = $1 AND parent_id = $2 AND thread_id = $3
		`, *replyID, commentID, threadID)
		if err == sql.ErrNoRows {
			return model.ErrReplyNotFound
		}
		if err != nil {
			return fmt.Errorf("get reply: %w", err)
		}
		if authorID != userID {
			return model.ErrNotCommentOwner
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM comment_likes WHERE target_id = $1`, *replyID); err != nil {
			return fmt.Errorf("delete reply likes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM thread_replies WHERE id = $1`, *replyID); err != nil {
			return fmt.Errorf("delete reply: %w", err)
		}
		return tx.Commit()
	}

	var authorID int64
	err = tx.GetContext(ctx, &authorID, `
		SELECT author_id FROM thread_comments WHERE id = $1 AND thread_id = $2
	`, commentID, threadID)
	if err == sql.ErrNoRows {
		return model.ErrCommentNotFound
	}
	if err != nil {
		return fmt.Errorf("get comment: %w", err)
	}
	if authorID != userID {
		return model.ErrNotCommentOwner
	}

	// Likes first, for the comment and every reply under it.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM comment_likes
		WHERE target_id = $1
		   OR target_id IN (SELECT id FROM thread_replies WHERE parent_id = $1)
	`, commentID)
	if err != nil {
		return fmt.Errorf("delete likes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_replies WHERE parent_id = $1`, commentID); err != nil {
		return fmt.Errorf("delete replies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_comments WHERE id = $1`, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	return tx.Commit()
}

// GetThread assembles the full snapshot in three queries.
// Comments and replies come back oldest-first; clients never reorder them.
func (r *commentRepository) GetThread(ctx context.Context, threadID string) (*model.Snapshot, error) {
	type commentRow struct {
		ID            string    `db:"id"`
		ThreadID      string    `db:"thread_id"`
		AuthorID      int64     `db:"author_id"`
		AuthorName    string    `db:"author_name"`
		Body          string    `db:"body"`
		CorrelationID string    `db:"correlation_id"`
		CreatedAt     time.Time `db:"created_at"`
	}
	type replyRow struct {
		commentRow
		ParentID string `db:"parent_id"`
	}
	type likeRow struct {
		TargetID  string    `db:"target_id"`
		UserID    int64     `db:"user_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	var commentRows []commentRow
	err := r.db.SelectContext(ctx, &commentRows, `
		SELECT id, thread_id, author_id, author_name, body, correlation_id, created_at
		FROM thread_comments
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}

	var replyRows []replyRow
	err = r.db.SelectContext(ctx, &replyRows, `
		SELECT id, parent_id, thread_id, author_id, author_name, body, correlation_id, created_at
		FROM thread_replies
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("get replies: %w", err)
	}

	var likeRows []likeRow
	err = r.db.SelectContext(ctx, &likeRows, `
		SELECT target_id, user_id, created_at
		FROM comment_likes
		WHERE thread_id = $1
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("get likes: %w", err)
	}

	likesByTarget := make(map[string][]model.Like)
	for _, l := range likeRows {
		likesByTarget[l.TargetID] = append(likesByTarget[l.TargetID], model.Like{
			UserID:    l.UserID,
			CreatedAt: l.CreatedAt,
		})
	}

	repliesByParent := make(map[string][]model.Reply)
	for _, row := range replyRows {
		repliesByParent[row.ParentID] = append(repliesByParent[row.ParentID], model.Reply{
			ID:            row.ID,
			ParentID:      row.ParentID,
			ThreadID:      row.ThreadID,
			Author:        model.UserRef{ID: row.AuthorID, Name: row.AuthorName},
			Body:          row.Body,
			CorrelationID: row.CorrelationID,
			CreatedAt:     row.CreatedAt,
			Likes:         likesByTarget[row.ID],
		})
	}

	comments := make([]model.Comment, len(commentRows))
	for i, row := range commentRows {
		comments[i] = model.Comment{
			ID:            row.ID,
			ThreadID:      row.ThreadID,
			Author:        model.UserRef{ID: row.AuthorID, Name: row.AuthorName},
			Body:          row.Body,
			CorrelationID: row.CorrelationID,
			CreatedAt:     row.CreatedAt,
			Replies:       repliesByParent[row.ID],
			Likes:         likesByTarget[row.ID],
		}
	}

	return &model.Snapshot{ThreadID: threadID, Comments: comments}, nil
}

// resolveTarget validates a like/delete target and returns the row id the
// like set hangs off.
func (r *commentRepository) resolveTarget(ctx context.Context, threadID, commentID string, replyID *string) (string, error) {
	if replyID != nil {
		var exists bool
		err := r.db.GetContext(ctx, &exists, `
			SELECT EXISTS(SELECT 1 FROM thread_replies WHERE id = $1 AND parent_id = $2 AND thread_id = $3)
		`, *replyID, commentID, threadID)
		if err != nil {
			return "", fmt.Errorf("check reply: %w", err)
		}
		if !exists {
			return "", model.ErrReplyNotFound
		}
		return *replyID, nil
	}

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM thread_comments WHERE id = $1 AND thread_id = $2)`, commentID, threadID)
	if err != nil {
		return "", fmt.Errorf("check comment: %w", err)
	}
	if !exists {
		return "", model.ErrCommentNotFound
	}
	return commentID, nil
}
