package engine

import (
	"time"

	"gigboard/internal/model"
)

// ReconcileOptions tunes confirmation matching.
type ReconcileOptions struct {
	// MatchWindow bounds the heuristic author+body match: a snapshot entry
	// only confirms a pending one when their timestamps are this close.
	MatchWindow time.Duration

	// ConfirmTimeout is how long a pending entry may stay unconfirmed before
	// it is treated as a failed write.
	ConfirmTimeout time.Duration
}

// Outcome is one reconciliation result. Rendered is what the UI shows;
// Confirmed and Expired are the pending entries the caller must retire.
type Outcome struct {
	Rendered  []model.Comment
	Confirmed []Entry
	Expired   []Entry
}

// Reconcile merges an authoritative snapshot with the pending optimistic
// entries into the rendered comment list.
//
// The snapshot is always the source of truth for anything it contains.
// Pending entries not yet represented are spliced in at the appropriate
// nesting level, in submission order, after the snapshot's own ordering.
// The function is pure: applying the same inputs twice yields the same
// rendered list, so repeated snapshots cause no flicker.
func Reconcile(snap model.Snapshot, pending []Entry, now time.Time, opts ReconcileOptions) Outcome {
	rendered := snap.Clone().Comments
	if rendered == nil {
		rendered = []model.Comment{}
	}

	var out Outcome
	for _, e := range pending {
		if confirmedBySnapshot(snap, e, opts.MatchWindow) {
			out.Confirmed = append(out.Confirmed, e)
			continue
		}
		if opts.ConfirmTimeout > 0 && now.Sub(e.SubmittedAt) > opts.ConfirmTimeout {
			out.Expired = append(out.Expired, e)
			continue
		}
		rendered = splice(rendered, e)
	}

	out.Rendered = rendered
	return out
}

// confirmedBySnapshot reports whether the snapshot already reflects the
// entry's effect. Matching prefers the echoed correlation id and falls back
// to (author, body, time window) for servers that do not echo it.
func confirmedBySnapshot(snap model.Snapshot, e Entry, window time.Duration) bool {
	switch e.Kind {
	case KindNewComment:
		for i := range snap.Comments {
			if commentMatches(&snap.Comments[i], e, window) {
				return true
			}
		}
		return false

	case KindNewReply:
		parent := snapshotComment(snap, e.CommentID)
		if parent == nil {
			// Parent gone from the snapshot: a confirmed delete beat this
			// reply. Nothing to render; treat as confirmed so the entry
			// retires instead of resurrecting the comment.
			return true
		}
		for i := range parent.Replies {
			if replyMatches(&parent.Replies[i], e, window) {
				return true
			}
		}
		return false

	case KindLikeToggle:
		likes, ok := snapshotLikes(snap, e.CommentID, e.ReplyID)
		if !ok {
			// Target deleted server-side; nothing left to toggle.
			return true
		}
		return model.LikedBy(likes, e.UserID) == e.Liked

	case KindDelete:
		if e.ReplyID != "" {
			parent := snapshotComment(snap, e.CommentID)
			if parent == nil {
				return true
			}
			for i := range parent.Replies {
				if parent.Replies[i].ID == e.ReplyID {
					return false
				}
			}
			return true
		}
		return snapshotComment(snap, e.CommentID) == nil

	default:
		return false
	}
}

func commentMatches(c *model.Comment, e Entry, window time.Duration) bool {
	if e.CorrelationID != "" && c.CorrelationID == e.CorrelationID {
		return true
	}
	return c.Author.ID == e.Comment.Author.ID &&
		c.Body == e.Comment.Body &&
		absDuration(c.CreatedAt.Sub(e.SubmittedAt)) <= window
}

func replyMatches(r *model.Reply, e Entry, window time.Duration) bool {
	if e.CorrelationID != "" && r.CorrelationID == e.CorrelationID {
		return true
	}
	return r.Author.ID == e.Reply.Author.ID &&
		r.Body == e.Reply.Body &&
		absDuration(r.CreatedAt.Sub(e.SubmittedAt)) <= window
}

// splice applies one unconfirmed entry's synthesized effect to the rendered
// list. Targets that no longer exist (deleted parents, vanished comments)
// are skipped: orphaned effects are dropped from the render set, never shown
// disconnected.
func splice(rendered []model.Comment, e Entry) []model.Comment {
	switch e.Kind {
	case KindNewComment:
		return append(rendered, e.Comment.Clone())

	case KindNewReply:
		if parent := findComment(rendered, e.CommentID); parent != nil {
			parent.Replies = append(parent.Replies, e.Reply.Clone())
		}
		return rendered

	case KindLikeToggle:
		if e.ReplyID != "" {
			if reply := findReply(rendered, e.CommentID, e.ReplyID); reply != nil {
				reply.Likes = setLike(reply.Likes, e.UserID, e.Liked, e.SubmittedAt)
			}
			return rendered
		}
		if comment := findComment(rendered, e.CommentID); comment != nil {
			comment.Likes = setLike(comment.Likes, e.UserID, e.Liked, e.SubmittedAt)
		}
		return rendered

	case KindDelete:
		if e.ReplyID != "" {
			if parent := findComment(rendered, e.CommentID); parent != nil {
				parent.Replies = removeReply(parent.Replies, e.ReplyID)
			}
			return rendered
		}
		for i := range rendered {
			if rendered[i].ID == e.CommentID {
				return append(rendered[:i:i], rendered[i+1:]...)
			}
		}
		return rendered

	default:
		return rendered
	}
}

func snapshotComment(snap model.Snapshot, id string) *model.Comment {
	for i := range snap.Comments {
		if snap.Comments[i].ID == id {
			return &snap.Comments[i]
		}
	}
	return nil
}

// snapshotLikes returns the like set of a comment or reply, and whether the
// target exists in the snapshot at all.
func snapshotLikes(snap model.Snapshot, commentID, replyID string) ([]model.Like, bool) {
	c := snapshotComment(snap, commentID)
	if c == nil {
		return nil, false
	}
	if replyID == "" {
		return c.Likes, true
	}
	for i := range c.Replies {
		if c.Replies[i].ID == replyID {
			return c.Replies[i].Likes, true
		}
	}
	return nil, false
}

func findComment(comments []model.Comment, id string) *model.Comment {
	for i := range comments {
		if comments[i].ID == id {
			return &comments[i]
		}
	}
	return nil
}

func findReply(comments []model.Comment, commentID, replyID string) *model.Reply {
	parent := findComment(comments, commentID)
	if parent == nil {
		return nil
	}
	for i := range parent.Replies {
		if parent.Replies[i].ID == replyID {
			return &parent.Replies[i]
		}
	}
	return nil
}

// setLike enforces the one-like-per-user invariant while applying desired.
func setLike(likes []model.Like, userID int64, desired bool, at time.Time) []model.Like {
	has := model.LikedBy(likes, userID)
	switch {
	case desired && !has:
		return append(likes, model.Like{UserID: userID, CreatedAt: at})
	case !desired && has:
		out := likes[:0:0]
		for _, l := range likes {
			if l.UserID != userID {
				out = append(out, l)
			}
		}
		return out
	default:
		return likes
	}
}

func removeReply(replies []model.Reply, id string) []model.Reply {
	for i := range replies {
		if replies[i].ID == id {
			return append(replies[:i:i], replies[i+1:]...)
		}
	}
	return replies
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

