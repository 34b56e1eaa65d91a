package model

import (
	"strings"
	"time"
)

// UserRef identifies the author of a comment or reply.
type UserRef struct {
	ID   int64  `db:"author_id" json:"id"`
	Name string `db:"author_name" json:"name"`
}

// Like records that one user liked a comment or reply.
// A like set never contains the same user twice.
type Like struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Reply is a second-level comment. Replies are flat: a reply always hangs off
// a top-level comment and can never have replies of its own.
type Reply struct {
	ID            string    `db:"id" json:"id"`
	ParentID      string    `db:"parent_id" json:"parent_id"`
	ThreadID      string    `db:"thread_id" json:"thread_id"`
	Author        UserRef   `json:"author"`
	Body          string    `db:"body" json:"body"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	Likes         []Like    `json:"likes,omitempty"`
}

// Comment is a top-level comment in a job posting's discussion thread.
// Replies are kept chronological, likes deduped by user id.
type Comment struct {
	ID            string    `db:"id" json:"id"`
	ThreadID      string    `db:"thread_id" json:"thread_id"`
	Author        UserRef   `json:"author"`
	Body          string    `db:"body" json:"body"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	Replies       []Reply   `json:"replies,omitempty"`
	Likes         []Like    `json:"likes,omitempty"`
}

// Snapshot is the complete, authoritative comment list for one thread at a
// point in time. Comments are oldest-first; the client never reorders them.
type Snapshot struct {
	ThreadID string    `json:"thread_id"`
	Comments []Comment `json:"comments"`
}

// PendingIDPrefix marks locally-generated temporary ids. A comment whose id
// carries this prefix has not been confirmed by the server yet.
const PendingIDPrefix = "pending-"

// IsPendingID reports whether id is a locally-generated temporary id.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

// LikedBy reports whether userID appears in the like set.
func LikedBy(likes []Like, userID int64) bool {
	for _, l := range likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the comment, so optimistic overlays never
// mutate a snapshot shared with other readers.
func (c Comment) Clone() Comment {
	out := c
	if c.Replies != nil {
		out.Replies = make([]Reply, len(c.Replies))
		for i, r := range c.Replies {
			out.Replies[i] = r.Clone()
		}
	}
	if c.Likes != nil {
		out.Likes = append([]Like(nil), c.Likes...)
	}
	return out
}

// Clone returns a deep copy of the reply.
func (r Reply) Clone() Reply {
	out := r
	if r.Likes != nil {
		out.Likes = append([]Like(nil), r.Likes...)
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Comments != nil {
		out.Comments = make([]Comment, len(s.Comments))
		for i, c := range s.Comments {
			out.Comments[i] = c.Clone()
		}
	}
	return out
}

// Comment constraints
const (
	MaxCommentLength = 2200
)
