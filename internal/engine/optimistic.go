package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/model"
)

// Kind classifies a pending optimistic mutation.
type Kind int

const (
	KindNewComment Kind = iota
	KindNewReply
	KindLikeToggle
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindNewComment:
		return "new-comment"
	case KindNewReply:
		return "new-reply"
	case KindLikeToggle:
		return "like-toggle"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Entry is one locally-submitted write that the authoritative snapshot has
// not confirmed yet. The synthesized effect (Comment, Reply, or the desired
// like state) is what reconciliation splices into the rendered list.
type Entry struct {
	CorrelationID string
	Kind          Kind
	ThreadID      string

	// Target for reply/like/delete. ReplyID empty means the comment itself.
	CommentID string
	ReplyID   string

	// Synthesized effects.
	Comment *model.Comment
	Reply   *model.Reply

	// Like toggles: who, the desired end state, and the server state observed
	// when the toggle was first submitted.
	UserID   int64
	Liked    bool
	Baseline bool

	SubmittedAt time.Time
}

// Queue tracks pending optimistic entries for one thread, in submission
// order. It only records intent; reconciliation decides what renders.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewQueue creates an empty queue. now is stubbed in tests; nil means
// time.Now.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

// SubmitComment registers a pending top-level comment and synthesizes the
// comment it would produce, tagged with a temporary id.
func (q *Queue) SubmitComment(threadID string, author model.UserRef, body string) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	corr := uuid.NewString()
	now := q.now()
	entry := Entry{
		CorrelationID: corr,
		Kind:          KindNewComment,
		ThreadID:      threadID,
		Comment: &model.Comment{
			ID:            model.PendingIDPrefix + corr,
			ThreadID:      threadID,
			Author:        author,
			Body:          body,
			CorrelationID: corr,
			CreatedAt:     now,
		},
		SubmittedAt: now,
	}
	q.entries = append(q.entries, entry)
	return entry
}

// SubmitReply registers a pending reply under parentID.
func (q *Queue) SubmitReply(threadID, parentID string, author model.UserRef, body string) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	corr := uuid.NewString()
	now := q.now()
	entry := Entry{
		CorrelationID: corr,
		Kind:          KindNewReply,
		ThreadID:      threadID,
		CommentID:     parentID,
		Reply: &model.Reply{
			ID:            model.PendingIDPrefix + corr,
			ParentID:      parentID,
			ThreadID:      threadID,
			Author:        author,
			Body:          body,
			CorrelationID: corr,
			CreatedAt:     now,
		},
		SubmittedAt: now,
	}
	q.entries = append(q.entries, entry)
	return entry
}

// SubmitLikeToggle registers the user's like intent for one target. Rapid
// repeated toggles collapse onto the existing entry: only the latest desired
// state survives, so at most one network call per settle is needed. fresh
// reports whether a new entry was created.
func (q *Queue) SubmitLikeToggle(threadID, commentID, replyID string, userID int64, desired, baseline bool) (entry Entry, fresh bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i := range q.entries {
		e := &q.entries[i]
		if e.Kind == KindLikeToggle && e.CommentID == commentID && e.ReplyID == replyID && e.UserID == userID {
			e.Liked = desired
			e.SubmittedAt = now
			return *e, false
		}
	}

	entry = Entry{
		CorrelationID: uuid.NewString(),
		Kind:          KindLikeToggle,
		ThreadID:      threadID,
		CommentID:     commentID,
		ReplyID:       replyID,
		UserID:        userID,
		Liked:         desired,
		Baseline:      baseline,
		SubmittedAt:   now,
	}
	q.entries = append(q.entries, entry)
	return entry, true
}

// SubmitDelete registers a pending delete of a comment (replyID empty) or a
// single reply.
func (q *Queue) SubmitDelete(threadID, commentID, replyID string) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := Entry{
		CorrelationID: uuid.NewString(),
		Kind:          KindDelete,
		ThreadID:      threadID,
		CommentID:     commentID,
		ReplyID:       replyID,
		SubmittedAt:   q.now(),
	}
	q.entries = append(q.entries, entry)
	return entry
}

// SetLikeBaseline records the server-side like state a dispatched toggle
// produced. Later toggles that collapse onto the entry are compared against
// this state, not the one observed at first submit.
func (q *Queue) SetLikeBaseline(correlationID string, baseline bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].CorrelationID == correlationID {
			q.entries[i].Baseline = baseline
			return true
		}
	}
	return false
}

// Retire removes the entry with the given correlation id. Reports whether it
// was still pending, so confirmation is observable exactly once.
func (q *Queue) Retire(correlationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.CorrelationID == correlationID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the pending entry with the given correlation id.
func (q *Queue) Get(correlationID string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.CorrelationID == correlationID {
			return e, true
		}
	}
	return Entry{}, false
}

// Pending returns a copy of the pending entries in submission order.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
