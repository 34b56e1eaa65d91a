package engine

import (
	"reflect"
	"testing"
	"time"

	"gigboard/internal/model"
)

var (
	baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	alice    = model.UserRef{ID: 1, Name: "alice"}
	bob      = model.UserRef{ID: 2, Name: "bob"}
)

func testOpts() ReconcileOptions {
	return ReconcileOptions{
		MatchWindow:    10 * time.Second,
		ConfirmTimeout: 15 * time.Second,
	}
}

func fixedNow() func() time.Time {
	return func() time.Time { return baseTime }
}

func snapshotWith(comments ...model.Comment) model.Snapshot {
	return model.Snapshot{ThreadID: "job-1", Comments: comments}
}

func comment(id string, author model.UserRef, body string, at time.Time) model.Comment {
	return model.Comment{ID: id, ThreadID: "job-1", Author: author, Body: body, CreatedAt: at}
}

func ids(comments []model.Comment) []string {
	out := make([]string, len(comments))
	for i, c := range comments {
		out[i] = c.ID
	}
	return out
}

// =============================================================================
// Splicing and confirmation
// =============================================================================

func TestReconcileSplicesPendingComment(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitComment("job-1", alice, "is this open?")

	snap := snapshotWith(comment("c1", bob, "first", baseTime.Add(-time.Hour)))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if got := ids(out.Rendered); !reflect.DeepEqual(got, []string{"c1", entry.Comment.ID}) {
		t.Errorf("rendered = %v; pending comment must append after snapshot order", got)
	}
	if len(out.Confirmed) != 0 || len(out.Expired) != 0 {
		t.Errorf("confirmed=%d expired=%d, want 0/0", len(out.Confirmed), len(out.Expired))
	}
}

func TestReconcileConfirmsByCorrelationID(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitComment("job-1", alice, "is this open?")

	serverCopy := comment("c9", alice, "is this open?", baseTime)
	serverCopy.CorrelationID = entry.CorrelationID
	snap := snapshotWith(serverCopy)

	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if len(out.Confirmed) != 1 || out.Confirmed[0].CorrelationID != entry.CorrelationID {
		t.Fatalf("confirmed = %v", out.Confirmed)
	}
	// The server copy renders exactly once, no optimistic duplicate.
	if got := ids(out.Rendered); !reflect.DeepEqual(got, []string{"c9"}) {
		t.Errorf("rendered = %v, want only the server copy", got)
	}
}

func TestReconcileConfirmsByHeuristicMatch(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitComment("job-1", alice, "is this open?")

	// No correlation id echoed; same author + body within the window.
	snap := snapshotWith(comment("c9", alice, "is this open?", baseTime.Add(3*time.Second)))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if len(out.Confirmed) != 1 {
		t.Fatalf("confirmed = %d, want 1", len(out.Confirmed))
	}
	if got := ids(out.Rendered); !reflect.DeepEqual(got, []string{"c9"}) {
		t.Errorf("rendered = %v", got)
	}
}

func TestReconcileHeuristicRespectsWindow(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitComment("job-1", alice, "is this open?")

	// Same author + body but an hour apart: a different, older comment, not
	// a confirmation of ours.
	snap := snapshotWith(comment("c9", alice, "is this open?", baseTime.Add(-time.Hour)))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if len(out.Confirmed) != 0 {
		t.Errorf("confirmed = %d, want 0 (outside match window)", len(out.Confirmed))
	}
	if len(out.Rendered) != 2 {
		t.Errorf("rendered = %v, want snapshot comment plus pending", ids(out.Rendered))
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitComment("job-1", alice, "hello")
	q.SubmitReply("job-1", "c1", alice, "me too")

	snap := snapshotWith(comment("c1", bob, "first", baseTime.Add(-time.Minute)))

	first := Reconcile(snap, q.Pending(), baseTime, testOpts())
	second := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if !reflect.DeepEqual(first.Rendered, second.Rendered) {
		t.Error("repeated application of the same snapshot changed the rendered list")
	}
}

func TestReconcileSecondSnapshotSupersedes(t *testing.T) {
	q := NewQueue(fixedNow())

	first := snapshotWith(comment("c1", bob, "first", baseTime))
	second := snapshotWith(
		comment("c1", bob, "first", baseTime),
		comment("c2", alice, "second", baseTime.Add(time.Second)),
	)

	_ = Reconcile(first, q.Pending(), baseTime, testOpts())
	out := Reconcile(second, q.Pending(), baseTime, testOpts())

	if got := ids(out.Rendered); !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Errorf("rendered = %v, want final state only", got)
	}
}

// =============================================================================
// Replies
// =============================================================================

func TestReconcilePendingReplyUnderParent(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitReply("job-1", "c1", alice, "count me in")

	snap := snapshotWith(comment("c1", bob, "first", baseTime.Add(-time.Minute)))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if len(out.Rendered) != 1 || len(out.Rendered[0].Replies) != 1 {
		t.Fatalf("rendered = %+v, want reply spliced under c1", out.Rendered)
	}
	if out.Rendered[0].Replies[0].ID != entry.Reply.ID {
		t.Errorf("reply id = %s", out.Rendered[0].Replies[0].ID)
	}
}

func TestReconcileDeleteBeatsInFlightReply(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitReply("job-1", "c1", alice, "count me in")

	// The parent was deleted and the delete confirmed: c1 is gone from the
	// snapshot. The reply must not resurrect it.
	snap := snapshotWith(comment("c2", bob, "other", baseTime))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if got := ids(out.Rendered); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("rendered = %v; deleted parent must stay gone", got)
	}
	// The reply entry retires as confirmed-moot rather than lingering.
	if len(out.Confirmed) != 1 {
		t.Errorf("confirmed = %d, want 1 (reply to deleted parent)", len(out.Confirmed))
	}
}

func TestReconcilePendingDeleteHidesCommentAndReplies(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitDelete("job-1", "c1", "")

	withReply := comment("c1", bob, "first", baseTime.Add(-time.Hour))
	withReply.Replies = []model.Reply{{ID: "r1", ParentID: "c1", Author: alice, Body: "re", CreatedAt: baseTime}}
	snap := snapshotWith(withReply, comment("c2", alice, "second", baseTime))

	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if got := ids(out.Rendered); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("rendered = %v; pending delete must hide the comment and its replies", got)
	}
}

func TestReconcileDeleteConfirmedByAbsence(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitDelete("job-1", "c1", "")

	snap := snapshotWith(comment("c2", alice, "second", baseTime))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if len(out.Confirmed) != 1 || out.Confirmed[0].CorrelationID != entry.CorrelationID {
		t.Errorf("confirmed = %v", out.Confirmed)
	}
}

// =============================================================================
// Likes
// =============================================================================

func TestReconcileLikeOverlay(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitLikeToggle("job-1", "c1", "", alice.ID, true, false)

	snap := snapshotWith(comment("c1", bob, "first", baseTime))
	out := Reconcile(snap, q.Pending(), baseTime, testOpts())

	if !model.LikedBy(out.Rendered[0].Likes, alice.ID) {
		t.Error("pending like not overlaid")
	}

	// The snapshot catches up: entry confirms and the like stays exactly once.
	liked := comment("c1", bob, "first", baseTime)
	liked.Likes = []model.Like{{UserID: alice.ID, CreatedAt: baseTime}}
	out = Reconcile(snapshotWith(liked), q.Pending(), baseTime, testOpts())

	if len(out.Confirmed) != 1 {
		t.Errorf("confirmed = %d, want 1", len(out.Confirmed))
	}
	if n := len(out.Rendered[0].Likes); n != 1 {
		t.Errorf("likes = %d, want 1 (never duplicated)", n)
	}
}

func TestReconcileUnlikeOverlay(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitLikeToggle("job-1", "c1", "", alice.ID, false, true)

	liked := comment("c1", bob, "first", baseTime)
	liked.Likes = []model.Like{{UserID: alice.ID, CreatedAt: baseTime}, {UserID: bob.ID, CreatedAt: baseTime}}
	out := Reconcile(snapshotWith(liked), q.Pending(), baseTime, testOpts())

	if model.LikedBy(out.Rendered[0].Likes, alice.ID) {
		t.Error("pending unlike not overlaid")
	}
	if !model.LikedBy(out.Rendered[0].Likes, bob.ID) {
		t.Error("other users' likes must be untouched")
	}
}

// =============================================================================
// Timeouts
// =============================================================================

func TestReconcileExpiresSilentlyRejectedWrites(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitComment("job-1", alice, "hello")

	// Before the timeout the optimistic version stays visible even though
	// the snapshot omits it (replication lag).
	early := baseTime.Add(5 * time.Second)
	out := Reconcile(snapshotWith(), q.Pending(), early, testOpts())
	if len(out.Rendered) != 1 || len(out.Expired) != 0 {
		t.Fatalf("rendered=%d expired=%d before timeout, want 1/0", len(out.Rendered), len(out.Expired))
	}

	// Past the timeout it is rolled back.
	late := baseTime.Add(16 * time.Second)
	out = Reconcile(snapshotWith(), q.Pending(), late, testOpts())
	if len(out.Expired) != 1 || out.Expired[0].CorrelationID != entry.CorrelationID {
		t.Fatalf("expired = %v", out.Expired)
	}
	if len(out.Rendered) != 0 {
		t.Errorf("rendered = %v, want rolled back", ids(out.Rendered))
	}
}
