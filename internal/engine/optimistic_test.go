package engine

import (
	"strings"
	"testing"

	"gigboard/internal/model"
)

func TestSubmitCommentSynthesizesPendingComment(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitComment("job-1", alice, "hello")

	if entry.Kind != KindNewComment {
		t.Errorf("kind = %v", entry.Kind)
	}
	if entry.Comment == nil || !model.IsPendingID(entry.Comment.ID) {
		t.Fatalf("comment = %+v, want temporary id", entry.Comment)
	}
	if entry.Comment.CorrelationID != entry.CorrelationID {
		t.Error("synthesized comment must carry the correlation id")
	}
	if !strings.HasSuffix(entry.Comment.ID, entry.CorrelationID) {
		t.Error("temporary id should derive from the correlation id")
	}
}

func TestPendingPreservesSubmissionOrder(t *testing.T) {
	q := NewQueue(fixedNow())
	e1 := q.SubmitComment("job-1", alice, "one")
	e2 := q.SubmitReply("job-1", "c1", alice, "two")
	e3 := q.SubmitDelete("job-1", "c2", "")

	pending := q.Pending()
	if len(pending) != 3 {
		t.Fatalf("len = %d", len(pending))
	}
	for i, want := range []string{e1.CorrelationID, e2.CorrelationID, e3.CorrelationID} {
		if pending[i].CorrelationID != want {
			t.Errorf("pending[%d] out of submission order", i)
		}
	}
}

func TestRetireIsObservableExactlyOnce(t *testing.T) {
	q := NewQueue(fixedNow())
	entry := q.SubmitComment("job-1", alice, "hello")

	if !q.Retire(entry.CorrelationID) {
		t.Fatal("first Retire = false")
	}
	if q.Retire(entry.CorrelationID) {
		t.Error("second Retire = true, want false")
	}
	if q.Len() != 0 {
		t.Errorf("len = %d", q.Len())
	}
}

func TestLikeTogglesCollapseToFinalIntent(t *testing.T) {
	q := NewQueue(fixedNow())

	e1, fresh := q.SubmitLikeToggle("job-1", "c1", "", alice.ID, true, false)
	if !fresh {
		t.Fatal("first toggle should create an entry")
	}
	e2, fresh := q.SubmitLikeToggle("job-1", "c1", "", alice.ID, false, false)
	if fresh {
		t.Fatal("second rapid toggle must collapse onto the existing entry")
	}
	if e1.CorrelationID != e2.CorrelationID {
		t.Error("collapsed toggle changed correlation id")
	}

	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1 (only the final intent)", q.Len())
	}
	got, _ := q.Get(e1.CorrelationID)
	if got.Liked != false {
		t.Error("queue holds stale intent, want the final desired state")
	}
	if got.Baseline != false {
		t.Error("baseline must stay from the first submission")
	}
}

func TestLikeTogglesDifferentTargetsStaySeparate(t *testing.T) {
	q := NewQueue(fixedNow())
	q.SubmitLikeToggle("job-1", "c1", "", alice.ID, true, false)
	q.SubmitLikeToggle("job-1", "c1", "r1", alice.ID, true, false)
	q.SubmitLikeToggle("job-1", "c1", "", bob.ID, true, false)

	if q.Len() != 3 {
		t.Errorf("len = %d, want 3 (per target+user)", q.Len())
	}
}
