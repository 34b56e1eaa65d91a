package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gigboard/internal/model"
	"gigboard/internal/realtime"
)

// =============================================================================
// Mock write API
// =============================================================================

type mockAPI struct {
	mu sync.Mutex

	createCommentFn func(ctx context.Context, threadID, body, correlationID string) (*model.Comment, error)
	createReplyFn   func(ctx context.Context, threadID, commentID, body, correlationID string) (*model.Reply, error)
	toggleLikeFn    func(ctx context.Context, threadID, commentID string, replyID *string) (bool, error)
	deleteFn        func(ctx context.Context, threadID, commentID string, replyID *string) (bool, error)
	getThreadFn     func(ctx context.Context, threadID string) (*model.Snapshot, error)

	commentCalls int
	likeCalls    int
	deleteCalls  int
	pollCalls    int
}

func (m *mockAPI) CreateComment(ctx context.Context, threadID, body, correlationID string) (*model.Comment, error) {
	m.mu.Lock()
	m.commentCalls++
	m.mu.Unlock()
	if m.createCommentFn != nil {
		return m.createCommentFn(ctx, threadID, body, correlationID)
	}
	return &model.Comment{ID: "c-server", ThreadID: threadID, Body: body, CorrelationID: correlationID}, nil
}

func (m *mockAPI) CreateReply(ctx context.Context, threadID, commentID, body, correlationID string) (*model.Reply, error) {
	if m.createReplyFn != nil {
		return m.createReplyFn(ctx, threadID, commentID, body, correlationID)
	}
	return &model.Reply{ID: "r-server", ParentID: commentID, Body: body, CorrelationID: correlationID}, nil
}

func (m *mockAPI) ToggleLike(ctx context.Context, threadID, commentID string, replyID *string) (bool, error) {
	m.mu.Lock()
	m.likeCalls++
	fn := m.toggleLikeFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, threadID, commentID, replyID)
	}
	return true, nil
}

func (m *mockAPI) DeleteComment(ctx context.Context, threadID, commentID string, replyID *string) (bool, error) {
	m.mu.Lock()
	m.deleteCalls++
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, threadID, commentID, replyID)
	}
	return true, nil
}

func (m *mockAPI) GetThread(ctx context.Context, threadID string) (*model.Snapshot, error) {
	m.mu.Lock()
	m.pollCalls++
	m.mu.Unlock()
	if m.getThreadFn != nil {
		return m.getThreadFn(ctx, threadID)
	}
	return &model.Snapshot{ThreadID: threadID}, nil
}

func (m *mockAPI) counts() (comments, likes, deletes, polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commentCalls, m.likeCalls, m.deleteCalls, m.pollCalls
}

// noticeSink collects engine notices.
type noticeSink struct {
	mu      sync.Mutex
	notices []Notice
}

func (s *noticeSink) add(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *noticeSink) get() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

func newTestEngine(t *testing.T, api *mockAPI, sink *noticeSink) *Engine {
	t.Helper()
	e := New(Config{
		ThreadID:             "job-1",
		User:                 alice,
		API:                  api,
		Dial:                 blockedDial,
		BackoffBase:          time.Millisecond,
		BackoffCap:           4 * time.Millisecond,
		MaxReconnectAttempts: 2,
		ConfirmTimeout:       time.Minute,
		MatchWindow:          10 * time.Second,
		PollInterval:         time.Minute,
		LikeDebounce:         20 * time.Millisecond,
		OnNotice:             sink.add,
	})
	t.Cleanup(e.Close)
	return e
}

// blockedDial hands back a channel that stays open but silent.
func blockedDial(ctx context.Context, threadID string) (<-chan realtime.Event, error) {
	ch := make(chan realtime.Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// Posting
// =============================================================================

func TestPostCommentRendersImmediatelyThenConfirmsOnce(t *testing.T) {
	api := &mockAPI{}
	e := newTestEngine(t, api, &noticeSink{})

	corr, err := e.PostComment(context.Background(), "is this still open?")
	if err != nil {
		t.Fatalf("PostComment: %v", err)
	}

	// Immediate local reflection with a temporary id.
	got := e.Comments()
	if len(got) != 1 || !model.IsPendingID(got[0].ID) {
		t.Fatalf("comments = %+v, want one pending comment", got)
	}

	// The snapshot echoes the correlation id: optimistic entry retires,
	// server truth replaces it, no duplicate.
	snap := model.Snapshot{ThreadID: "job-1", Comments: []model.Comment{{
		ID: "c-1", ThreadID: "job-1", Author: alice, Body: "is this still open?", CorrelationID: corr, CreatedAt: time.Now(),
	}}}
	e.applySnapshot(snap)
	e.applySnapshot(snap) // same snapshot twice must not flicker or duplicate

	got = e.Comments()
	if len(got) != 1 || got[0].ID != "c-1" {
		t.Fatalf("comments = %+v, want exactly the server copy", got)
	}
	if e.PendingWrites() != 0 {
		t.Errorf("pending = %d, want 0", e.PendingWrites())
	}
}

func TestModerationRejectionNeverTouchesNetworkOrQueue(t *testing.T) {
	api := &mockAPI{
		createCommentFn: func(ctx context.Context, threadID, body, correlationID string) (*model.Comment, error) {
			t.Error("moderated text must never reach the write API")
			return nil, nil
		},
	}
	e := newTestEngine(t, api, &noticeSink{})

	_, err := e.PostComment(context.Background(), "Call me at 9876543210")
	var merr *model.ModerationError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *model.ModerationError", err)
	}
	// Input preserved for editing.
	if merr.Body != "Call me at 9876543210" {
		t.Errorf("Body = %q, want original text back", merr.Body)
	}
	if len(merr.Reasons) == 0 {
		t.Error("Reasons empty, want the triggered category")
	}

	if len(e.Comments()) != 0 || e.PendingWrites() != 0 {
		t.Error("comment list or queue changed on rejection")
	}
}

func TestWriteFailureRollsBackWithNotice(t *testing.T) {
	api := &mockAPI{
		createCommentFn: func(ctx context.Context, threadID, body, correlationID string) (*model.Comment, error) {
			return nil, &model.WriteError{Status: 500, Message: "boom"}
		},
	}
	sink := &noticeSink{}
	e := newTestEngine(t, api, sink)

	if _, err := e.PostComment(context.Background(), "hello there"); err != nil {
		t.Fatalf("PostComment: %v", err)
	}

	waitUntil(t, "rollback", func() bool { return e.PendingWrites() == 0 })

	if len(e.Comments()) != 0 {
		t.Error("optimistic comment not rolled back")
	}
	notices := sink.get()
	if len(notices) != 1 || notices[0].Kind != NoticeWriteFailed {
		t.Fatalf("notices = %+v", notices)
	}
	if notices[0].Body != "hello there" {
		t.Errorf("notice body = %q, want text restored for editing", notices[0].Body)
	}
}

func TestReplyToUnconfirmedCommentRejected(t *testing.T) {
	e := newTestEngine(t, &mockAPI{}, &noticeSink{})

	corr, _ := e.PostComment(context.Background(), "parent")
	pendingID := model.PendingIDPrefix + corr

	if _, err := e.PostReply(context.Background(), pendingID, "child"); err != model.ErrCommentNotFound {
		t.Errorf("err = %v, want ErrCommentNotFound", err)
	}
}

// =============================================================================
// Likes
// =============================================================================

func seedSnapshot(e *Engine) {
	e.applySnapshot(model.Snapshot{ThreadID: "job-1", Comments: []model.Comment{
		{ID: "c-1", ThreadID: "job-1", Author: bob, Body: "first", CreatedAt: time.Now().Add(-time.Hour)},
	}})
}

func TestDoubleToggleCollapsesToNoCall(t *testing.T) {
	api := &mockAPI{}
	e := newTestEngine(t, api, &noticeSink{})
	seedSnapshot(e)

	// Two rapid toggles: like then unlike, back to the server state.
	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}

	waitUntil(t, "queue to settle", func() bool { return e.PendingWrites() == 0 })

	if _, likes, _, _ := api.counts(); likes != 0 {
		t.Errorf("like calls = %d, want 0 for a net no-op", likes)
	}
	if model.LikedBy(e.Comments()[0].Likes, alice.ID) {
		t.Error("rendered like state should match the final (original) intent")
	}
}

func TestSingleToggleSendsExactlyOneCall(t *testing.T) {
	api := &mockAPI{}
	e := newTestEngine(t, api, &noticeSink{})
	seedSnapshot(e)

	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}

	// Immediate local flip.
	if !model.LikedBy(e.Comments()[0].Likes, alice.ID) {
		t.Error("like not reflected immediately")
	}

	waitUntil(t, "debounced call", func() bool {
		_, likes, _, _ := api.counts()
		return likes == 1
	})

	// Still pending until a snapshot reflects the final state.
	if e.PendingWrites() != 1 {
		t.Errorf("pending = %d, want 1", e.PendingWrites())
	}
	liked := model.Comment{ID: "c-1", ThreadID: "job-1", Author: bob, Body: "first",
		Likes: []model.Like{{UserID: alice.ID, CreatedAt: time.Now()}}}
	e.applySnapshot(model.Snapshot{ThreadID: "job-1", Comments: []model.Comment{liked}})
	if e.PendingWrites() != 0 {
		t.Errorf("pending after confirming snapshot = %d, want 0", e.PendingWrites())
	}
}

func TestLikeWriteFailureRollsBackToServerState(t *testing.T) {
	api := &mockAPI{
		toggleLikeFn: func(ctx context.Context, threadID, commentID string, replyID *string) (bool, error) {
			return false, errors.New("like endpoint down")
		},
	}
	sink := &noticeSink{}
	e := newTestEngine(t, api, sink)
	seedSnapshot(e)

	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if !model.LikedBy(e.Comments()[0].Likes, alice.ID) {
		t.Fatal("like not reflected immediately")
	}

	waitUntil(t, "rollback after failed flush", func() bool { return e.PendingWrites() == 0 })

	if model.LikedBy(e.Comments()[0].Likes, alice.ID) {
		t.Error("failed like still rendered after rollback")
	}
	failures := 0
	for _, n := range sink.get() {
		if n.Kind == NoticeWriteFailed {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("write-failed notices = %d, want 1", failures)
	}

	// The queue keeps working after the rollback.
	api.mu.Lock()
	api.toggleLikeFn = nil
	api.mu.Unlock()
	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike after rollback: %v", err)
	}
	waitUntil(t, "second toggle call", func() bool {
		_, likes, _, _ := api.counts()
		return likes == 2
	})
}

func TestToggleAfterDispatchedFlushStillSendsUndo(t *testing.T) {
	// Scripted server: each call flips and reports the stored state.
	var srvMu sync.Mutex
	serverLiked := false
	api := &mockAPI{
		toggleLikeFn: func(ctx context.Context, threadID, commentID string, replyID *string) (bool, error) {
			srvMu.Lock()
			defer srvMu.Unlock()
			serverLiked = !serverLiked
			return serverLiked, nil
		},
	}
	e := newTestEngine(t, api, &noticeSink{})
	seedSnapshot(e)

	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	waitUntil(t, "first flush", func() bool {
		_, likes, _, _ := api.counts()
		return likes == 1
	})

	// Change of heart after the call went out but before any snapshot: the
	// undo must reach the server, not cancel out locally.
	if err := e.ToggleLike(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	waitUntil(t, "undo call", func() bool {
		_, likes, _, _ := api.counts()
		return likes == 2
	})

	srvMu.Lock()
	final := serverLiked
	srvMu.Unlock()
	if final {
		t.Error("server still liked after the undo")
	}
	if model.LikedBy(e.Comments()[0].Likes, alice.ID) {
		t.Error("rendered like does not reflect the final intent")
	}

	// A snapshot showing the original (unliked) state confirms the entry.
	e.applySnapshot(model.Snapshot{ThreadID: "job-1", Comments: []model.Comment{
		{ID: "c-1", ThreadID: "job-1", Author: bob, Body: "first", CreatedAt: time.Now().Add(-time.Hour)},
	}})
	if e.PendingWrites() != 0 {
		t.Errorf("pending = %d, want 0", e.PendingWrites())
	}
}

// =============================================================================
// Delete
// =============================================================================

func TestDeleteHidesImmediately(t *testing.T) {
	api := &mockAPI{}
	e := newTestEngine(t, api, &noticeSink{})
	seedSnapshot(e)

	if err := e.DeleteComment(context.Background(), "c-1", nil); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if len(e.Comments()) != 0 {
		t.Error("deleted comment still rendered")
	}

	waitUntil(t, "delete call", func() bool {
		_, _, deletes, _ := api.counts()
		return deletes == 1
	})

	// Confirmed by absence in the next snapshot.
	e.applySnapshot(model.Snapshot{ThreadID: "job-1"})
	if e.PendingWrites() != 0 {
		t.Errorf("pending = %d, want 0", e.PendingWrites())
	}
}

// =============================================================================
// Fallback and timeouts
// =============================================================================

func TestFailedConnectionFallsBackToPolling(t *testing.T) {
	api := &mockAPI{
		getThreadFn: func(ctx context.Context, threadID string) (*model.Snapshot, error) {
			return &model.Snapshot{ThreadID: threadID, Comments: []model.Comment{
				{ID: "c-poll", ThreadID: threadID, Author: bob, Body: "via poll"},
			}}, nil
		},
	}
	sink := &noticeSink{}

	e := New(Config{
		ThreadID: "job-1",
		User:     alice,
		API:      api,
		Dial: func(ctx context.Context, threadID string) (<-chan realtime.Event, error) {
			ch := make(chan realtime.Event)
			close(ch) // transport drops instantly, every time
			return ch, nil
		},
		BackoffBase:          time.Millisecond,
		BackoffCap:           2 * time.Millisecond,
		MaxReconnectAttempts: 2,
		ConfirmTimeout:       time.Minute,
		PollInterval:         20 * time.Millisecond,
		LikeDebounce:         20 * time.Millisecond,
		OnNotice:             sink.add,
	})
	defer e.Close()

	if err := e.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitUntil(t, "failed status", func() bool { return e.ConnectionStatus() == realtime.StatusFailed })
	waitUntil(t, "poll snapshot", func() bool {
		cs := e.Comments()
		return len(cs) == 1 && cs[0].ID == "c-poll"
	})

	lost := 0
	for _, n := range sink.get() {
		if n.Kind == NoticeLiveUpdatesLost {
			lost++
		}
	}
	if lost != 1 {
		t.Errorf("live-updates-lost notices = %d, want exactly 1", lost)
	}
}

func TestUnconfirmedWriteTimesOut(t *testing.T) {
	api := &mockAPI{} // write succeeds but no snapshot ever arrives
	sink := &noticeSink{}

	e := New(Config{
		ThreadID:             "job-1",
		User:                 alice,
		API:                  api,
		Dial:                 blockedDial,
		BackoffBase:          time.Millisecond,
		MaxReconnectAttempts: 2,
		ConfirmTimeout:       80 * time.Millisecond,
		PollInterval:         time.Minute,
		LikeDebounce:         10 * time.Millisecond,
		OnNotice:             sink.add,
	})
	defer e.Close()

	if err := e.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := e.PostComment(context.Background(), "into the void"); err != nil {
		t.Fatalf("PostComment: %v", err)
	}
	if len(e.Comments()) != 1 {
		t.Fatal("optimistic comment not rendered")
	}

	waitUntil(t, "timeout rollback", func() bool { return e.PendingWrites() == 0 })

	if len(e.Comments()) != 0 {
		t.Error("timed-out comment still rendered")
	}
	notices := sink.get()
	if len(notices) == 0 || notices[0].Kind != NoticeWriteFailed {
		t.Fatalf("notices = %+v, want write-failed", notices)
	}
	if notices[0].Body != "into the void" {
		t.Errorf("notice body = %q, want text restored", notices[0].Body)
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	e := newTestEngine(t, &mockAPI{}, &noticeSink{})
	e.Close()
	if err := e.Subscribe(context.Background()); err != model.ErrThreadClosed {
		t.Errorf("err = %v, want ErrThreadClosed", err)
	}
}
