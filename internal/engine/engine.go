// Package engine is the per-thread comment live-sync engine: it owns the
// thread's rendered state and funnels every mutation through the moderation
// filter, the optimistic write queue, and the reconciliation merge.
package engine

import (
	"context"
	"log"
	stdsync "sync"
	"time"

	"gigboard/internal/api"
	"gigboard/internal/model"
	"gigboard/internal/moderation"
	"gigboard/internal/realtime"
)

// NoticeKind classifies user-visible engine notices.
type NoticeKind int

const (
	// NoticeWriteFailed covers rejected writes and confirmation timeouts.
	// The optimistic effect has already been rolled back when it is emitted.
	NoticeWriteFailed NoticeKind = iota
	// NoticeLiveUpdatesLost is emitted once when reconnection attempts are
	// exhausted and the engine falls back to polling.
	NoticeLiveUpdatesLost
)

// Notice is a user-visible signal. Body carries the author's text back for
// editing when a comment or reply write failed.
type Notice struct {
	Kind    NoticeKind
	Message string
	Body    string
}

// Config wires one engine instance.
type Config struct {
	ThreadID string
	User     model.UserRef
	API      api.WriteAPI
	Dial     realtime.DialFunc

	BackoffBase          time.Duration
	BackoffCap           time.Duration
	MaxReconnectAttempts int
	ConfirmTimeout       time.Duration
	MatchWindow          time.Duration
	PollInterval         time.Duration
	LikeDebounce         time.Duration

	// OnNotice receives user-visible signals. Called outside the engine
	// lock; may be nil.
	OnNotice func(Notice)

	// Now is stubbed in tests; nil means time.Now.
	Now func() time.Time
}

// Engine owns one thread's live comment state. All mutations flow through
// it: snapshots via the connector, local effects via the optimistic queue,
// both merged by Reconcile under the engine lock so every merge is atomic
// with respect to a (snapshot, queue) pair.
type Engine struct {
	cfg   Config
	queue *Queue
	conn  *realtime.Connector
	now   func() time.Time

	mu       stdsync.Mutex
	snapshot model.Snapshot
	rendered []model.Comment
	status   realtime.Status
	closed   bool

	likeMu     stdsync.Mutex
	likeTimers map[string]*time.Timer

	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates the engine for one thread. Subscribe starts it.
func New(cfg Config) *Engine {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 15 * time.Second
	}
	if cfg.MatchWindow <= 0 {
		cfg.MatchWindow = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.LikeDebounce <= 0 {
		cfg.LikeDebounce = 300 * time.Millisecond
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:        cfg,
		queue:      NewQueue(now),
		now:        now,
		status:     realtime.StatusDisconnected,
		likeTimers: make(map[string]*time.Timer),
	}
	e.conn = realtime.NewConnector(cfg.ThreadID, cfg.Dial, realtime.ConnectorConfig{
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}, e.applySnapshot, e.handleStatus)
	return e
}

// Subscribe opens the live channel and starts the fallback/housekeeping
// loop. Only one subscription is active at a time; resubscribing tears the
// previous one down.
func (e *Engine) Subscribe(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return model.ErrThreadClosed
	}
	if e.cancel != nil {
		e.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.conn.Start(runCtx)

	e.wg.Add(1)
	go e.housekeeping(runCtx)
	return nil
}

// Close disposes the thread subscription: the reconnect timer and channel
// are cancelled synchronously, like timers are stopped, and any write still
// in flight will have its result discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.conn.Close()

	e.likeMu.Lock()
	for _, t := range e.likeTimers {
		t.Stop()
	}
	e.likeTimers = map[string]*time.Timer{}
	e.likeMu.Unlock()

	e.wg.Wait()
}

// Comments returns the current rendered list.
func (e *Engine) Comments() []model.Comment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Comment, len(e.rendered))
	for i, c := range e.rendered {
		out[i] = c.Clone()
	}
	return out
}

// ConnectionStatus returns the connection indicator state.
func (e *Engine) ConnectionStatus() realtime.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// PendingWrites returns how many optimistic entries await confirmation.
func (e *Engine) PendingWrites() int {
	return e.queue.Len()
}

// PostComment runs the moderation gate, registers the optimistic comment,
// and issues the REST write. Returns the correlation id for the pending
// entry. Moderation rejection is returned synchronously and nothing is
// queued or sent.
func (e *Engine) PostComment(ctx context.Context, body string) (string, error) {
	if err := e.checkBody(body); err != nil {
		return "", err
	}

	entry := e.queue.SubmitComment(e.cfg.ThreadID, e.cfg.User, body)
	e.rerender()

	// Deliberately not tracked by the WaitGroup: Close never blocks on an
	// in-flight write, it just discards the result.
	go func() {
		_, err := e.cfg.API.CreateComment(ctx, e.cfg.ThreadID, body, entry.CorrelationID)
		if err != nil {
			e.failWrite(entry.CorrelationID, "Could not post comment", body, err)
		}
		// Success keeps the entry pending until a snapshot confirms it.
	}()

	return entry.CorrelationID, nil
}

// PostReply replies to a confirmed comment. Replying to a comment that is
// itself still pending (temporary id) is rejected.
func (e *Engine) PostReply(ctx context.Context, commentID, body string) (string, error) {
	if err := e.checkBody(body); err != nil {
		return "", err
	}
	if model.IsPendingID(commentID) {
		return "", model.ErrCommentNotFound
	}
	if !e.hasComment(commentID) {
		return "", model.ErrCommentNotFound
	}

	entry := e.queue.SubmitReply(e.cfg.ThreadID, commentID, e.cfg.User, body)
	e.rerender()

	go func() {
		_, err := e.cfg.API.CreateReply(ctx, e.cfg.ThreadID, commentID, body, entry.CorrelationID)
		if err != nil {
			e.failWrite(entry.CorrelationID, "Could not post reply", body, err)
		}
	}()

	return entry.CorrelationID, nil
}

// ToggleLike flips the current user's like on a comment (replyID nil) or
// reply. The local state flips immediately; the network call is debounced so
// rapid repeated toggles send only the final intended state.
func (e *Engine) ToggleLike(ctx context.Context, commentID string, replyID *string) error {
	rid := ""
	if replyID != nil {
		rid = *replyID
	}
	if model.IsPendingID(commentID) || model.IsPendingID(rid) {
		return model.ErrCommentNotFound
	}

	e.mu.Lock()
	current, ok := e.renderedLikeState(commentID, rid)
	if !ok {
		e.mu.Unlock()
		return model.ErrCommentNotFound
	}
	baseline, _ := likeState(e.snapshot.Comments, commentID, rid, e.cfg.User.ID)
	e.mu.Unlock()

	entry, _ := e.queue.SubmitLikeToggle(e.cfg.ThreadID, commentID, rid, e.cfg.User.ID, !current, baseline)
	e.rerender()

	e.scheduleLikeFlush(ctx, entry.CorrelationID, commentID, rid)
	return nil
}

// DeleteComment removes a comment (and its replies) or a single reply. The
// target disappears locally at once; the entry stays pending until a
// snapshot confirms the absence.
func (e *Engine) DeleteComment(ctx context.Context, commentID string, replyID *string) error {
	rid := ""
	if replyID != nil {
		rid = *replyID
	}
	if model.IsPendingID(commentID) || model.IsPendingID(rid) {
		return model.ErrCommentNotFound
	}
	if !e.hasComment(commentID) {
		return model.ErrCommentNotFound
	}

	entry := e.queue.SubmitDelete(e.cfg.ThreadID, commentID, rid)
	e.rerender()

	go func() {
		_, err := e.cfg.API.DeleteComment(ctx, e.cfg.ThreadID, commentID, replyID)
		if err != nil {
			e.failWrite(entry.CorrelationID, "Could not delete comment", "", err)
		}
	}()

	return nil
}

// checkBody is the local gate: moderation first, then length limits.
// Rejected text never enters the optimistic queue.
func (e *Engine) checkBody(body string) error {
	if body == "" {
		return model.ErrBodyRequired
	}
	if len(body) > model.MaxCommentLength {
		return model.ErrBodyTooLong
	}
	if res := moderation.Classify(body); res.Blocked {
		return &model.ModerationError{Body: body, Reasons: res.ReasonStrings()}
	}
	return nil
}

// applySnapshot is the connector's snapshot callback. Events arrive on a
// single goroutine in channel order; each merge runs atomically under the
// engine lock.
func (e *Engine) applySnapshot(snap model.Snapshot) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.snapshot = snap
	notices := e.reconcileLocked()
	e.mu.Unlock()

	e.emit(notices)
}

func (e *Engine) handleStatus(s realtime.Status) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.status = s
	e.mu.Unlock()

	if s == realtime.StatusFailed {
		// Terminal state, so this fires at most once per subscription.
		e.emit([]Notice{{
			Kind:    NoticeLiveUpdatesLost,
			Message: "Live updates disconnected; refreshing periodically",
		}})
	}
}

// rerender recomputes the rendered list from the last snapshot and the
// current queue.
func (e *Engine) rerender() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	notices := e.reconcileLocked()
	e.mu.Unlock()

	e.emit(notices)
}

// reconcileLocked merges and retires confirmed/expired entries. Caller holds
// e.mu. Returned notices must be emitted after unlocking.
func (e *Engine) reconcileLocked() []Notice {
	outcome := Reconcile(e.snapshot, e.queue.Pending(), e.now(), ReconcileOptions{
		MatchWindow:    e.cfg.MatchWindow,
		ConfirmTimeout: e.cfg.ConfirmTimeout,
	})

	for _, c := range outcome.Confirmed {
		if e.queue.Retire(c.CorrelationID) {
			log.Printf("[Engine] thread=%s confirmed %s corr=%s", e.cfg.ThreadID, c.Kind, c.CorrelationID)
		}
	}

	var notices []Notice
	for _, x := range outcome.Expired {
		if !e.queue.Retire(x.CorrelationID) {
			continue
		}
		log.Printf("[Engine] thread=%s %s corr=%s never confirmed, rolling back", e.cfg.ThreadID, x.Kind, x.CorrelationID)
		notices = append(notices, timeoutNotice(x))
	}

	// Expired entries were excluded from outcome.Rendered already.
	e.rendered = outcome.Rendered
	return notices
}

func timeoutNotice(x Entry) Notice {
	n := Notice{Kind: NoticeWriteFailed, Message: "The server never confirmed your " + x.Kind.String()}
	switch x.Kind {
	case KindNewComment:
		n.Body = x.Comment.Body
	case KindNewReply:
		n.Body = x.Reply.Body
	}
	return n
}

// failWrite rolls back one entry after the write API rejected it. Results
// for a closed engine are discarded.
func (e *Engine) failWrite(correlationID, message, body string, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	retired := e.queue.Retire(correlationID)
	var notices []Notice
	if retired {
		log.Printf("[Engine] thread=%s write corr=%s failed: %v", e.cfg.ThreadID, correlationID, err)
		notices = e.reconcileLocked()
		notices = append(notices, Notice{Kind: NoticeWriteFailed, Message: message, Body: body})
	}
	e.mu.Unlock()

	e.emit(notices)
}

// scheduleLikeFlush (re)arms the debounce timer for one like target. When it
// fires, only the final desired state is compared against the baseline; a
// net no-op sends nothing.
func (e *Engine) scheduleLikeFlush(ctx context.Context, correlationID, commentID, rid string) {
	key := commentID + "/" + rid

	e.likeMu.Lock()
	if t, ok := e.likeTimers[key]; ok {
		t.Stop()
	}
	e.likeTimers[key] = time.AfterFunc(e.cfg.LikeDebounce, func() {
		e.likeMu.Lock()
		delete(e.likeTimers, key)
		e.likeMu.Unlock()
		e.flushLike(ctx, correlationID, commentID, rid)
	})
	e.likeMu.Unlock()
}

func (e *Engine) flushLike(ctx context.Context, correlationID, commentID, rid string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	entry, ok := e.queue.Get(correlationID)
	if !ok {
		return // already confirmed or rolled back
	}

	if entry.Liked == entry.Baseline {
		// Toggles cancelled out; retire without a network call.
		e.queue.Retire(correlationID)
		e.rerender()
		return
	}

	var replyID *string
	if rid != "" {
		replyID = &rid
	}
	liked, err := e.cfg.API.ToggleLike(ctx, e.cfg.ThreadID, commentID, replyID)
	if err != nil {
		e.failWrite(correlationID, "Could not update like", "", err)
		return
	}
	// The server state moved. Record it as the entry's baseline so a toggle
	// submitted after this call still flushes the undo instead of collapsing
	// into a false no-op. The entry stays pending until a snapshot confirms.
	e.queue.SetLikeBaseline(correlationID, liked)
}

// housekeeping runs the pull fallback and the confirmation-timeout sweep.
// Polling is active only while the connector is Disconnected or Failed, so
// push and poll are mutually exclusive by construction.
func (e *Engine) housekeeping(ctx context.Context) {
	defer e.wg.Done()

	sweepEvery := e.cfg.ConfirmTimeout / 2
	if sweepEvery < 50*time.Millisecond {
		sweepEvery = 50 * time.Millisecond
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			// Catches silently-rejected writes even when no snapshot or
			// poll result arrives.
			e.rerender()
		case <-poll.C:
			status := e.ConnectionStatus()
			if status != realtime.StatusDisconnected && status != realtime.StatusFailed {
				continue
			}
			snap, err := e.cfg.API.GetThread(ctx, e.cfg.ThreadID)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[Engine] thread=%s poll failed: %v", e.cfg.ThreadID, err)
				}
				continue
			}
			e.applySnapshot(*snap)
		}
	}
}

func (e *Engine) emit(notices []Notice) {
	if e.cfg.OnNotice == nil {
		return
	}
	for _, n := range notices {
		e.cfg.OnNotice(n)
	}
}

func (e *Engine) hasComment(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return findComment(e.rendered, id) != nil
}

// renderedLikeState reads the current like flag for the user on a target.
// Caller holds e.mu.
func (e *Engine) renderedLikeState(commentID, rid string) (liked, ok bool) {
	return likeState(e.rendered, commentID, rid, e.cfg.User.ID)
}

func likeState(comments []model.Comment, commentID, rid string, userID int64) (liked, ok bool) {
	if rid != "" {
		r := findReply(comments, commentID, rid)
		if r == nil {
			return false, false
		}
		return model.LikedBy(r.Likes, userID), true
	}
	c := findComment(comments, commentID)
	if c == nil {
		return false, false
	}
	return model.LikedBy(c.Likes, userID), true
}
