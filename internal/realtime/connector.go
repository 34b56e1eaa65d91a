package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"gigboard/internal/model"
)

// Status is the connector's externally visible connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DialFunc opens one live channel for a thread. The returned channel is
// closed by the source when the transport drops; cancelling ctx must also
// close it. Implementations: SSESource.Dial, RedisSource.Dial.
type DialFunc func(ctx context.Context, threadID string) (<-chan Event, error)

// ConnectorConfig tunes the reconnection policy.
type ConnectorConfig struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
}

// Connector maintains a single logical subscription for one thread.
//
// State machine: Disconnected -> Connecting -> Connected -> (transport error)
// Reconnecting -> Connecting -> ... and terminal Failed after MaxAttempts.
// Snapshots are forwarded in arrival order; the connector never reorders or
// coalesces them.
type Connector struct {
	threadID string
	dial     DialFunc
	cfg      ConnectorConfig

	onSnapshot func(model.Snapshot)
	onStatus   func(Status)

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnector creates a connector for one thread. onSnapshot and onStatus
// are invoked from the connector's goroutine, strictly in event order.
func NewConnector(threadID string, dial DialFunc, cfg ConnectorConfig, onSnapshot func(model.Snapshot), onStatus func(Status)) *Connector {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Connector{
		threadID:   threadID,
		dial:       dial,
		cfg:        cfg,
		onSnapshot: onSnapshot,
		onStatus:   onStatus,
		status:     StatusDisconnected,
	}
}

// Backoff returns the reconnect delay for the given attempt (1-based):
// min(base * 2^(attempt-1), cap).
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

// Start opens the channel and begins the reconnect loop. Calling Start while
// a channel is already open tears the old one down first, so at most one
// subscription exists per thread.
func (c *Connector) Start(ctx context.Context) {
	c.Close()

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)
}

// Close tears down the subscription: cancels any pending reconnect timer,
// closes the open channel, and waits for the loop goroutine to exit.
func (c *Connector) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Status returns the current connection state.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connector) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()

	log.Printf("[Connector] thread=%s status=%s", c.threadID, s)
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// run is the connect/consume/reconnect loop.
func (c *Connector) run(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		c.setStatus(StatusConnecting)

		events, err := c.dial(ctx, c.threadID)
		if err != nil {
			log.Printf("[Connector] thread=%s dial error: %v", c.threadID, err)
		} else {
			c.consume(ctx, events, &attempt)
		}

		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected)
			return
		}

		attempt++
		if attempt > c.cfg.MaxAttempts {
			// One-time terminal signal; the engine falls back to polling.
			c.setStatus(StatusFailed)
			return
		}

		c.setStatus(StatusReconnecting)
		delay := Backoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffCap)
		log.Printf("[Connector] thread=%s reconnect attempt=%d delay=%v", c.threadID, attempt, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.setStatus(StatusDisconnected)
			return
		}
	}
}

// consume drains one channel until it closes (transport error) or ctx is
// cancelled. A server-side connected signal resets the attempt counter.
func (c *Connector) consume(ctx context.Context, events <-chan Event, attempt *int) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return // transport dropped
			}
			switch e := ev.(type) {
			case ConnectedEvent:
				*attempt = 0
				c.setStatus(StatusConnected)
			case SnapshotEvent:
				if c.onSnapshot != nil {
					c.onSnapshot(e.Snapshot)
				}
			case BroadcastEvent:
				log.Printf("[Connector] thread=%s broadcast kind=%s", c.threadID, e.Kind)
			case UnknownEvent:
				log.Printf("[Connector] thread=%s ignoring unknown event type=%s", c.threadID, e.Type)
			}
		}
	}
}
