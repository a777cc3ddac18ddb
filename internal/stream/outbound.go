package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/cragtrack/internal/timeutil"
)

// OutboundConfig configures an OutboundClient.
type OutboundConfig struct {
	URL          string
	Backoff      BackoffConfig
	PingInterval time.Duration
	WriteTimeout time.Duration
	// QueueLimit bounds the send queue; zero means unbounded.
	QueueLimit int
	Dialer     *websocket.Dialer
	Clock      timeutil.Clock
}

// OutboundStats counts outbound traffic.
type OutboundStats struct {
	Sent     uint64
	Requeued uint64
	Dropped  uint64
	Pending  int
	Connects uint64
}

// OutboundClient delivers queued records to the downstream consumer over a
// websocket, reconnecting with backoff. Enqueue never blocks.
type OutboundClient struct {
	cfg   OutboundConfig
	queue *Queue
	state stateVar

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped atomic.Bool

	sent     atomic.Uint64
	requeued atomic.Uint64
	connects atomic.Uint64
}

// NewOutboundClient creates a client with an empty queue; call Run to
// start delivering.
func NewOutboundClient(cfg OutboundConfig) *OutboundClient {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	cfg.Backoff = cfg.Backoff.withDefaults()
	return &OutboundClient{cfg: cfg, queue: NewQueue(cfg.QueueLimit)}
}

// Enqueue adds a record to the send queue. Records are accepted whether or
// not the client is connected or running.
func (c *OutboundClient) Enqueue(msg []byte) {
	if !c.queue.PushBack(msg) {
		slog.Warn("outbound: queue full, dropped oldest record", "limit", c.cfg.QueueLimit)
	}
}

// Pending returns the number of queued records.
func (c *OutboundClient) Pending() int { return c.queue.Len() }

// State returns the current connection state.
func (c *OutboundClient) State() State { return c.state.Load() }

// Stats returns traffic counters.
func (c *OutboundClient) Stats() OutboundStats {
	return OutboundStats{
		Sent:     c.sent.Load(),
		Requeued: c.requeued.Load(),
		Dropped:  c.queue.Dropped(),
		Pending:  c.queue.Len(),
		Connects: c.connects.Load(),
	}
}

// Run connects and delivers queued records until ctx is done or Stop is
// called. Run may be called again after it returns; the queue survives.
func (c *OutboundClient) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("outbound: already running")
	}
	c.cancel = cancel
	c.stopped.Store(false)
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		c.state.Store(StateDisconnected)
	}()

	backoff := NewBackoff(c.cfg.Backoff)
	for ctx.Err() == nil {
		c.state.Store(StateConnecting)
		slog.Info("outbound: connecting", "url", c.cfg.URL)

		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("outbound: connection failed", "url", c.cfg.URL, "error", err)
		} else {
			backoff.Reset()
			c.connects.Add(1)
			c.state.Store(StateConnected)
			slog.Info("outbound: connected", "url", c.cfg.URL, "pending", c.queue.Len())

			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				break
			}
			slog.Warn("outbound: connection lost", "url", c.cfg.URL, "error", err, "pending", c.queue.Len())
		}

		c.state.Store(StateBackoff)
		delay := backoff.Next()
		slog.Info("outbound: reconnecting", "delay", delay)
		if !sleep(ctx, c.cfg.Clock, delay) {
			break
		}
	}

	slog.Info("outbound: stopped", "url", c.cfg.URL, "pending", c.queue.Len())
	return nil
}

// Stop ends Run. A record whose send fails after Stop is not requeued.
func (c *OutboundClient) Stop() {
	c.stopped.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// serve runs the sender, reader and keep-alive loops for one connection and
// returns when the first of them fails.
func (c *OutboundClient) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		return c.send(gctx, conn)
	})
	g.Go(func() error {
		// Drain whatever the consumer sends so control frames are processed.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return fmt.Errorf("read: %w", err)
			}
		}
	})
	g.Go(func() error {
		if err := keepAlive(gctx, conn, c.cfg.Clock, c.cfg.PingInterval); err != nil {
			return err
		}
		return gctx.Err()
	})

	return g.Wait()
}

func (c *OutboundClient) send(ctx context.Context, conn *websocket.Conn) error {
	for {
		msg, err := c.queue.Pop(ctx)
		if err != nil {
			return err
		}

		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			if c.stopped.Load() {
				slog.Warn("outbound: send failed after stop, dropping record", "error", err)
			} else {
				c.queue.PushFront(msg)
				c.requeued.Add(1)
				slog.Warn("outbound: send failed, record requeued", "error", err)
			}
			return fmt.Errorf("send: %w", err)
		}
		c.sent.Add(1)
	}
}
