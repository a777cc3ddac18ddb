package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/cragtrack/internal/timeutil"
)

// Handler receives every well-formed JSON message read from the inbound
// socket. It runs on the receive goroutine, so messages are handled one at a
// time in arrival order.
type Handler func(msg []byte)

// InboundConfig configures an InboundClient.
type InboundConfig struct {
	URL          string
	Backoff      BackoffConfig
	PingInterval time.Duration
	Dialer       *websocket.Dialer
	Clock        timeutil.Clock
}

// InboundStats counts inbound traffic.
type InboundStats struct {
	Received   uint64
	Malformed  uint64
	Connects   uint64
	Disconnect uint64
}

// InboundClient keeps a websocket connection to the pose source open and
// hands each message to a Handler.
type InboundClient struct {
	cfg     InboundConfig
	handler Handler
	state   stateVar

	mu     sync.Mutex
	cancel context.CancelFunc

	received   atomic.Uint64
	malformed  atomic.Uint64
	connects   atomic.Uint64
	disconnect atomic.Uint64
}

// NewInboundClient creates a client; call Run to start it.
func NewInboundClient(cfg InboundConfig, handler Handler) *InboundClient {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	cfg.Backoff = cfg.Backoff.withDefaults()
	return &InboundClient{cfg: cfg, handler: handler}
}

// State returns the current connection state.
func (c *InboundClient) State() State { return c.state.Load() }

// Stats returns traffic counters.
func (c *InboundClient) Stats() InboundStats {
	return InboundStats{
		Received:   c.received.Load(),
		Malformed:  c.malformed.Load(),
		Connects:   c.connects.Load(),
		Disconnect: c.disconnect.Load(),
	}
}

// Run connects and reconnects with backoff until ctx is done or Stop is
// called. Connection failures are never returned. Run may be called again
// after it returns.
func (c *InboundClient) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("inbound: already running")
	}
	c.cancel = cancel
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
		slog.Info("inbound: connecting", "url", c.cfg.URL)

		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("inbound: connection failed", "url", c.cfg.URL, "error", err)
		} else {
			backoff.Reset()
			c.connects.Add(1)
			c.state.Store(StateConnected)
			slog.Info("inbound: connected", "url", c.cfg.URL)

			err = c.serve(ctx, conn)
			c.disconnect.Add(1)
			if ctx.Err() != nil {
				break
			}
			slog.Warn("inbound: connection lost", "url", c.cfg.URL, "error", err)
		}

		c.state.Store(StateBackoff)
		delay := backoff.Next()
		slog.Info("inbound: reconnecting", "delay", delay)
		if !sleep(ctx, c.cfg.Clock, delay) {
			break
		}
	}

	slog.Info("inbound: stopped", "url", c.cfg.URL)
	return nil
}

// Stop ends Run. It is safe to call when the client is not running.
func (c *InboundClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// serve reads until the connection fails or ctx ends.
func (c *InboundClient) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	pingErr := make(chan error, 1)
	go func() {
		err := keepAlive(ctx, conn, c.cfg.Clock, c.cfg.PingInterval)
		if err != nil && ctx.Err() == nil {
			pingErr <- err
			cancel()
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case perr := <-pingErr:
				return perr
			default:
			}
			return fmt.Errorf("read: %w", err)
		}

		if !json.Valid(msg) {
			c.malformed.Add(1)
			slog.Warn("inbound: dropping malformed JSON", "bytes", len(msg))
			continue
		}
		c.received.Add(1)
		c.handler(msg)
	}
}

// keepAlive pings the peer every interval until ctx ends. A failed ping is
// returned so the caller can drop the connection.
func keepAlive(ctx context.Context, conn *websocket.Conn, clock timeutil.Clock, interval time.Duration) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			deadline := time.Now().Add(DefaultWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			slog.Debug("stream: ping sent")
		}
	}
}
