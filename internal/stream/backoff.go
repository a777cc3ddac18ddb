// Package stream provides the reconnecting websocket clients that carry pose
// frames in and session records out, plus an optional MQTT mirror.
package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ayusman/cragtrack/internal/timeutil"
)

// Default reconnect timing.
const (
	DefaultBaseDelay    = 5 * time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultPingInterval = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// State is the connection state of a client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// stateVar holds a State shared between the client loop and observers.
type stateVar struct {
	v atomic.Int32
}

func (s *stateVar) Load() State    { return State(s.v.Load()) }
func (s *stateVar) Store(st State) { s.v.Store(int32(st)) }

// BackoffConfig bounds the reconnect delay.
type BackoffConfig struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoffConfig returns a 5s base delay capped at 60s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Base <= 0 {
		c.Base = DefaultBaseDelay
	}
	if c.Max <= 0 {
		c.Max = DefaultMaxDelay
	}
	if c.Max < c.Base {
		c.Max = c.Base
	}
	return c
}

// Backoff is the reconnect delay state of one client. Next returns the
// current delay and doubles it up to the cap; Reset goes back to the base.
type Backoff struct {
	cfg     BackoffConfig
	current time.Duration
}

// NewBackoff creates a Backoff at its base delay.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, current: cfg.Base}
}

// Current returns the delay the next wait will use.
func (b *Backoff) Current() time.Duration { return b.current }

// Next returns the delay to wait now and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current = min(b.current*2, b.cfg.Max)
	return d
}

// Reset returns the schedule to the base delay.
func (b *Backoff) Reset() { b.current = b.cfg.Base }

// sleep waits for d on the clock and reports false if ctx ended first.
func sleep(ctx context.Context, clock timeutil.Clock, d time.Duration) bool {
	select {
	case <-clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
