package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/cragtrack/internal/timeutil"
)

const waitFor = 5 * time.Second
const tick = 5 * time.Millisecond

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// wsServer starts a websocket server. While accept reports false the
// handshake is refused so clients see a connection failure.
func wsServer(t *testing.T, accept *atomic.Bool, serve func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept != nil && !accept.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// advanceWhenWaiting advances the clock once the client is sleeping in backoff.
func advanceWhenWaiting(t *testing.T, clock *timeutil.MockClock, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return clock.Waiters() > 0 }, waitFor, tick)
	clock.Advance(d)
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(BackoffConfig{Base: 5 * time.Second, Max: 60 * time.Second})

	var got []time.Duration
	for range 6 {
		got = append(got, b.Next())
	}
	want := []time.Duration{5, 10, 20, 40, 60, 60}
	for i := range want {
		want[i] *= time.Second
	}
	assert.Equal(t, want, got)

	b.Reset()
	assert.Equal(t, 5*time.Second, b.Current())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	assert.Equal(t, DefaultBaseDelay, b.Next())

	capped := NewBackoff(BackoffConfig{Base: 10 * time.Second, Max: time.Second})
	assert.Equal(t, 10*time.Second, capped.Next())
	assert.Equal(t, 10*time.Second, capped.Next())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "backoff", StateBackoff.String())
}

func TestQueue(t *testing.T) {
	t.Run("fifo with requeue at front", func(t *testing.T) {
		q := NewQueue(0)
		q.PushBack([]byte("1"))
		q.PushBack([]byte("2"))
		msg, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "1", string(msg))

		q.PushBack([]byte("3"))
		q.PushFront(msg)

		var order []string
		for q.Len() > 0 {
			m, err := q.Pop(context.Background())
			require.NoError(t, err)
			order = append(order, string(m))
		}
		assert.Equal(t, []string{"1", "2", "3"}, order)
	})

	t.Run("limit drops oldest", func(t *testing.T) {
		q := NewQueue(2)
		assert.True(t, q.PushBack([]byte("a")))
		assert.True(t, q.PushBack([]byte("b")))
		assert.False(t, q.PushBack([]byte("c")))
		assert.Equal(t, uint64(1), q.Dropped())

		snap := q.Snapshot()
		require.Len(t, snap, 2)
		assert.Equal(t, "b", string(snap[0]))
		assert.Equal(t, "c", string(snap[1]))
	})

	t.Run("pop waits for push", func(t *testing.T) {
		q := NewQueue(0)
		got := make(chan string, 1)
		go func() {
			m, err := q.Pop(context.Background())
			if err == nil {
				got <- string(m)
			}
		}()
		time.Sleep(20 * time.Millisecond)
		q.PushBack([]byte("late"))
		select {
		case m := <-got:
			assert.Equal(t, "late", m)
		case <-time.After(waitFor):
			t.Fatal("Pop did not wake up")
		}
	})

	t.Run("pop honours context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewQueue(0).Pop(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInboundClient_DeliversValidJSON(t *testing.T) {
	url := wsServer(t, nil, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"landmarks":[]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"landmarks": [`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset_holds"}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	var mu sync.Mutex
	var got []string
	client := NewInboundClient(InboundConfig{URL: url}, func(msg []byte) {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []string{`{"landmarks":[]}`, `{"type":"reset_holds"}`}, got)
	mu.Unlock()

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Malformed)
	assert.Equal(t, uint64(1), stats.Connects, "malformed JSON must not close the connection")
	assert.Equal(t, StateConnected, client.State())

	client.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateDisconnected, client.State())
}

func TestInboundClient_ReconnectsWithBackoff(t *testing.T) {
	var accept atomic.Bool
	var served atomic.Int32
	url := wsServer(t, &accept, func(conn *websocket.Conn) {
		n := served.Add(1)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"n":`+string(rune('0'+n))+`}`))
		if n == 1 {
			// Drop the first connection right away.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	clock := timeutil.NewMockClock(time.Now())
	var received atomic.Int32
	client := NewInboundClient(InboundConfig{
		URL:     url,
		Backoff: BackoffConfig{Base: time.Second, Max: 4 * time.Second},
		Clock:   clock,
	}, func([]byte) { received.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	// Refused handshakes back off 1s, then 2s.
	require.Eventually(t, func() bool { return client.State() == StateBackoff }, waitFor, tick)
	advanceWhenWaiting(t, clock, time.Second)
	require.Eventually(t, func() bool { return client.State() == StateBackoff && clock.Waiters() > 0 }, waitFor, tick)

	accept.Store(true)
	clock.Advance(2 * time.Second)

	// First connection is dropped by the server: the delay starts again at base.
	require.Eventually(t, func() bool { return received.Load() == 1 && clock.Waiters() > 0 }, waitFor, tick)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return received.Load() == 2 && client.State() == StateConnected
	}, waitFor, tick)
	assert.Equal(t, uint64(2), client.Stats().Connects)

	client.Stop()
}

func TestInboundClient_Restartable(t *testing.T) {
	url := wsServer(t, nil, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	client := NewInboundClient(InboundConfig{URL: url}, func([]byte) {})

	for range 2 {
		done := make(chan struct{})
		go func() {
			client.Run(context.Background())
			close(done)
		}()
		require.Eventually(t, func() bool { return client.State() == StateConnected }, waitFor, tick)
		client.Stop()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Fatal("Run did not return after Stop")
		}
	}
	assert.Equal(t, uint64(2), client.Stats().Connects)
}

func TestOutboundClient_DeliversQueuedInOrderAfterOutage(t *testing.T) {
	var accept atomic.Bool
	var mu sync.Mutex
	var got []string
	url := wsServer(t, &accept, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			got = append(got, string(msg))
			mu.Unlock()
		}
	})

	clock := timeutil.NewMockClock(time.Now())
	client := NewOutboundClient(OutboundConfig{
		URL:     url,
		Backoff: BackoffConfig{Base: time.Second, Max: time.Minute},
		Clock:   clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	// Consumer down: records pile up without blocking.
	for _, m := range []string{"r1", "r2", "r3"} {
		client.Enqueue([]byte(m))
	}
	require.Eventually(t, func() bool { return client.State() == StateBackoff }, waitFor, tick)
	assert.Equal(t, 3, client.Pending())

	accept.Store(true)
	advanceWhenWaiting(t, clock, time.Second)

	client.Enqueue([]byte("r4"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, got)
	mu.Unlock()
	assert.Equal(t, 0, client.Pending())
	assert.Equal(t, uint64(4), client.Stats().Sent)

	client.Stop()
}

func TestOutboundClient_QueueLimit(t *testing.T) {
	client := NewOutboundClient(OutboundConfig{URL: "ws://127.0.0.1:1/unused", QueueLimit: 2})
	client.Enqueue([]byte("a"))
	client.Enqueue([]byte("b"))
	client.Enqueue([]byte("c"))

	stats := client.Stats()
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestOutboundClient_PingsWhileConnected(t *testing.T) {
	pings := make(chan struct{}, 4)
	url := wsServer(t, nil, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(data string) error {
			select {
			case pings <- struct{}{}:
			default:
			}
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	clock := timeutil.NewMockClock(time.Now())
	client := NewOutboundClient(OutboundConfig{URL: url, PingInterval: 10 * time.Second, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	require.Eventually(t, func() bool { return client.State() == StateConnected }, waitFor, tick)

	// The ticker may be created just after the state flips; keep advancing
	// until the server observes a ping.
	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Second)
		select {
		case <-pings:
			return true
		default:
			return false
		}
	}, waitFor, 20*time.Millisecond)

	client.Stop()
}

func TestOutboundClient_StopEndsRun(t *testing.T) {
	client := NewOutboundClient(OutboundConfig{URL: "ws://127.0.0.1:1/unused", Clock: timeutil.NewMockClock(time.Now())})
	done := make(chan struct{})
	go func() {
		client.Run(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return client.State() == StateBackoff }, waitFor, tick)

	client.Stop()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateDisconnected, client.State())
}
