package stream

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMQTTMirror_Defaults(t *testing.T) {
	m := NewMQTTMirror(MQTTConfig{Broker: "localhost:1883"})
	assert.Equal(t, "cragtrack/session", m.cfg.Topic)
	assert.Equal(t, "tcp://localhost:1883", m.broker)
	assert.True(t, strings.HasPrefix(m.cfg.ClientID, "cragtrack-"))

	// Publishing before Connect drops the record.
	m.Enqueue([]byte(`{}`))
	assert.Zero(t, m.Published())
	assert.EqualValues(t, 1, m.Failed())
	m.Close()
}

func TestMQTTMirror_ConnectHonoursContext(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	m := NewMQTTMirror(MQTTConfig{Broker: "127.0.0.1:1", Topic: "t"})
	defer m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// With connect retry enabled the token never completes on its own.
	err := m.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// The frame path enqueues while the runner is still connecting.
func TestMQTTMirror_EnqueueDuringConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	m := NewMQTTMirror(MQTTConfig{Broker: "127.0.0.1:1", Topic: "t"})
	defer m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = m.Connect(ctx)
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			m.Enqueue([]byte(`{}`))
		}
	}()
	wg.Wait()
	assert.EqualValues(t, 50, m.Failed())
}

func TestMQTTMirror_RetriesAfterConnectTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a connect retry")
	}
	// A listener that hangs up on every connection: each accept is one
	// connection attempt by the client.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	var attempts atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			attempts.Add(1)
			conn.Close()
		}
	}()

	m := NewMQTTMirror(MQTTConfig{Broker: ln.Addr().String(), Topic: "t"})
	defer m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.ErrorIs(t, m.Connect(ctx), context.DeadlineExceeded)

	after := attempts.Load()
	require.Positive(t, after, "no connection attempt before the deadline")
	require.Eventually(t, func() bool { return attempts.Load() > after }, 10*time.Second, 20*time.Millisecond,
		"client stopped retrying once Connect gave up")
}
