package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig configures the MQTT mirror.
type MQTTConfig struct {
	// Broker is host:port or a full tcp://, ssl:// or ws:// URL.
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// MQTTMirror publishes every session record to an MQTT topic beside the
// websocket consumer. Publishing is fire-and-forget; paho handles
// reconnection. The client is built once and never replaced, so Enqueue
// may run concurrently with Connect.
type MQTTMirror struct {
	cfg    MQTTConfig
	broker string
	client mqtt.Client

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewMQTTMirror creates a mirror. Records enqueued before the broker
// connection is open are dropped.
func NewMQTTMirror(cfg MQTTConfig) *MQTTMirror {
	if cfg.ClientID == "" {
		cfg.ClientID = "cragtrack-" + uuid.NewString()[:8]
	}
	if cfg.Topic == "" {
		cfg.Topic = "cragtrack/session"
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(DefaultMaxDelay)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt: connected", "broker", broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt: connection lost, reconnecting", "broker", broker, "error", err)
	}

	return &MQTTMirror{cfg: cfg, broker: broker, client: mqtt.NewClient(opts)}
}

// Connect starts connecting and waits until connected or ctx ends. When ctx
// ends first the client keeps retrying in the background until Close.
func (m *MQTTMirror) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.broker, err)
	}
	return nil
}

// Enqueue publishes msg without waiting for the broker.
func (m *MQTTMirror) Enqueue(msg []byte) {
	if !m.client.IsConnectionOpen() {
		m.failed.Add(1)
		return
	}
	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, msg)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			m.failed.Add(1)
			slog.Debug("mqtt: publish failed", "topic", m.cfg.Topic, "error", err)
			return
		}
		m.published.Add(1)
	}()
}

// Published returns how many records the broker accepted.
func (m *MQTTMirror) Published() uint64 { return m.published.Load() }

// Failed returns how many records were dropped or rejected.
func (m *MQTTMirror) Failed() uint64 { return m.failed.Load() }

// Close disconnects from the broker and stops any connection retries.
func (m *MQTTMirror) Close() {
	m.client.Disconnect(250)
	slog.Info("mqtt: disconnected", "broker", m.broker)
}
