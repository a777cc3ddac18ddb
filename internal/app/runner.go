package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/cragtrack/internal/config"
	"github.com/ayusman/cragtrack/internal/server"
	"github.com/ayusman/cragtrack/internal/session"
	"github.com/ayusman/cragtrack/internal/store"
	"github.com/ayusman/cragtrack/internal/stream"
	"github.com/ayusman/cragtrack/internal/timeutil"
)

// mqttConnectTimeout bounds the first broker connection.
const mqttConnectTimeout = 10 * time.Second

// Runner owns every long-running component of a tracking run.
type Runner struct {
	cfg        *config.Config
	configPath string

	App      *App
	Store    *store.Store
	Inbound  *stream.InboundClient
	Outbound *stream.OutboundClient
	MQTT     *stream.MQTTMirror
	Hub      *server.Hub
	Server   *server.Server
}

// Build validates cfg, loads the run's resources and constructs every
// component. Failures are *SetupError. configPath, when set, is watched for
// tuning changes.
func Build(ctx context.Context, cfg *config.Config, configPath string, clock timeutil.Clock) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &SetupError{Stage: StageConfig, Err: err}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	r := &Runner{cfg: cfg, configPath: configPath}

	if cfg.Database != "" {
		st, err := store.New(cfg.Database)
		if err != nil {
			return nil, &SetupError{Stage: StageStore, Err: err}
		}
		r.Store = st
	}

	res, err := LoadResources(ctx, cfg, r.Store)
	if err != nil {
		r.close()
		return nil, err
	}

	backoff := stream.BackoffConfig{Base: cfg.BaseDelay(), Max: cfg.MaxDelay()}
	r.Outbound = stream.NewOutboundClient(stream.OutboundConfig{
		URL:          cfg.Outbound.URL,
		Backoff:      backoff,
		PingInterval: cfg.PingInterval(),
		QueueLimit:   cfg.Outbound.QueueLimit,
		Clock:        clock,
	})
	sinks := []Sink{r.Outbound}

	if cfg.MQTT.Broker != "" {
		r.MQTT = stream.NewMQTTMirror(stream.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		})
		sinks = append(sinks, r.MQTT)
	}
	if cfg.Server.Addr != "" {
		r.Hub = server.NewHub()
		sinks = append(sinks, r.Hub)
	}

	r.App = New(res, Config{
		Tuning: cfg.Tuning,
		Output: session.Options{
			NoLandmarks: cfg.Output.NoLandmarks,
			TouchedOnly: cfg.Output.TouchedOnly,
		},
		Store: r.Store,
		Sinks: sinks,
		Clock: clock,
	})

	r.Inbound = stream.NewInboundClient(stream.InboundConfig{
		URL:          cfg.Inbound.URL,
		Backoff:      backoff,
		PingInterval: cfg.PingInterval(),
		Clock:        clock,
	}, r.App.HandleMessage)

	if cfg.Server.Addr != "" {
		r.Server = server.New(server.Config{
			StaticDir: cfg.Server.StaticDir,
			Store:     r.Store,
			Session:   r.App,
			Hub:       r.Hub,
		})
	}

	slog.Info("app: ready",
		"session", r.App.SessionID(),
		"inbound", cfg.Inbound.URL,
		"outbound", cfg.Outbound.URL,
		"server", cfg.Server.Addr,
		"mqtt", cfg.MQTT.Broker)
	return r, nil
}

// Run supervises the components until ctx is cancelled. On the way out the
// session is ended and stored, and a summary is logged. Connection failures
// never end Run.
func (r *Runner) Run(ctx context.Context) error {
	defer r.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Outbound.Run(gctx) })
	g.Go(func() error { return r.Inbound.Run(gctx) })

	if r.Server != nil {
		g.Go(func() error { return r.Server.Run(gctx, r.cfg.Server.Addr) })
	}
	if r.MQTT != nil {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, mqttConnectTimeout)
			defer cancel()
			if err := r.MQTT.Connect(cctx); err != nil {
				// paho keeps retrying in the background.
				slog.Warn("app: mqtt not connected yet", "broker", r.cfg.MQTT.Broker, "error", err)
			}
			return nil
		})
	}
	if r.configPath != "" {
		w := config.NewWatcher(r.configPath, r.cfg.Tuning, r.App.ApplyTuning)
		g.Go(func() error { return w.Run(gctx) })
	}

	err := g.Wait()

	if _, endErr := r.App.EndSession(); endErr != nil {
		slog.Error("app: ending session", "error", endErr)
	}
	r.App.LogSummary()
	return err
}

func (r *Runner) close() {
	if r.MQTT != nil {
		r.MQTT.Close()
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			slog.Warn("app: closing store", "error", err)
		}
		r.Store = nil
	}
}
