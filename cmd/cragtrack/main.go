// Command cragtrack follows a climber's hands across a wall and reports which
// holds have been touched.
//
// Pose frames arrive on an inbound websocket, are projected onto the wall
// diagram, and a session record is streamed to the outbound websocket after
// every frame. Settings come from a TOML, JSON or YAML file, then CRAGTRACK_*
// environment variables, then flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/ayusman/cragtrack/internal/app"
	"github.com/ayusman/cragtrack/internal/config"
	"github.com/ayusman/cragtrack/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// override applies one set flag to the loaded configuration.
type override func(cfg *config.Config, value string) error

var overrides = map[string]override{
	"wall":         func(c *config.Config, v string) error { c.Wall.Diagram = v; return nil },
	"wall-id":      func(c *config.Config, v string) error { c.Wall.ID = v; return nil },
	"calibration":  func(c *config.Config, v string) error { c.Calibration.Source = v; return nil },
	"route":        func(c *config.Config, v string) error { c.Route.Data = v; return nil },
	"route-file":   func(c *config.Config, v string) error { c.Route.File = v; return nil },
	"route-id":     func(c *config.Config, v string) error { c.Route.ID = v; return nil },
	"db":           func(c *config.Config, v string) error { c.Database = v; return nil },
	"input":        func(c *config.Config, v string) error { c.Inbound.URL = v; return nil },
	"output":       func(c *config.Config, v string) error { c.Outbound.URL = v; return nil },
	"addr":         func(c *config.Config, v string) error { c.Server.Addr = v; return nil },
	"web":          func(c *config.Config, v string) error { c.Server.StaticDir = v; return nil },
	"mqtt":         func(c *config.Config, v string) error { c.MQTT.Broker = v; return nil },
	"mqtt-topic":   func(c *config.Config, v string) error { c.MQTT.Topic = v; return nil },
	"log-level":    func(c *config.Config, v string) error { c.Log.Level = v; return nil },
	"log-format":   func(c *config.Config, v string) error { c.Log.Format = v; return nil },
	"proximity":    floatOverride(func(c *config.Config) *float64 { return &c.Tuning.ProximityThreshold }),
	"duration":     floatOverride(func(c *config.Config) *float64 { return &c.Tuning.TouchDurationS }),
	"queue-limit":  intOverride(func(c *config.Config) *int { return &c.Outbound.QueueLimit }),
	"no-landmarks": boolOverride(func(c *config.Config) *bool { return &c.Output.NoLandmarks }),
	"touched-only": boolOverride(func(c *config.Config) *bool { return &c.Output.TouchedOnly }),
}

func floatOverride(field func(*config.Config) *float64) override {
	return func(c *config.Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func intOverride(field func(*config.Config) *int) override {
	return func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolOverride(field func(*config.Config) *bool) override {
	return func(c *config.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// newFlagSet declares every flag. Values are read back through Visit so that
// only flags given on the command line override the file and environment.
func newFlagSet() (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("cragtrack", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (.toml, .json, .yaml); watched for tuning changes")

	fs.String("wall", "", "wall diagram SVG path or URL")
	fs.String("wall-id", "", "wall id in the database")
	fs.String("calibration", "", "calibration JSON path or URL")
	fs.String("route", "", "inline route JSON")
	fs.String("route-file", "", "route JSON file")
	fs.String("route-id", "", "route id in the database")
	fs.String("db", "", "sqlite database path")
	fs.String("input", "", "inbound pose websocket URL (ws:// or wss://)")
	fs.String("output", "", "outbound session websocket URL (ws:// or wss://)")
	fs.String("addr", "", "HTTP listen address, e.g. :8080")
	fs.String("web", "", "static directory served by the HTTP surface")
	fs.String("mqtt", "", "MQTT broker, e.g. tcp://localhost:1883")
	fs.String("mqtt-topic", "", "MQTT topic for session records")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
	fs.String("proximity", "", "proximity threshold in wall units")
	fs.String("duration", "", "touch duration in seconds")
	fs.String("queue-limit", "", "outbound queue limit, 0 for unbounded")
	fs.Bool("no-landmarks", false, "omit pose landmarks from records")
	fs.Bool("touched-only", false, "include touched hold outlines in records")
	return fs, configPath
}

// loadConfig layers file, environment and flags.
func loadConfig(args []string) (*config.Config, string, error) {
	fs, configPath := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, "", err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		apply, ok := overrides[f.Name]
		if !ok || flagErr != nil {
			return
		}
		if err := apply(cfg, f.Value.String()); err != nil {
			flagErr = fmt.Errorf("-%s: %w", f.Name, err)
		}
	})
	if flagErr != nil {
		return nil, "", flagErr
	}

	if cfg.Server.Addr != "" && cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = findWebDir()
	}
	return cfg, *configPath, nil
}

func run(args []string) int {
	cfg, configPath, err := loadConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cragtrack: %v\n", err)
		return 2
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cragtrack: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := app.Build(ctx, cfg, configPath, nil)
	if err != nil {
		var se *app.SetupError
		if errors.As(err, &se) {
			logger.Error("cragtrack: setup failed", "stage", se.Stage, "error", se.Err)
			fmt.Fprintf(os.Stderr, "cragtrack: %v\n", se)
			return 1
		}
		logger.Error("cragtrack: setup failed", "error", err)
		return 1
	}

	logger.Info("cragtrack: tracking", "session", runner.App.SessionID())
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("cragtrack: stopped", "error", err)
		return 1
	}
	return 0
}

// findWebDir looks for a web directory next to the working directory or
// under ~/.cragtrack.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".cragtrack", "web")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
