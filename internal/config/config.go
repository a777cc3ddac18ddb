// Package config handles configuration loading and validation for cragtrack.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRAGTRACK_"

// Config holds the complete tracker configuration.
type Config struct {
	Wall        WallConfig        `toml:"wall" json:"wall" yaml:"wall"`
	Calibration CalibrationConfig `toml:"calibration" json:"calibration" yaml:"calibration"`
	Route       RouteConfig       `toml:"route" json:"route" yaml:"route"`

	// Database is the sqlite file holding walls, routes and finished
	// sessions. Empty disables the store.
	Database string `toml:"database" json:"database" yaml:"database"`

	Inbound   InboundConfig   `toml:"inbound" json:"inbound" yaml:"inbound"`
	Outbound  OutboundConfig  `toml:"outbound" json:"outbound" yaml:"outbound"`
	Tuning    Tuning          `toml:"tuning" json:"tuning" yaml:"tuning"`
	Reconnect ReconnectConfig `toml:"reconnect" json:"reconnect" yaml:"reconnect"`
	Output    OutputConfig    `toml:"output" json:"output" yaml:"output"`

	// FetchTimeoutS bounds fetching the diagram, calibration and route.
	FetchTimeoutS float64 `toml:"fetch_timeout_s" json:"fetch_timeout_s" yaml:"fetch_timeout_s"`

	Server ServerConfig `toml:"server" json:"server" yaml:"server"`
	MQTT   MQTTConfig   `toml:"mqtt" json:"mqtt" yaml:"mqtt"`
	Log    LogConfig    `toml:"log" json:"log" yaml:"log"`
}

// WallConfig locates the wall diagram.
type WallConfig struct {
	// Diagram is a file path or http(s) URL of the SVG diagram.
	Diagram string `toml:"diagram" json:"diagram" yaml:"diagram"`
	// ID selects a wall registered in the database.
	ID string `toml:"id" json:"id" yaml:"id"`
}

// CalibrationConfig locates the calibration.
type CalibrationConfig struct {
	Source string `toml:"source" json:"source" yaml:"source"`
}

// RouteConfig selects an optional route filter. At most one source is used,
// in the order Data, File, ID.
type RouteConfig struct {
	Data string `toml:"data" json:"data" yaml:"data"`
	File string `toml:"file" json:"file" yaml:"file"`
	ID   string `toml:"id" json:"id" yaml:"id"`
}

// InboundConfig is the pose source endpoint.
type InboundConfig struct {
	URL string `toml:"url" json:"url" yaml:"url"`
}

// OutboundConfig is the session consumer endpoint.
type OutboundConfig struct {
	URL string `toml:"url" json:"url" yaml:"url"`
	// QueueLimit bounds the send queue; zero means unbounded.
	QueueLimit    int     `toml:"queue_limit" json:"queue_limit" yaml:"queue_limit"`
	PingIntervalS float64 `toml:"ping_interval_s" json:"ping_interval_s" yaml:"ping_interval_s"`
}

// Tuning is the part of the configuration that can change while running.
type Tuning struct {
	ProximityThreshold float64 `toml:"proximity_threshold" json:"proximity_threshold" yaml:"proximity_threshold"`
	TouchDurationS     float64 `toml:"touch_duration_s" json:"touch_duration_s" yaml:"touch_duration_s"`
}

// TouchDuration returns the dwell requirement as a duration.
func (t Tuning) TouchDuration() time.Duration { return seconds(t.TouchDurationS) }

// ReconnectConfig bounds the websocket reconnect backoff.
type ReconnectConfig struct {
	BaseDelayS float64 `toml:"base_delay_s" json:"base_delay_s" yaml:"base_delay_s"`
	MaxDelayS  float64 `toml:"max_delay_s" json:"max_delay_s" yaml:"max_delay_s"`
}

// OutputConfig shapes the outbound records.
type OutputConfig struct {
	NoLandmarks bool `toml:"no_landmarks" json:"no_landmarks" yaml:"no_landmarks"`
	TouchedOnly bool `toml:"touched_only" json:"touched_only" yaml:"touched_only"`
}

// ServerConfig enables the HTTP surface when Addr is set.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
	// StaticDir, when set, is served at /.
	StaticDir string `toml:"static_dir" json:"static_dir" yaml:"static_dir"`
}

// MQTTConfig enables the MQTT mirror when Broker is set.
type MQTTConfig struct {
	Broker   string `toml:"broker" json:"broker" yaml:"broker"`
	Topic    string `toml:"topic" json:"topic" yaml:"topic"`
	ClientID string `toml:"client_id" json:"client_id" yaml:"client_id"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Outbound: OutboundConfig{PingIntervalS: 10},
		Tuning: Tuning{
			ProximityThreshold: 50,
			TouchDurationS:     2.0,
		},
		Reconnect: ReconnectConfig{
			BaseDelayS: 5.0,
			MaxDelayS:  60,
		},
		FetchTimeoutS: 10,
		MQTT:          MQTTConfig{Topic: "cragtrack/session"},
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// BaseDelay returns the initial reconnect delay.
func (c *Config) BaseDelay() time.Duration { return seconds(c.Reconnect.BaseDelayS) }

// MaxDelay returns the reconnect delay cap.
func (c *Config) MaxDelay() time.Duration { return seconds(c.Reconnect.MaxDelayS) }

// PingInterval returns the outbound keep-alive interval.
func (c *Config) PingInterval() time.Duration { return seconds(c.Outbound.PingIntervalS) }

// FetchTimeout returns the bound on fetching setup resources.
func (c *Config) FetchTimeout() time.Duration { return seconds(c.FetchTimeoutS) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load reads the file at path on top of the defaults. The decoder is
// chosen by extension; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides fields from CRAGTRACK_* variables.
// Unparseable numeric or boolean values are returned as an error.
func (c *Config) ApplyEnvOverrides() error {
	str := map[string]*string{
		"WALL_DIAGRAM":       &c.Wall.Diagram,
		"WALL_ID":            &c.Wall.ID,
		"CALIBRATION_SOURCE": &c.Calibration.Source,
		"ROUTE_DATA":         &c.Route.Data,
		"ROUTE_FILE":         &c.Route.File,
		"ROUTE_ID":           &c.Route.ID,
		"DATABASE":           &c.Database,
		"INBOUND_URL":        &c.Inbound.URL,
		"OUTBOUND_URL":       &c.Outbound.URL,
		"SERVER_ADDR":        &c.Server.Addr,
		"SERVER_STATIC_DIR":  &c.Server.StaticDir,
		"MQTT_BROKER":        &c.MQTT.Broker,
		"MQTT_TOPIC":         &c.MQTT.Topic,
		"MQTT_CLIENT_ID":     &c.MQTT.ClientID,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	num := map[string]*float64{
		"PROXIMITY_THRESHOLD":      &c.Tuning.ProximityThreshold,
		"TOUCH_DURATION_S":         &c.Tuning.TouchDurationS,
		"RECONNECT_BASE_DELAY_S":   &c.Reconnect.BaseDelayS,
		"RECONNECT_MAX_DELAY_S":    &c.Reconnect.MaxDelayS,
		"OUTBOUND_PING_INTERVAL_S": &c.Outbound.PingIntervalS,
		"FETCH_TIMEOUT_S":          &c.FetchTimeoutS,
	}
	for name, dst := range num {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = f
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "OUTBOUND_QUEUE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sOUTBOUND_QUEUE_LIMIT: %w", EnvPrefix, err)
		}
		c.Outbound.QueueLimit = n
	}

	flags := map[string]*bool{
		"NO_LANDMARKS": &c.Output.NoLandmarks,
		"TOUCHED_ONLY": &c.Output.TouchedOnly,
	}
	for name, dst := range flags {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	return nil
}
