package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	errs = append(errs, c.Tuning.validate()...)

	if c.Reconnect.BaseDelayS <= 0 {
		add("reconnect.base_delay_s", "must be positive, got %g", c.Reconnect.BaseDelayS)
	}
	if c.Reconnect.MaxDelayS < c.Reconnect.BaseDelayS {
		add("reconnect.max_delay_s", "must be at least base_delay_s (%g), got %g", c.Reconnect.BaseDelayS, c.Reconnect.MaxDelayS)
	}
	if c.Outbound.PingIntervalS <= 0 {
		add("outbound.ping_interval_s", "must be positive, got %g", c.Outbound.PingIntervalS)
	}
	if c.Outbound.QueueLimit < 0 {
		add("outbound.queue_limit", "must not be negative, got %d", c.Outbound.QueueLimit)
	}
	if c.FetchTimeoutS <= 0 {
		add("fetch_timeout_s", "must be positive, got %g", c.FetchTimeoutS)
	}

	if err := validateWebsocketURL(c.Inbound.URL); err != "" {
		add("inbound.url", "%s", err)
	}
	if err := validateWebsocketURL(c.Outbound.URL); err != "" {
		add("outbound.url", "%s", err)
	}

	fromStore := c.Wall.ID != "" && c.Database != ""
	if c.Wall.ID != "" && c.Database == "" {
		add("wall.id", "requires database")
	}
	if !fromStore {
		if c.Wall.Diagram == "" {
			add("wall.diagram", "required unless wall.id and database are set")
		}
		if c.Calibration.Source == "" {
			add("calibration.source", "required unless wall.id and database are set")
		}
	}
	if c.Route.ID != "" && c.Database == "" {
		add("route.id", "requires database")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (t Tuning) validate() ValidationErrors {
	var errs ValidationErrors
	if t.ProximityThreshold <= 0 {
		errs = append(errs, ValidationError{
			Field:   "tuning.proximity_threshold",
			Message: fmt.Sprintf("must be positive, got %g", t.ProximityThreshold),
		})
	}
	if t.TouchDurationS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "tuning.touch_duration_s",
			Message: fmt.Sprintf("must be positive, got %g", t.TouchDurationS),
		})
	}
	return errs
}

// Validate checks only the hot-reloadable part.
func (t Tuning) Validate() error {
	if errs := t.validate(); len(errs) > 0 {
		return errs
	}
	return nil
}

func validateWebsocketURL(raw string) string {
	if raw == "" {
		return "required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err.Error()
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Sprintf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "missing host"
	}
	return ""
}
