// Package app wires the tracking pipeline: inbound pose messages are
// transformed onto the wall, run through the hold detector and session
// tracker, and the resulting records fan out to the configured sinks.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/cragtrack/internal/config"
	"github.com/ayusman/cragtrack/internal/session"
	"github.com/ayusman/cragtrack/internal/store"
	"github.com/ayusman/cragtrack/internal/timeutil"
	"github.com/ayusman/cragtrack/internal/touch"
	"github.com/ayusman/cragtrack/internal/transform"
)

// LogEvery is how many processed frames pass between throughput log lines.
const LogEvery = 100

// ErrSessionEnded is returned by ResetHolds once the session has ended.
var ErrSessionEnded = errors.New("session already ended")

// Sink receives every encoded session record. Enqueue must not block.
type Sink interface {
	Enqueue(msg []byte)
}

// Config holds the pipeline configuration.
type Config struct {
	Tuning config.Tuning
	Output session.Options
	// Store, when set, receives the final record of the session.
	Store *store.Store
	Sinks []Sink
	Clock timeutil.Clock
}

// Stats counts pipeline activity.
type Stats struct {
	Processed uint64  `json:"processed"`
	Invalid   uint64  `json:"invalid"`
	Unknown   uint64  `json:"unknown"`
	Resets    uint64  `json:"resets"`
	Touched   int     `json:"touched"`
	Holds     int     `json:"holds"`
	Rate      float64 `json:"rate"`
	Status    string  `json:"status"`
}

// App is the pipeline orchestrator. All tracking state is owned by the
// tracker and mutated only under mu, in message arrival order.
type App struct {
	res   *Resources
	cal   *transform.Calibration
	store *store.Store
	sinks []Sink
	clock timeutil.Clock

	mu      sync.Mutex
	tracker *session.Tracker
	latest  []byte
	started time.Time

	// pendingTuning is applied on the frame path before the next frame.
	pendingTuning atomic.Pointer[touch.Params]

	processed atomic.Uint64
	invalid   atomic.Uint64
	unknown   atomic.Uint64
	resets    atomic.Uint64
}

// New creates the pipeline for res.
func New(res *Resources, cfg Config) *App {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	detector := touch.NewDetector(res.Holds, TouchParams(cfg.Tuning))
	return &App{
		res:     res,
		cal:     res.Calibration,
		store:   cfg.Store,
		sinks:   cfg.Sinks,
		clock:   clock,
		tracker: session.NewTracker(detector, clock, cfg.Output),
		started: clock.Now(),
	}
}

// TouchParams converts the configured tuning, falling back to defaults for
// unset values.
func TouchParams(t config.Tuning) touch.Params {
	p := touch.DefaultParams()
	if t.ProximityThreshold > 0 {
		p.ProximityThreshold = t.ProximityThreshold
	}
	if t.TouchDurationS > 0 {
		p.TouchDuration = t.TouchDuration()
	}
	return p
}

// AddSink registers another record consumer.
func (a *App) AddSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// SessionID returns the tracked session's id.
func (a *App) SessionID() string { return a.tracker.ID() }

// ApplyTuning schedules new tuning for the next frame.
func (a *App) ApplyTuning(t config.Tuning) {
	p := TouchParams(t)
	a.pendingTuning.Store(&p)
}

// Latest returns the last record sent to the sinks.
func (a *App) Latest() ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest, a.latest != nil
}

// Snapshot builds a record of the current session without a pose.
func (a *App) Snapshot() session.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.Record(nil, false)
}

// ResetHolds clears every hold and emits a reset record.
func (a *App) ResetHolds() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resetLocked()
}

func (a *App) resetLocked() ([]byte, error) {
	if a.tracker.Ended() {
		return nil, ErrSessionEnded
	}
	a.tracker.ResetAllHolds()
	a.resets.Add(1)
	return a.emitLocked(a.tracker.Record(nil, true))
}

// EndSession completes the session, emits the final record and stores it.
// Later calls return the same final record.
func (a *App) EndSession() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.tracker.EndSession() {
		return a.latest, nil
	}
	msg, err := a.emitLocked(a.tracker.Record(nil, false))
	if err != nil {
		return nil, err
	}
	if err := a.persistLocked(msg); err != nil {
		return msg, fmt.Errorf("persist session: %w", err)
	}
	return msg, nil
}

func (a *App) persistLocked(msg []byte) error {
	if a.store == nil {
		return nil
	}
	sess := &store.Session{
		ID:      a.tracker.ID(),
		WallID:  a.res.WallID,
		RouteID: a.res.RouteID,
		Status:  string(a.tracker.Status()),
		Record:  msg,
	}
	if t := a.tracker.StartTime(); t != nil {
		sess.StartTime = timeutil.Format(*t)
	}
	if t := a.tracker.EndTime(); t != nil {
		sess.EndTime = timeutil.Format(*t)
	}
	if err := a.store.Sessions().Save(sess); err != nil {
		return err
	}
	slog.Info("app: session stored", "id", sess.ID, "status", sess.Status)
	return nil
}

// emitLocked encodes rec and hands it to every sink.
func (a *App) emitLocked(rec session.Record) ([]byte, error) {
	msg, err := rec.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	a.latest = msg
	for _, s := range a.sinks {
		s.Enqueue(msg)
	}
	return msg, nil
}

// Stats returns the pipeline counters.
func (a *App) Stats() any {
	return a.stats()
}

func (a *App) stats() Stats {
	a.mu.Lock()
	holds := a.tracker.Holds()
	status := a.tracker.Status()
	a.mu.Unlock()

	touched := 0
	for _, h := range holds {
		if h.Status == touch.StatusTouched {
			touched++
		}
	}
	s := Stats{
		Processed: a.processed.Load(),
		Invalid:   a.invalid.Load(),
		Unknown:   a.unknown.Load(),
		Resets:    a.resets.Load(),
		Touched:   touched,
		Holds:     len(holds),
		Status:    string(status),
	}
	if elapsed := a.clock.Since(a.started).Seconds(); elapsed > 0 {
		s.Rate = float64(s.Processed) / elapsed
	}
	return s
}

// LogSummary logs the final counters.
func (a *App) LogSummary() {
	s := a.stats()
	slog.Info("app: summary",
		"processed", s.Processed,
		"invalid", s.Invalid,
		"unknown", s.Unknown,
		"resets", s.Resets,
		"touched", s.Touched,
		"holds", s.Holds,
		"elapsed", a.clock.Since(a.started).Round(time.Millisecond),
		"rate", fmt.Sprintf("%.2f msg/s", s.Rate))
}
