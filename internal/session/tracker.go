// Package session aggregates hold touches into a climbing session and builds
// the records streamed downstream.
package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/cragtrack/internal/pose"
	"github.com/ayusman/cragtrack/internal/timeutil"
	"github.com/ayusman/cragtrack/internal/touch"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusPending is the tracker state before the first pose frame. Records
	// carry it as StatusStarted with a null startTime.
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
)

// Options shape the outbound record.
type Options struct {
	// NoLandmarks omits the pose list.
	NoLandmarks bool
	// TouchedOnly adds the shapes of touched holds.
	TouchedOnly bool
}

// Tracker owns the session entity and the hold detector feeding it.
// Like the detector it is driven from a single processing path.
type Tracker struct {
	id       string
	clock    timeutil.Clock
	detector *touch.Detector
	opts     Options

	startTime *time.Time
	endTime   *time.Time
	status    Status

	// frozen is the hold list captured when the session ended.
	frozen []touch.HoldStatus
}

// NewTracker creates a tracker for a session that has not started yet.
func NewTracker(detector *touch.Detector, clock timeutil.Clock, opts Options) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		id:       uuid.New().String(),
		clock:    clock,
		detector: detector,
		opts:     opts,
		status:   StatusPending,
	}
}

// ID returns the session identifier.
func (t *Tracker) ID() string { return t.id }

// Detector returns the hold detector driven by the tracker.
func (t *Tracker) Detector() *touch.Detector { return t.detector }

// Options returns the output options.
func (t *Tracker) Options() Options { return t.opts }

// SetOptions replaces the output options.
func (t *Tracker) SetOptions(o Options) { t.opts = o }

// Status returns the current session status.
func (t *Tracker) Status() Status { return t.status }

// StartTime returns when the first frame arrived, or nil.
func (t *Tracker) StartTime() *time.Time { return t.startTime }

// EndTime returns when the session ended, or nil.
func (t *Tracker) EndTime() *time.Time { return t.endTime }

// Ended reports whether EndSession has been called.
func (t *Tracker) Ended() bool { return t.status == StatusCompleted }

// Update feeds one transformed frame through the detector. The first frame
// starts the session.
func (t *Tracker) Update(f pose.Frame) map[string]touch.Change {
	now := t.clock.Now()
	if t.startTime == nil && !t.Ended() {
		start := now
		t.startTime = &start
		t.status = StatusStarted
		slog.Info("session: started", "id", t.id, "start", timeutil.Format(start))
	}
	return t.detector.Update(f, now)
}

// EndSession marks the session completed. It reports false if the session
// had already ended, in which case nothing changes.
func (t *Tracker) EndSession() bool {
	if t.Ended() {
		return false
	}
	end := t.clock.Now()
	t.endTime = &end
	t.status = StatusCompleted
	t.frozen = t.detector.AllHoldStatus()
	slog.Info("session: ended", "id", t.id, "end", timeutil.Format(end))
	return true
}

// ResetAllHolds returns every hold to untouched without starting a new
// session.
func (t *Tracker) ResetAllHolds() {
	t.detector.Reset()
	slog.Info("session: holds reset", "id", t.id, "holds", len(t.detector.Holds()))
}

// Holds returns the hold list reported in records. Once the session has
// ended it is the list captured at the end.
func (t *Tracker) Holds() []touch.HoldStatus {
	if t.frozen != nil {
		return t.frozen
	}
	return t.detector.AllHoldStatus()
}
