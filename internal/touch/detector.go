// Package touch decides which holds a climber's hands are touching and for
// how long.
package touch

import (
	"log/slog"
	"time"

	"github.com/ayusman/cragtrack/internal/pose"
	"github.com/ayusman/cragtrack/internal/wall"
)

// Default tuning values.
const (
	DefaultProximityThreshold = 50.0
	DefaultTouchDuration      = 2 * time.Second
)

// Params tunes the detector.
type Params struct {
	// ProximityThreshold is the wall-space distance below which a hand is
	// near a hold.
	ProximityThreshold float64
	// TouchDuration is the continuous dwell needed to mark a hold touched.
	TouchDuration time.Duration
}

// DefaultParams returns the default tuning.
func DefaultParams() Params {
	return Params{
		ProximityThreshold: DefaultProximityThreshold,
		TouchDuration:      DefaultTouchDuration,
	}
}

// Status is the touch status of a hold.
type Status string

const (
	StatusUntouched Status = "untouched"
	StatusTouched   Status = "touched"
)

// Change is the per-frame transition reported for a hold.
type Change int

const (
	NoChange Change = iota
	Touched
)

func (c Change) String() string {
	if c == Touched {
		return "touched"
	}
	return "no-change"
}

// HoldStatus is the externally visible state of one hold.
type HoldStatus struct {
	ID          string
	Type        wall.HoldType
	Status      Status
	CompletedAt *time.Time
}

type holdState struct {
	touchStartedAt *time.Time
	status         Status
	completedAt    *time.Time
}

// Detector runs the per-hold dwell state machine. It is not safe for
// concurrent use; one frame-processing path owns it.
type Detector struct {
	params Params
	holds  []wall.HoldRegion
	state  map[string]*holdState
}

// NewDetector creates a detector with one untouched state per hold.
func NewDetector(holds map[string]wall.HoldRegion, params Params) *Detector {
	d := &Detector{
		params: params,
		holds:  wall.Sorted(holds),
		state:  make(map[string]*holdState, len(holds)),
	}
	for _, h := range d.holds {
		d.state[h.ID] = &holdState{status: StatusUntouched}
	}
	return d
}

// Params returns the current tuning.
func (d *Detector) Params() Params {
	return d.params
}

// SetParams replaces the tuning. Dwell already in progress is kept and
// measured against the new duration.
func (d *Detector) SetParams(p Params) {
	d.params = p
}

// Holds returns the tracked hold regions in document order.
func (d *Detector) Holds() []wall.HoldRegion {
	return d.holds
}

// HandPositions returns each hand's representative position: the mean of the
// hand's palm landmarks that pass the visibility threshold. Extended reach
// points are not part of the average. A hand with no qualifying landmark is
// nil.
func HandPositions(f pose.Frame) [pose.NumHands]*pose.Point2D {
	var out [pose.NumHands]*pose.Point2D
	for h := pose.Left; h < pose.NumHands; h++ {
		var sx, sy float64
		n := 0
		add := func(lm pose.Landmark) {
			if lm.Visible() {
				sx += lm.X
				sy += lm.Y
				n++
			}
		}
		for _, i := range pose.Hands[h].Palm() {
			if lm, ok := f.At(i); ok {
				add(lm)
			}
		}
		if n > 0 {
			out[h] = &pose.Point2D{X: sx / float64(n), Y: sy / float64(n)}
		}
	}
	return out
}

// Update evaluates one transformed frame at time now and returns the change
// for every hold.
func (d *Detector) Update(f pose.Frame, now time.Time) map[string]Change {
	hands := HandPositions(f)
	changes := make(map[string]Change, len(d.holds))

	for _, h := range d.holds {
		st := d.state[h.ID]
		changes[h.ID] = NoChange

		if !d.near(h, hands) {
			st.touchStartedAt = nil
			continue
		}

		if st.touchStartedAt == nil {
			started := now
			st.touchStartedAt = &started
			continue
		}

		if st.status == StatusTouched {
			continue
		}
		if now.Sub(*st.touchStartedAt) >= d.params.TouchDuration {
			completed := st.touchStartedAt.Add(d.params.TouchDuration)
			st.status = StatusTouched
			st.completedAt = &completed
			changes[h.ID] = Touched
			slog.Info("touch: hold touched", "hold", h.ID, "type", h.Type, "dwell", d.params.TouchDuration)
		}
	}
	return changes
}

// near reports whether the closest available hand is strictly within the
// proximity threshold of the hold.
func (d *Detector) near(h wall.HoldRegion, hands [pose.NumHands]*pose.Point2D) bool {
	for _, p := range hands {
		if p != nil && pose.Distance(*p, h.Reference) < d.params.ProximityThreshold {
			return true
		}
	}
	return false
}

// AllHoldStatus returns every hold's state in document order.
func (d *Detector) AllHoldStatus() []HoldStatus {
	out := make([]HoldStatus, 0, len(d.holds))
	for _, h := range d.holds {
		st := d.state[h.ID]
		hs := HoldStatus{ID: h.ID, Type: h.Type, Status: st.status}
		if st.completedAt != nil {
			t := *st.completedAt
			hs.CompletedAt = &t
		}
		out = append(out, hs)
	}
	return out
}

// Dwelling reports whether a hold currently has dwell in progress.
func (d *Detector) Dwelling(id string) bool {
	st, ok := d.state[id]
	return ok && st.touchStartedAt != nil
}

// Reset returns every hold to untouched with no dwell in progress.
func (d *Detector) Reset() {
	for _, st := range d.state {
		*st = holdState{status: StatusUntouched}
	}
}
