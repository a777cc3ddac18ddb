package session

import (
	"encoding/json"
	"time"

	"github.com/ayusman/cragtrack/internal/pose"
	"github.com/ayusman/cragtrack/internal/timeutil"
	"github.com/ayusman/cragtrack/internal/touch"
	"github.com/ayusman/cragtrack/internal/wall"
)

// Record is the session message sent downstream.
type Record struct {
	Session         Summary       `json:"session"`
	Pose            []PosePoint   `json:"pose,omitzero"`
	TouchedSVGPaths []TouchedPath `json:"touched_svg_paths,omitzero"`
	Reset           bool          `json:"reset,omitempty"`
}

// Summary is the session part of a record.
type Summary struct {
	Holds     []Hold  `json:"holds"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Status    Status  `json:"status"`
}

// Hold is one hold entry in a record.
type Hold struct {
	ID     string        `json:"id"`
	Type   wall.HoldType `json:"type"`
	Status touch.Status  `json:"status"`
	Time   *string       `json:"time"`
}

// PosePoint is one transformed landmark. Extended hand points follow the
// body landmarks with consecutive indices.
type PosePoint struct {
	Index      int     `json:"index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// TouchedPath carries the outline of a touched hold.
type TouchedPath struct {
	ID      string  `json:"id"`
	D       string  `json:"d"`
	Touched bool    `json:"touched"`
	Time    *string `json:"time"`
}

// Record assembles the outbound record. frame is the transformed frame that
// was just processed, or nil for records not tied to a frame (reset
// responses, snapshots).
func (t *Tracker) Record(frame *pose.Frame, reset bool) Record {
	holds := t.Holds()
	r := Record{
		Session: Summary{
			Holds:     make([]Hold, 0, len(holds)),
			StartTime: formatPtr(t.startTime),
			EndTime:   formatPtr(t.endTime),
			Status:    t.status.recorded(),
		},
		Reset: reset,
	}
	for _, h := range holds {
		r.Session.Holds = append(r.Session.Holds, Hold{
			ID:     h.ID,
			Type:   h.Type,
			Status: h.Status,
			Time:   formatPtr(h.CompletedAt),
		})
	}

	if frame != nil && !t.opts.NoLandmarks {
		all := frame.All()
		r.Pose = make([]PosePoint, 0, len(all))
		for i, lm := range all {
			r.Pose = append(r.Pose, PosePoint{Index: i, X: lm.X, Y: lm.Y, Z: lm.Z, Visibility: lm.Visibility})
		}
	}

	if t.opts.TouchedOnly {
		r.TouchedSVGPaths = t.touchedPaths(holds)
	}
	return r
}

// recorded maps a tracker status onto the record's started/completed pair.
func (s Status) recorded() Status {
	if s == StatusPending {
		return StatusStarted
	}
	return s
}

// Encode marshals the record.
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func (t *Tracker) touchedPaths(holds []touch.HoldStatus) []TouchedPath {
	shapes := make(map[string]string, len(holds))
	for _, h := range t.detector.Holds() {
		shapes[h.ID] = h.Shape
	}
	out := make([]TouchedPath, 0)
	for _, h := range holds {
		if h.Status != touch.StatusTouched {
			continue
		}
		out = append(out, TouchedPath{
			ID:      h.ID,
			D:       shapes[h.ID],
			Touched: true,
			Time:    formatPtr(h.CompletedAt),
		})
	}
	return out
}

func formatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timeutil.Format(*t)
	return &s
}
