package transform

import (
	"errors"
	"log/slog"
	"math"

	"github.com/ayusman/cragtrack/internal/pose"
)

var (
	// ErrMissingLandmarks means the frame lacks a landmark the extension needs.
	ErrMissingLandmarks = errors.New("hand landmarks missing")
	// ErrDegenerateDirection means the elbow and palm centre coincide.
	ErrDegenerateDirection = errors.New("zero-length elbow to palm direction")
)

// minDirectionLength guards the direction normalization.
const minDirectionLength = 1e-10

// Project returns a copy of the frame with every landmark mapped through the
// calibration. Z and visibility pass through unchanged. Existing extended
// points are dropped since they belong to the source space.
func Project(f pose.Frame, cal *Calibration) pose.Frame {
	out := pose.Frame{
		Landmarks: make([]pose.Landmark, len(f.Landmarks)),
		Timestamp: f.Timestamp,
	}
	for i, lm := range f.Landmarks {
		p := cal.Apply(lm.Point())
		out.Landmarks[i] = pose.Landmark{X: p.X, Y: p.Y, Z: lm.Z, Visibility: lm.Visibility}
	}
	return out
}

// Transform projects the frame onto the wall and attaches an extended point
// for each hand whose landmarks allow one. The input frame is not modified.
func Transform(f pose.Frame, cal *Calibration) pose.Frame {
	out := Project(f, cal)
	ExtendHands(&out, cal.HandExtensionPercent())
	return out
}

// ExtendHands sets f.Extended for both hands. Hands that cannot be extended
// are left nil; degenerate directions are logged.
func ExtendHands(f *pose.Frame, handExtensionPercent float64) {
	for h := pose.Left; h < pose.NumHands; h++ {
		ext, err := ExtendHand(*f, h, handExtensionPercent)
		switch {
		case err == nil:
			f.Extended[h] = &ext
		case errors.Is(err, ErrDegenerateDirection):
			slog.Debug("transform: skipping hand extension", "hand", h, "error", err)
			f.Extended[h] = nil
		default:
			f.Extended[h] = nil
		}
	}
}

// ExtendHand computes the reach point for one hand: the palm centre pushed
// along the elbow to palm direction by palmSize * percent / 100, where palm
// size is the pinky to index distance. Its visibility is the lowest of the
// four palm landmarks.
func ExtendHand(f pose.Frame, hand pose.Hand, handExtensionPercent float64) (pose.Landmark, error) {
	idx := pose.Hands[hand]

	elbow, ok := f.At(idx.Elbow)
	if !ok {
		return pose.Landmark{}, ErrMissingLandmarks
	}

	var (
		palm [4]pose.Landmark
		cx   float64
		cy   float64
		cz   float64
		vis  = math.Inf(1)
	)
	for i, li := range idx.Palm() {
		lm, ok := f.At(li)
		if !ok {
			return pose.Landmark{}, ErrMissingLandmarks
		}
		palm[i] = lm
		cx += lm.X
		cy += lm.Y
		cz += lm.Z
		vis = math.Min(vis, lm.Visibility)
	}
	cx /= 4
	cy /= 4
	cz /= 4

	dx, dy := cx-elbow.X, cy-elbow.Y
	length := math.Hypot(dx, dy)
	if length < minDirectionLength {
		return pose.Landmark{}, ErrDegenerateDirection
	}
	dx /= length
	dy /= length

	// palm[1] is the pinky and palm[2] the index finger.
	palmSize := pose.Distance(palm[1].Point(), palm[2].Point())
	dist := palmSize * handExtensionPercent / 100

	return pose.Landmark{
		X:          cx + dx*dist,
		Y:          cy + dy*dist,
		Z:          cz,
		Visibility: vis,
	}, nil
}
