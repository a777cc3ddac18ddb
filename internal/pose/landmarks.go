// Package pose provides the body landmark model consumed by the tracking pipeline.
package pose

import "math"

// Body landmark indices following the MediaPipe BlazePose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// VisibilityThreshold is the minimum visibility a landmark needs to take part
// in hand position estimates.
const VisibilityThreshold = 0.5

// Hand identifies one of the two hands.
type Hand int

const (
	Left Hand = iota
	Right
	NumHands
)

// String returns "left" or "right".
func (h Hand) String() string {
	switch h {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// HandIndices names the landmarks that make up one arm's hand.
type HandIndices struct {
	Elbow int
	Wrist int
	Pinky int
	Index int
	Thumb int
}

// Palm returns the four hand landmark indices averaged into a palm position.
func (h HandIndices) Palm() [4]int {
	return [4]int{h.Wrist, h.Pinky, h.Index, h.Thumb}
}

// Hands maps each hand to its landmark indices.
var Hands = [NumHands]HandIndices{
	Left:  {Elbow: LeftElbow, Wrist: LeftWrist, Pinky: LeftPinky, Index: LeftIndex, Thumb: LeftThumb},
	Right: {Elbow: RightElbow, Wrist: RightWrist, Pinky: RightPinky, Index: RightIndex, Thumb: RightThumb},
}

// Point2D is a position in the plane (normalized camera space or wall space).
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance calculates the Euclidean distance between two points.
func Distance(a, b Point2D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Landmark is one tracked body point.
// Z is depth and is informational only.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Point returns the planar position of the landmark.
func (l Landmark) Point() Point2D {
	return Point2D{X: l.X, Y: l.Y}
}

// Visible reports whether the landmark passes VisibilityThreshold.
func (l Landmark) Visible() bool {
	return l.Visibility > VisibilityThreshold
}

// Frame is one ordered set of landmarks received from the pose source.
// Frames are never mutated once received; derived frames are copies.
type Frame struct {
	Landmarks []Landmark
	// Extended holds the synthetic reach point per hand, nil when the
	// hand's extension could not be computed.
	Extended  [NumHands]*Landmark
	Timestamp float64
}

// At returns the landmark at index i, or false if the frame is too short.
func (f Frame) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(f.Landmarks) {
		return Landmark{}, false
	}
	return f.Landmarks[i], true
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := Frame{
		Landmarks: make([]Landmark, len(f.Landmarks)),
		Timestamp: f.Timestamp,
	}
	copy(c.Landmarks, f.Landmarks)
	for h, ext := range f.Extended {
		if ext != nil {
			e := *ext
			c.Extended[h] = &e
		}
	}
	return c
}

// All returns the raw landmarks followed by the extended hand points that
// are present (left first, then right).
func (f Frame) All() []Landmark {
	all := make([]Landmark, 0, len(f.Landmarks)+int(NumHands))
	all = append(all, f.Landmarks...)
	for _, ext := range f.Extended {
		if ext != nil {
			all = append(all, *ext)
		}
	}
	return all
}

// Finite reports whether every coordinate and visibility in the frame,
// extended points included, is a finite number.
func (f Frame) Finite() bool {
	for _, lm := range f.All() {
		for _, v := range [...]float64{lm.X, lm.Y, lm.Z, lm.Visibility} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
