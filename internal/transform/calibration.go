// Package transform maps camera-space landmarks onto the wall diagram and
// derives extended hand reach points.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/cragtrack/internal/pose"
)

// DefaultHandExtensionPercent is used when calibration data does not specify one.
const DefaultHandExtensionPercent = 20.0

// singularTolerance is the smallest determinant accepted for a calibration matrix.
const singularTolerance = 1e-12

// Calibration is a projective transform from normalized camera space to
// wall-diagram space plus the hand extension setting. It is immutable.
type Calibration struct {
	h                    *mat.Dense
	handExtensionPercent float64
}

// NewCalibration validates the matrix and builds a Calibration.
// The matrix is row-major and must be finite and non-singular.
func NewCalibration(rows [3][3]float64, handExtensionPercent float64) (*Calibration, error) {
	data := make([]float64, 0, 9)
	for _, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.New("calibration matrix has non-finite entries")
			}
			data = append(data, v)
		}
	}
	if math.IsNaN(handExtensionPercent) || math.IsInf(handExtensionPercent, 0) {
		return nil, errors.New("hand extension percent must be finite")
	}

	h := mat.NewDense(3, 3, data)
	if det := mat.Det(h); math.Abs(det) < singularTolerance {
		return nil, fmt.Errorf("calibration matrix is singular (det=%g)", det)
	}

	return &Calibration{h: h, handExtensionPercent: handExtensionPercent}, nil
}

// Identity returns a calibration that leaves coordinates untouched.
func Identity(handExtensionPercent float64) *Calibration {
	c, _ := NewCalibration([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, handExtensionPercent)
	return c
}

// HandExtensionPercent returns how far past the palm, as a percentage of
// palm width, the extended hand point is projected.
func (c *Calibration) HandExtensionPercent() float64 {
	return c.handExtensionPercent
}

// Matrix returns a copy of the transform as row-major rows.
func (c *Calibration) Matrix() [3][3]float64 {
	var out [3][3]float64
	for i := range 3 {
		for j := range 3 {
			out[i][j] = c.h.At(i, j)
		}
	}
	return out
}

// Scaled returns the same projective transform with the matrix multiplied by k.
func (c *Calibration) Scaled(k float64) (*Calibration, error) {
	var s mat.Dense
	s.Scale(k, c.h)
	rows := [3][3]float64{}
	for i := range 3 {
		for j := range 3 {
			rows[i][j] = s.At(i, j)
		}
	}
	return NewCalibration(rows, c.handExtensionPercent)
}

// Apply maps a point through the homography: (x, y, 1) is multiplied by the
// matrix and the first two components are divided by the third. A zero third
// component leaves the point unscaled.
func (c *Calibration) Apply(p pose.Point2D) pose.Point2D {
	in := mat.NewVecDense(3, []float64{p.X, p.Y, 1})
	var out mat.VecDense
	out.MulVec(c.h, in)

	x, y, w := out.AtVec(0), out.AtVec(1), out.AtVec(2)
	if w != 0 {
		x /= w
		y /= w
	}
	return pose.Point2D{X: x, Y: y}
}

type calibrationJSON struct {
	TransformMatrix      *[3][3]float64 `json:"transformMatrix,omitempty"`
	PerspectiveTransform *[3][3]float64 `json:"perspective_transform,omitempty"`
	HandExtensionPercent *float64       `json:"handExtensionPercent,omitempty"`
	HandExtensionSnake   *float64       `json:"hand_extension_percent,omitempty"`
}

// ParseCalibration decodes calibration JSON. Both camelCase
// (transformMatrix, handExtensionPercent) and snake_case
// (perspective_transform, hand_extension_percent) keys are accepted.
func ParseCalibration(data []byte) (*Calibration, error) {
	var raw calibrationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode calibration: %w", err)
	}

	m := raw.TransformMatrix
	if m == nil {
		m = raw.PerspectiveTransform
	}
	if m == nil {
		return nil, errors.New("calibration has no transform matrix")
	}

	pct := DefaultHandExtensionPercent
	switch {
	case raw.HandExtensionPercent != nil:
		pct = *raw.HandExtensionPercent
	case raw.HandExtensionSnake != nil:
		pct = *raw.HandExtensionSnake
	}

	return NewCalibration(*m, pct)
}

// MarshalJSON encodes the calibration with camelCase keys.
func (c *Calibration) MarshalJSON() ([]byte, error) {
	m := c.Matrix()
	pct := c.handExtensionPercent
	return json.Marshal(calibrationJSON{TransformMatrix: &m, HandExtensionPercent: &pct})
}
