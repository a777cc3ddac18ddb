package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Problem is everything the tracker needs to start on a stored wall.
type Problem struct {
	Wall        *Wall
	Calibration *Calibration
	// Route is nil when no route was requested.
	Route *Route
}

// Problem looks up a wall, its latest calibration and, when routeID is set,
// one of its routes.
func (s *Store) Problem(wallID, routeID string) (*Problem, error) {
	w, err := s.Walls().GetByID(wallID)
	if err != nil {
		return nil, fmt.Errorf("wall %s: %w", wallID, err)
	}
	cal, err := s.Calibrations().Latest(wallID)
	if err != nil {
		return nil, fmt.Errorf("calibration for wall %s: %w", wallID, err)
	}
	p := &Problem{Wall: w, Calibration: cal}
	if routeID == "" {
		return p, nil
	}

	rt, err := s.Routes().GetByID(routeID)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", routeID, err)
	}
	if rt.WallID != wallID {
		return nil, fmt.Errorf("route %s belongs to wall %s, not %s: %w", routeID, rt.WallID, wallID, ErrNotFound)
	}
	p.Route = rt
	return p, nil
}

// CalibrationJSON renders the calibration in the document form the
// calibration parser accepts.
func (p *Problem) CalibrationJSON() ([]byte, error) {
	if p.Calibration == nil {
		return nil, errors.New("no calibration")
	}
	return json.Marshal(struct {
		Matrix               [3][3]float64 `json:"perspective_transform"`
		HandExtensionPercent float64       `json:"hand_extension_percent"`
	}{p.Calibration.Matrix, p.Calibration.HandExtensionPercent})
}
