package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ayusman/cragtrack/internal/config"
	"github.com/ayusman/cragtrack/internal/fetch"
	"github.com/ayusman/cragtrack/internal/store"
	"github.com/ayusman/cragtrack/internal/transform"
	"github.com/ayusman/cragtrack/internal/wall"
)

// Setup stages reported in SetupError.
const (
	StageConfig      = "config"
	StageStore       = "store"
	StageDiagram     = "wall diagram"
	StageCalibration = "calibration"
	StageRoute       = "route"
)

// SetupError is a fatal problem found before the pipeline starts.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Resources are the parsed inputs of one tracking run.
type Resources struct {
	Holds       map[string]wall.HoldRegion
	Calibration *transform.Calibration
	// Route is nil when every hold on the wall is tracked.
	Route wall.Route

	WallID  string
	RouteID string
}

// LoadResources resolves the wall diagram, calibration and optional route
// from the configured sources. st may be nil when no database is configured.
// A wall id with a store takes the diagram and calibration from the store;
// otherwise they are fetched from their path or URL.
func LoadResources(ctx context.Context, cfg *config.Config, st *store.Store) (*Resources, error) {
	res := &Resources{WallID: cfg.Wall.ID, RouteID: cfg.Route.ID}

	var (
		diagram, calibration, routeData []byte
		err                             error
	)

	if cfg.Wall.ID != "" && st != nil {
		p, err := st.Problem(cfg.Wall.ID, cfg.Route.ID)
		if err != nil {
			return nil, &SetupError{Stage: StageStore, Err: err}
		}
		diagram = []byte(p.Wall.Diagram)
		if calibration, err = p.CalibrationJSON(); err != nil {
			return nil, &SetupError{Stage: StageCalibration, Err: err}
		}
		if p.Route != nil {
			routeData = p.Route.Holds
		}
	} else {
		if diagram, err = fetch.Fetch(ctx, cfg.Wall.Diagram, cfg.FetchTimeout()); err != nil {
			return nil, &SetupError{Stage: StageDiagram, Err: err}
		}
		if calibration, err = fetch.Fetch(ctx, cfg.Calibration.Source, cfg.FetchTimeout()); err != nil {
			return nil, &SetupError{Stage: StageCalibration, Err: err}
		}
	}

	// An explicit route overrides one resolved from the store.
	switch {
	case cfg.Route.Data != "":
		routeData = []byte(cfg.Route.Data)
		res.RouteID = ""
	case cfg.Route.File != "":
		if routeData, err = os.ReadFile(cfg.Route.File); err != nil {
			return nil, &SetupError{Stage: StageRoute, Err: err}
		}
		res.RouteID = ""
	case cfg.Route.ID != "" && routeData == nil:
		if st == nil {
			return nil, &SetupError{Stage: StageRoute, Err: errors.New("route id requires a database")}
		}
		rt, err := st.Routes().GetByID(cfg.Route.ID)
		if err != nil {
			return nil, &SetupError{Stage: StageRoute, Err: fmt.Errorf("route %s: %w", cfg.Route.ID, err)}
		}
		routeData = rt.Holds
		if res.WallID == "" {
			res.WallID = rt.WallID
		}
	}

	if res.Calibration, err = transform.ParseCalibration(calibration); err != nil {
		return nil, &SetupError{Stage: StageCalibration, Err: err}
	}

	if routeData != nil {
		if res.Route, err = wall.ParseRoute(routeData); err != nil {
			return nil, &SetupError{Stage: StageRoute, Err: err}
		}
	}

	if res.Holds, err = wall.Load(diagram, res.Route); err != nil {
		return nil, &SetupError{Stage: StageDiagram, Err: err}
	}
	if len(res.Holds) == 0 {
		slog.Warn("setup: no holds to track", "wall", cfg.Wall.Diagram, "route_holds", len(res.Route))
	}
	for id := range res.Route {
		if _, ok := res.Holds[id]; !ok {
			slog.Warn("setup: route hold not on wall", "hold", id)
		}
	}

	slog.Info("setup: resources loaded",
		"holds", len(res.Holds),
		"route_holds", len(res.Route),
		"hand_extension_percent", res.Calibration.HandExtensionPercent())
	return res, nil
}
