package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ayusman/cragtrack/internal/store"
	"github.com/ayusman/cragtrack/internal/transform"
	"github.com/ayusman/cragtrack/internal/wall"
)

// WallHandler serves the wall registry:
//
//	GET    /api/walls
//	POST   /api/walls
//	GET    /api/walls/{id}
//	DELETE /api/walls/{id}
//	POST   /api/walls/{id}/calibration
//	POST   /api/walls/{id}/routes
//	DELETE /api/walls/{id}/routes/{routeID}
type WallHandler struct {
	store *store.Store
}

// NewWallHandler creates a new WallHandler with the given store.
func NewWallHandler(s *store.Store) *WallHandler {
	return &WallHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *WallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/walls")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "calibration":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.calibrate(w, r, id)
	case len(parts) == 2 && parts[1] == "routes":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.createRoute(w, r, id)
	case len(parts) == 3 && parts[1] == "routes":
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.deleteRoute(w, r, id, parts[2])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Request and response types

type calibrationRequest struct {
	Matrix               *[3][3]float64 `json:"perspective_transform"`
	HandExtensionPercent *float64       `json:"hand_extension_percent"`
}

type createWallRequest struct {
	Name        string              `json:"name"`
	Diagram     string              `json:"diagram"`
	Calibration *calibrationRequest `json:"calibration"`
}

type createRouteRequest struct {
	Name  string          `json:"name"`
	Holds json.RawMessage `json:"holds"`
}

type holdResponse struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type calibrationResponse struct {
	Matrix               [3][3]float64 `json:"perspective_transform"`
	HandExtensionPercent float64       `json:"hand_extension_percent"`
	CreatedAt            string        `json:"created_at"`
}

type routeResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Holds     json.RawMessage `json:"holds"`
	CreatedAt string          `json:"created_at"`
}

type wallResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Diagram     string               `json:"diagram,omitempty"`
	Holds       []holdResponse       `json:"holds,omitempty"`
	Calibration *calibrationResponse `json:"calibration,omitempty"`
	Routes      []routeResponse      `json:"routes,omitempty"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

type listWallsResponse struct {
	Walls []wallResponse `json:"walls"`
}

func toWallResponse(w *store.Wall) wallResponse {
	return wallResponse{
		ID:        w.ID,
		Name:      w.Name,
		Diagram:   w.Diagram,
		CreatedAt: formatTime(w.CreatedAt),
		UpdatedAt: formatTime(w.UpdatedAt),
	}
}

func toRouteResponse(rt *store.Route) routeResponse {
	return routeResponse{
		ID:        rt.ID,
		Name:      rt.Name,
		Holds:     rt.Holds,
		CreatedAt: formatTime(rt.CreatedAt),
	}
}

// list handles GET /api/walls.
func (h *WallHandler) list(w http.ResponseWriter, r *http.Request) {
	walls, err := h.store.Walls().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list walls")
		return
	}

	response := listWallsResponse{Walls: make([]wallResponse, 0, len(walls))}
	for _, wl := range walls {
		response.Walls = append(response.Walls, toWallResponse(wl))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/walls/{id} and returns the wall with its parsed
// holds, latest calibration and routes.
func (h *WallHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	wl, err := h.store.Walls().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Wall not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get wall")
		return
	}
	response := toWallResponse(wl)

	holds, err := wall.Load([]byte(wl.Diagram), nil)
	if err == nil {
		for _, hr := range wall.Sorted(holds) {
			response.Holds = append(response.Holds, holdResponse{
				ID: hr.ID, Type: string(hr.Type), X: hr.Reference.X, Y: hr.Reference.Y,
			})
		}
	}

	cal, err := h.store.Calibrations().Latest(id)
	switch {
	case err == nil:
		response.Calibration = &calibrationResponse{
			Matrix:               cal.Matrix,
			HandExtensionPercent: cal.HandExtensionPercent,
			CreatedAt:            formatTime(cal.CreatedAt),
		}
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}

	routes, err := h.store.Routes().ListByWall(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list routes")
		return
	}
	for _, rt := range routes {
		response.Routes = append(response.Routes, toRouteResponse(rt))
	}

	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/walls.
func (h *WallHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createWallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.Diagram == "" {
		writeError(w, http.StatusBadRequest, "Diagram is required")
		return
	}
	holds, err := wall.Load([]byte(req.Diagram), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(holds) == 0 {
		writeError(w, http.StatusBadRequest, "Diagram has no hold paths")
		return
	}

	var cal *store.Calibration
	if req.Calibration != nil {
		c, err := validateCalibration(req.Calibration)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cal = c
	}

	wl := &store.Wall{Name: req.Name, Diagram: req.Diagram}
	if err := h.store.Walls().Create(wl); err != nil {
		writeError(w, http.StatusConflict, "Failed to create wall")
		return
	}
	response := toWallResponse(wl)

	if cal != nil {
		cal.WallID = wl.ID
		if err := h.store.Calibrations().Create(cal); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to store calibration")
			return
		}
		response.Calibration = &calibrationResponse{
			Matrix:               cal.Matrix,
			HandExtensionPercent: cal.HandExtensionPercent,
			CreatedAt:            formatTime(cal.CreatedAt),
		}
	}

	writeJSON(w, http.StatusCreated, response)
}

// delete handles DELETE /api/walls/{id}.
func (h *WallHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Walls().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Wall not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete wall")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// calibrate handles POST /api/walls/{id}/calibration.
func (h *WallHandler) calibrate(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Walls().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Wall not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get wall")
		return
	}

	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	cal, err := validateCalibration(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cal.WallID = id
	if err := h.store.Calibrations().Create(cal); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store calibration")
		return
	}

	writeJSON(w, http.StatusCreated, calibrationResponse{
		Matrix:               cal.Matrix,
		HandExtensionPercent: cal.HandExtensionPercent,
		CreatedAt:            formatTime(cal.CreatedAt),
	})
}

// createRoute handles POST /api/walls/{id}/routes. Every listed hold must
// exist on the wall.
func (h *WallHandler) createRoute(w http.ResponseWriter, r *http.Request, id string) {
	wl, err := h.store.Walls().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Wall not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get wall")
		return
	}

	var req createRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	route, err := wall.ParseRoute(req.Holds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	holds, err := wall.Load([]byte(wl.Diagram), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Stored diagram is invalid")
		return
	}
	var unknown []string
	for holdID := range route {
		if _, ok := holds[holdID]; !ok {
			unknown = append(unknown, holdID)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown holds: %s", strings.Join(unknown, ", ")))
		return
	}

	normalized, err := json.Marshal(route.Holds())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode route")
		return
	}
	rt := &store.Route{WallID: id, Name: req.Name, Holds: normalized}
	if err := h.store.Routes().Create(rt); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create route")
		return
	}
	writeJSON(w, http.StatusCreated, toRouteResponse(rt))
}

// deleteRoute handles DELETE /api/walls/{id}/routes/{routeID}.
func (h *WallHandler) deleteRoute(w http.ResponseWriter, r *http.Request, wallID, routeID string) {
	rt, err := h.store.Routes().GetByID(routeID)
	if err != nil || rt.WallID != wallID {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Route not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get route")
		return
	}
	if err := h.store.Routes().Delete(routeID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete route")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateCalibration(req *calibrationRequest) (*store.Calibration, error) {
	if req.Matrix == nil {
		return nil, errors.New("perspective_transform is required")
	}
	pct := transform.DefaultHandExtensionPercent
	if req.HandExtensionPercent != nil {
		pct = *req.HandExtensionPercent
	}
	if _, err := transform.NewCalibration(*req.Matrix, pct); err != nil {
		return nil, err
	}
	return &store.Calibration{Matrix: *req.Matrix, HandExtensionPercent: pct}, nil
}
