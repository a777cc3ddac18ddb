package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Route is a named problem on a wall. Holds is route JSON as accepted by
// the route parser.
type Route struct {
	ID        string          `json:"id"`
	WallID    string          `json:"wall_id"`
	Name      string          `json:"name"`
	Holds     json.RawMessage `json:"holds"`
	CreatedAt time.Time       `json:"created_at"`
}

// RouteRepository provides CRUD operations for routes.
type RouteRepository struct {
	db *sql.DB
}

// Routes returns the route repository for this store.
func (s *Store) Routes() *RouteRepository {
	return &RouteRepository{db: s.db}
}

// Create inserts rt, assigning an id when it has none.
func (r *RouteRepository) Create(rt *Route) error {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	rt.CreatedAt = time.Now()

	holds := rt.Holds
	if holds == nil {
		holds = json.RawMessage("[]")
	}
	_, err := r.db.Exec(
		`INSERT INTO routes (id, wall_id, name, holds, created_at) VALUES (?, ?, ?, ?, ?)`,
		rt.ID, rt.WallID, rt.Name, string(holds), rt.CreatedAt,
	)
	return err
}

// GetByID retrieves a route by its ID.
func (r *RouteRepository) GetByID(id string) (*Route, error) {
	rt := &Route{}
	var holds string

	err := r.db.QueryRow(
		`SELECT id, wall_id, name, holds, created_at FROM routes WHERE id = ?`,
		id,
	).Scan(&rt.ID, &rt.WallID, &rt.Name, &holds, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rt.Holds = json.RawMessage(holds)
	return rt, nil
}

// ListByWall retrieves a wall's routes ordered by name.
func (r *RouteRepository) ListByWall(wallID string) ([]*Route, error) {
	rows, err := r.db.Query(
		`SELECT id, wall_id, name, holds, created_at FROM routes
		 WHERE wall_id = ? ORDER BY name`,
		wallID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		rt := &Route{}
		var holds string
		if err := rows.Scan(&rt.ID, &rt.WallID, &rt.Name, &holds, &rt.CreatedAt); err != nil {
			return nil, err
		}
		rt.Holds = json.RawMessage(holds)
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return routes, nil
}

// Delete removes a route.
func (r *RouteRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result)
}
