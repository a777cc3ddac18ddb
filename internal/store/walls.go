package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Wall is a registered climbing wall.
type Wall struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Diagram   string    `json:"diagram"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WallRepository provides CRUD operations for walls.
type WallRepository struct {
	db *sql.DB
}

// Walls returns the wall repository for this store.
func (s *Store) Walls() *WallRepository {
	return &WallRepository{db: s.db}
}

// Create inserts w, assigning an id when it has none.
func (r *WallRepository) Create(w *Wall) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO walls (id, name, diagram, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Diagram, w.CreatedAt, w.UpdatedAt,
	)
	return err
}

// GetByID retrieves a wall by its ID.
func (r *WallRepository) GetByID(id string) (*Wall, error) {
	return r.get(`SELECT id, name, diagram, created_at, updated_at FROM walls WHERE id = ?`, id)
}

// GetByName retrieves a wall by its name.
func (r *WallRepository) GetByName(name string) (*Wall, error) {
	return r.get(`SELECT id, name, diagram, created_at, updated_at FROM walls WHERE name = ?`, name)
}

func (r *WallRepository) get(query, arg string) (*Wall, error) {
	w := &Wall{}
	err := r.db.QueryRow(query, arg).Scan(&w.ID, &w.Name, &w.Diagram, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

// List retrieves all walls, newest first. Diagrams are not loaded.
func (r *WallRepository) List() ([]*Wall, error) {
	rows, err := r.db.Query(
		`SELECT id, name, created_at, updated_at FROM walls ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var walls []*Wall
	for rows.Next() {
		w := &Wall{}
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		walls = append(walls, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return walls, nil
}

// UpdateDiagram replaces a wall's diagram.
func (r *WallRepository) UpdateDiagram(id, diagram string) error {
	result, err := r.db.Exec(
		`UPDATE walls SET diagram = ?, updated_at = ? WHERE id = ?`,
		diagram, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return affected(result)
}

// Delete removes a wall along with its calibrations and routes.
func (r *WallRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM walls WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result)
}
