package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Calibration is a stored camera-to-wall transform for one wall.
type Calibration struct {
	ID                   string        `json:"id"`
	WallID               string        `json:"wall_id"`
	Matrix               [3][3]float64 `json:"perspective_transform"`
	HandExtensionPercent float64       `json:"hand_extension_percent"`
	CreatedAt            time.Time     `json:"created_at"`
}

// CalibrationRepository stores calibrations.
type CalibrationRepository struct {
	db *sql.DB
}

// Calibrations returns the calibration repository for this store.
func (s *Store) Calibrations() *CalibrationRepository {
	return &CalibrationRepository{db: s.db}
}

// Create inserts c. Older calibrations for the wall are kept as history.
func (r *CalibrationRepository) Create(c *Calibration) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()

	matrix, err := json.Marshal(c.Matrix)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`INSERT INTO calibrations (id, wall_id, matrix, hand_extension_percent, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.WallID, string(matrix), c.HandExtensionPercent, c.CreatedAt,
	)
	return err
}

// Latest returns the newest calibration for a wall.
func (r *CalibrationRepository) Latest(wallID string) (*Calibration, error) {
	c := &Calibration{}
	var matrix string

	err := r.db.QueryRow(
		`SELECT id, wall_id, matrix, hand_extension_percent, created_at
		 FROM calibrations WHERE wall_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		wallID,
	).Scan(&c.ID, &c.WallID, &matrix, &c.HandExtensionPercent, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(matrix), &c.Matrix); err != nil {
		return nil, fmt.Errorf("calibration %s: bad matrix: %w", c.ID, err)
	}
	return c, nil
}
