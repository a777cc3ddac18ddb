package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Session is the persisted final record of an ended session.
type Session struct {
	ID        string          `json:"id"`
	WallID    string          `json:"wall_id,omitempty"`
	RouteID   string          `json:"route_id,omitempty"`
	Status    string          `json:"status"`
	StartTime string          `json:"start_time,omitempty"`
	EndTime   string          `json:"end_time,omitempty"`
	Record    json.RawMessage `json:"record"`
	CreatedAt time.Time       `json:"created_at"`
}

// SessionRepository stores finished sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Save inserts or replaces a session by id.
func (r *SessionRepository) Save(sess *Session) error {
	sess.CreatedAt = time.Now()
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, wall_id, route_id, status, start_time, end_time, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, nullable(sess.WallID), nullable(sess.RouteID), sess.Status,
		nullable(sess.StartTime), nullable(sess.EndTime), string(sess.Record), sess.CreatedAt,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, wall_id, route_id, status, start_time, end_time, record, created_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns up to limit sessions, newest first. limit <= 0 means all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, wall_id, route_id, status, start_time, end_time, record, created_at
		 FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var wallID, routeID, start, end sql.NullString
	var record string
	if err := row.Scan(&sess.ID, &wallID, &routeID, &sess.Status, &start, &end, &record, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.WallID = wallID.String
	sess.RouteID = routeID.String
	sess.StartTime = start.String
	sess.EndTime = end.String
	sess.Record = json.RawMessage(record)
	return sess, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
