package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Walls - the SVG diagram whose <path> elements are the holds
		`CREATE TABLE IF NOT EXISTS walls (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			diagram TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Calibrations - camera to wall homography; the newest row wins
		`CREATE TABLE IF NOT EXISTS calibrations (
			id TEXT PRIMARY KEY,
			wall_id TEXT NOT NULL REFERENCES walls(id) ON DELETE CASCADE,
			matrix TEXT NOT NULL,
			hand_extension_percent REAL NOT NULL DEFAULT 20,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Routes - the hold subset of a problem, stored as route JSON
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			wall_id TEXT NOT NULL REFERENCES walls(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			holds TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Sessions - the final record of each ended session
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			wall_id TEXT,
			route_id TEXT,
			status TEXT NOT NULL,
			start_time TEXT,
			end_time TEXT,
			record TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_calibrations_wall_id ON calibrations(wall_id)`,
		`CREATE INDEX IF NOT EXISTS idx_routes_wall_id ON routes(wall_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_wall_id ON sessions(wall_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
