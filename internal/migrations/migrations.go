package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add scenario and step indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
			CREATE INDEX IF NOT EXISTS idx_metrics_step ON run_metrics(run_id, step);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_runs_scenario;
			DROP INDEX IF EXISTS idx_metrics_step;
		`,
	},
	{
		Version: 2,
		Name:    "Add per-group index on check results",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_checks_group ON run_checks(run_id, group_name);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_checks_group;
		`,
	},
	{
		Version: 3,
		Name:    "Add request failure flag to samples",
		Up: `
			ALTER TABLE run_metrics ADD COLUMN http_failed INTEGER NOT NULL DEFAULT 0;
		`,
		Down: `
			ALTER TABLE run_metrics DROP COLUMN http_failed;
		`,
	},
}

// InitSchema creates all tables of the results database
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL UNIQUE,
		scenario TEXT NOT NULL,
		vus INTEGER NOT NULL DEFAULT 1,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		iterations INTEGER DEFAULT 0,
		iteration_errors INTEGER DEFAULT 0,
		total_requests_completed INTEGER DEFAULT 0,
		total_errors INTEGER DEFAULT 0,
		total_http_failures INTEGER DEFAULT 0,
		checks_passed INTEGER DEFAULT 0,
		checks_failed INTEGER DEFAULT 0,
		avg_duration_ms REAL DEFAULT 0,
		min_duration_ms REAL DEFAULT 0,
		max_duration_ms REAL DEFAULT 0,
		p50_duration_ms REAL DEFAULT 0,
		p95_duration_ms REAL DEFAULT 0,
		p99_duration_ms REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS run_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		vu INTEGER NOT NULL DEFAULT 0,
		step TEXT NOT NULL,
		method TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		status_code INTEGER NOT NULL,
		duration_ms REAL NOT NULL,
		request_size INTEGER DEFAULT 0,
		response_size INTEGER DEFAULT 0,
		error_message TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_run_id ON run_metrics(run_id);
	CREATE INDEX IF NOT EXISTS idx_metrics_elapsed ON run_metrics(run_id, elapsed_ms);

	CREATE TABLE IF NOT EXISTS run_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		group_name TEXT NOT NULL,
		check_name TEXT NOT NULL,
		passes INTEGER NOT NULL DEFAULT 0,
		fails INTEGER NOT NULL DEFAULT 0,
		UNIQUE (run_id, group_name, check_name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		if _, err := db.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
