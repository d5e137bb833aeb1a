package stresstest

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/migrations"
)

// MemoryDB keeps results for the lifetime of the process only
const MemoryDB = ":memory:"

// Manager handles run result persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens the results database at dbPath. MemoryDB keeps
// everything in process; a file path leaves the results behind for
// later inspection.
func NewManager(dbPath string) (*Manager, error) {
	if dbPath == "" {
		dbPath = MemoryDB
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// CreateRun creates a new run record
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO runs (run_uuid, scenario, vus, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, run.RunID, run.Scenario, run.VUs, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun updates a run record
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE runs
		SET completed_at = ?, status = ?, iterations = ?, iteration_errors = ?,
		    total_requests_completed = ?, total_errors = ?, total_http_failures = ?,
		    checks_passed = ?, checks_failed = ?,
		    avg_duration_ms = ?, min_duration_ms = ?, max_duration_ms = ?,
		    p50_duration_ms = ?, p95_duration_ms = ?, p99_duration_ms = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.Iterations, run.IterationErrors,
		run.TotalRequestsCompleted, run.TotalErrors, run.TotalHTTPFailures,
		run.ChecksPassed, run.ChecksFailed,
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs,
		run.P50DurationMs, run.P95DurationMs, run.P99DurationMs, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

const runColumns = `
	id, run_uuid, scenario, vus, started_at, completed_at, status,
	iterations, iteration_errors, total_requests_completed, total_errors, total_http_failures,
	checks_passed, checks_failed,
	COALESCE(avg_duration_ms, 0), COALESCE(min_duration_ms, 0), COALESCE(max_duration_ms, 0),
	COALESCE(p50_duration_ms, 0), COALESCE(p95_duration_ms, 0), COALESCE(p99_duration_ms, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.RunID, &run.Scenario, &run.VUs, &run.StartedAt, &completedAt, &run.Status,
		&run.Iterations, &run.IterationErrors, &run.TotalRequestsCompleted, &run.TotalErrors, &run.TotalHTTPFailures,
		&run.ChecksPassed, &run.ChecksFailed,
		&run.AvgDurationMs, &run.MinDurationMs, &run.MaxDurationMs,
		&run.P50DurationMs, &run.P95DurationMs, &run.P99DurationMs)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	return scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

// ListRuns returns runs of scenario, newest first. An empty scenario lists all.
func (m *Manager) ListRuns(scenario string, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE scenario = ? OR ? = '' ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query, scenario, scenario)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run with its metrics and checks
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM run_metrics WHERE run_id = ?",
		"DELETE FROM run_checks WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete run %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// SaveMetricsBatch saves multiple metrics in a single transaction
func (m *Manager) SaveMetricsBatch(metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_metrics
		(run_id, vu, step, method, timestamp, elapsed_ms, status_code, duration_ms, request_size, response_size, error_message, http_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, metric := range metrics {
		_, err := stmt.Exec(metric.RunID, metric.VU, metric.Step, metric.Method, metric.Timestamp, metric.ElapsedMs,
			metric.StatusCode, metric.DurationMs, metric.RequestSize, metric.ResponseSize, metric.ErrorMessage, metric.HTTPFailed)
		if err != nil {
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	return tx.Commit()
}

// GetMetrics retrieves all metrics for a run
func (m *Manager) GetMetrics(runID int64) ([]*Metric, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, vu, step, method, timestamp, elapsed_ms, status_code, duration_ms,
		       request_size, response_size, error_message, http_failed
		FROM run_metrics
		WHERE run_id = ?
		ORDER BY elapsed_ms, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		metric := &Metric{}
		var errorMsg sql.NullString

		err := rows.Scan(&metric.ID, &metric.RunID, &metric.VU, &metric.Step, &metric.Method, &metric.Timestamp,
			&metric.ElapsedMs, &metric.StatusCode, &metric.DurationMs, &metric.RequestSize, &metric.ResponseSize,
			&errorMsg, &metric.HTTPFailed)
		if err != nil {
			return nil, err
		}

		if errorMsg.Valid {
			metric.ErrorMessage = errorMsg.String
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

// SaveChecks writes the final check tallies of a run
func (m *Manager) SaveChecks(records []CheckRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_checks (run_id, group_name, check_name, passes, fails)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, group_name, check_name)
		DO UPDATE SET passes = excluded.passes, fails = excluded.fails
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.RunID, r.Group, r.Name, r.Passes, r.Fails); err != nil {
			return fmt.Errorf("failed to insert check: %w", err)
		}
	}
	return tx.Commit()
}

// GetChecks retrieves the check tallies of a run in insertion order
func (m *Manager) GetChecks(runID int64) ([]CheckRecord, error) {
	rows, err := m.db.Query(`
		SELECT run_id, group_name, check_name, passes, fails
		FROM run_checks
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CheckRecord
	for rows.Next() {
		var r CheckRecord
		if err := rows.Scan(&r.RunID, &r.Group, &r.Name, &r.Passes, &r.Fails); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadSummary rebuilds the summary of a stored run from its samples and
// check tallies. Threshold results are not stored and stay empty.
func (m *Manager) LoadSummary(id int64) (*Summary, error) {
	run, err := m.GetRun(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %d not found", id)
		}
		return nil, err
	}

	records, err := m.GetChecks(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load checks: %w", err)
	}
	samples, err := m.GetMetrics(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	summary := &Summary{Run: run, Total: NewStats()}
	if run.IsCompleted() && run.CompletedAt != nil {
		summary.Elapsed = run.CompletedAt.Sub(run.StartedAt)
	}

	steps := make(map[string]*Stats)
	for _, s := range samples {
		d := time.Duration(s.DurationMs * float64(time.Millisecond))
		isNetworkError := s.ErrorMessage != "" || s.StatusCode == 0

		summary.Total.AddResult(d, isNetworkError, s.HTTPFailed)
		step, ok := steps[s.Step]
		if !ok {
			step = NewStats()
			steps[s.Step] = step
			summary.Steps = append(summary.Steps, StepStats{Step: s.Step, Stats: step})
		}
		step.AddResult(d, isNetworkError, s.HTTPFailed)
	}

	for _, r := range records {
		summary.Checks = append(summary.Checks, check.Counts{Group: r.Group, Name: r.Name, Passes: r.Passes, Fails: r.Fails})
	}
	return summary, nil
}
