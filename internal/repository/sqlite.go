package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS test_runs (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			scenario TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_progress',
			owner TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_test_runs_owner ON test_runs(owner, created_at)`,
		`CREATE TABLE IF NOT EXISTS test_plans (
			test_run_id TEXT PRIMARY KEY,
			generated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (test_run_id) REFERENCES test_runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS test_cases (
			test_run_id TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			description TEXT NOT NULL,
			steps TEXT,
			expected_result TEXT NOT NULL DEFAULT '',
			actual_result TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			notes TEXT,
			executed_at DATETIME,
			PRIMARY KEY (test_run_id, id),
			FOREIGN KEY (test_run_id) REFERENCES test_runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS test_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_run_id TEXT NOT NULL,
			log_text TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (test_run_id) REFERENCES test_runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_test_logs_run ON test_logs(test_run_id, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if run.Status == "" {
		run.Status = domain.RunStatusInProgress
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_runs (id, url, scenario, status, owner, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.URL, run.Scenario, run.Status, run.Owner, run.CreatedAt.UTC())
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, scenario, status, owner, created_at FROM test_runs WHERE id = ?`,
		runID).Scan(&run.ID, &run.URL, &run.Scenario, &run.Status, &run.Owner, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}

// ListRuns lists runs newest first. An empty owner lists runs of every owner.
func (s *SQLiteStore) ListRuns(ctx context.Context, owner string, skip, limit int) ([]domain.Run, error) {
	query := `SELECT id, url, scenario, status, owner, created_at FROM test_runs`
	var args []interface{}
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, skip)
	} else if skip > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		var run domain.Run
		if err := rows.Scan(&run.ID, &run.URL, &run.Scenario, &run.Status, &run.Owner, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.CreatedAt = run.CreatedAt.UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus updates the status of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_runs SET status = ? WHERE id = ?`,
		status, runID)
	if err != nil {
		return err
	}
	return expectRow(res, "test run", runID)
}

// SaveTestPlan stores the plan and creates its test cases in order.
func (s *SQLiteStore) SaveTestPlan(ctx context.Context, plan *domain.TestPlan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO test_plans (test_run_id, generated_at) VALUES (?, ?)`,
		plan.TestRunID, plan.GeneratedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	for i := range plan.TestCases {
		if err := createTestCase(ctx, tx, plan.TestRunID, i, &plan.TestCases[i]); err != nil {
			return fmt.Errorf("failed to insert test case %s: %w", plan.TestCases[i].ID, err)
		}
	}
	return tx.Commit()
}

// GetTestPlan retrieves the plan of a run together with its test cases.
func (s *SQLiteStore) GetTestPlan(ctx context.Context, runID string) (*domain.TestPlan, error) {
	plan := domain.TestPlan{TestRunID: runID}
	err := s.db.QueryRowContext(ctx,
		`SELECT generated_at FROM test_plans WHERE test_run_id = ?`,
		runID).Scan(&plan.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	plan.GeneratedAt = plan.GeneratedAt.UTC()

	plan.TestCases, err = s.GetTestCases(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// CreateTestCase creates a test case at the given position of a run's plan.
func (s *SQLiteStore) CreateTestCase(ctx context.Context, runID string, position int, tc *domain.TestCase) error {
	return createTestCase(ctx, s.db, runID, position, tc)
}

func createTestCase(ctx context.Context, db execer, runID string, position int, tc *domain.TestCase) error {
	if tc.Status == "" {
		tc.Status = domain.TestCaseStatusPending
	}
	steps, err := json.Marshal(tc.Steps)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO test_cases (test_run_id, id, position, description, steps, expected_result, actual_result, status, notes, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, tc.ID, position, tc.Description, string(steps), tc.ExpectedResult,
		nullString(tc.ActualResult), tc.Status, nullString(tc.Notes), nullTime(tc))
	return err
}

// GetTestCases retrieves the test cases of a run in plan order.
func (s *SQLiteStore) GetTestCases(ctx context.Context, runID string) ([]domain.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, steps, expected_result, actual_result, status, notes, executed_at
		 FROM test_cases WHERE test_run_id = ? ORDER BY position ASC`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cases := []domain.TestCase{}
	for rows.Next() {
		var tc domain.TestCase
		var steps, actual, notes sql.NullString
		var executedAt sql.NullTime
		if err := rows.Scan(&tc.ID, &tc.Description, &steps, &tc.ExpectedResult, &actual, &tc.Status, &notes, &executedAt); err != nil {
			return nil, err
		}
		if steps.Valid && steps.String != "" {
			if err := json.Unmarshal([]byte(steps.String), &tc.Steps); err != nil {
				return nil, fmt.Errorf("invalid steps of test case %s: %w", tc.ID, err)
			}
		}
		if tc.Steps == nil {
			tc.Steps = []string{}
		}
		if actual.Valid {
			tc.ActualResult = &actual.String
		}
		if notes.Valid {
			tc.Notes = &notes.String
		}
		if executedAt.Valid {
			t := executedAt.Time.UTC()
			tc.ExecutedAt = &t
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

// UpdateTestCaseResult stores the status, actual result, notes and execution
// time of a test case.
func (s *SQLiteStore) UpdateTestCaseResult(ctx context.Context, runID string, tc *domain.TestCase) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_cases SET status = ?, actual_result = ?, notes = ?, executed_at = ? WHERE test_run_id = ? AND id = ?`,
		tc.Status, nullString(tc.ActualResult), nullString(tc.Notes), nullTime(tc), runID, tc.ID)
	if err != nil {
		return err
	}
	return expectRow(res, "test case", tc.ID)
}

// CreateTestLog appends a log entry and sets its ID.
func (s *SQLiteStore) CreateTestLog(ctx context.Context, entry *domain.LogEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO test_logs (test_run_id, log_text, timestamp) VALUES (?, ?, ?)`,
		entry.TestRunID, entry.Text, entry.Timestamp.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

// GetTestLogs retrieves the log of a run in insertion order.
func (s *SQLiteStore) GetTestLogs(ctx context.Context, runID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_run_id, log_text, timestamp FROM test_logs WHERE test_run_id = ? ORDER BY id ASC`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []domain.LogEntry{}
	for rows.Next() {
		var entry domain.LogEntry
		if err := rows.Scan(&entry.ID, &entry.TestRunID, &entry.Text, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func expectRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", what, id)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(tc *domain.TestCase) sql.NullTime {
	if tc.ExecutedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: tc.ExecutedAt.UTC(), Valid: true}
}
