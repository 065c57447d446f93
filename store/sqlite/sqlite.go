/*
Package sqlite provides a SQLite-backed implementation of the engine's
collaborator sources and run store.

PURPOSE:
  Implements every persistence interface of the payroll engine using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  engine.EmployeeSource:      Keyset-paged eligible employees
  engine.ActivityRangeSource: Daily and ranged activity reads
  engine.ProfileSource:       Employee payroll profiles
  engine.CompanySource:       Subsidiary work week and rates
  engine.ConceptSource:       Concepts configured per run
  engine.HolidayCalendar:     Subsidiary and global holidays
  engine.RunTxStore:          Pay runs, details, failures (transactional)

KEY TABLES:
  subsidiaries:  Work week and company-wide rates
  employees:     Payroll profile, soft-deleted via deleted_at
  activities:    Raw attendance and piecework records
  holidays:      Subsidiary-specific ('' = global), optionally recurring
  pay_runs:      Run aggregate, progress and summary as JSON
  run_concepts:  Concept configuration per run
  pay_details:   One row per (run, employee), detail as canonical JSON
  run_failures:  Employees that produced no detail, with reason

SOFT DELETE:
  Soft-deleted employees are filtered here (deleted_at IS NULL). The engine
  never sees them.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection: SQLite
  serializes writers anyway, and ":memory:" databases exist per connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better crash recovery.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Subsidiaries (company settings)
	CREATE TABLE IF NOT EXISTS subsidiaries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		non_working_days_json TEXT NOT NULL,
		normal_daily_hours TEXT NOT NULL,
		overtime_tier1_hours TEXT NOT NULL,
		overtime_rate TEXT NOT NULL,
		productivity_threshold TEXT NOT NULL,
		rates_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Employees (payroll profile)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		subsidiary_id TEXT NOT NULL REFERENCES subsidiaries(id),
		name TEXT NOT NULL,
		position TEXT,
		salary TEXT NOT NULL,
		retirement_plan TEXT,
		health_plan TEXT,
		insurance_plan TEXT,
		family_allowance INTEGER NOT NULL DEFAULT 0,
		deleted_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_subsidiary_active
		ON employees(subsidiary_id, id) WHERE deleted_at IS NULL;

	-- Activities (raw attendance / piecework)
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		productivity TEXT NOT NULL,
		qualifying INTEGER NOT NULL DEFAULT 1,
		piece_minimum TEXT,
		piece_unit_price TEXT,
		piece_produced TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: per-employee period reads and eligibility checks
	CREATE INDEX IF NOT EXISTS idx_activities_employee_date
		ON activities(employee_id, date);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		subsidiary_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(subsidiary_id, date, name)
	);

	-- Pay runs
	CREATE TABLE IF NOT EXISTS pay_runs (
		id TEXT PRIMARY KEY,
		subsidiary_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		state TEXT NOT NULL,
		halted INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		total_employees INTEGER NOT NULL DEFAULT 0,
		progress_json TEXT NOT NULL,
		summary_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		started_at TEXT,
		calculated_at TEXT,
		approved_at TEXT,
		approved_by TEXT,
		paid_at TEXT,
		cancelled_at TEXT,
		cancel_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pay_runs_subsidiary_state
		ON pay_runs(subsidiary_id, state);

	-- At most one active run per subsidiary and exact period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pay_runs_active_period
		ON pay_runs(subsidiary_id, period_start, period_end)
		WHERE state IN ('draft', 'in_progress', 'calculated', 'approved');

	-- Concepts configured per run
	CREATE TABLE IF NOT EXISTS run_concepts (
		run_id TEXT NOT NULL REFERENCES pay_runs(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		value_kind TEXT NOT NULL,
		value TEXT NOT NULL,
		priority INTEGER NOT NULL,
		config_json TEXT,
		PRIMARY KEY (run_id, code)
	);

	-- Pay details: one per (run, employee)
	CREATE TABLE IF NOT EXISTS pay_details (
		run_id TEXT NOT NULL REFERENCES pay_runs(id) ON DELETE CASCADE,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		net_to_pay TEXT NOT NULL,
		detail_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (run_id, employee_id)
	);

	-- Per-employee failures
	CREATE TABLE IF NOT EXISTS run_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES pay_runs(id) ON DELETE CASCADE,
		employee_id TEXT NOT NULL,
		concept_code TEXT,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_run_failures_run
		ON run_failures(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data (for demo/testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"run_failures", "pay_details", "run_concepts", "pay_runs", "holidays", "activities", "employees", "subsidiaries"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (engine.RunTxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.RunWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engine.Transient("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateRun(ctx context.Context, run engine.PayRun) error {
	return createRun(ctx, ts.tx, run)
}

func (ts *txStore) DeleteRun(ctx context.Context, id engine.RunID) error {
	return deleteRun(ctx, ts.tx, id)
}

func (ts *txStore) ListRuns(ctx context.Context, filter engine.RunFilter) ([]engine.PayRun, error) {
	return listRuns(ctx, ts.tx, filter)
}

func (ts *txStore) SaveRunConcepts(ctx context.Context, id engine.RunID, concepts []engine.ConceptDefinition) error {
	return saveRunConcepts(ctx, ts.tx, id, concepts)
}

func (ts *txStore) GetRun(ctx context.Context, id engine.RunID) (engine.PayRun, error) {
	return getRun(ctx, ts.tx, id)
}

func (ts *txStore) SaveRun(ctx context.Context, run engine.PayRun) error {
	return saveRun(ctx, ts.tx, run)
}

func (ts *txStore) EmployeeExists(ctx context.Context, employee engine.EmployeeID) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE id = ? AND deleted_at IS NULL", employee,
	).Scan(&count)
	return count > 0, err
}

func (ts *txStore) InsertDetail(ctx context.Context, detail engine.PayDetail) error {
	return insertDetail(ctx, ts.tx, detail)
}

func (ts *txStore) InsertFailure(ctx context.Context, run engine.RunID, failure engine.EmployeeFailure) error {
	return insertFailure(ctx, ts.tx, run, failure)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// corrupt marks a row that could not be scanned, e.g. an amount column that
// does not parse as a decimal.
func corrupt(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", engine.ErrDataIntegrity, err)
}

func parseDate(s string) engine.Date {
	d, _ := engine.ParseDate(s)
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
