/*
store.go - Collaborator and persistence interfaces

PURPOSE:
  Defines the boundary between the engine and everything it reads from or
  writes to. Employee directories, attendance capture, calendars and concept
  configuration are owned elsewhere; the engine consumes them read-only.
  Pay runs and pay details are written only through RunTxStore.

KEY INTERFACES:
  EmployeeSource:  Keyset-paged employees with qualifying activity
  ActivitySource:  Raw daily activity records (optionally range-loaded)
  ProfileSource:   Salary, plan identifiers, position
  CompanySource:   Subsidiary work week and company-wide rates
  ConceptSource:   Concepts configured for a run
  RunStore:        Pay run aggregate reads/writes
  RunTxStore:      Transactional batch writes (one transaction per chunk)

ACTIVE DATA ONLY:
  Implementations return active data. Soft-deleted employees never appear in
  EmployeeSource results; the engine does no deleted-at filtering of its own.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - engine/store/memory.go: In-memory for testing

SEE ALSO:
  - selector.go: Pages through EmployeeSource
  - persister.go: Uses RunTxStore
*/
package engine

import "context"

// =============================================================================
// COLLABORATOR SOURCES (read-only)
// =============================================================================

// EmployeeSource resolves employees with at least one qualifying activity in
// the period. Results are ordered by EmployeeID and start strictly after
// the given key; limit bounds the page size.
type EmployeeSource interface {
	ResolveEmployeesInPeriod(ctx context.Context, subsidiary SubsidiaryID, period Period, after EmployeeID, limit int) ([]EmployeeID, error)
}

// ActivitySource returns the activity records of one employee on one date.
type ActivitySource interface {
	LoadDailyActivity(ctx context.Context, employee EmployeeID, date Date) ([]ActivityRecord, error)
}

// ActivityRangeSource extends ActivitySource with a single query for a whole
// period. The aggregator uses it when available.
type ActivityRangeSource interface {
	ActivitySource
	LoadActivityRange(ctx context.Context, employee EmployeeID, period Period) ([]ActivityRecord, error)
}

type ProfileSource interface {
	LoadEmployeeProfile(ctx context.Context, employee EmployeeID) (EmployeeProfile, error)
}

// CompanySource returns ErrSubsidiaryNotFound for unknown subsidiaries.
type CompanySource interface {
	LoadCompanySettings(ctx context.Context, subsidiary SubsidiaryID) (CompanySettings, error)
}

// ConceptSource returns the concepts configured for a run.
type ConceptSource interface {
	LoadConfiguredConcepts(ctx context.Context, run RunID) ([]ConceptDefinition, error)
}

// CalendarSource classifies a date for a subsidiary.
type CalendarSource interface {
	ClassifyDate(ctx context.Context, subsidiary SubsidiaryID, date Date) (WorkCalendarDayInfo, error)
}

// =============================================================================
// RUN PERSISTENCE
// =============================================================================

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	SubsidiaryID SubsidiaryID
	States       []RunState
}

// RunStore reads and writes the pay run aggregate outside of batch writes.
type RunStore interface {
	CreateRun(ctx context.Context, run PayRun) error
	GetRun(ctx context.Context, id RunID) (PayRun, error)
	SaveRun(ctx context.Context, run PayRun) error
	DeleteRun(ctx context.Context, id RunID) error
	ListRuns(ctx context.Context, filter RunFilter) ([]PayRun, error)

	// SaveRunConcepts replaces the concepts configured for a run.
	SaveRunConcepts(ctx context.Context, id RunID, concepts []ConceptDefinition) error

	GetDetail(ctx context.Context, id RunID, employee EmployeeID) (PayDetail, error)
	ListDetails(ctx context.Context, id RunID) ([]PayDetail, error)
	ListFailures(ctx context.Context, id RunID) ([]EmployeeFailure, error)
}

// RunWriter is the view a transaction sees. Lifecycle checks and the writes
// they guard go through the same RunWriter.
type RunWriter interface {
	CreateRun(ctx context.Context, run PayRun) error
	GetRun(ctx context.Context, id RunID) (PayRun, error)
	SaveRun(ctx context.Context, run PayRun) error
	DeleteRun(ctx context.Context, id RunID) error
	ListRuns(ctx context.Context, filter RunFilter) ([]PayRun, error)
	SaveRunConcepts(ctx context.Context, id RunID, concepts []ConceptDefinition) error
	EmployeeExists(ctx context.Context, employee EmployeeID) (bool, error)
	InsertDetail(ctx context.Context, detail PayDetail) error
	InsertFailure(ctx context.Context, run RunID, failure EmployeeFailure) error
}

// RunTxStore wraps RunStore with transaction support.
type RunTxStore interface {
	RunStore

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(RunWriter) error) error
}
