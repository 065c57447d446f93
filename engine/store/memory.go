// Package store provides in-memory implementations of the engine's sources
// and run store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type employeeRow struct {
	profile engine.EmployeeProfile
	deleted bool
}

type Memory struct {
	mu          sync.RWMutex
	companies   map[engine.SubsidiaryID]engine.CompanySettings
	employees   map[engine.EmployeeID]employeeRow
	activities  map[engine.EmployeeID][]engine.ActivityRecord
	holidays    []engine.Holiday
	runs        map[engine.RunID]engine.PayRun
	runConcepts map[engine.RunID][]engine.ConceptDefinition
	details     map[engine.RunID]map[engine.EmployeeID]engine.PayDetail
	failures    map[engine.RunID][]engine.EmployeeFailure
}

func NewMemory() *Memory {
	return &Memory{
		companies:   make(map[engine.SubsidiaryID]engine.CompanySettings),
		employees:   make(map[engine.EmployeeID]employeeRow),
		activities:  make(map[engine.EmployeeID][]engine.ActivityRecord),
		runs:        make(map[engine.RunID]engine.PayRun),
		runConcepts: make(map[engine.RunID][]engine.ConceptDefinition),
		details:     make(map[engine.RunID]map[engine.EmployeeID]engine.PayDetail),
		failures:    make(map[engine.RunID][]engine.EmployeeFailure),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) PutCompany(settings engine.CompanySettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[settings.SubsidiaryID] = settings
}

func (m *Memory) PutEmployee(profile engine.EmployeeProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[profile.EmployeeID] = employeeRow{profile: profile}
}

// SoftDeleteEmployee hides an employee from every source.
func (m *Memory) SoftDeleteEmployee(id engine.EmployeeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.employees[id]; ok {
		row.deleted = true
		m.employees[id] = row
	}
}

func (m *Memory) AddActivity(records ...engine.ActivityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.activities[r.EmployeeID] = append(m.activities[r.EmployeeID], r)
	}
}

func (m *Memory) AddHoliday(h engine.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

// =============================================================================
// COLLABORATOR SOURCES
// =============================================================================

func (m *Memory) ResolveEmployeesInPeriod(_ context.Context, subsidiary engine.SubsidiaryID, period engine.Period, after engine.EmployeeID, limit int) ([]engine.EmployeeID, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.companies[subsidiary]; !ok {
		return nil, engine.ErrSubsidiaryNotFound
	}

	var ids []engine.EmployeeID
	for id, row := range m.employees {
		if row.deleted || row.profile.SubsidiaryID != subsidiary || id <= after {
			continue
		}
		if m.hasQualifyingLocked(id, period) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *Memory) hasQualifyingLocked(id engine.EmployeeID, period engine.Period) bool {
	for _, r := range m.activities[id] {
		if r.Qualifying && period.Contains(r.Date) {
			return true
		}
	}
	return false
}

func (m *Memory) LoadDailyActivity(_ context.Context, employee engine.EmployeeID, date engine.Date) ([]engine.ActivityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.ActivityRecord
	for _, r := range m.activities[employee] {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) LoadActivityRange(_ context.Context, employee engine.EmployeeID, period engine.Period) ([]engine.ActivityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.ActivityRecord
	for _, r := range m.activities[employee] {
		if period.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) LoadEmployeeProfile(_ context.Context, employee engine.EmployeeID) (engine.EmployeeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.employees[employee]
	if !ok || row.deleted {
		return engine.EmployeeProfile{}, engine.ErrEmployeeNotFound
	}
	return row.profile, nil
}

func (m *Memory) LoadCompanySettings(_ context.Context, subsidiary engine.SubsidiaryID) (engine.CompanySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	settings, ok := m.companies[subsidiary]
	if !ok {
		return engine.CompanySettings{}, engine.ErrSubsidiaryNotFound
	}
	return settings, nil
}

func (m *Memory) LoadConfiguredConcepts(_ context.Context, run engine.RunID) ([]engine.ConceptDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.runs[run]; !ok {
		return nil, engine.ErrRunNotFound
	}
	return append([]engine.ConceptDefinition(nil), m.runConcepts[run]...), nil
}

func (m *Memory) IsHoliday(_ context.Context, subsidiary engine.SubsidiaryID, date engine.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.holidays {
		if h.Matches(subsidiary, date) {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

func (m *Memory) CreateRun(_ context.Context, run engine.PayRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRunLocked(run)
}

func (m *Memory) createRunLocked(run engine.PayRun) error {
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id engine.RunID) (engine.PayRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRunLocked(id)
}

func (m *Memory) getRunLocked(id engine.RunID) (engine.PayRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return engine.PayRun{}, engine.ErrRunNotFound
	}
	return run, nil
}

func (m *Memory) SaveRun(_ context.Context, run engine.PayRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRunLocked(run)
}

func (m *Memory) saveRunLocked(run engine.PayRun) error {
	if _, ok := m.runs[run.ID]; !ok {
		return engine.ErrRunNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) DeleteRun(_ context.Context, id engine.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRunLocked(id)
}

func (m *Memory) deleteRunLocked(id engine.RunID) error {
	if _, ok := m.runs[id]; !ok {
		return engine.ErrRunNotFound
	}
	delete(m.runs, id)
	delete(m.runConcepts, id)
	delete(m.details, id)
	delete(m.failures, id)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, filter engine.RunFilter) ([]engine.PayRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRunsLocked(filter), nil
}

func (m *Memory) listRunsLocked(filter engine.RunFilter) []engine.PayRun {
	var out []engine.PayRun
	for _, run := range m.runs {
		if filter.SubsidiaryID != "" && run.SubsidiaryID != filter.SubsidiaryID {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, run.State) {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func containsState(states []engine.RunState, s engine.RunState) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

func (m *Memory) SaveRunConcepts(_ context.Context, id engine.RunID, concepts []engine.ConceptDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRunConceptsLocked(id, concepts)
}

func (m *Memory) saveRunConceptsLocked(id engine.RunID, concepts []engine.ConceptDefinition) error {
	if _, ok := m.runs[id]; !ok {
		return engine.ErrRunNotFound
	}
	m.runConcepts[id] = append([]engine.ConceptDefinition(nil), concepts...)
	return nil
}

func (m *Memory) GetDetail(_ context.Context, id engine.RunID, employee engine.EmployeeID) (engine.PayDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.details[id][employee]
	if !ok {
		return engine.PayDetail{}, engine.ErrDetailNotFound
	}
	return d, nil
}

func (m *Memory) ListDetails(_ context.Context, id engine.RunID) ([]engine.PayDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.PayDetail, 0, len(m.details[id]))
	for _, d := range m.details[id] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (m *Memory) ListFailures(_ context.Context, id engine.RunID) ([]engine.EmployeeFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.EmployeeFailure(nil), m.failures[id]...), nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(engine.RunWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	runs        map[engine.RunID]engine.PayRun
	runConcepts map[engine.RunID][]engine.ConceptDefinition
	details     map[engine.RunID]map[engine.EmployeeID]engine.PayDetail
	failures    map[engine.RunID][]engine.EmployeeFailure
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		runs:     make(map[engine.RunID]engine.PayRun, len(m.runs)),
		details:  make(map[engine.RunID]map[engine.EmployeeID]engine.PayDetail, len(m.details)),
		failures: make(map[engine.RunID][]engine.EmployeeFailure, len(m.failures)),
	}
	for k, v := range m.runs {
		s.runs[k] = v
	}
	s.runConcepts = make(map[engine.RunID][]engine.ConceptDefinition, len(m.runConcepts))
	for k, v := range m.runConcepts {
		s.runConcepts[k] = v
	}
	for k, v := range m.details {
		inner := make(map[engine.EmployeeID]engine.PayDetail, len(v))
		for e, d := range v {
			inner[e] = d
		}
		s.details[k] = inner
	}
	for k, v := range m.failures {
		s.failures[k] = append([]engine.EmployeeFailure(nil), v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.runs = s.runs
	m.runConcepts = s.runConcepts
	m.details = s.details
	m.failures = s.failures
}

type txView struct {
	parent *Memory
}

func (tv *txView) CreateRun(_ context.Context, run engine.PayRun) error {
	return tv.parent.createRunLocked(run)
}

func (tv *txView) DeleteRun(_ context.Context, id engine.RunID) error {
	return tv.parent.deleteRunLocked(id)
}

func (tv *txView) ListRuns(_ context.Context, filter engine.RunFilter) ([]engine.PayRun, error) {
	return tv.parent.listRunsLocked(filter), nil
}

func (tv *txView) SaveRunConcepts(_ context.Context, id engine.RunID, concepts []engine.ConceptDefinition) error {
	return tv.parent.saveRunConceptsLocked(id, concepts)
}

func (tv *txView) GetRun(_ context.Context, id engine.RunID) (engine.PayRun, error) {
	return tv.parent.getRunLocked(id)
}

func (tv *txView) SaveRun(_ context.Context, run engine.PayRun) error {
	return tv.parent.saveRunLocked(run)
}

func (tv *txView) EmployeeExists(_ context.Context, employee engine.EmployeeID) (bool, error) {
	row, ok := tv.parent.employees[employee]
	return ok && !row.deleted, nil
}

func (tv *txView) InsertDetail(_ context.Context, detail engine.PayDetail) error {
	if _, ok := tv.parent.runs[detail.RunID]; !ok {
		return &engine.DataIntegrityError{RunID: detail.RunID, Err: engine.ErrRunNotFound}
	}
	byEmployee := tv.parent.details[detail.RunID]
	if byEmployee == nil {
		byEmployee = make(map[engine.EmployeeID]engine.PayDetail)
		tv.parent.details[detail.RunID] = byEmployee
	}
	if _, dup := byEmployee[detail.EmployeeID]; dup {
		return &engine.DataIntegrityError{RunID: detail.RunID, EmployeeID: detail.EmployeeID, Err: fmt.Errorf("detail already persisted")}
	}
	byEmployee[detail.EmployeeID] = detail
	return nil
}

func (tv *txView) InsertFailure(_ context.Context, run engine.RunID, failure engine.EmployeeFailure) error {
	if _, ok := tv.parent.runs[run]; !ok {
		return &engine.DataIntegrityError{RunID: run, Err: engine.ErrRunNotFound}
	}
	tv.parent.failures[run] = append(tv.parent.failures[run], failure)
	return nil
}
