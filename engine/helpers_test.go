package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/concepts"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// March 2026 starts on a Sunday and has 22 weekdays.
var march2026 = engine.MonthPeriod(2026, time.March)

const testSubsidiary = engine.SubsidiaryID("sub-1")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func weekdays(p engine.Period) []engine.Date {
	var out []engine.Date
	for _, d := range p.Days() {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

func employeeID(i int) engine.EmployeeID {
	return engine.EmployeeID(fmt.Sprintf("emp-%02d", i))
}

// seedCompany stores a Monday-Friday subsidiary with simple rates.
func seedCompany(mem *store.Memory) engine.CompanySettings {
	settings := engine.CompanySettings{
		SubsidiaryID:          testSubsidiary,
		Name:                  "Test Co",
		NonWorkingDays:        []time.Weekday{time.Saturday, time.Sunday},
		NormalDailyHours:      decimal.NewFromInt(8),
		OvertimeTier1Hours:    decimal.NewFromInt(2),
		ProductivityThreshold: decimal.NewFromInt(100),
		RetirementRates:       map[string]decimal.Decimal{"afp": decimal.NewFromInt(10)},
		HealthRates:           map[string]decimal.Decimal{"public": decimal.NewFromInt(7)},
		EmployerHealthRates:   map[string]decimal.Decimal{"public": dec("2.4")},
	}
	mem.PutCompany(settings)
	return settings
}

// seedEmployees stores n employees with 8 hours on every weekday of the
// period.
func seedEmployees(mem *store.Memory, n int, period engine.Period) []engine.EmployeeID {
	ids := make([]engine.EmployeeID, 0, n)
	for i := 1; i <= n; i++ {
		id := employeeID(i)
		mem.PutEmployee(engine.EmployeeProfile{
			EmployeeID:     id,
			SubsidiaryID:   testSubsidiary,
			Name:           fmt.Sprintf("Employee %d", i),
			Salary:         decimal.NewFromInt(3000),
			RetirementPlan: "afp",
			HealthPlan:     "public",
		})
		for _, d := range weekdays(period) {
			mem.AddActivity(engine.ActivityRecord{
				ID:           fmt.Sprintf("%s-%s", id, d),
				EmployeeID:   id,
				Date:         d,
				Hours:        decimal.NewFromInt(8),
				Productivity: decimal.NewFromInt(90),
				Qualifying:   true,
			})
		}
		ids = append(ids, id)
	}
	return ids
}

func concept(code engine.ConceptCode, category engine.Category, priority int) engine.ConceptDefinition {
	return engine.ConceptDefinition{Code: code, Name: string(code), Category: category, ValueKind: engine.ValueFixed, Priority: priority}
}

// fakeDispatcher records submissions; the tests execute jobs themselves.
type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []engine.RunID
	running   map[engine.RunID]bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{running: make(map[engine.RunID]bool)}
}

func (d *fakeDispatcher) Submit(id engine.RunID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, id)
	return nil
}

func (d *fakeDispatcher) Running(id engine.RunID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[id]
}

func (d *fakeDispatcher) Abort(id engine.RunID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[id]
}

func (d *fakeDispatcher) setRunning(id engine.RunID, running bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[id] = running
}

type fixture struct {
	mem        *store.Memory
	registry   *engine.Registry
	job        *engine.Job
	service    *engine.RunService
	dispatcher *fakeDispatcher
}

// newFixture wires the engine over an in-memory store. Extra calculators are
// registered next to the standard ones.
func newFixture(t *testing.T, extra ...engine.ConceptCalculator) *fixture {
	t.Helper()
	mem := store.NewMemory()
	registry, err := concepts.NewRegistry(extra...)
	require.NoError(t, err)

	calendar := engine.NewWorkCalendar(mem, mem)
	job := &engine.Job{
		Runs:      mem,
		Concepts:  mem,
		Companies: mem,
		Employees: mem,
		Builder: &engine.ContextBuilder{
			Profiles:   mem,
			Aggregator: &engine.AttendanceAggregator{Activity: mem, Calendar: calendar},
		},
		Registry:             registry,
		Persister:            &engine.Persister{Store: mem},
		ChunkSize:            4,
		Workers:              3,
		MaxRetries:           1,
		RetryInitialInterval: time.Millisecond,
	}
	dispatcher := newFakeDispatcher()
	service := &engine.RunService{Runs: mem, Companies: mem, Registry: registry, Dispatcher: dispatcher}

	return &fixture{mem: mem, registry: registry, job: job, service: service, dispatcher: dispatcher}
}

// launch creates a run for march2026, configures defs and launches it.
func (f *fixture) launch(t *testing.T, defs ...engine.ConceptDefinition) engine.PayRun {
	t.Helper()
	ctx := context.Background()
	run, err := f.service.CreateRun(ctx, testSubsidiary, march2026)
	require.NoError(t, err)
	require.NoError(t, f.service.ConfigureConcepts(ctx, run.ID, defs))
	run, err = f.service.LaunchCalculation(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, engine.RunInProgress, run.State)
	return run
}
