package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store/sqlite"
)

var march2026 = engine.MonthPeriod(2026, time.March)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seed stores one subsidiary and n employees with a worked day each.
func seed(t *testing.T, store *sqlite.Store, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveSubsidiary(ctx, engine.CompanySettings{
		SubsidiaryID:          "sub-1",
		Name:                  "Acme",
		NonWorkingDays:        []time.Weekday{time.Saturday, time.Sunday},
		NormalDailyHours:      dec("8"),
		OvertimeTier1Hours:    dec("2"),
		ProductivityThreshold: dec("100"),
		RetirementRates:       map[string]decimal.Decimal{"afp-a": dec("10"), "afp-b": dec("11.5")},
		HealthRates:           map[string]decimal.Decimal{"public": dec("7")},
	}))
	for i := 1; i <= n; i++ {
		id := engine.EmployeeID(fmt.Sprintf("emp-%02d", i))
		require.NoError(t, store.SaveEmployee(ctx, engine.EmployeeProfile{
			EmployeeID:     id,
			SubsidiaryID:   "sub-1",
			Name:           fmt.Sprintf("Employee %d", i),
			Salary:         dec("3000"),
			RetirementPlan: "afp-a",
		}))
		require.NoError(t, store.SaveActivities(ctx, []engine.ActivityRecord{{
			ID:         fmt.Sprintf("act-%02d", i),
			EmployeeID: id,
			Date:       engine.NewDate(2026, time.March, 2),
			Hours:      dec("8"),
			Qualifying: true,
		}}))
	}
}

func newRun(id engine.RunID) engine.PayRun {
	now := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)
	return engine.PayRun{ID: id, SubsidiaryID: "sub-1", Period: march2026, State: engine.RunDraft, CreatedAt: now, UpdatedAt: now}
}

func TestSubsidiaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 0)

	got, err := store.LoadCompanySettings(ctx, "sub-1")
	require.NoError(t, err)

	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, got.NonWorkingDays)
	assert.True(t, dec("11.5").Equal(got.RetirementRates["afp-b"]))
	assert.True(t, dec("7").Equal(got.HealthRates["public"]))

	_, err = store.LoadCompanySettings(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrSubsidiaryNotFound)
}

func TestResolveEmployeesInPeriod_Keyset(t *testing.T) {
	// GIVEN five employees, one soft deleted and one with leave only
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 5)
	require.NoError(t, store.SoftDeleteEmployee(ctx, "emp-02"))
	require.NoError(t, store.SaveActivities(ctx, []engine.ActivityRecord{{
		ID: "act-04", EmployeeID: "emp-04", Date: engine.NewDate(2026, time.March, 2), Hours: dec("8"), Qualifying: false,
	}}))

	// WHEN pages of two are read
	first, err := store.ResolveEmployeesInPeriod(ctx, "sub-1", march2026, "", 2)
	require.NoError(t, err)
	second, err := store.ResolveEmployeesInPeriod(ctx, "sub-1", march2026, first[len(first)-1], 2)
	require.NoError(t, err)

	// THEN only active employees with qualifying activity come back, in order
	assert.Equal(t, []engine.EmployeeID{"emp-01", "emp-03"}, first)
	assert.Equal(t, []engine.EmployeeID{"emp-05"}, second)

	// AND another month selects nobody
	april, err := store.ResolveEmployeesInPeriod(ctx, "sub-1", engine.MonthPeriod(2026, time.April), "", 10)
	require.NoError(t, err)
	assert.Empty(t, april)

	_, err = store.ResolveEmployeesInPeriod(ctx, "nowhere", march2026, "", 10)
	assert.ErrorIs(t, err, engine.ErrSubsidiaryNotFound)
}

func TestSoftDeletedEmployeeIsHidden(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 2)

	require.NoError(t, store.SoftDeleteEmployee(ctx, "emp-01"))

	_, err := store.LoadEmployeeProfile(ctx, "emp-01")
	assert.ErrorIs(t, err, engine.ErrEmployeeNotFound)
	employees, err := store.ListEmployees(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, engine.EmployeeID("emp-02"), employees[0].EmployeeID)
	assert.ErrorIs(t, store.SoftDeleteEmployee(ctx, "emp-01"), engine.ErrEmployeeNotFound)
}

func TestActivityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 1)
	day := engine.NewDate(2026, time.March, 3)

	require.NoError(t, store.SaveActivities(ctx, []engine.ActivityRecord{{
		ID: "piece-1", EmployeeID: "emp-01", Date: day, Hours: dec("8"), Productivity: dec("30"), Qualifying: true,
		Piecework: &engine.PieceworkCount{MinimumUnits: dec("25"), UnitPrice: dec("1.50"), Produced: dec("30")},
	}}))

	records, err := store.LoadDailyActivity(ctx, "emp-01", day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Piecework)
	assert.True(t, dec("1.50").Equal(records[0].Piecework.UnitPrice))
	assert.True(t, records[0].Qualifying)

	all, err := store.LoadActivityRange(ctx, "emp-01", march2026)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Nil(t, all[0].Piecework)

	err = store.SaveActivities(ctx, []engine.ActivityRecord{{ID: "x", EmployeeID: "ghost", Date: day, Hours: dec("1")}})
	assert.ErrorIs(t, err, engine.ErrEmployeeNotFound)
}

func TestHolidays(t *testing.T) {
	// GIVEN a recurring global holiday and a one-off subsidiary holiday
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 0)
	require.NoError(t, store.SaveHoliday(ctx, engine.Holiday{ID: "xmas", Date: engine.NewDate(2020, time.December, 25), Name: "Christmas", Recurring: true}))
	require.NoError(t, store.SaveHoliday(ctx, engine.Holiday{ID: "founders", SubsidiaryID: "sub-1", Date: engine.NewDate(2026, time.March, 19), Name: "Founders"}))

	check := func(sub engine.SubsidiaryID, date engine.Date) bool {
		ok, err := store.IsHoliday(ctx, sub, date)
		require.NoError(t, err)
		return ok
	}

	// THEN recurring holidays match every year and scoped ones only their subsidiary
	assert.True(t, check("sub-1", engine.NewDate(2026, time.December, 25)))
	assert.True(t, check("other", engine.NewDate(2031, time.December, 25)))
	assert.True(t, check("sub-1", engine.NewDate(2026, time.March, 19)))
	assert.False(t, check("other", engine.NewDate(2026, time.March, 19)))
	assert.False(t, check("sub-1", engine.NewDate(2027, time.March, 19)))

	holidays, err := store.ListHolidays(ctx, "sub-1")
	require.NoError(t, err)
	assert.Len(t, holidays, 2)

	require.NoError(t, store.DeleteHoliday(ctx, "founders"))
	assert.False(t, check("sub-1", engine.NewDate(2026, time.March, 19)))
}

func TestRunRoundTrip(t *testing.T) {
	// GIVEN a stored run
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 1)
	run := newRun("run-1")
	require.NoError(t, store.CreateRun(ctx, run))

	// WHEN it is launched, finalized and saved
	at := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, run.Transition(engine.RunInProgress, at))
	run.Progress = engine.Progress{Processed: 1, Succeeded: 1, Batches: 1, LastEmployeeKey: "emp-01", TotalIncome: dec("3000"), TotalNet: dec("2700")}
	require.NoError(t, run.Finalize(at))
	require.NoError(t, store.SaveRun(ctx, run))

	// THEN every field comes back
	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.RunCalculated, got.State)
	assert.Equal(t, engine.EmployeeID("emp-01"), got.Progress.LastEmployeeKey)
	require.NotNil(t, got.Summary)
	assert.Equal(t, engine.OutcomeSuccess, got.Summary.Outcome)
	assert.True(t, dec("2700").Equal(got.Summary.TotalNet))
	require.NotNil(t, got.StartedAt)
	assert.True(t, at.Equal(*got.StartedAt))
	assert.True(t, got.Period.Equal(march2026))

	// AND filters apply
	active, err := store.ListRuns(ctx, engine.RunFilter{SubsidiaryID: "sub-1", States: engine.ActiveRunStates})
	require.NoError(t, err)
	assert.Len(t, active, 1)
	drafts, err := store.ListRuns(ctx, engine.RunFilter{States: []engine.RunState{engine.RunDraft}})
	require.NoError(t, err)
	assert.Empty(t, drafts)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrRunNotFound)
	assert.ErrorIs(t, store.SaveRun(ctx, newRun("missing")), engine.ErrRunNotFound)
}

func TestActiveRunPerPeriodIsUnique(t *testing.T) {
	// GIVEN an active run for March
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 0)
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	// WHEN a second active run for March is stored
	err := store.CreateRun(ctx, newRun("run-2"))

	// THEN it conflicts
	assert.ErrorIs(t, err, engine.ErrRunConflict)

	// AND once the first is cancelled the period is free again
	first, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NoError(t, first.Transition(engine.RunCancelled, time.Now()))
	require.NoError(t, store.SaveRun(ctx, first))
	assert.NoError(t, store.CreateRun(ctx, newRun("run-2")))
}

func TestRunWritesRollBackWithTransaction(t *testing.T) {
	// GIVEN a transaction that creates and configures a run, then fails
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 0)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(w engine.RunWriter) error {
		active, err := w.ListRuns(ctx, engine.RunFilter{SubsidiaryID: "sub-1", States: engine.ActiveRunStates})
		require.NoError(t, err)
		require.Empty(t, active)
		if err := w.CreateRun(ctx, newRun("run-1")); err != nil {
			return err
		}
		if err := w.SaveRunConcepts(ctx, "run-1", []engine.ConceptDefinition{
			{Code: "A", Name: "A", Category: engine.CategoryIncome, ValueKind: engine.ValueFixed, Value: dec("1"), Priority: 1},
		}); err != nil {
			return err
		}
		return boom
	})

	// THEN neither write is kept
	assert.ErrorIs(t, err, boom)
	_, err = store.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, engine.ErrRunNotFound)
	runs, err := store.ListRuns(ctx, engine.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunConceptsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 0)
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	require.NoError(t, store.SaveRunConcepts(ctx, "run-1", []engine.ConceptDefinition{
		{Code: "HEALTH", Name: "Health", Category: engine.CategoryDeduction, ValueKind: engine.ValuePercentage, Value: dec("7"), Priority: 110},
		{Code: "BONUS", Name: "Bonus", Category: engine.CategoryIncome, ValueKind: engine.ValueFixed, Value: dec("15"), Priority: 40,
			Config: map[string]string{"threshold": "100"}},
	}))

	got, err := store.LoadConfiguredConcepts(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, engine.ConceptCode("BONUS"), got[0].Code)
	assert.Equal(t, "100", got[0].Config["threshold"])
	assert.True(t, dec("7").Equal(got[1].Value))

	_, err = store.LoadConfiguredConcepts(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrRunNotFound)
}

func TestDetailsAndFailures(t *testing.T) {
	// GIVEN an in_progress run
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 2)
	run := newRun("run-1")
	run.State = engine.RunInProgress
	require.NoError(t, store.CreateRun(ctx, run))

	detail := engine.PayDetail{
		RunID:       "run-1",
		EmployeeID:  "emp-01",
		TotalIncome: dec("3000"),
		NetToPay:    dec("2700"),
		Concepts:    map[engine.ConceptCode]decimal.Decimal{"BASE_SALARY": dec("3000")},
		Applied:     []engine.ConceptCode{"BASE_SALARY"},
	}

	// WHEN a detail and a failure are written in one transaction
	err := store.WithTx(ctx, func(w engine.RunWriter) error {
		exists, err := w.EmployeeExists(ctx, "emp-01")
		require.NoError(t, err)
		require.True(t, exists)
		if err := w.InsertDetail(ctx, detail); err != nil {
			return err
		}
		return w.InsertFailure(ctx, "run-1", engine.EmployeeFailure{EmployeeID: "emp-02", ConceptCode: "BONUS", Reason: "boom"})
	})
	require.NoError(t, err)

	// THEN both read back
	got, err := store.GetDetail(ctx, "run-1", "emp-01")
	require.NoError(t, err)
	assert.True(t, dec("2700").Equal(got.NetToPay))
	assert.True(t, dec("3000").Equal(got.Concepts["BASE_SALARY"]))
	details, err := store.ListDetails(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, details, 1)
	failures, err := store.ListFailures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, engine.ConceptCode("BONUS"), failures[0].ConceptCode)

	_, err = store.GetDetail(ctx, "run-1", "emp-02")
	assert.ErrorIs(t, err, engine.ErrDetailNotFound)
}

func TestDuplicateDetailRollsBack(t *testing.T) {
	// GIVEN a run with a persisted detail for emp-01
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 2)
	run := newRun("run-1")
	run.State = engine.RunInProgress
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.WithTx(ctx, func(w engine.RunWriter) error {
		return w.InsertDetail(ctx, engine.PayDetail{RunID: "run-1", EmployeeID: "emp-01"})
	}))

	// WHEN a transaction writes emp-02 and repeats emp-01
	err := store.WithTx(ctx, func(w engine.RunWriter) error {
		if err := w.InsertDetail(ctx, engine.PayDetail{RunID: "run-1", EmployeeID: "emp-02"}); err != nil {
			return err
		}
		return w.InsertDetail(ctx, engine.PayDetail{RunID: "run-1", EmployeeID: "emp-01"})
	})

	// THEN it fails as a data integrity error and emp-02 is not kept
	assert.ErrorIs(t, err, engine.ErrDataIntegrity)
	_, err = store.GetDetail(ctx, "run-1", "emp-02")
	assert.ErrorIs(t, err, engine.ErrDetailNotFound)
}

func TestDeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 1)
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))
	require.NoError(t, store.SaveRunConcepts(ctx, "run-1", []engine.ConceptDefinition{
		{Code: "A", Name: "A", Category: engine.CategoryIncome, ValueKind: engine.ValueFixed, Value: dec("1"), Priority: 1},
	}))

	require.NoError(t, store.DeleteRun(ctx, "run-1"))

	_, err := store.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, engine.ErrRunNotFound)
	assert.ErrorIs(t, store.DeleteRun(ctx, "run-1"), engine.ErrRunNotFound)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, 2)
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))

	require.NoError(t, store.Reset(ctx))

	subs, err := store.ListSubsidiaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
	runs, err := store.ListRuns(ctx, engine.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCorruptDecimalIsDataIntegrityError(t *testing.T) {
	// GIVEN a file database whose salary and concept value were overwritten
	// outside the store
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payroll.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	seed(t, store, 1)
	require.NoError(t, store.CreateRun(ctx, newRun("run-1")))
	require.NoError(t, store.SaveRunConcepts(ctx, "run-1", []engine.ConceptDefinition{
		{Code: "A", Name: "A", Category: engine.CategoryIncome, ValueKind: engine.ValueFixed, Value: dec("1"), Priority: 1},
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	_, err = raw.ExecContext(ctx, "UPDATE employees SET salary = '3,000.00' WHERE id = 'emp-01'")
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "UPDATE run_concepts SET value = 'ten' WHERE run_id = 'run-1'")
	require.NoError(t, err)

	// WHEN they are read back
	_, profileErr := store.LoadEmployeeProfile(ctx, "emp-01")
	_, conceptsErr := store.LoadConfiguredConcepts(ctx, "run-1")

	// THEN neither reads as zero
	assert.ErrorIs(t, profileErr, engine.ErrDataIntegrity)
	assert.ErrorIs(t, conceptsErr, engine.ErrDataIntegrity)
}
