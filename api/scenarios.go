/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a
	subsidiary, employees and a month of activity, then open a draft run with
	concepts configured. Launching the run is left to the caller.

AVAILABLE SCENARIOS:

	office-month:   Salaried office staff, overtime, a holiday, one absence
	piecework-crew: Plant crew paid base salary plus piecework excess

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save the subsidiary with its rates
 3. Save employees
 4. Generate activity for every working day of the previous month
 5. Create a draft run and configure a concept preset

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "office-month"}

	POST /api/runs/{run_id}/launch

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Run endpoints
  - concepts/presets.go: Concept presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/concepts"
	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "office-month",
		Name:        "Office Month",
		Description: "Salaried staff with overtime, a public holiday, an absence and statutory deductions",
		Category:    "salaried",
	},
	{
		ID:          "piecework-crew",
		Name:        "Piecework Crew",
		Description: "Plant crew with daily quotas; units above the minimum are paid per piece",
		Category:    "piecework",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loader func(context.Context, engine.Period) (engine.RunID, error)
	switch req.ScenarioID {
	case "office-month":
		loader = h.loadOfficeMonthScenario
	case "piecework-crew":
		loader = h.loadPieceworkCrewScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	runID, err := loader(ctx, scenarioPeriod(time.Now().UTC()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"run_id":   string(runID),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Calendar.InvalidateAll()
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// scenarioPeriod is the calendar month before now.
func scenarioPeriod(now time.Time) engine.Period {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return engine.MonthPeriod(prev.Year(), prev.Month())
}

// DefaultHolidays returns the recurring holidays every subsidiary observes,
// dated in the given year. An empty subsidiary makes them global.
func DefaultHolidays(subsidiary engine.SubsidiaryID, year int) []engine.Holiday {
	scope := string(subsidiary)
	if scope == "" {
		scope = "global"
	}
	defs := []struct {
		slug  string
		name  string
		month time.Month
		day   int
	}{
		{"new-year", "New Year's Day", time.January, 1},
		{"labour-day", "Labour Day", time.May, 1},
		{"christmas", "Christmas Day", time.December, 25},
	}
	out := make([]engine.Holiday, 0, len(defs))
	for _, d := range defs {
		out = append(out, engine.Holiday{
			ID:           fmt.Sprintf("hol-%s-%s", scope, d.slug),
			SubsidiaryID: subsidiary,
			Date:         engine.NewDate(year, d.month, d.day),
			Name:         d.name,
			Recurring:    true,
		})
	}
	return out
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOfficeMonthScenario(ctx context.Context, period engine.Period) (engine.RunID, error) {
	const sub = engine.SubsidiaryID("acme-office")

	settings := engine.CompanySettings{
		SubsidiaryID:          sub,
		Name:                  "Acme Office",
		NonWorkingDays:        []time.Weekday{time.Saturday, time.Sunday},
		NormalDailyHours:      decimal.NewFromInt(8),
		OvertimeTier1Hours:    decimal.NewFromInt(2),
		ProductivityThreshold: decimal.NewFromInt(100),
		RetirementRates:       map[string]decimal.Decimal{"afp-a": decimal.NewFromInt(10), "afp-b": decimal.RequireFromString("11.5")},
		HealthRates:           map[string]decimal.Decimal{"public": decimal.NewFromInt(7)},
		InsuranceRates:        map[string]decimal.Decimal{"standard": decimal.RequireFromString("0.6")},
		EmployerHealthRates:   map[string]decimal.Decimal{"public": decimal.RequireFromString("2.4")},
	}
	if err := h.Store.SaveSubsidiary(ctx, settings); err != nil {
		return "", err
	}
	h.Calendar.Invalidate(sub)

	// A holiday in the middle of the month
	mid := firstWeekday(period.Start.AddDays(14), settings.NonWorkingDays)
	if err := h.Store.SaveHoliday(ctx, engine.Holiday{
		ID: "hol-acme-office-founders", SubsidiaryID: sub, Date: mid, Name: "Founders' Day",
	}); err != nil {
		return "", err
	}

	employees := []engine.EmployeeProfile{
		{EmployeeID: "emp-001", SubsidiaryID: sub, Name: "Alice Johnson", Position: "Accountant", Salary: decimal.NewFromInt(3000),
			RetirementPlan: "afp-a", HealthPlan: "public", InsurancePlan: "standard"},
		{EmployeeID: "emp-002", SubsidiaryID: sub, Name: "Bruno Díaz", Position: "Analyst", Salary: decimal.NewFromInt(2500),
			RetirementPlan: "afp-b", HealthPlan: "public", InsurancePlan: "standard", FamilyAllowance: true},
		{EmployeeID: "emp-003", SubsidiaryID: sub, Name: "Carla Mendes", Position: "Engineer", Salary: decimal.NewFromInt(4200),
			RetirementPlan: "afp-a", HealthPlan: "public"},
		{EmployeeID: "emp-004", SubsidiaryID: sub, Name: "Dmitri Volkov", Position: "Support", Salary: decimal.NewFromInt(1800),
			RetirementPlan: "afp-a", HealthPlan: "public", InsurancePlan: "standard"},
	}
	for _, e := range employees {
		if err := h.Store.SaveEmployee(ctx, e); err != nil {
			return "", err
		}
	}

	var records []engine.ActivityRecord
	for _, day := range period.Days() {
		if isNonWorking(day, settings.NonWorkingDays) || day.Equal(mid) {
			continue
		}
		for _, e := range employees {
			hours := decimal.NewFromInt(8)
			productivity := decimal.NewFromInt(90)
			switch {
			case e.EmployeeID == "emp-001" && day.Time.Day() <= 10:
				hours = decimal.NewFromInt(11) // 8 normal + 2 at 25% + 1 at 100%
			case e.EmployeeID == "emp-003":
				productivity = decimal.NewFromInt(110)
			case e.EmployeeID == "emp-004" && day.Time.Day() > 20:
				continue // Leaves before the end of the month
			}
			records = append(records, engine.ActivityRecord{
				ID:           fmt.Sprintf("act-%s-%s", e.EmployeeID, day),
				EmployeeID:   e.EmployeeID,
				Date:         day,
				Hours:        hours,
				Productivity: productivity,
				Qualifying:   true,
			})
		}
	}
	if err := h.Store.SaveActivities(ctx, records); err != nil {
		return "", err
	}

	return h.openScenarioRun(ctx, sub, period, concepts.StandardConceptsJSON())
}

func (h *Handler) loadPieceworkCrewScenario(ctx context.Context, period engine.Period) (engine.RunID, error) {
	const sub = engine.SubsidiaryID("acme-plant")

	settings := engine.CompanySettings{
		SubsidiaryID:       sub,
		Name:               "Acme Plant",
		NonWorkingDays:     []time.Weekday{time.Sunday},
		NormalDailyHours:   decimal.NewFromInt(8),
		OvertimeTier1Hours: decimal.NewFromInt(2),
		RetirementRates:    map[string]decimal.Decimal{"afp-a": decimal.NewFromInt(10)},
		HealthRates:        map[string]decimal.Decimal{"public": decimal.NewFromInt(7)},
	}
	if err := h.Store.SaveSubsidiary(ctx, settings); err != nil {
		return "", err
	}
	h.Calendar.Invalidate(sub)

	crew := []struct {
		profile  engine.EmployeeProfile
		produced int64
	}{
		{engine.EmployeeProfile{EmployeeID: "emp-101", SubsidiaryID: sub, Name: "Elena Ruiz", Position: "Packer",
			Salary: decimal.NewFromInt(1200), RetirementPlan: "afp-a", HealthPlan: "public"}, 30},
		{engine.EmployeeProfile{EmployeeID: "emp-102", SubsidiaryID: sub, Name: "Femi Adeyemi", Position: "Packer",
			Salary: decimal.NewFromInt(1200), RetirementPlan: "afp-a", HealthPlan: "public"}, 20},
		{engine.EmployeeProfile{EmployeeID: "emp-103", SubsidiaryID: sub, Name: "Grace Liu", Position: "Line lead",
			Salary: decimal.NewFromInt(1500), RetirementPlan: "afp-a", HealthPlan: "public"}, 38},
	}

	var records []engine.ActivityRecord
	for _, c := range crew {
		if err := h.Store.SaveEmployee(ctx, c.profile); err != nil {
			return "", err
		}
		for _, day := range period.Days() {
			if isNonWorking(day, settings.NonWorkingDays) {
				continue
			}
			produced := decimal.NewFromInt(c.produced)
			records = append(records, engine.ActivityRecord{
				ID:           fmt.Sprintf("act-%s-%s", c.profile.EmployeeID, day),
				EmployeeID:   c.profile.EmployeeID,
				Date:         day,
				Hours:        decimal.NewFromInt(8),
				Productivity: produced,
				Qualifying:   true,
				Piecework: &engine.PieceworkCount{
					MinimumUnits: decimal.NewFromInt(25),
					UnitPrice:    decimal.RequireFromString("1.50"),
					Produced:     produced,
				},
			})
		}
	}
	if err := h.Store.SaveActivities(ctx, records); err != nil {
		return "", err
	}

	return h.openScenarioRun(ctx, sub, period, concepts.PieceworkConceptsJSON())
}

func (h *Handler) openScenarioRun(ctx context.Context, sub engine.SubsidiaryID, period engine.Period, preset string) (engine.RunID, error) {
	defs, err := h.ConceptFactory.ParseConcepts(preset)
	if err != nil {
		return "", err
	}
	run, err := h.Runs.CreateRun(ctx, sub, period)
	if err != nil {
		return "", err
	}
	if err := h.Runs.ConfigureConcepts(ctx, run.ID, defs); err != nil {
		return "", err
	}
	return run.ID, nil
}

func isNonWorking(d engine.Date, nonWorking []time.Weekday) bool {
	for _, wd := range nonWorking {
		if d.Weekday() == wd {
			return true
		}
	}
	return false
}

// firstWeekday returns d, or the next date after it that is a working day.
func firstWeekday(d engine.Date, nonWorking []time.Weekday) engine.Date {
	for isNonWorking(d, nonWorking) {
		d = d.AddDays(1)
	}
	return d
}
