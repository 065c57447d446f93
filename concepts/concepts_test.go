package concepts_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/concepts"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

var march2026 = engine.MonthPeriod(2026, time.March)

// salaried is a context with 22 working days and the given attendance.
func salaried(salary string, worked int) engine.EmployeePayrollContext {
	return engine.EmployeePayrollContext{
		Period:  march2026,
		Profile: engine.EmployeeProfile{EmployeeID: "emp-01", Salary: dec(salary)},
		Company: engine.CompanySettings{NormalDailyHours: dec("8")},
		Timeline: engine.Timeline{
			Period:            march2026,
			WorkingDays:       22,
			WorkingDaysWorked: worked,
			DaysWorked:        worked,
		},
	}
}

func TestBaseSalary(t *testing.T) {
	tests := []struct {
		name    string
		salary  string
		worked  int
		working int
		want    string
	}{
		{name: "complete month", salary: "3000", worked: 22, working: 22, want: "3000"},
		{name: "prorated", salary: "3000", worked: 20, working: 22, want: "2727.27"},
		{name: "no attendance", salary: "3000", worked: 0, working: 22, want: "0"},
		{name: "no working days", salary: "3000", worked: 0, working: 0, want: "0"},
		{name: "negative salary pays nothing", salary: "-10", worked: 22, working: 22, want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pctx := salaried(tt.salary, tt.worked)
			pctx.Timeline.WorkingDays = tt.working

			got, err := concepts.BaseSalary{}.Calculate(pctx, engine.ConceptDefinition{Code: concepts.CodeBaseSalary})

			require.NoError(t, err)
			assertDecimal(t, tt.want, engine.RoundMoney(got))
		})
	}
}

func TestOvertime(t *testing.T) {
	// GIVEN 3 hours at 25% and 2 hours at 100%
	pctx := salaried("3520", 22)
	pctx.Timeline.Hours = engine.HourBreakdown{Overtime25: dec("3"), Overtime100: dec("2")}
	def := engine.ConceptDefinition{Code: concepts.CodeOvertime}

	t.Run("rate derived from salary", func(t *testing.T) {
		// 3520 / (22 * 8) = 20 per hour
		assertDecimal(t, "20", concepts.HourlyRate(pctx))

		got, err := concepts.Overtime{}.Calculate(pctx, def)
		require.NoError(t, err)

		// 20 * (3 * 1.25 + 2 * 2)
		assertDecimal(t, "155", got)
	})

	t.Run("company rate and configured premiums", func(t *testing.T) {
		withRate := pctx
		withRate.Company.OvertimeRate = dec("10")
		custom := def
		custom.Config = map[string]string{concepts.ConfigTier1Premium: "0.5", concepts.ConfigTier2Premium: "0.75"}

		got, err := concepts.Overtime{}.Calculate(withRate, custom)
		require.NoError(t, err)

		// 10 * (3 * 1.5 + 2 * 1.75)
		assertDecimal(t, "80", got)
	})

	t.Run("no working days pays nothing", func(t *testing.T) {
		empty := pctx
		empty.Timeline.WorkingDays = 0

		got, err := concepts.Overtime{}.Calculate(empty, def)
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})
}

func TestPieceworkExcess(t *testing.T) {
	// GIVEN one day above quota and one below
	pctx := salaried("0", 2)
	pctx.Timeline.Days = []engine.DayEntry{
		{Worked: true, Piecework: &engine.PieceworkDayInfo{MinimumUnits: dec("25"), UnitPrice: dec("1.50"), Produced: dec("30")}},
		{Worked: true, Piecework: &engine.PieceworkDayInfo{MinimumUnits: dec("25"), UnitPrice: dec("1.50"), Produced: dec("20")}},
		{Worked: true},
	}

	got, err := concepts.PieceworkExcess{}.Calculate(pctx, engine.ConceptDefinition{Code: concepts.CodePieceworkExcess})

	require.NoError(t, err)
	assertDecimal(t, "7.50", got)
}

func TestProductivityBonus(t *testing.T) {
	pctx := salaried("3000", 3)
	pctx.Company.ProductivityThreshold = dec("100")
	pctx.Timeline.Days = []engine.DayEntry{
		{Worked: true, Productivity: dec("120")},
		{Worked: true, Productivity: dec("100")},
		{Worked: true, Productivity: dec("99")},
		{Worked: false, Productivity: dec("150")},
	}

	t.Run("company threshold", func(t *testing.T) {
		got, err := concepts.ProductivityBonus{}.Calculate(pctx, engine.ConceptDefinition{Value: dec("15")})
		require.NoError(t, err)
		assertDecimal(t, "30", got)
	})

	t.Run("concept threshold wins", func(t *testing.T) {
		def := engine.ConceptDefinition{Value: dec("15"), Config: map[string]string{concepts.ConfigThreshold: "110"}}
		got, err := concepts.ProductivityBonus{}.Calculate(pctx, def)
		require.NoError(t, err)
		assertDecimal(t, "15", got)
	})
}

func TestStatutory(t *testing.T) {
	pctx := salaried("3000", 22)
	pctx.Totals.Income = dec("3000")
	pctx.Profile.RetirementPlan = "afp-b"
	pctx.Profile.HealthPlan = "private"
	pctx.Company.RetirementRates = map[string]decimal.Decimal{"afp-a": dec("10"), "afp-b": dec("11.5")}

	t.Run("company rate for the plan", func(t *testing.T) {
		got, err := concepts.Retirement().Calculate(pctx, engine.ConceptDefinition{Value: dec("10")})
		require.NoError(t, err)
		assertDecimal(t, "345", got)
	})

	t.Run("concept value when the company has no rate", func(t *testing.T) {
		got, err := concepts.Health().Calculate(pctx, engine.ConceptDefinition{Value: dec("7")})
		require.NoError(t, err)
		assertDecimal(t, "210", got)
	})

	t.Run("no plan pays nothing", func(t *testing.T) {
		got, err := concepts.Insurance().Calculate(pctx, engine.ConceptDefinition{Value: dec("0.6")})
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})
}

func TestFamilyAllowance(t *testing.T) {
	pctx := salaried("3000", 22)
	def := engine.ConceptDefinition{Value: dec("50")}

	got, err := concepts.FamilyAllowance{}.Calculate(pctx, def)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	pctx.Profile.FamilyAllowance = true
	got, err = concepts.FamilyAllowance{}.Calculate(pctx, def)
	require.NoError(t, err)
	assertDecimal(t, "50", got)
}

func TestRegistryCoversStandardPreset(t *testing.T) {
	// GIVEN the registry and the standard preset
	registry, err := concepts.NewRegistry()
	require.NoError(t, err)
	defs, err := factory.NewConceptFactory().ParseConcepts(concepts.StandardConceptsJSON())
	require.NoError(t, err)

	// THEN every registered calculator has exactly one preset concept
	codes := make([]engine.ConceptCode, 0, len(defs))
	for _, d := range defs {
		codes = append(codes, d.Code)
	}
	assert.ElementsMatch(t, registry.Codes(), codes)
	assert.NoError(t, registry.Validate(defs))

	piecework, err := factory.NewConceptFactory().ParseConcepts(concepts.PieceworkConceptsJSON())
	require.NoError(t, err)
	assert.NoError(t, registry.Validate(piecework))
}

func TestStandardPresetEndToEnd(t *testing.T) {
	// GIVEN a prorated employee with overtime and a family allowance
	registry, err := concepts.NewRegistry()
	require.NoError(t, err)
	defs, err := factory.NewConceptFactory().ParseConcepts(concepts.StandardConceptsJSON())
	require.NoError(t, err)

	pctx := salaried("3000", 20)
	pctx.Profile.RetirementPlan = "afp"
	pctx.Profile.HealthPlan = "public"
	pctx.Profile.InsurancePlan = "standard"
	pctx.Profile.FamilyAllowance = true
	pctx.Company.RetirementRates = map[string]decimal.Decimal{"afp": dec("10")}
	pctx.Concepts = defs

	// WHEN the orchestrator computes the detail
	detail, err := (&engine.Orchestrator{Registry: registry}).Compute(pctx)
	require.NoError(t, err)

	// THEN income is salary plus allowance and deductions follow it
	assertDecimal(t, "2727.27", detail.Concepts[concepts.CodeBaseSalary])
	assertDecimal(t, "2777.27", detail.TotalIncome)
	assertDecimal(t, "277.73", detail.Concepts[concepts.CodeRetirement])
	assertDecimal(t, "194.41", detail.Concepts[concepts.CodeHealth])
	assertDecimal(t, "16.66", detail.Concepts[concepts.CodeInsurance])
	assertDecimal(t, "66.65", detail.Concepts[concepts.CodeEmployerHealth])
	assertDecimal(t, "488.80", detail.TotalDeductions)
	assertDecimal(t, "2288.47", detail.NetToPay)
	assert.True(t, detail.NetMatches())
}
