/*
context.go - Per-employee calculation context

PURPOSE:
  EmployeePayrollContext is everything a concept calculator may read: the
  employee profile, the attendance timeline, company-wide rates, the ordered
  concepts of the run and the running accumulators. It is built fresh for
  every employee and discarded once the detail is produced.

SEE ALSO:
  - attendance.go: Timeline construction
  - orchestrator.go: Advances the accumulators between concepts
*/
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLLABORATOR DATA
// =============================================================================

// EmployeeProfile is the payroll view of an employee.
type EmployeeProfile struct {
	EmployeeID      EmployeeID
	SubsidiaryID    SubsidiaryID
	Name            string
	Position        string
	Salary          decimal.Decimal // Monthly
	RetirementPlan  string          // Empty = not enrolled
	HealthPlan      string
	InsurancePlan   string
	FamilyAllowance bool
}

// CompanySettings holds a subsidiary's work week and company-wide rates.
// Rate maps are keyed by plan identifier and hold percentages (e.g. 10 = 10%).
type CompanySettings struct {
	SubsidiaryID          SubsidiaryID
	Name                  string
	NonWorkingDays        []time.Weekday
	NormalDailyHours      decimal.Decimal
	OvertimeTier1Hours    decimal.Decimal
	OvertimeRate          decimal.Decimal // Hourly; zero = derive from salary
	ProductivityThreshold decimal.Decimal
	RetirementRates       map[string]decimal.Decimal
	HealthRates           map[string]decimal.Decimal
	InsuranceRates        map[string]decimal.Decimal
	EmployerHealthRates   map[string]decimal.Decimal
}

var (
	DefaultNormalDailyHours   = decimal.NewFromInt(8)
	DefaultOvertimeTier1Hours = decimal.NewFromInt(2)
)

// WithDefaults fills unset hour limits and the work week.
func (s CompanySettings) WithDefaults() CompanySettings {
	if !s.NormalDailyHours.IsPositive() {
		s.NormalDailyHours = DefaultNormalDailyHours
	}
	if s.OvertimeTier1Hours.IsNegative() || s.OvertimeTier1Hours.IsZero() {
		s.OvertimeTier1Hours = DefaultOvertimeTier1Hours
	}
	if s.NonWorkingDays == nil {
		s.NonWorkingDays = DefaultNonWorkingDays
	}
	return s
}

// =============================================================================
// CONTEXT
// =============================================================================

// Totals are the three accumulators of a pay detail.
type Totals struct {
	Income                decimal.Decimal
	Deductions            decimal.Decimal
	EmployerContributions decimal.Decimal
}

// Net is income minus deductions. Employer contributions are informational.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Sub(t.Deductions)
}

func (t Totals) add(bucket Bucket, amount decimal.Decimal) Totals {
	switch bucket {
	case BucketIncome:
		t.Income = t.Income.Add(amount)
	case BucketDeductions:
		t.Deductions = t.Deductions.Add(amount)
	case BucketEmployerContributions:
		t.EmployerContributions = t.EmployerContributions.Add(amount)
	}
	return t
}

type EmployeePayrollContext struct {
	RunID    RunID
	Period   Period
	Profile  EmployeeProfile
	Company  CompanySettings
	Timeline Timeline
	Concepts []ConceptDefinition // Sorted by priority, then code

	// Totals accumulated by the concepts applied so far.
	Totals Totals
}

// ContextBuilder assembles EmployeePayrollContext values.
type ContextBuilder struct {
	Profiles   ProfileSource
	Aggregator *AttendanceAggregator
}

// Build loads the profile and timeline of one employee. A missing profile or
// an invalid activity record is scoped to the employee (CalculationError);
// other collaborator failures are transient.
func (b *ContextBuilder) Build(ctx context.Context, run PayRun, employee EmployeeID, company CompanySettings, concepts []ConceptDefinition) (EmployeePayrollContext, error) {
	profile, err := b.Profiles.LoadEmployeeProfile(ctx, employee)
	if err != nil {
		if errors.Is(err, ErrEmployeeNotFound) {
			return EmployeePayrollContext{}, &CalculationError{EmployeeID: employee, Err: err}
		}
		return EmployeePayrollContext{}, asTransient("load employee profile", err)
	}

	timeline, err := b.Aggregator.Aggregate(ctx, run.SubsidiaryID, employee, run.Period, company)
	if err != nil {
		return EmployeePayrollContext{}, err
	}

	return EmployeePayrollContext{
		RunID:    run.ID,
		Period:   run.Period,
		Profile:  profile,
		Company:  company.WithDefaults(),
		Timeline: timeline,
		Concepts: SortConcepts(concepts),
	}, nil
}
