package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// STATUTORY DEDUCTIONS AND CONTRIBUTIONS
// =============================================================================

// Statutory is a percentage of the income accumulated so far, parameterized
// by one of the employee's plan identifiers. The rate is the company rate for
// that plan, or the concept value when the company has none. An employee
// without a plan pays nothing.
//
// engine.ValidateConcepts rejects a configuration that would run a statutory
// concept before the last income concept.
type Statutory struct {
	ConceptCode engine.ConceptCode
	Plan        func(engine.EmployeeProfile) string
	Rates       func(engine.CompanySettings) map[string]decimal.Decimal
}

func (s Statutory) Code() engine.ConceptCode { return s.ConceptCode }

func (s Statutory) Calculate(pctx engine.EmployeePayrollContext, concept engine.ConceptDefinition) (decimal.Decimal, error) {
	plan := s.Plan(pctx.Profile)
	if plan == "" {
		return decimal.Zero, nil
	}
	rate, ok := s.Rates(pctx.Company)[plan]
	if !ok {
		rate = concept.Value
	}
	return engine.NonNegative(percentOf(pctx.Totals.Income, engine.NonNegative(rate))), nil
}

func Retirement() Statutory {
	return Statutory{
		ConceptCode: CodeRetirement,
		Plan:        func(p engine.EmployeeProfile) string { return p.RetirementPlan },
		Rates:       func(c engine.CompanySettings) map[string]decimal.Decimal { return c.RetirementRates },
	}
}

func Health() Statutory {
	return Statutory{
		ConceptCode: CodeHealth,
		Plan:        func(p engine.EmployeeProfile) string { return p.HealthPlan },
		Rates:       func(c engine.CompanySettings) map[string]decimal.Decimal { return c.HealthRates },
	}
}

func Insurance() Statutory {
	return Statutory{
		ConceptCode: CodeInsurance,
		Plan:        func(p engine.EmployeeProfile) string { return p.InsurancePlan },
		Rates:       func(c engine.CompanySettings) map[string]decimal.Decimal { return c.InsuranceRates },
	}
}

// EmployerHealth is the employer share of the health plan.
func EmployerHealth() Statutory {
	return Statutory{
		ConceptCode: CodeEmployerHealth,
		Plan:        func(p engine.EmployeeProfile) string { return p.HealthPlan },
		Rates:       func(c engine.CompanySettings) map[string]decimal.Decimal { return c.EmployerHealthRates },
	}
}
