/*
Package concepts provides the concrete pay concept calculators.

PURPOSE:
  Each calculator computes exactly one concept code from an
  engine.EmployeePayrollContext. All of them are pure: they read the context
  and the concept definition and return an unrounded amount. Rounding,
  bucketing and accumulation belong to the engine's orchestrator.

CALCULATOR FAMILIES:
  BASE_SALARY:        Monthly salary, prorated by attendance when incomplete
  OVERTIME:           Overtime-25% and overtime-100% hours at a premium
  PIECEWORK_EXCESS:   Production above the daily quota at the unit price
  PRODUCTIVITY_BONUS: Flat amount per worked day at or above a threshold
  RETIREMENT:         Percentage of income, per retirement plan
  HEALTH:             Percentage of income, per health plan
  INSURANCE:          Percentage of income, per insurance plan
  EMPLOYER_HEALTH:    Employer share of the health plan (informational)
  FAMILY_ALLOWANCE:   Flat amount when the employee is eligible

REGISTRATION:
  There is no reflection or init-time registration. All() lists every
  calculator explicitly, and NewRegistry builds the engine registry from it.

EXAMPLE:
  registry, err := concepts.NewRegistry()
  concepts, err := factory.ParseConcepts(concepts.StandardConceptsJSON())

SEE ALSO:
  - registry.go: All() and NewRegistry
  - presets.go: Standard concept configuration
  - engine/calculator.go: ConceptCalculator interface
*/
package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// CONCEPT CODES
// =============================================================================

const (
	CodeBaseSalary        engine.ConceptCode = "BASE_SALARY"
	CodeOvertime          engine.ConceptCode = "OVERTIME"
	CodePieceworkExcess   engine.ConceptCode = "PIECEWORK_EXCESS"
	CodeProductivityBonus engine.ConceptCode = "PRODUCTIVITY_BONUS"
	CodeRetirement        engine.ConceptCode = "RETIREMENT"
	CodeHealth            engine.ConceptCode = "HEALTH"
	CodeInsurance         engine.ConceptCode = "INSURANCE"
	CodeEmployerHealth    engine.ConceptCode = "EMPLOYER_HEALTH"
	CodeFamilyAllowance   engine.ConceptCode = "FAMILY_ALLOWANCE"
)

// Config keys read from ConceptDefinition.Config.
const (
	ConfigThreshold    = "threshold"
	ConfigTier1Premium = "tier1_premium"
	ConfigTier2Premium = "tier2_premium"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns base × rate / 100.
func percentOf(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(hundred)
}
