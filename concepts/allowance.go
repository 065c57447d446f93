package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// FamilyAllowance pays the concept value to eligible employees.
type FamilyAllowance struct{}

func (FamilyAllowance) Code() engine.ConceptCode { return CodeFamilyAllowance }

func (FamilyAllowance) Calculate(pctx engine.EmployeePayrollContext, concept engine.ConceptDefinition) (decimal.Decimal, error) {
	if !pctx.Profile.FamilyAllowance {
		return decimal.Zero, nil
	}
	return engine.NonNegative(concept.Value), nil
}
