package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// BaseSalary pays the monthly salary, prorated by working days worked over
// working days when attendance is incomplete.
type BaseSalary struct{}

func (BaseSalary) Code() engine.ConceptCode { return CodeBaseSalary }

func (BaseSalary) Calculate(pctx engine.EmployeePayrollContext, _ engine.ConceptDefinition) (decimal.Decimal, error) {
	salary := engine.NonNegative(pctx.Profile.Salary)
	tl := pctx.Timeline
	if tl.WorkingDays == 0 {
		return decimal.Zero, nil
	}
	if tl.Complete() {
		return salary, nil
	}
	return salary.Mul(decimal.NewFromInt(int64(tl.WorkingDaysWorked))).Div(decimal.NewFromInt(int64(tl.WorkingDays))), nil
}
