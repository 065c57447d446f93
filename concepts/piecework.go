package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// PieceworkExcess sums the excess payment of every day with piecework info.
type PieceworkExcess struct{}

func (PieceworkExcess) Code() engine.ConceptCode { return CodePieceworkExcess }

func (PieceworkExcess) Calculate(pctx engine.EmployeePayrollContext, _ engine.ConceptDefinition) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, day := range pctx.Timeline.PieceworkDays() {
		total = total.Add(day.ExcessPayment())
	}
	return total, nil
}
